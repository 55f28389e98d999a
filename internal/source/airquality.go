package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
	"github.com/i474232898/weather-stream-pipeline/internal/secrets"
)

// AirQualityClient fetches air-quality readings for one location.
type AirQualityClient struct {
	apiClient
}

// NewAirQualityClient creates the air-quality source client.
func NewAirQualityClient(client *http.Client, baseURL string, backoff pipeline.BackoffPolicy, auth *secrets.Authenticator, keySecret string) *AirQualityClient {
	return &AirQualityClient{
		apiClient: newAPIClient(
			pipeline.CategoryAirQuality,
			"airquality",
			baseURL+"/air-quality.json",
			client,
			backoff,
			auth,
			keySecret,
		),
	}
}

// Fetch retrieves the raw air-quality payload. The upstream endpoint only
// accepts coordinates, so locations must be geocoded before the cycle runs.
func (c *AirQualityClient) Fetch(ctx context.Context, loc pipeline.Location) (pipeline.RawResponse, error) {
	if loc.Lat == nil || loc.Lon == nil {
		return nil, fmt.Errorf("%w: air quality requires latitude and longitude for %s", pipeline.ErrUpstream, loc.Key())
	}
	return c.fetch(ctx, loc, nil)
}
