package source

import (
	"context"
	"net/http"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
	"github.com/i474232898/weather-stream-pipeline/internal/secrets"
)

// CurrentClient fetches current conditions for one location.
type CurrentClient struct {
	apiClient
}

// NewCurrentClient creates the current-conditions source client.
func NewCurrentClient(client *http.Client, baseURL string, backoff pipeline.BackoffPolicy, auth *secrets.Authenticator, keySecret string) *CurrentClient {
	return &CurrentClient{
		apiClient: newAPIClient(
			pipeline.CategoryCurrentConditions,
			"current",
			baseURL+"/current.json",
			client,
			backoff,
			auth,
			keySecret,
		),
	}
}

// Fetch retrieves the raw current-conditions payload.
func (c *CurrentClient) Fetch(ctx context.Context, loc pipeline.Location) (pipeline.RawResponse, error) {
	return c.fetch(ctx, loc, nil)
}
