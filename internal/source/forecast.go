package source

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
	"github.com/i474232898/weather-stream-pipeline/internal/secrets"
)

// ForecastClient fetches the next-day forecast for one location.
type ForecastClient struct {
	apiClient
	days int
}

// NewForecastClient creates the forecast source client. days is the forecast
// horizon requested upstream; the normalizer projects the first day.
func NewForecastClient(client *http.Client, baseURL string, backoff pipeline.BackoffPolicy, auth *secrets.Authenticator, keySecret string, days int) *ForecastClient {
	if days <= 0 {
		days = 1
	}
	return &ForecastClient{
		apiClient: newAPIClient(
			pipeline.CategoryForecast,
			"forecast",
			baseURL+"/forecast.json",
			client,
			backoff,
			auth,
			keySecret,
		),
		days: days,
	}
}

// Fetch retrieves the raw forecast payload.
func (c *ForecastClient) Fetch(ctx context.Context, loc pipeline.Location) (pipeline.RawResponse, error) {
	extra := url.Values{}
	extra.Set("days", strconv.Itoa(c.days))
	return c.fetch(ctx, loc, extra)
}
