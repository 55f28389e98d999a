package source

import (
	"context"
	"net/http"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
	"github.com/i474232898/weather-stream-pipeline/internal/secrets"
)

// AlertsClient fetches active weather alerts for one location.
type AlertsClient struct {
	apiClient
}

// NewAlertsClient creates the alerts source client.
func NewAlertsClient(client *http.Client, baseURL string, backoff pipeline.BackoffPolicy, auth *secrets.Authenticator, keySecret string) *AlertsClient {
	return &AlertsClient{
		apiClient: newAPIClient(
			pipeline.CategoryAlerts,
			"alerts",
			baseURL+"/alerts.json",
			client,
			backoff,
			auth,
			keySecret,
		),
	}
}

// Fetch retrieves the raw alerts payload. An empty alert list is a valid
// response and normalizes to zero records.
func (c *AlertsClient) Fetch(ctx context.Context, loc pipeline.Location) (pipeline.RawResponse, error) {
	return c.fetch(ctx, loc, nil)
}
