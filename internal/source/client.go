package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
	"github.com/i474232898/weather-stream-pipeline/internal/secrets"
)

// Client fetches one category of upstream data for one location. It owns the
// HTTP-level retry for that single call; the orchestrator never retries.
type Client interface {
	Category() pipeline.Category
	Fetch(ctx context.Context, loc pipeline.Location) (pipeline.RawResponse, error)
}

// HTTPClientConfig bundles the shared HTTP client and the source-side
// backoff policy.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff pipeline.BackoffPolicy
}

var (
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")

	// errTransient marks retryable upstream failures (5xx). Exhausted
	// retries surface as pipeline.ErrUpstream.
	errTransient = errors.New("transient upstream failure")
)

// doRequestWithResilience executes the HTTP request with bounded exponential
// backoff and a circuit breaker, classifying statuses into the pipeline
// error taxonomy. 401/403 and non-retryable 4xx are never retried.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxAttempts < 1 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var lastErr error

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, fmt.Errorf("%w: %v", errTransient, execErr)
			}

			switch {
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				resp.Body.Close()
				return nil, fmt.Errorf("%w: upstream status %d", pipeline.ErrAuth, resp.StatusCode)
			case resp.StatusCode == http.StatusTooManyRequests:
				resp.Body.Close()
				return nil, fmt.Errorf("%w: upstream status %d", pipeline.ErrRateLimited, resp.StatusCode)
			case resp.StatusCode >= 500:
				resp.Body.Close()
				return nil, fmt.Errorf("%w: upstream status %d", errTransient, resp.StatusCode)
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				resp.Body.Close()
				return nil, fmt.Errorf("%w: unexpected status %d", pipeline.ErrUpstream, resp.StatusCode)
			}

			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit breaker open: %v", pipeline.ErrUpstream, err)
		}
		if !isRetryable(err) {
			return nil, err
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxAttempts {
			break
		}

		if err := pipeline.SleepWithContext(ctx, cfg.Backoff.Delay(attempt)); err != nil {
			return nil, err
		}
	}

	if errors.Is(lastErr, pipeline.ErrRateLimited) {
		return nil, fmt.Errorf("%w: retries exhausted: %v", pipeline.ErrRateLimited, lastErr)
	}
	return nil, fmt.Errorf("%w: retries exhausted: %v", pipeline.ErrUpstream, lastErr)
}

// isRetryable reports whether a classified failure is worth another attempt.
func isRetryable(err error) bool {
	if errors.Is(err, errTransient) || errors.Is(err, pipeline.ErrRateLimited) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// apiClient carries the shared mechanics of one category endpoint: the
// resolved API key, the resilience settings, and the per-client breaker.
type apiClient struct {
	category  pipeline.Category
	endpoint  string
	httpCfg   HTTPClientConfig
	circuit   *gobreaker.CircuitBreaker
	auth      *secrets.Authenticator
	keySecret string
}

func newAPIClient(
	category pipeline.Category,
	name, endpoint string,
	client *http.Client,
	backoff pipeline.BackoffPolicy,
	auth *secrets.Authenticator,
	keySecret string,
) apiClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return apiClient{
		category: category,
		endpoint: endpoint,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit:   cb,
		auth:      auth,
		keySecret: keySecret,
	}
}

// Category reports which data kind this client fetches.
func (c *apiClient) Category() pipeline.Category {
	return c.category
}

// fetch resolves the API key, issues the resilient request with the given
// extra query parameters, and decodes the JSON body. An auth rejection
// invalidates the cached key before surfacing the error.
func (c *apiClient) fetch(ctx context.Context, loc pipeline.Location, extra url.Values) (pipeline.RawResponse, error) {
	cred, err := c.auth.GetCredential(ctx, c.keySecret)
	if err != nil {
		return nil, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", cred.Value())
		values.Set("q", locationQuery(loc))
		for k, vs := range extra {
			for _, v := range vs {
				values.Add(k, v)
			}
		}

		u := fmt.Sprintf("%s?%s", c.endpoint, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		if errors.Is(err, pipeline.ErrAuth) {
			c.auth.Invalidate(c.keySecret)
		}
		return nil, err
	}
	defer resp.Body.Close()

	var raw pipeline.RawResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decoding %s response: %v", pipeline.ErrMalformedResponse, c.category, err)
	}
	return raw, nil
}

// locationQuery renders the upstream "q" parameter: "lat,lon" when
// coordinates are known, otherwise "city[,country]".
func locationQuery(loc pipeline.Location) string {
	if loc.Lat != nil && loc.Lon != nil {
		return fmt.Sprintf("%f,%f", *loc.Lat, *loc.Lon)
	}
	if loc.Country != "" {
		return fmt.Sprintf("%s,%s", loc.City, loc.Country)
	}
	return loc.City
}
