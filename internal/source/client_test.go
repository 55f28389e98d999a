package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
	"github.com/i474232898/weather-stream-pipeline/internal/secrets"
)

// countingStore is a scripted secret store for auth-path assertions.
type countingStore struct {
	value string
	calls int32
}

func (s *countingStore) GetSecret(context.Context, string) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.value, nil
}

func testBackoff() pipeline.BackoffPolicy {
	return pipeline.BackoffPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func newTestAuth() (*secrets.Authenticator, *countingStore) {
	store := &countingStore{value: "k-test"}
	return secrets.NewAuthenticator(store), store
}

var testLoc = pipeline.Location{ID: "paris", City: "Paris", Country: "FR"}

// TestFetchRetriesTransientServerErrors verifies that 5xx responses are
// retried with backoff until success.
func TestFetchRetriesTransientServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"temp_c": 18}`)
	}))
	defer srv.Close()

	auth, _ := newTestAuth()
	client := NewCurrentClient(srv.Client(), srv.URL, testBackoff(), auth, "weatherapi/api-key")

	raw, err := client.Fetch(context.Background(), testLoc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw["temp_c"] != 18.0 {
		t.Fatalf("expected temp_c 18, got %v", raw["temp_c"])
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", got)
	}
}

// TestFetchRateLimitExhausted verifies persistent 429 surfaces as
// ErrRateLimited after the retry budget.
func TestFetchRateLimitExhausted(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	auth, _ := newTestAuth()
	client := NewForecastClient(srv.Client(), srv.URL, testBackoff(), auth, "weatherapi/api-key", 1)

	_, err := client.Fetch(context.Background(), testLoc)
	if !errors.Is(err, pipeline.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected retry budget of 3 calls, got %d", got)
	}
}

// TestFetchAuthRejectionInvalidatesCredential verifies 401 is never retried
// locally and drops the cached API key.
func TestFetchAuthRejectionInvalidatesCredential(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	auth, store := newTestAuth()
	client := NewAlertsClient(srv.Client(), srv.URL, testBackoff(), auth, "weatherapi/api-key")

	_, err := client.Fetch(context.Background(), testLoc)
	if !errors.Is(err, pipeline.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("auth rejection must not retry; got %d calls", got)
	}

	// The cache was invalidated: the next credential lookup hits the store.
	if _, err := auth.GetCredential(context.Background(), "weatherapi/api-key"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&store.calls); got != 2 {
		t.Fatalf("expected credential refetch after invalidation, got %d store calls", got)
	}
}

// TestFetchNonRetryable4xx verifies other client errors surface immediately.
func TestFetchNonRetryable4xx(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	auth, _ := newTestAuth()
	client := NewCurrentClient(srv.Client(), srv.URL, testBackoff(), auth, "weatherapi/api-key")

	_, err := client.Fetch(context.Background(), testLoc)
	if !errors.Is(err, pipeline.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if errors.Is(err, pipeline.ErrAuth) || errors.Is(err, pipeline.ErrRateLimited) {
		t.Fatalf("4xx must not be classified as auth or rate limit: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("non-retryable 4xx must not retry; got %d calls", got)
	}
}

// TestFetchSendsKeyAndLocationQuery verifies the request shape.
func TestFetchSendsKeyAndLocationQuery(t *testing.T) {
	var gotKey, gotQ, gotDays string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		gotQ = r.URL.Query().Get("q")
		gotDays = r.URL.Query().Get("days")
		fmt.Fprint(w, `{"forecast": {"date": "2026-03-02", "max_temp_c": 20, "min_temp_c": 10}}`)
	}))
	defer srv.Close()

	auth, _ := newTestAuth()
	client := NewForecastClient(srv.Client(), srv.URL, testBackoff(), auth, "weatherapi/api-key", 3)

	if _, err := client.Fetch(context.Background(), testLoc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "k-test" {
		t.Errorf("expected key k-test, got %q", gotKey)
	}
	if gotQ != "Paris,FR" {
		t.Errorf("expected q Paris,FR, got %q", gotQ)
	}
	if gotDays != "3" {
		t.Errorf("expected days 3, got %q", gotDays)
	}
}

// TestFetchUnparseableBody verifies a syntactically broken payload fails as
// malformed for that request only.
func TestFetchUnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"temp_c": `)
	}))
	defer srv.Close()

	auth, _ := newTestAuth()
	client := NewCurrentClient(srv.Client(), srv.URL, testBackoff(), auth, "weatherapi/api-key")

	_, err := client.Fetch(context.Background(), testLoc)
	if !errors.Is(err, pipeline.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

// TestAirQualityRequiresCoordinates verifies the coordinate precondition.
func TestAirQualityRequiresCoordinates(t *testing.T) {
	auth, _ := newTestAuth()
	client := NewAirQualityClient(http.DefaultClient, "http://unused.invalid", testBackoff(), auth, "weatherapi/api-key")

	_, err := client.Fetch(context.Background(), testLoc)
	if err == nil {
		t.Fatal("expected error for location without coordinates")
	}
}
