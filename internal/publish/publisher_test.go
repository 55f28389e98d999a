package publish

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
)

// fakeWriter is a scripted sink double: it returns the queued errors in
// order, then succeeds.
type fakeWriter struct {
	errs    []error
	calls   int
	batches [][]kafka.Message
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	w.batches = append(w.batches, msgs)
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		return err
	}
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

// fakeInvalidator records credential invalidations.
type fakeInvalidator struct {
	names []string
}

func (f *fakeInvalidator) Invalidate(name string) {
	f.names = append(f.names, name)
}

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(testWriterTo{t: t}, "", 0)
}

type testWriterTo struct{ t *testing.T }

func (w testWriterTo) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func testRecord(loc string, cat pipeline.Category) pipeline.NormalizedRecord {
	return pipeline.NormalizedRecord{
		LocationID:  loc,
		Category:    cat,
		CollectedAt: time.Now().UTC(),
		Fields:      map[string]any{"temp_c": 18.0},
	}
}

func staticFactory(w SinkWriter) WriterFactory {
	return func(context.Context) (SinkWriter, error) { return w, nil }
}

func testBackoff() pipeline.BackoffPolicy {
	return pipeline.BackoffPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

// TestFlushRetriesTransientThenDelivers verifies that transient sink
// failures below the retry cap end in exactly one successful delivery.
func TestFlushRetriesTransientThenDelivers(t *testing.T) {
	writer := &fakeWriter{errs: []error{
		kafka.LeaderNotAvailable,
		kafka.RequestTimedOut,
	}}
	p := New(staticFactory(writer), &fakeInvalidator{}, "kafka/connection", 10, testBackoff(), testLogger(t))

	if !p.Publish(testRecord("seattle", pipeline.CategoryCurrentConditions)) {
		t.Fatal("publish rejected")
	}

	report := p.Flush(context.Background())
	if report.Delivered != 1 || report.Failed != 0 {
		t.Fatalf("expected 1 delivered / 0 failed, got %d/%d", report.Delivered, report.Failed)
	}
	if writer.calls != 3 {
		t.Fatalf("expected 3 write attempts, got %d", writer.calls)
	}

	// The final commit happened exactly once: the last batch is the only
	// successful one and holds the record.
	last := writer.batches[len(writer.batches)-1]
	if len(last) != 1 {
		t.Fatalf("expected final batch of 1 message, got %d", len(last))
	}
}

// TestFlushExhaustedRetriesDeadLetters verifies dead-letter reporting.
func TestFlushExhaustedRetriesDeadLetters(t *testing.T) {
	writer := &fakeWriter{errs: []error{
		kafka.LeaderNotAvailable,
		kafka.LeaderNotAvailable,
		kafka.LeaderNotAvailable,
	}}
	p := New(staticFactory(writer), &fakeInvalidator{}, "kafka/connection", 10, testBackoff(), testLogger(t))

	rec := testRecord("seattle", pipeline.CategoryAlerts)
	p.Publish(rec)

	report := p.Flush(context.Background())
	if report.Delivered != 0 || report.Failed != 1 {
		t.Fatalf("expected 0 delivered / 1 failed, got %d/%d", report.Delivered, report.Failed)
	}
	if len(report.FailedRecords) != 1 || report.FailedRecords[0].Record.LocationID != "seattle" {
		t.Fatalf("expected the failed record to be reported, got %+v", report.FailedRecords)
	}
	if report.FailedRecords[0].Error == "" {
		t.Fatal("expected the failed record to carry its delivery error")
	}
	if report.LastError == "" {
		t.Fatal("expected a last error in the report")
	}
}

// TestFlushCarriesPerBatchErrors verifies that when separate batches fail
// with different errors, each dead-lettered record keeps its own batch's
// error rather than the last one.
func TestFlushCarriesPerBatchErrors(t *testing.T) {
	writer := &fakeWriter{errs: []error{
		kafka.LeaderNotAvailable, kafka.LeaderNotAvailable, kafka.LeaderNotAvailable,
		kafka.RequestTimedOut, kafka.RequestTimedOut, kafka.RequestTimedOut,
	}}
	p := New(staticFactory(writer), &fakeInvalidator{}, "kafka/connection", 1, testBackoff(), testLogger(t))

	p.Publish(testRecord("seattle", pipeline.CategoryCurrentConditions))
	p.Publish(testRecord("paris", pipeline.CategoryCurrentConditions))

	report := p.Flush(context.Background())
	if report.Failed != 2 || len(report.FailedRecords) != 2 {
		t.Fatalf("expected both records dead-lettered, got %+v", report)
	}

	errsByLoc := make(map[string]string, 2)
	for _, fr := range report.FailedRecords {
		errsByLoc[fr.Record.LocationID] = fr.Error
	}
	if !strings.Contains(errsByLoc["seattle"], kafka.LeaderNotAvailable.Error()) {
		t.Fatalf("seattle carries the wrong batch error: %q", errsByLoc["seattle"])
	}
	if !strings.Contains(errsByLoc["paris"], kafka.RequestTimedOut.Error()) {
		t.Fatalf("paris carries the wrong batch error: %q", errsByLoc["paris"])
	}
}

// TestFlushAuthFailureRefreshesCredentialOnce verifies the sink auth path:
// invalidate, rebuild the writer with a fresh credential, retry once.
func TestFlushAuthFailureRefreshesCredentialOnce(t *testing.T) {
	stale := &fakeWriter{errs: []error{kafka.SASLAuthenticationFailed}}
	fresh := &fakeWriter{}

	factoryCalls := 0
	factory := func(context.Context) (SinkWriter, error) {
		factoryCalls++
		if factoryCalls == 1 {
			return stale, nil
		}
		return fresh, nil
	}

	inv := &fakeInvalidator{}
	p := New(factory, inv, "kafka/connection", 10, testBackoff(), testLogger(t))

	p.Publish(testRecord("seattle", pipeline.CategoryCurrentConditions))
	report := p.Flush(context.Background())

	if report.Delivered != 1 {
		t.Fatalf("expected delivery after credential refresh, got %+v", report)
	}
	if len(inv.names) != 1 || inv.names[0] != "kafka/connection" {
		t.Fatalf("expected one invalidation of kafka/connection, got %v", inv.names)
	}
	if factoryCalls != 2 {
		t.Fatalf("expected writer rebuild, got %d factory calls", factoryCalls)
	}
	if !stale.closed {
		t.Fatal("stale writer should be closed on reset")
	}
}

// TestFlushSecondAuthFailureFailsBatch verifies the fresh credential is
// tried exactly once.
func TestFlushSecondAuthFailureFailsBatch(t *testing.T) {
	factoryCalls := 0
	factory := func(context.Context) (SinkWriter, error) {
		factoryCalls++
		return &fakeWriter{errs: []error{kafka.SASLAuthenticationFailed}}, nil
	}

	inv := &fakeInvalidator{}
	p := New(factory, inv, "kafka/connection", 10, testBackoff(), testLogger(t))

	p.Publish(testRecord("seattle", pipeline.CategoryCurrentConditions))
	report := p.Flush(context.Background())

	if report.Failed != 1 {
		t.Fatalf("expected failed batch, got %+v", report)
	}
	if len(inv.names) != 1 {
		t.Fatalf("expected exactly one invalidation, got %v", inv.names)
	}
	if factoryCalls != 2 {
		t.Fatalf("expected exactly two factory calls, got %d", factoryCalls)
	}
}

// TestFlushBatchesBySize verifies batch chunking.
func TestFlushBatchesBySize(t *testing.T) {
	writer := &fakeWriter{}
	p := New(staticFactory(writer), &fakeInvalidator{}, "kafka/connection", 2, testBackoff(), testLogger(t))

	for i := 0; i < 5; i++ {
		p.Publish(testRecord("seattle", pipeline.CategoryForecast))
	}

	report := p.Flush(context.Background())
	if report.Delivered != 5 {
		t.Fatalf("expected 5 delivered, got %d", report.Delivered)
	}
	if writer.calls != 3 {
		t.Fatalf("expected 3 batches for batch size 2, got %d", writer.calls)
	}
	sizes := []int{len(writer.batches[0]), len(writer.batches[1]), len(writer.batches[2])}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Fatalf("expected batch sizes 2,2,1, got %v", sizes)
	}
}

// TestMessageShape verifies keying and flat body so per-pair ordering and
// schema stability hold on the sink side.
func TestMessageShape(t *testing.T) {
	writer := &fakeWriter{}
	p := New(staticFactory(writer), &fakeInvalidator{}, "kafka/connection", 10, testBackoff(), testLogger(t))

	p.Publish(testRecord("seattle", pipeline.CategoryCurrentConditions))
	if report := p.Flush(context.Background()); report.Delivered != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	msg := writer.batches[0][0]
	if string(msg.Key) != "seattle" {
		t.Fatalf("expected message keyed by location, got %q", msg.Key)
	}

	var body map[string]any
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if body["location"] != "seattle" || body["category"] != "CurrentConditions" {
		t.Fatalf("unexpected body %v", body)
	}
	if _, ok := body["collected_at"]; !ok {
		t.Fatal("body missing collected_at")
	}
	if body["temp_c"] != 18.0 {
		t.Fatalf("expected flat temp_c, got %v", body["temp_c"])
	}
}

// TestPublishBackpressure verifies the buffer cap rejects instead of
// growing without bound.
func TestPublishBackpressure(t *testing.T) {
	p := New(staticFactory(&fakeWriter{}), &fakeInvalidator{}, "kafka/connection", 1, testBackoff(), testLogger(t))
	p.bufferCap = 2

	if !p.Publish(testRecord("a", pipeline.CategoryAlerts)) || !p.Publish(testRecord("b", pipeline.CategoryAlerts)) {
		t.Fatal("expected first two records accepted")
	}
	if p.Publish(testRecord("c", pipeline.CategoryAlerts)) {
		t.Fatal("expected third record rejected by full buffer")
	}
}

// TestFlushSecretUnavailableFailsBatch verifies secret-store failure is
// contained to the flush, not retried against the store.
func TestFlushSecretUnavailableFailsBatch(t *testing.T) {
	factory := func(context.Context) (SinkWriter, error) {
		return nil, pipeline.ErrSecretUnavailable
	}
	p := New(factory, &fakeInvalidator{}, "kafka/connection", 10, testBackoff(), testLogger(t))

	p.Publish(testRecord("seattle", pipeline.CategoryCurrentConditions))
	report := p.Flush(context.Background())

	if report.Failed != 1 {
		t.Fatalf("expected failed batch, got %+v", report)
	}
	if report.LastError != pipeline.ErrSecretUnavailable.Error() {
		t.Fatalf("expected secret unavailable error, got %q", report.LastError)
	}
}
