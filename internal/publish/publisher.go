package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
)

// SinkWriter abstracts kafka.Writer for testability of delivery behavior.
type SinkWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// WriterFactory builds a connected sink writer from freshly resolved
// credentials. Called lazily and again after a credential invalidation.
type WriterFactory func(ctx context.Context) (SinkWriter, error)

// credentialInvalidator is the slice of the Authenticator the publisher
// needs on sink auth rejection.
type credentialInvalidator interface {
	Invalidate(name string)
}

// Publisher buffers normalized records and delivers them to the streaming
// sink in batches. Its retry/backoff domain is independent of the source
// clients'; fetch failure and delivery failure are never conflated.
type Publisher struct {
	factory    WriterFactory
	auth       credentialInvalidator
	sinkSecret string
	batchSize  int
	bufferCap  int
	backoff    pipeline.BackoffPolicy
	logger     *log.Logger

	mu     sync.Mutex
	buf    []pipeline.NormalizedRecord
	writer SinkWriter
}

// New creates a Publisher. batchSize bounds one sink round trip; the buffer
// accepts up to 64 batches between flushes before exerting backpressure.
func New(factory WriterFactory, auth credentialInvalidator, sinkSecret string, batchSize int, backoff pipeline.BackoffPolicy, logger *log.Logger) *Publisher {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Publisher{
		factory:    factory,
		auth:       auth,
		sinkSecret: sinkSecret,
		batchSize:  batchSize,
		bufferCap:  batchSize * 64,
		backoff:    backoff,
		logger:     logger,
	}
}

// Publish buffers one record for the next flush. It returns false when the
// buffer is full, signalling backpressure toward the sink.
func (p *Publisher) Publish(rec pipeline.NormalizedRecord) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buf) >= p.bufferCap {
		return false
	}
	p.buf = append(p.buf, rec)
	return true
}

// Flush delivers all buffered records in batches and reports per-record
// outcomes. Exhausted batches are reported failed with their records
// attached (dead-letter semantics); nothing is requeued across cycles.
func (p *Publisher) Flush(ctx context.Context) pipeline.FlushReport {
	p.mu.Lock()
	pending := p.buf
	p.buf = nil
	p.mu.Unlock()

	var report pipeline.FlushReport
	if len(pending) == 0 {
		return report
	}

	for start := 0; start < len(pending); start += p.batchSize {
		end := start + p.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		if err := p.deliverBatch(ctx, batch); err != nil {
			p.logger.Printf("publish batch failed size=%d err=%v", len(batch), err)
			report.Failed += len(batch)
			for _, rec := range batch {
				report.FailedRecords = append(report.FailedRecords, pipeline.FailedRecord{Record: rec, Error: err.Error()})
			}
			report.LastError = err.Error()
			continue
		}
		report.Delivered += len(batch)
	}
	return report
}

// deliverBatch writes one batch with bounded backoff. A sink auth rejection
// invalidates the sink credential and rebuilds the writer once with a fresh
// credential before the batch is failed.
func (p *Publisher) deliverBatch(ctx context.Context, batch []pipeline.NormalizedRecord) error {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, rec := range batch {
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("%w: encoding record: %v", pipeline.ErrSinkDelivery, err)
		}
		// Keyed by location so records from one (location, category) pair
		// stay in order on the sink side.
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.LocationID),
			Value: body,
			Headers: []kafka.Header{
				{Key: "content-type", Value: []byte("application/json")},
				{Key: "category", Value: []byte(rec.Category)},
			},
		})
	}

	authRetried := false
	var lastErr error

	attempt := 1
	for {
		writer, err := p.ensureWriter(ctx)
		if err != nil {
			// Secret store failure is fatal to this batch, not retryable here.
			return err
		}

		err = writer.WriteMessages(ctx, msgs...)
		if err == nil {
			return nil
		}
		lastErr = err

		if isSinkAuthErr(err) {
			if authRetried {
				return fmt.Errorf("%w: sink rejected fresh credential: %v", pipeline.ErrAuth, err)
			}
			p.logger.Printf("sink auth rejected; refreshing credential secret=%s", p.sinkSecret)
			p.auth.Invalidate(p.sinkSecret)
			p.resetWriter()
			// The single fresh-credential retry does not consume a backoff
			// attempt.
			authRetried = true
			continue
		}

		if !isTransientSinkErr(err) || attempt >= p.backoff.MaxAttempts {
			break
		}

		delay := p.backoff.Delay(attempt)
		p.logger.Printf("sink delivery transient failure attempt=%d/%d retry_in=%s err=%v", attempt, p.backoff.MaxAttempts, delay, err)
		if err := pipeline.SleepWithContext(ctx, delay); err != nil {
			return fmt.Errorf("%w: %v", pipeline.ErrSinkDelivery, err)
		}
		attempt++
	}

	return fmt.Errorf("%w: %v", pipeline.ErrSinkDelivery, lastErr)
}

// ensureWriter lazily builds the sink writer from resolved credentials.
func (p *Publisher) ensureWriter(ctx context.Context) (SinkWriter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer != nil {
		return p.writer, nil
	}
	w, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}
	p.writer = w
	return w, nil
}

// resetWriter drops the current writer so the next delivery reconnects.
func (p *Publisher) resetWriter() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			p.logger.Printf("sink writer close failed: %v", err)
		}
		p.writer = nil
	}
}

// Close releases the sink connection during shutdown.
func (p *Publisher) Close() {
	p.resetWriter()
}

// isSinkAuthErr detects SASL rejection, including inside per-message write
// error lists.
func isSinkAuthErr(err error) bool {
	if errors.Is(err, kafka.SASLAuthenticationFailed) {
		return true
	}
	var werrs kafka.WriteErrors
	if errors.As(err, &werrs) {
		for _, e := range werrs {
			if errors.Is(e, kafka.SASLAuthenticationFailed) {
				return true
			}
		}
	}
	return false
}

// isTransientSinkErr classifies throttling, broker transients, and network
// failures as retryable. Cancellation is not.
func isTransientSinkErr(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	var werrs kafka.WriteErrors
	if errors.As(err, &werrs) {
		for _, e := range werrs {
			if e == nil {
				continue
			}
			if kafkaTemporary(e) {
				return true
			}
		}
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	// Unknown write failures are treated as transient unavailability.
	return true
}

func kafkaTemporary(err error) bool {
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}
