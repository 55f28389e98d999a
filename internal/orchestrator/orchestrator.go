package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-stream-pipeline/internal/metrics"
	"github.com/i474232898/weather-stream-pipeline/internal/normalize"
	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
	"github.com/i474232898/weather-stream-pipeline/internal/source"
)

// recordPublisher is the slice of the Publisher the orchestrator drives.
type recordPublisher interface {
	Publish(rec pipeline.NormalizedRecord) bool
	Flush(ctx context.Context) pipeline.FlushReport
}

// recordStore receives successfully published records for inspection.
type recordStore interface {
	Save(rec pipeline.NormalizedRecord)
}

// Orchestrator drives one ingestion cycle: fan-out over every
// (location, category) pair, fetch -> normalize -> publish, with each pair's
// failure contained to that pair. It holds no retry logic of its own.
type Orchestrator struct {
	locations   []pipeline.Location
	clients     []source.Client
	publisher   recordPublisher
	store       recordStore
	concurrency int
	logger      *log.Logger
}

// New creates an Orchestrator. concurrency bounds the parallel fan-out to
// respect upstream rate limits.
func New(
	locations []pipeline.Location,
	clients []source.Client,
	publisher recordPublisher,
	store recordStore,
	concurrency int,
	logger *log.Logger,
) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Orchestrator{
		locations:   locations,
		clients:     clients,
		publisher:   publisher,
		store:       store,
		concurrency: concurrency,
		logger:      logger,
	}
}

// pairOutcome tracks one (location, category) pair's journey through the
// cycle until flush reconciliation decides its terminal state.
type pairOutcome struct {
	req     pipeline.FetchRequest
	stage   pipeline.Stage
	err     error
	records []pipeline.NormalizedRecord
}

// RunCycle executes one full ingestion cycle and returns its report. No
// failure escapes: every error is caught and recorded per pair.
func (o *Orchestrator) RunCycle(ctx context.Context) pipeline.CycleReport {
	started := time.Now().UTC()
	report := pipeline.CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: started,
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []pairOutcome
	)
	sem := make(chan struct{}, o.concurrency)

	for _, loc := range o.locations {
		for _, client := range o.clients {
			req := pipeline.FetchRequest{Location: loc, Category: client.Category()}
			client := client

			wg.Add(1)
			go func() {
				defer wg.Done()

				sem <- struct{}{}
				defer func() { <-sem }()

				outcome := o.runPair(ctx, client, req)

				mu.Lock()
				outcomes = append(outcomes, outcome)
				mu.Unlock()
			}()
		}
	}
	wg.Wait()

	// Flush at cycle end so records are never left buffered indefinitely.
	flush := o.publisher.Flush(ctx)
	report.Flush = flush
	metrics.RecordsDeadLettered.Add(float64(flush.Failed))

	// A pair whose records failed delivery is demoted from succeeded to
	// publish-failed; its records never reach the inspection store. Each pair
	// keeps the error of its own batch.
	failedPairs := make(map[string]string, len(flush.FailedRecords))
	for _, fr := range flush.FailedRecords {
		failedPairs[fr.Record.LocationID+"|"+string(fr.Record.Category)] = fr.Error
	}

	for _, out := range outcomes {
		counts := report.CountsFor(out.req.Category)
		locID := out.req.Location.Key()

		if out.err != nil {
			switch out.stage {
			case pipeline.StageFetch:
				counts.FetchFailed++
				metrics.FetchFailures.WithLabelValues(string(out.req.Category)).Inc()
			case pipeline.StageNormalize:
				counts.NormalizeFailed++
				metrics.NormalizeFailures.WithLabelValues(string(out.req.Category)).Inc()
			case pipeline.StagePublish:
				counts.PublishFailed++
			}
			report.Failures = append(report.Failures, pipeline.PairFailure{
				LocationID: locID,
				Category:   out.req.Category,
				Stage:      out.stage,
				Error:      out.err.Error(),
			})
			continue
		}

		if errMsg, failed := failedPairs[locID+"|"+string(out.req.Category)]; failed {
			counts.PublishFailed++
			report.Failures = append(report.Failures, pipeline.PairFailure{
				LocationID: locID,
				Category:   out.req.Category,
				Stage:      pipeline.StagePublish,
				Error:      errMsg,
			})
			continue
		}

		counts.Succeeded++
		for _, rec := range out.records {
			o.store.Save(rec)
		}
		metrics.RecordsPublished.WithLabelValues(string(out.req.Category)).Add(float64(len(out.records)))
	}

	report.FinishedAt = time.Now().UTC()
	metrics.CycleDuration.Observe(report.FinishedAt.Sub(started).Seconds())
	return report
}

// runPair takes one (location, category) pair through fetch, normalize, and
// publish buffering. Every failure is caught and attributed to its stage.
func (o *Orchestrator) runPair(ctx context.Context, client source.Client, req pipeline.FetchRequest) pairOutcome {
	outcome := pairOutcome{req: req}
	locID := req.Location.Key()

	raw, err := client.Fetch(ctx, req.Location)
	if err != nil {
		o.logger.Printf("fetch failed location=%s category=%s err=%v", locID, req.Category, err)
		outcome.stage = pipeline.StageFetch
		outcome.err = err
		return outcome
	}

	// Collection timestamp is assigned at fetch time, not by the sink.
	collectedAt := time.Now().UTC()

	records, err := normalize.Normalize(req.Category, req.Location, raw, collectedAt)
	if err != nil {
		o.logger.Printf("normalize failed location=%s category=%s err=%v", locID, req.Category, err)
		outcome.stage = pipeline.StageNormalize
		outcome.err = err
		return outcome
	}

	for i, rec := range records {
		if !o.publisher.Publish(rec) {
			o.logger.Printf("publish buffer full location=%s category=%s dropped=%d", locID, req.Category, len(records)-i)
			outcome.stage = pipeline.StagePublish
			outcome.err = pipeline.ErrSinkDelivery
			return outcome
		}
	}

	outcome.records = records
	return outcome
}
