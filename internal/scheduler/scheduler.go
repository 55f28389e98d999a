package scheduler

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/weather-stream-pipeline/internal/metrics"
	"github.com/i474232898/weather-stream-pipeline/internal/orchestrator"
	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
)

// CycleRunner runs one full ingestion cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) pipeline.CycleReport
}

// Scheduler triggers ingestion cycles at a fixed interval. A trigger that
// fires while the previous cycle is still running is skipped and counted
// rather than overlapped, bounding concurrent load.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    CycleRunner
	holder    *orchestrator.ReportHolder
	interval  time.Duration
	logger    *log.Logger

	running int32
}

// New creates a new Scheduler.
func New(interval time.Duration, runner CycleRunner, holder *orchestrator.ReportHolder, logger *log.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		holder:    holder,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic cycle and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	_, err := s.scheduler.Every(interval).Do(func() {
		s.runOnce(interval)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// runOnce executes one scheduled trigger. A trigger that fires while the
// previous cycle is still running returns immediately without starting a
// second cycle; the skip is counted.
func (s *Scheduler) runOnce(interval time.Duration) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		metrics.CyclesSkipped.Inc()
		s.logger.Printf("scheduler: previous cycle still running; skipping trigger")
		return
	}
	defer atomic.StoreInt32(&s.running, 0)

	// Bound the cycle by the trigger interval so a stuck retry cannot
	// starve subsequent cycles.
	ctx, cancel := context.WithTimeout(context.Background(), interval)
	defer cancel()

	report := s.runner.RunCycle(ctx)
	s.holder.Set(report)
	metrics.CyclesTotal.Inc()

	s.logger.Printf(
		"scheduler: cycle finished cycle_id=%s duration=%s delivered=%d failed=%d pair_failures=%d",
		report.CycleID,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		report.Flush.Delivered,
		report.Flush.Failed,
		len(report.Failures),
	)
}

// Stop stops the scheduler and cancels any future triggers.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
