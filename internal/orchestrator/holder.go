package orchestrator

import (
	"sync"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
)

// ReportHolder keeps the most recent cycle report for the HTTP surface.
type ReportHolder struct {
	mu     sync.RWMutex
	latest *pipeline.CycleReport
}

// Set replaces the latest report.
func (h *ReportHolder) Set(report pipeline.CycleReport) {
	h.mu.Lock()
	h.latest = &report
	h.mu.Unlock()
}

// Latest returns the most recent report, if any cycle has completed.
func (h *ReportHolder) Latest() (pipeline.CycleReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return pipeline.CycleReport{}, false
	}
	return *h.latest, true
}
