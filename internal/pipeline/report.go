package pipeline

import "time"

// Stage names the pipeline step at which a (location, category) pair failed.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageNormalize Stage = "normalize"
	StagePublish   Stage = "publish"
)

// PairFailure records one isolated (location, category) failure.
type PairFailure struct {
	LocationID string   `json:"location"`
	Category   Category `json:"category"`
	Stage      Stage    `json:"stage"`
	Error      string   `json:"error"`
}

// CategoryCounts summarizes per-category outcomes within one cycle.
type CategoryCounts struct {
	Succeeded       int `json:"succeeded"`
	FetchFailed     int `json:"fetchFailed"`
	NormalizeFailed int `json:"normalizeFailed"`
	PublishFailed   int `json:"publishFailed"`
}

// CycleReport is the sole failure surface of one ingestion cycle. No error
// escapes RunCycle; everything lands here.
type CycleReport struct {
	CycleID    string                       `json:"cycleId"`
	StartedAt  time.Time                    `json:"startedAt"`
	FinishedAt time.Time                    `json:"finishedAt"`
	Counts     map[Category]*CategoryCounts `json:"counts"`
	Failures   []PairFailure                `json:"failures,omitempty"`
	Flush      FlushReport                  `json:"flush"`
}

// CountsFor returns the (lazily created) counters for a category.
func (r *CycleReport) CountsFor(cat Category) *CategoryCounts {
	if r.Counts == nil {
		r.Counts = make(map[Category]*CategoryCounts)
	}
	c, ok := r.Counts[cat]
	if !ok {
		c = &CategoryCounts{}
		r.Counts[cat] = c
	}
	return c
}

// FailedRecord pairs one dead-lettered record with the delivery error of the
// batch that carried it.
type FailedRecord struct {
	Record NormalizedRecord
	Error  string
}

// FlushReport summarizes one publisher flush. FailedRecords carries the
// dead-letter records for callers that want to persist them elsewhere, each
// with the error of its own batch.
type FlushReport struct {
	Delivered     int            `json:"delivered"`
	Failed        int            `json:"failed"`
	LastError     string         `json:"lastError,omitempty"`
	FailedRecords []FailedRecord `json:"-"`
}
