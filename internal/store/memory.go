package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
)

var (
	// ErrNotFound is returned when no records exist for a location/category.
	ErrNotFound = errors.New("no records for location and category")
)

// RecordHistory holds a time-ordered list of published records for one
// (location, category) pair.
type RecordHistory struct {
	Records []pipeline.NormalizedRecord
}

// MemoryStore is a concurrency-safe buffer of recently published records,
// backing the inspection API. It is not a durability layer; the sink is.
type MemoryStore struct {
	mu sync.RWMutex

	// key: location key + category, value: history
	data map[string]*RecordHistory

	// retention configuration
	maxHistory int           // max number of records per pair
	maxAge     time.Duration // optional max age for records
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*RecordHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

func key(locationID string, cat pipeline.Category) string {
	return locationID + "|" + string(cat)
}

// Save appends a published record and enforces retention.
func (s *MemoryStore) Save(rec pipeline.NormalizedRecord) {
	k := key(rec.LocationID, rec.Category)

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[k]
	if !ok {
		history = &RecordHistory{}
		s.data[k] = history
	}

	history.Records = append(history.Records, rec)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Records) > s.maxHistory {
		over := len(history.Records) - s.maxHistory
		history.Records = history.Records[over:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.Records); i++ {
			if !history.Records[i].CollectedAt.Before(cutoff) {
				break
			}
		}
		if i > 0 && i < len(history.Records) {
			history.Records = history.Records[i:]
		}
	}
}

// GetRecent returns up to limit most recent records for a pair, newest last.
func (s *MemoryStore) GetRecent(locationID string, cat pipeline.Category, limit int) ([]pipeline.NormalizedRecord, error) {
	k := key(locationID, cat)

	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[k]
	if !ok || len(history.Records) == 0 {
		return nil, ErrNotFound
	}

	records := history.Records
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}

	out := make([]pipeline.NormalizedRecord, len(records))
	copy(out, records)
	return out, nil
}
