package pipeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category identifies one kind of upstream weather data, each with its own
// endpoint and normalized schema.
type Category string

const (
	CategoryCurrentConditions Category = "CurrentConditions"
	CategoryForecast          Category = "Forecast"
	CategoryAlerts            Category = "Alerts"
	CategoryAirQuality        Category = "AirQuality"
)

// AllCategories returns the full category set in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryCurrentConditions,
		CategoryForecast,
		CategoryAlerts,
		CategoryAirQuality,
	}
}

// ParseCategory validates a category string from configuration or a query.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryCurrentConditions, CategoryForecast, CategoryAlerts, CategoryAirQuality:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Location represents a logical place tracked by the pipeline. The set of
// locations is loaded once at startup and is immutable for the process
// lifetime.
type Location struct {
	ID      string   `json:"id" yaml:"id"`
	City    string   `json:"city" yaml:"city"`
	Country string   `json:"country" yaml:"country"`
	Lat     *float64 `json:"lat,omitempty" yaml:"lat"`
	Lon     *float64 `json:"lon,omitempty" yaml:"lon"`
}

// Key returns a canonical identifier for this location. ID wins when set.
func (l Location) Key() string {
	if l.ID != "" {
		return l.ID
	}
	if l.Country != "" {
		return l.City + ":" + l.Country
	}
	return l.City
}

// FetchRequest is one (location, category) unit of work, created per cycle.
type FetchRequest struct {
	Location Location
	Category Category
}

// RawResponse is the decoded, possibly nested upstream payload for one
// fetch request.
type RawResponse map[string]any

// NormalizedRecord is a flat field map tagged with the location identifier,
// category, and collection timestamp. Optional fields that were absent
// upstream are present with a nil value, never missing.
type NormalizedRecord struct {
	LocationID  string
	Category    Category
	CollectedAt time.Time
	Fields      map[string]any
}

// MarshalJSON emits a single flat JSON object so the sink receives
// schema-stable records without nesting.
func (r NormalizedRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["location"] = r.LocationID
	out["category"] = string(r.Category)
	out["collected_at"] = r.CollectedAt.UTC().Format(time.RFC3339)
	return json.Marshal(out)
}
