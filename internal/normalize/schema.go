package normalize

import "github.com/i474232898/weather-stream-pipeline/internal/pipeline"

// FieldMapping declares one (source path -> output field) projection. Path is
// a dot-separated traversal of the nested upstream payload. Required leaves
// that are absent fail the whole normalization with ErrMalformedResponse;
// optional absences produce an explicit nil.
type FieldMapping struct {
	Path     string
	Field    string
	Required bool
}

// Schema is the fixed projection for one category. When ListPath is set the
// payload holds a list at that path and every element yields one record
// (zero elements yield zero records); otherwise the payload root yields
// exactly one record.
type Schema struct {
	ListPath string
	Fields   []FieldMapping
}

var schemas = map[pipeline.Category]Schema{
	pipeline.CategoryCurrentConditions: {
		Fields: []FieldMapping{
			{Path: "temp_c", Field: "temp_c", Required: true},
			{Path: "humidity", Field: "humidity"},
			{Path: "wind.speed_kph", Field: "wind_speed_kph"},
			{Path: "wind.dir", Field: "wind_dir"},
			{Path: "pressure_mb", Field: "pressure_mb"},
			{Path: "precip_mm", Field: "precip_mm"},
			{Path: "condition.text", Field: "condition"},
		},
	},
	pipeline.CategoryForecast: {
		Fields: []FieldMapping{
			{Path: "forecast.date", Field: "forecast_date", Required: true},
			{Path: "forecast.max_temp_c", Field: "max_temp_c", Required: true},
			{Path: "forecast.min_temp_c", Field: "min_temp_c", Required: true},
			{Path: "forecast.avg_humidity", Field: "avg_humidity"},
			{Path: "forecast.precip_chance_pct", Field: "precip_chance_pct"},
			{Path: "forecast.condition.text", Field: "condition"},
		},
	},
	pipeline.CategoryAlerts: {
		ListPath: "alerts",
		Fields: []FieldMapping{
			{Path: "event", Field: "event", Required: true},
			{Path: "severity", Field: "severity"},
			{Path: "headline", Field: "headline"},
			{Path: "areas", Field: "areas"},
			{Path: "expires", Field: "expires"},
		},
	},
	pipeline.CategoryAirQuality: {
		Fields: []FieldMapping{
			{Path: "aqi.pm2_5", Field: "pm2_5", Required: true},
			{Path: "aqi.pm10", Field: "pm10"},
			{Path: "aqi.o3", Field: "o3"},
			{Path: "aqi.no2", Field: "no2"},
			{Path: "aqi.co", Field: "co"},
			{Path: "aqi.us_epa_index", Field: "us_epa_index"},
		},
	},
}

// SchemaFor returns the declared schema for a category.
func SchemaFor(cat pipeline.Category) (Schema, bool) {
	s, ok := schemas[cat]
	return s, ok
}
