package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
)

// Normalize projects one raw upstream response into flat records for its
// category schema. Pure apart from the injected collection timestamp and
// location identity. Alerts yield zero or more records; every other category
// yields exactly one.
func Normalize(cat pipeline.Category, loc pipeline.Location, raw pipeline.RawResponse, collectedAt time.Time) ([]pipeline.NormalizedRecord, error) {
	schema, ok := SchemaFor(cat)
	if !ok {
		return nil, fmt.Errorf("%w: no schema for category %s", pipeline.ErrMalformedResponse, cat)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty %s response", pipeline.ErrMalformedResponse, cat)
	}

	sources := []map[string]any{raw}
	if schema.ListPath != "" {
		v, found := lookupPath(raw, schema.ListPath)
		if !found {
			return nil, fmt.Errorf("%w: %s response missing %q list", pipeline.ErrMalformedResponse, cat, schema.ListPath)
		}
		items, ok := v.([]any)
		if v != nil && !ok {
			return nil, fmt.Errorf("%w: %s field %q is not a list", pipeline.ErrMalformedResponse, cat, schema.ListPath)
		}

		sources = sources[:0]
		for i, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s list element %d is not an object", pipeline.ErrMalformedResponse, cat, i)
			}
			sources = append(sources, m)
		}
	}

	records := make([]pipeline.NormalizedRecord, 0, len(sources))
	for _, src := range sources {
		fields, err := project(cat, schema, src)
		if err != nil {
			return nil, err
		}
		records = append(records, pipeline.NormalizedRecord{
			LocationID:  loc.Key(),
			Category:    cat,
			CollectedAt: collectedAt,
			Fields:      fields,
		})
	}
	return records, nil
}

// project applies the schema's field mappings to one object. The output
// always contains every declared field name.
func project(cat pipeline.Category, schema Schema, src map[string]any) (map[string]any, error) {
	fields := make(map[string]any, len(schema.Fields))
	for _, m := range schema.Fields {
		v, found := lookupPath(src, m.Path)
		if !found || v == nil {
			if m.Required {
				return nil, fmt.Errorf("%w: %s response missing required field %q", pipeline.ErrMalformedResponse, cat, m.Path)
			}
			fields[m.Field] = nil
			continue
		}
		if !isScalar(v) {
			if m.Required {
				return nil, fmt.Errorf("%w: %s field %q is not a scalar", pipeline.ErrMalformedResponse, cat, m.Path)
			}
			fields[m.Field] = nil
			continue
		}
		fields[m.Field] = v
	}
	return fields, nil
}

// lookupPath walks a dot-separated path through nested JSON objects.
func lookupPath(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// isScalar reports whether a decoded JSON value is a flat leaf.
func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, json.Number:
		return true
	}
	return false
}
