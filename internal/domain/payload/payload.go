package payload

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/reliefops/redzone/internal/domain/geo"
)

// Float coerces a loosely-typed JSON value to a float64. Numbers,
// json.Number and numeric strings are accepted; everything else is
// rejected.
func Float(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

// Point extracts a coordinate pair from a record shaped either as
// {lat,lng} or {latitude,longitude}, with numeric coercion applied to
// both fields. Missing or non-numeric coordinates reject the record.
func Point(value any) (geo.Point, bool) {
	record, ok := value.(map[string]any)
	if !ok {
		return geo.Point{}, false
	}

	lat, latOK := coordinate(record, "lat", "latitude")
	lng, lngOK := coordinate(record, "lng", "longitude")

	if !latOK || !lngOK {
		return geo.Point{}, false
	}

	return geo.Point{Lat: lat, Lng: lng}, true
}

// VertexList normalizes a polygon vertex payload into an ordered slice.
// Both a JSON array and a keyed object (as produced by backends that store
// sparse arrays as maps) are accepted; map keys are walked in numeric-aware
// order so that "2" sorts before "10" and a given snapshot always yields
// the same ring. Entries that do not decode as points are skipped.
func VertexList(value any) []geo.Point {
	switch v := value.(type) {
	case []any:
		vertices := make([]geo.Point, 0, len(v))

		for _, entry := range v {
			if p, ok := Point(entry); ok {
				vertices = append(vertices, p)
			}
		}

		return vertices
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}

		sort.Slice(keys, func(i, j int) bool {
			return lessNumericAware(keys[i], keys[j])
		})

		vertices := make([]geo.Point, 0, len(keys))

		for _, k := range keys {
			if p, ok := Point(v[k]); ok {
				vertices = append(vertices, p)
			}
		}

		return vertices
	default:
		return nil
	}
}

// Timestamp coerces a loosely-typed JSON value into a time. Millisecond
// epoch numbers and RFC3339 strings are accepted; anything else yields the
// zero time.
func Timestamp(value any) time.Time {
	if f, ok := Float(value); ok {
		return time.UnixMilli(int64(f)).UTC()
	}

	if s, ok := value.(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}

// String coerces a loosely-typed JSON value to a string, rejecting
// everything else.
func String(value any) (string, bool) {
	s, ok := value.(string)

	return s, ok
}

// coordinate looks up the first present key and coerces it to a float.
func coordinate(record map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if raw, present := record[key]; present {
			if f, ok := Float(raw); ok {
				return f, true
			}
		}
	}

	return 0, false
}

// lessNumericAware orders purely numeric keys by value and falls back to
// lexicographic comparison for everything else.
func lessNumericAware(a, b string) bool {
	na, aErr := strconv.Atoi(a)
	nb, bErr := strconv.Atoi(b)

	if aErr == nil && bErr == nil {
		return na < nb
	}

	if aErr == nil {
		return true
	}

	if bErr == nil {
		return false
	}

	return a < b
}
