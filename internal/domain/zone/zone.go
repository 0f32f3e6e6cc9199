package zone

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/reliefops/redzone/internal/domain/geo"
	"github.com/reliefops/redzone/internal/domain/payload"
)

// Kind classifies a zone. Unrecognized values are carried verbatim so an
// upstream schema change never breaks parsing; only KindHazard satisfies
// the hazard predicate.
type Kind string

const (
	// KindHazard marks a dangerous area that triggers alerts.
	KindHazard Kind = "hazard"
	// KindCaution marks an area requiring heightened awareness.
	KindCaution Kind = "caution"
	// KindSafe marks a shelter or assembly area.
	KindSafe Kind = "safe"
)

// MinVertices is the smallest ring that bounds an area. Zones below this
// are inert: they parse but never match.
const MinVertices = 3

// Zone is a polygon-bounded area published by the administrative actor.
type Zone struct {
	// ID uniquely identifies the zone in the shared store.
	ID string
	// Kind is the zone classification, carried verbatim from the store.
	Kind Kind
	// Vertices is the ordered polygon boundary.
	Vertices []geo.Point
	// CreatedAt is when the zone was defined upstream.
	CreatedAt time.Time
}

// IsHazard reports whether the zone participates in alerting.
func (z *Zone) IsHazard() bool {
	return z.Kind == KindHazard
}

// Contains reports whether the point lies inside the zone boundary.
// Degenerate rings never match.
func (z *Zone) Contains(p geo.Point) bool {
	if len(z.Vertices) < MinVertices {
		return false
	}

	return geo.Contains(p, z.Vertices)
}

// Clone returns a deep copy of the zone.
func (z *Zone) Clone() *Zone {
	if z == nil {
		return nil
	}

	cloned := *z
	cloned.Vertices = append([]geo.Point(nil), z.Vertices...)

	return &cloned
}

// ParseSet decodes the store's complete zones node into normalized zones,
// sorted by ID for deterministic downstream iteration. Records that are
// not objects are skipped; records with malformed vertices survive with an
// empty (inert) ring.
func ParseSet(raw json.RawMessage) []*Zone {
	if len(raw) == 0 {
		return nil
	}

	var node map[string]any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil
	}

	zones := make([]*Zone, 0, len(node))

	for id, entry := range node {
		record, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		z := &Zone{ID: id}

		if kind, ok := payload.String(record["type"]); ok {
			z.Kind = Kind(kind)
		}

		z.Vertices = payload.VertexList(record["vertices"])
		z.CreatedAt = payload.Timestamp(record["createdAt"])

		zones = append(zones, z)
	}

	sort.Slice(zones, func(i, j int) bool {
		return zones[i].ID < zones[j].ID
	})

	return zones
}

// Record renders the zone in the store's wire shape. Field names follow
// the shared store contract and must not change.
func (z *Zone) Record() map[string]any {
	vertices := make([]map[string]any, 0, len(z.Vertices))
	for _, v := range z.Vertices {
		vertices = append(vertices, map[string]any{"lat": v.Lat, "lng": v.Lng})
	}

	return map[string]any{
		"type":      string(z.Kind),
		"vertices":  vertices,
		"createdAt": z.CreatedAt.UnixMilli(),
	}
}
