package subject

import (
	"encoding/json"
	"time"

	"github.com/reliefops/redzone/internal/domain/geo"
	"github.com/reliefops/redzone/internal/domain/payload"
)

// Status is a subject's self- or coordinator-reported condition.
type Status string

const (
	// StatusSafe means the subject requires no assistance.
	StatusSafe Status = "safe"
	// StatusNeedsHelp means the subject has requested a responder.
	StatusNeedsHelp Status = "needs_help"
	// StatusAssigned means exactly one responder has committed to the subject.
	StatusAssigned Status = "assigned"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusSafe, StatusNeedsHelp, StatusAssigned:
		return true
	default:
		return false
	}
}

// Subject is one tracked person's live record in the shared store.
type Subject struct {
	// ID uniquely identifies the subject.
	ID string
	// Name is the subject's display name.
	Name string
	// Coordinates is the most recent reported position, nil until the
	// first report arrives. "No location yet" is distinct from (0,0).
	Coordinates *geo.Point
	// Status is the subject's current condition.
	Status Status
	// AssignedResponderID is set while Status is StatusAssigned.
	AssignedResponderID string
	// AssignedResponderName is the committed responder's display name.
	AssignedResponderName string
	// AssignedAt is when the assignment transaction committed.
	AssignedAt time.Time
}

// Clone returns a deep copy of the subject.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}

	cloned := *s

	if s.Coordinates != nil {
		point := *s.Coordinates
		cloned.Coordinates = &point
	}

	return &cloned
}

// Parse decodes a single subject record from the shared store. Returns nil
// when the payload is absent or not an object; individual malformed fields
// degrade to their zero values instead of failing the record.
func Parse(id string, raw json.RawMessage) *Subject {
	if len(raw) == 0 {
		return nil
	}

	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil
	}

	s := &Subject{ID: id}

	if name, ok := payload.String(record["name"]); ok {
		s.Name = name
	}

	if status, ok := payload.String(record["status"]); ok {
		s.Status = Status(status)
	}

	if point, ok := payload.Point(record["coordinates"]); ok {
		s.Coordinates = &point
	}

	if responderID, ok := payload.String(record["assignedResponderId"]); ok {
		s.AssignedResponderID = responderID
	}

	if responderName, ok := payload.String(record["assignedResponderName"]); ok {
		s.AssignedResponderName = responderName
	}

	s.AssignedAt = payload.Timestamp(record["assignedAt"])

	return s
}

// Record renders the subject in the store's wire shape. Field names follow
// the shared store contract and must not change.
func (s *Subject) Record() map[string]any {
	record := map[string]any{
		"subjectId": s.ID,
		"name":      s.Name,
		"status":    string(s.Status),
	}

	if s.Coordinates != nil {
		record["coordinates"] = map[string]any{
			"lat": s.Coordinates.Lat,
			"lng": s.Coordinates.Lng,
		}
	}

	if s.AssignedResponderID != "" {
		record["assignedResponderId"] = s.AssignedResponderID
		record["assignedResponderName"] = s.AssignedResponderName
		record["assignedAt"] = s.AssignedAt.UnixMilli()
	}

	return record
}
