package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reliefops/redzone/internal/domain/geo"
	"github.com/reliefops/redzone/internal/domain/subject"
	"github.com/reliefops/redzone/internal/domain/zone"
	"github.com/reliefops/redzone/internal/repository/zones"
	"github.com/reliefops/redzone/internal/service/feed"
	"github.com/reliefops/redzone/internal/service/matcher"
	"github.com/reliefops/redzone/internal/store"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// zoneResponse is the API shape of one zone.
type zoneResponse struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Vertices  []geo.Point `json:"vertices"`
	CreatedAt int64       `json:"createdAt"`
}

// toZoneResponse renders a zone for API output.
func toZoneResponse(z *zone.Zone) zoneResponse {
	vertices := z.Vertices
	if vertices == nil {
		vertices = []geo.Point{}
	}

	return zoneResponse{
		ID:        z.ID,
		Type:      string(z.Kind),
		Vertices:  vertices,
		CreatedAt: z.CreatedAt.UnixMilli(),
	}
}

// handleListZones returns every stored zone definition.
func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	list, err := s.zones.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list zones")

		return
	}

	out := make([]zoneResponse, 0, len(list))
	for _, z := range list {
		out = append(out, toZoneResponse(z))
	}

	respondJSON(w, http.StatusOK, out)
}

// createZoneRequest is the admin zone-creation payload.
type createZoneRequest struct {
	Type     string      `json:"type"`
	Vertices []geo.Point `json:"vertices"`
}

// handleCreateZone stores a new zone and republishes the live set.
func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	var req createZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")

		return
	}

	if req.Type == "" {
		respondError(w, http.StatusBadRequest, "zone type is required")

		return
	}

	if len(req.Vertices) < zone.MinVertices {
		respondError(w, http.StatusBadRequest, "zone needs at least 3 vertices")

		return
	}

	z := &zone.Zone{
		ID:        uuid.NewString(),
		Kind:      zone.Kind(req.Type),
		Vertices:  req.Vertices,
		CreatedAt: time.Now().UTC(),
	}

	ctx := r.Context()

	if err := s.zones.Save(ctx, z); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save zone")

		return
	}

	if err := PublishZones(ctx, s.zones, s.store); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to publish zones")

		return
	}

	respondJSON(w, http.StatusCreated, toZoneResponse(z))
}

// handleDeleteZone removes a zone and republishes the live set.
func (s *Server) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	err := s.zones.Delete(ctx, id)

	switch {
	case errors.Is(err, zones.ErrNotFound):
		respondError(w, http.StatusNotFound, "zone not found")

		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to delete zone")

		return
	}

	if err := PublishZones(ctx, s.zones, s.store); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to publish zones")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// locationRequest is a subject's self-report payload.
type locationRequest struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Coordinates *geo.Point `json:"coordinates"`
}

// handlePutLocation merges a self-report into the subject's live record.
// The write runs as a transaction so a concurrent assignment is never
// silently erased by a position refresh.
func (s *Server) handlePutLocation(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectId")

	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")

		return
	}

	status := subject.Status(req.Status)
	if !status.Valid() {
		respondError(w, http.StatusBadRequest, "status must be safe, needs_help or assigned")

		return
	}

	res, err := s.store.Transact(r.Context(), feed.LocationPath(subjectID), func(current json.RawMessage) (any, bool) {
		record := subject.Parse(subjectID, current)
		if record == nil {
			record = &subject.Subject{ID: subjectID}
		}

		// Only the assignment transaction moves a subject into the
		// assigned state; a self-report may at most keep it there. An
		// assigned record always names its responder.
		if status == subject.StatusAssigned && record.Status != subject.StatusAssigned {
			return nil, false
		}

		next := record.Clone()
		next.Status = status

		if req.Name != "" {
			next.Name = req.Name
		}

		if req.Coordinates != nil {
			point := *req.Coordinates
			next.Coordinates = &point
		}

		// Leaving the assigned state releases the responder.
		if next.Status != subject.StatusAssigned {
			next.AssignedResponderID = ""
			next.AssignedResponderName = ""
			next.AssignedAt = time.Time{}
		}

		return next.Record(), true
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store location")

		return
	}

	if !res.Committed {
		respondError(w, http.StatusConflict, "status assigned is set by the assignment transaction")

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Value)
}

// handleGetLocation returns the subject's raw live record.
func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectId")

	raw, err := s.store.Get(r.Context(), feed.LocationPath(subjectID))

	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "subject not found")

		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to read location")

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// assignRequest asks to commit a responder to a subject.
type assignRequest struct {
	RequesterID   string `json:"requesterId"`
	ResponderID   string `json:"responderId"`
	ResponderName string `json:"responderName"`
}

// handleAssign runs the assignment transaction. Losing the race to another
// responder is a 200 with applied=false, never an error.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")

		return
	}

	if req.RequesterID == "" || req.ResponderID == "" {
		respondError(w, http.StatusBadRequest, "requesterId and responderId are required")

		return
	}

	applied, err := s.dispatch.Assign(r.Context(), req.RequesterID, req.ResponderID, req.ResponderName)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "assignment failed")

		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"applied":     applied,
		"requesterId": req.RequesterID,
		"responderId": req.ResponderID,
	})
}

// queueItem is one ranked help request in a responder's queue.
type queueItem struct {
	SubjectID      string     `json:"subjectId"`
	Name           string     `json:"name"`
	Coordinates    *geo.Point `json:"coordinates"`
	DistanceMeters float64    `json:"distanceMeters"`
	EtaSeconds     float64    `json:"etaSeconds"`
}

// handleQueue returns the open help requests ranked by travel time from
// the responder's position.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)

	if latErr != nil || lngErr != nil {
		respondError(w, http.StatusBadRequest, "lat and lng query parameters are required")

		return
	}

	ranked, err := s.dispatch.Queue(r.Context(), geo.Point{Lat: lat, Lng: lng}, s.travelSpeedKmh)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build queue")

		return
	}

	out := make([]queueItem, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, queueItem{
			SubjectID:      c.Subject.ID,
			Name:           c.Subject.Name,
			Coordinates:    c.Subject.Coordinates,
			DistanceMeters: c.Distance,
			EtaSeconds:     c.ETA.Seconds(),
		})
	}

	respondJSON(w, http.StatusOK, out)
}

// matchFaceRequest carries a query embedding.
type matchFaceRequest struct {
	Embedding []float64 `json:"embedding"`
	Threshold float64   `json:"threshold"`
}

// handleMatchFace compares the query embedding against the reference set.
func (s *Server) handleMatchFace(w http.ResponseWriter, r *http.Request) {
	var req matchFaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")

		return
	}

	matches, err := s.matcher.Match(r.Context(), req.Embedding, req.Threshold)

	switch {
	case errors.Is(err, matcher.ErrBadEmbedding):
		respondError(w, http.StatusBadRequest, err.Error())

		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "matching failed")

		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"matches": matches})
}
