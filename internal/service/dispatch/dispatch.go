package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/reliefops/redzone/internal/domain/geo"
	"github.com/reliefops/redzone/internal/domain/subject"
	"github.com/reliefops/redzone/internal/logger"
	"github.com/reliefops/redzone/internal/service/feed"
	"github.com/reliefops/redzone/internal/store"
)

// Coordinator runs assignment transactions and candidate queries against
// the shared store.
type Coordinator struct {
	store store.Store
	now   func() time.Time
}

// NewCoordinator creates a coordinator bound to the store.
func NewCoordinator(st store.Store) *Coordinator {
	return &Coordinator{
		store: st,
		now:   time.Now,
	}
}

// Assign commits the responder to the subject's help request. The write
// happens inside an optimistic transaction: it applies only while the
// subject's record still says needs_help, so of any number of concurrent
// responders exactly one wins.
//
// The returned applied flag is derived from the record observed after the
// transaction, never from the commit flag alone: applied is true exactly
// when the record ends up assigned to this responder. That covers both the
// commit that rewrote needs_help and a retry by the responder already
// holding the assignment, which aborts the closure without rewriting the
// record yet still reports applied. A rival losing the race observes
// applied=false, never an error.
func (c *Coordinator) Assign(ctx context.Context, requesterID, responderID, responderName string) (bool, error) {
	if requesterID == "" || responderID == "" {
		return false, fmt.Errorf("assign: requester and responder ids must be set")
	}

	path := feed.LocationPath(requesterID)

	res, err := c.store.Transact(ctx, path, func(current json.RawMessage) (any, bool) {
		requester := subject.Parse(requesterID, current)
		if requester == nil || requester.Status != subject.StatusNeedsHelp {
			return nil, false
		}

		next := requester.Clone()
		next.Status = subject.StatusAssigned
		next.AssignedResponderID = responderID
		next.AssignedResponderName = responderName
		next.AssignedAt = c.now()

		return next.Record(), true
	})
	if err != nil {
		return false, fmt.Errorf("assign %q: %w", requesterID, err)
	}

	after := subject.Parse(requesterID, res.Value)
	applied := after != nil &&
		after.Status == subject.StatusAssigned &&
		after.AssignedResponderID == responderID

	if applied {
		logger.InfoKV(ctx, "Responder assigned to subject",
			"subjectId", requesterID,
			"responderId", responderID)
	} else {
		logger.InfoKV(ctx, "Assignment not applied, subject no longer needs help",
			"subjectId", requesterID,
			"responderId", responderID)
	}

	return applied, nil
}

// Candidates returns every subject currently asking for help, ordered by
// ID for deterministic output.
func (c *Coordinator) Candidates(ctx context.Context) ([]*subject.Subject, error) {
	records, err := c.store.List(ctx, feed.LocationsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}

	candidates := make([]*subject.Subject, 0, len(records))

	for id, raw := range records {
		s := subject.Parse(id, raw)
		if s == nil || s.Status != subject.StatusNeedsHelp {
			continue
		}

		candidates = append(candidates, s)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ID < candidates[j].ID
	})

	return candidates, nil
}

// Queue returns the responder's work queue: every open help request ranked
// by estimated travel time from the responder's position.
func (c *Coordinator) Queue(ctx context.Context, origin geo.Point, speedKmh float64) ([]Candidate, error) {
	candidates, err := c.Candidates(ctx)
	if err != nil {
		return nil, err
	}

	return RankByETA(origin, candidates, speedKmh), nil
}

// Candidate is one ranked help request.
type Candidate struct {
	// Subject is the person asking for help.
	Subject *subject.Subject
	// Distance is the great-circle distance from the origin in meters.
	Distance float64
	// ETA is the estimated constant-speed travel time.
	ETA time.Duration
}

// RankByETA orders subjects by estimated travel time from the origin,
// nearest first. Subjects that have never reported a position cannot be
// ranked and are excluded. The sort is stable, so equal travel times keep
// their input order.
func RankByETA(origin geo.Point, subjects []*subject.Subject, speedKmh float64) []Candidate {
	ranked := make([]Candidate, 0, len(subjects))

	for _, s := range subjects {
		if s == nil || s.Coordinates == nil {
			continue
		}

		ranked = append(ranked, Candidate{
			Subject:  s,
			Distance: geo.Haversine(origin, *s.Coordinates),
			ETA:      geo.ETA(origin, *s.Coordinates, speedKmh),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ETA < ranked[j].ETA
	})

	return ranked
}
