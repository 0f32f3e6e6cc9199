package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reliefops/redzone/internal/domain/geo"
	"github.com/reliefops/redzone/internal/domain/subject"
	"github.com/reliefops/redzone/internal/service/feed"
	"github.com/reliefops/redzone/internal/store/memory"
)

// putSubject stores a subject record in the wire shape.
func putSubject(t *testing.T, st *memory.Store, s *subject.Subject) {
	t.Helper()

	require.NoError(t, st.Put(context.Background(), feed.LocationPath(s.ID), s.Record()))
}

// getSubject reads a subject record back.
func getSubject(t *testing.T, st *memory.Store, id string) *subject.Subject {
	t.Helper()

	raw, err := st.Get(context.Background(), feed.LocationPath(id))
	require.NoError(t, err)

	s := subject.Parse(id, raw)
	require.NotNil(t, s)

	return s
}

// TestAssign_Applies verifies a straight assignment to a subject that
// needs help.
func TestAssign_Applies(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	putSubject(t, st, &subject.Subject{
		ID:          "s1",
		Name:        "Asha",
		Status:      subject.StatusNeedsHelp,
		Coordinates: &geo.Point{Lat: 13.05, Lng: 80.05},
	})

	c := NewCoordinator(st)

	applied, err := c.Assign(context.Background(), "s1", "r1", "Ravi")
	require.NoError(t, err)
	require.True(t, applied)

	after := getSubject(t, st, "s1")
	require.Equal(t, subject.StatusAssigned, after.Status)
	require.Equal(t, "r1", after.AssignedResponderID)
	require.Equal(t, "Ravi", after.AssignedResponderName)
	require.False(t, after.AssignedAt.IsZero())

	// The position survives the rewrite.
	require.NotNil(t, after.Coordinates)
	require.Equal(t, 13.05, after.Coordinates.Lat)
}

// TestAssign_SubjectNotAskingForHelp verifies assignment aborts cleanly
// for safe, already-assigned and absent subjects.
func TestAssign_SubjectNotAskingForHelp(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	putSubject(t, st, &subject.Subject{ID: "safe", Status: subject.StatusSafe})

	c := NewCoordinator(st)
	ctx := context.Background()

	applied, err := c.Assign(ctx, "safe", "r1", "Ravi")
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, subject.StatusSafe, getSubject(t, st, "safe").Status)

	// Absent record: reported as not applied, never as an error.
	applied, err = c.Assign(ctx, "ghost", "r1", "Ravi")
	require.NoError(t, err)
	require.False(t, applied)
}

// TestAssign_Idempotent verifies a responder retrying an assignment it
// already holds sees applied without the record being rewritten.
func TestAssign_Idempotent(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	putSubject(t, st, &subject.Subject{ID: "s1", Status: subject.StatusNeedsHelp})

	c := NewCoordinator(st)
	ctx := context.Background()

	applied, err := c.Assign(ctx, "s1", "r1", "Ravi")
	require.NoError(t, err)
	require.True(t, applied)

	firstAssignedAt := getSubject(t, st, "s1").AssignedAt

	applied, err = c.Assign(ctx, "s1", "r1", "Ravi")
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, firstAssignedAt, getSubject(t, st, "s1").AssignedAt)

	// A rival retrying after the race is lost.
	applied, err = c.Assign(ctx, "s1", "r2", "Meera")
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, "r1", getSubject(t, st, "s1").AssignedResponderID)
}

// TestAssign_RaceHasOneWinner verifies that of N concurrent responders
// exactly one observes applied and the record names a responder from the
// contending set.
func TestAssign_RaceHasOneWinner(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	putSubject(t, st, &subject.Subject{ID: "s1", Status: subject.StatusNeedsHelp})

	const responders = 16

	c := NewCoordinator(st)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)

	for i := 0; i < responders; i++ {
		i := i

		wg.Add(1)

		go func() {
			defer wg.Done()

			id := fmt.Sprintf("r%d", i)

			applied, err := c.Assign(ctx, "s1", id, "Responder "+id)
			require.NoError(t, err)

			if applied {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	require.Len(t, winners, 1)

	after := getSubject(t, st, "s1")
	require.Equal(t, subject.StatusAssigned, after.Status)
	require.Equal(t, winners[0], after.AssignedResponderID)
}

// TestCandidates_FiltersAndOrders verifies only needs_help subjects are
// listed, in ID order.
func TestCandidates_FiltersAndOrders(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	putSubject(t, st, &subject.Subject{ID: "s3", Status: subject.StatusNeedsHelp})
	putSubject(t, st, &subject.Subject{ID: "s1", Status: subject.StatusNeedsHelp})
	putSubject(t, st, &subject.Subject{ID: "s2", Status: subject.StatusSafe})
	putSubject(t, st, &subject.Subject{ID: "s4", Status: subject.StatusAssigned, AssignedResponderID: "r9"})

	c := NewCoordinator(st)

	candidates, err := c.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, "s1", candidates[0].ID)
	require.Equal(t, "s3", candidates[1].ID)
}

// TestRankByETA verifies nearest-first ordering and the exclusion of
// subjects without a position.
func TestRankByETA(t *testing.T) {
	t.Parallel()

	origin := geo.Point{Lat: 13.0, Lng: 80.0}

	subjects := []*subject.Subject{
		{ID: "far", Coordinates: &geo.Point{Lat: 13.5, Lng: 80.5}},
		{ID: "near", Coordinates: &geo.Point{Lat: 13.01, Lng: 80.01}},
		{ID: "unlocated"},
		{ID: "mid", Coordinates: &geo.Point{Lat: 13.2, Lng: 80.2}},
	}

	ranked := RankByETA(origin, subjects, 30)
	require.Len(t, ranked, 3)
	require.Equal(t, "near", ranked[0].Subject.ID)
	require.Equal(t, "mid", ranked[1].Subject.ID)
	require.Equal(t, "far", ranked[2].Subject.ID)

	require.Positive(t, ranked[0].Distance)
	require.Less(t, ranked[0].ETA, ranked[1].ETA)

	// Zero speed disables the estimate but keeps the distance ordering
	// input-stable rather than crashing.
	flat := RankByETA(origin, subjects, 0)
	require.Len(t, flat, 3)

	for _, c := range flat {
		require.Equal(t, time.Duration(0), c.ETA)
	}
}

// TestQueue_EndToEnd verifies the ranked queue over the store.
func TestQueue_EndToEnd(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	putSubject(t, st, &subject.Subject{
		ID:          "far",
		Status:      subject.StatusNeedsHelp,
		Coordinates: &geo.Point{Lat: 14.0, Lng: 81.0},
	})
	putSubject(t, st, &subject.Subject{
		ID:          "near",
		Status:      subject.StatusNeedsHelp,
		Coordinates: &geo.Point{Lat: 13.05, Lng: 80.05},
	})
	putSubject(t, st, &subject.Subject{
		ID:          "settled",
		Status:      subject.StatusSafe,
		Coordinates: &geo.Point{Lat: 13.0, Lng: 80.0},
	})

	c := NewCoordinator(st)

	queue, err := c.Queue(context.Background(), geo.Point{Lat: 13.0, Lng: 80.0}, 30)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	require.Equal(t, "near", queue[0].Subject.ID)
	require.Equal(t, "far", queue[1].Subject.ID)
}
