package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reliefops/redzone/internal/domain/subject"
	"github.com/reliefops/redzone/internal/domain/zone"
	"github.com/reliefops/redzone/internal/store/memory"
)

// TestWatchZones_FullSnapshots verifies the feed always carries the
// complete normalized zone set.
func TestWatchZones_FullSnapshots(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	ctx := context.Background()

	f, err := WatchZones(ctx, st)
	require.NoError(t, err)

	defer f.Close()

	// Initial snapshot: nothing stored yet.
	require.Empty(t, <-f.Updates())

	require.NoError(t, st.Put(ctx, ZonesPath, map[string]any{
		"z1": map[string]any{"type": "hazard", "vertices": []any{}},
	}))

	zones := <-f.Updates()
	require.Len(t, zones, 1)
	require.Equal(t, "z1", zones[0].ID)
	require.Equal(t, zone.KindHazard, zones[0].Kind)

	// A second zone arrives as a full two-element snapshot, not a delta.
	require.NoError(t, st.Put(ctx, ZonesPath, map[string]any{
		"z1": map[string]any{"type": "hazard", "vertices": []any{}},
		"z2": map[string]any{"type": "safe", "vertices": []any{}},
	}))

	zones = <-f.Updates()
	require.Len(t, zones, 2)
}

// TestWatchSubject_Normalization verifies record parsing and the distinct
// "no location yet" state.
func TestWatchSubject_Normalization(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	ctx := context.Background()

	f, err := WatchSubject(ctx, st, "s1")
	require.NoError(t, err)

	defer f.Close()

	// No record at all.
	require.Nil(t, <-f.Updates())

	require.NoError(t, st.Put(ctx, LocationPath("s1"), map[string]any{
		"name":   "Asha",
		"status": "safe",
	}))

	record := <-f.Updates()
	require.NotNil(t, record)
	require.Nil(t, record.Coordinates)
	require.Equal(t, subject.StatusSafe, record.Status)

	require.NoError(t, st.Put(ctx, LocationPath("s1"), map[string]any{
		"name":        "Asha",
		"status":      "needs_help",
		"coordinates": map[string]any{"latitude": 13.05, "longitude": 80.05},
	}))

	record = <-f.Updates()
	require.NotNil(t, record.Coordinates)
	require.Equal(t, 13.05, record.Coordinates.Lat)
	require.Equal(t, subject.StatusNeedsHelp, record.Status)
}

// TestFeedClose verifies Close ends the update channel and is idempotent.
func TestFeedClose(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	ctx := context.Background()

	f, err := WatchZones(ctx, st)
	require.NoError(t, err)

	<-f.Updates()

	f.Close()
	f.Close()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-f.Updates():
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

// TestFeedContextCancellation verifies the feed dies with its context.
func TestFeedContextCancellation(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())

	f, err := WatchSubject(ctx, st, "s1")
	require.NoError(t, err)

	<-f.Updates()
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-f.Updates():
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
