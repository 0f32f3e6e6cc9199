package detector

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reliefops/redzone/internal/domain/geo"
	"github.com/reliefops/redzone/internal/domain/zone"
	"github.com/reliefops/redzone/internal/service/feed"
	"github.com/reliefops/redzone/internal/store/memory"
)

// hazardRing is the hazard polygon used across the detector tests.
var hazardRing = []geo.Point{
	{Lat: 13.0, Lng: 80.0},
	{Lat: 13.1, Lng: 80.0},
	{Lat: 13.1, Lng: 80.1},
	{Lat: 13.0, Lng: 80.1},
}

// hazardZones returns a zone set with one hazard polygon.
func hazardZones() []*zone.Zone {
	return []*zone.Zone{
		{ID: "z1", Kind: zone.KindHazard, Vertices: hazardRing},
	}
}

// inside and outside are the canonical test positions.
var (
	inside  = geo.Point{Lat: 13.05, Lng: 80.05}
	outside = geo.Point{Lat: 14.0, Lng: 80.0}
)

// TestEvaluate_Transitions walks the full state machine table.
func TestEvaluate_Transitions(t *testing.T) {
	t.Parallel()

	zones := hazardZones()

	// Entry.
	require.Equal(t, StateSounding, Evaluate(&inside, zones, StateIdle))

	// Containment sustains the current state.
	require.Equal(t, StateSounding, Evaluate(&inside, zones, StateSounding))
	require.Equal(t, StateAcknowledged, Evaluate(&inside, zones, StateAcknowledged))

	// Exit resets from any state and clears the acknowledgement guard.
	require.Equal(t, StateIdle, Evaluate(&outside, zones, StateSounding))
	require.Equal(t, StateIdle, Evaluate(&outside, zones, StateAcknowledged))
	require.Equal(t, StateIdle, Evaluate(&outside, zones, StateIdle))
}

// TestEvaluate_MissingInputs verifies absent data never alarms.
func TestEvaluate_MissingInputs(t *testing.T) {
	t.Parallel()

	require.Equal(t, StateIdle, Evaluate(nil, hazardZones(), StateIdle))
	require.Equal(t, StateIdle, Evaluate(&inside, nil, StateIdle))
	require.Equal(t, StateIdle, Evaluate(&inside, []*zone.Zone{}, StateIdle))

	// A location arriving before the alarm was ever armed.
	require.Equal(t, StateSounding, Evaluate(&inside, hazardZones(), ""))
}

// TestEvaluate_NonHazardZonesNeverAlarm verifies caution, safe and unknown
// kinds are excluded from the hazard predicate.
func TestEvaluate_NonHazardZonesNeverAlarm(t *testing.T) {
	t.Parallel()

	zones := []*zone.Zone{
		{ID: "a", Kind: zone.KindCaution, Vertices: hazardRing},
		{ID: "b", Kind: zone.KindSafe, Vertices: hazardRing},
		{ID: "c", Kind: zone.Kind("evacuation"), Vertices: hazardRing},
	}

	require.Equal(t, StateIdle, Evaluate(&inside, zones, StateIdle))
}

// TestEvaluate_OverlappingHazards verifies multiple matches behave exactly
// like one.
func TestEvaluate_OverlappingHazards(t *testing.T) {
	t.Parallel()

	zones := append(hazardZones(), &zone.Zone{ID: "z2", Kind: zone.KindHazard, Vertices: hazardRing})

	require.Equal(t, StateSounding, Evaluate(&inside, zones, StateIdle))
	require.Equal(t, StateIdle, Evaluate(&outside, zones, StateSounding))
}

// TestEvaluate_Idempotent verifies repeated evaluation with unchanged
// inputs never toggles.
func TestEvaluate_Idempotent(t *testing.T) {
	t.Parallel()

	zones := hazardZones()
	state := Evaluate(&inside, zones, StateIdle)

	for i := 0; i < 10; i++ {
		require.Equal(t, state, Evaluate(&inside, zones, state))
	}
}

// TestEvaluate_ReentryLaw verifies enter -> acknowledge -> exit -> re-enter
// produces a second sounding transition.
func TestEvaluate_ReentryLaw(t *testing.T) {
	t.Parallel()

	zones := hazardZones()

	state := Evaluate(&inside, zones, StateIdle)
	require.Equal(t, StateSounding, state)

	// External acknowledgement.
	state = StateAcknowledged

	// Still inside: suppressed.
	state = Evaluate(&inside, zones, state)
	require.Equal(t, StateAcknowledged, state)

	// Exit: guard cleared.
	state = Evaluate(&outside, zones, state)
	require.Equal(t, StateIdle, state)

	// Re-entry: alarms again.
	state = Evaluate(&inside, zones, state)
	require.Equal(t, StateSounding, state)
}

// recordingSiren counts starts and stops and can simulate playback
// rejection.
type recordingSiren struct {
	starts   atomic.Int32
	stops    atomic.Int32
	startErr error
}

// Start implements Siren.
func (s *recordingSiren) Start(context.Context) error {
	s.starts.Add(1)

	return s.startErr
}

// Stop implements Siren.
func (s *recordingSiren) Stop() {
	s.stops.Add(1)
}

// putZones publishes the hazard zone set into the store.
func putZones(t *testing.T, st *memory.Store) {
	t.Helper()

	vertices := make([]any, 0, len(hazardRing))
	for _, v := range hazardRing {
		vertices = append(vertices, map[string]any{"lat": v.Lat, "lng": v.Lng})
	}

	require.NoError(t, st.Put(context.Background(), feed.ZonesPath, map[string]any{
		"z1": map[string]any{"type": "hazard", "vertices": vertices},
	}))
}

// putLocation publishes a subject position into the store.
func putLocation(t *testing.T, st *memory.Store, p geo.Point) {
	t.Helper()

	require.NoError(t, st.Put(context.Background(), feed.LocationPath("s1"), map[string]any{
		"name":        "Asha",
		"status":      "safe",
		"coordinates": map[string]any{"lat": p.Lat, "lng": p.Lng},
	}))
}

// awaitState waits for the detector to settle on the wanted state.
func awaitState(t *testing.T, d *Detector, want AlarmState) {
	t.Helper()

	require.Eventually(t, func() bool {
		return d.State() == want
	}, 2*time.Second, 5*time.Millisecond)
}

// TestDetector_Scenario reproduces the end-to-end flow: enter the hazard
// ring, alarm sounds; leave it, alarm resets.
func TestDetector_Scenario(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	siren := new(recordingSiren)

	d, err := New(context.Background(), st, "s1", siren)
	require.NoError(t, err)

	defer d.Close()

	require.Equal(t, StateIdle, d.State())

	putZones(t, st)
	putLocation(t, st, inside)
	awaitState(t, d, StateSounding)
	require.Equal(t, int32(1), siren.starts.Load())

	putLocation(t, st, outside)
	awaitState(t, d, StateIdle)
	require.GreaterOrEqual(t, siren.stops.Load(), int32(1))
}

// TestDetector_AcknowledgeAndReenter verifies acknowledgement silences the
// siren without clearing containment, and a later re-entry re-alarms.
func TestDetector_AcknowledgeAndReenter(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	siren := new(recordingSiren)

	d, err := New(context.Background(), st, "s1", siren)
	require.NoError(t, err)

	defer d.Close()

	putZones(t, st)
	putLocation(t, st, inside)
	awaitState(t, d, StateSounding)

	d.Acknowledge()
	require.Equal(t, StateAcknowledged, d.State())
	require.GreaterOrEqual(t, siren.stops.Load(), int32(1))

	// Still inside: a location refresh must not re-alarm.
	putLocation(t, st, geo.Point{Lat: 13.06, Lng: 80.06})
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, StateAcknowledged, d.State())

	// Acknowledging anything but a sounding alarm is a no-op.
	d.Acknowledge()
	require.Equal(t, StateAcknowledged, d.State())

	// Exit then re-enter: second sounding transition.
	putLocation(t, st, outside)
	awaitState(t, d, StateIdle)

	putLocation(t, st, inside)
	awaitState(t, d, StateSounding)
	require.Equal(t, int32(2), siren.starts.Load())
}

// TestDetector_SirenFailureIsNonFatal verifies playback rejection degrades
// to a visual-only alert instead of crashing or changing state.
func TestDetector_SirenFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	siren := &recordingSiren{startErr: errors.New("autoplay blocked")}

	d, err := New(context.Background(), st, "s1", siren)
	require.NoError(t, err)

	defer d.Close()

	putZones(t, st)
	putLocation(t, st, inside)
	awaitState(t, d, StateSounding)
}

// TestDetector_TransitionsFeed verifies observers see the ordered state
// changes.
func TestDetector_TransitionsFeed(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	d, err := New(context.Background(), st, "s1", nil)
	require.NoError(t, err)

	defer d.Close()

	putZones(t, st)
	putLocation(t, st, inside)

	select {
	case state := <-d.Transitions():
		require.Equal(t, StateSounding, state)
	case <-time.After(2 * time.Second):
		t.Fatal("no sounding transition observed")
	}

	putLocation(t, st, outside)

	select {
	case state := <-d.Transitions():
		require.Equal(t, StateIdle, state)
	case <-time.After(2 * time.Second):
		t.Fatal("no idle transition observed")
	}
}

// TestDetector_CloseStopsEverything verifies teardown releases the feeds,
// stops audio and survives repeated calls.
func TestDetector_CloseStopsEverything(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	defer st.Close()

	siren := new(recordingSiren)

	d, err := New(context.Background(), st, "s1", siren)
	require.NoError(t, err)

	putZones(t, st)
	putLocation(t, st, inside)
	awaitState(t, d, StateSounding)

	d.Close()
	d.Close()

	require.GreaterOrEqual(t, siren.stops.Load(), int32(1))

	// Updates after teardown must not mutate state.
	stateAfterClose := d.State()
	putLocation(t, st, outside)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, stateAfterClose, d.State())
}
