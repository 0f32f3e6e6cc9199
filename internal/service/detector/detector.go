package detector

import (
	"context"
	"sync"

	"github.com/reliefops/redzone/internal/domain/geo"
	"github.com/reliefops/redzone/internal/domain/zone"
	"github.com/reliefops/redzone/internal/logger"
	"github.com/reliefops/redzone/internal/service/feed"
	"github.com/reliefops/redzone/internal/store"
)

// AlarmState is the per-observer alarm status. It is transient: owned by
// the watching session, never persisted, reset whenever the subject leaves
// all hazard zones.
type AlarmState string

const (
	// StateIdle means the subject is outside every hazard zone.
	StateIdle AlarmState = "idle"
	// StateSounding means the subject is inside a hazard zone and the
	// alarm is active.
	StateSounding AlarmState = "sounding"
	// StateAcknowledged means the alarm was silenced while the subject
	// is still inside; re-entry after an exit re-triggers.
	StateAcknowledged AlarmState = "acknowledged"
)

// Evaluate computes the next alarm state from the current inputs. It is a
// pure function recomputed on every location or zone-set change, so the
// ordering of the two feeds never matters:
//
//   - no known location, or no hazard zone containing it -> StateIdle
//     (this also clears the acknowledgement guard);
//   - containment while idle -> StateSounding;
//   - containment while sounding or acknowledged -> unchanged.
//
// Overlapping hazard zones behave exactly like a single match.
func Evaluate(location *geo.Point, zones []*zone.Zone, previous AlarmState) AlarmState {
	if location == nil || !insideAnyHazard(*location, zones) {
		return StateIdle
	}

	if previous == StateIdle || previous == "" {
		return StateSounding
	}

	return previous
}

// insideAnyHazard is a boolean OR of the containment test across all
// hazard zones.
func insideAnyHazard(p geo.Point, zones []*zone.Zone) bool {
	for _, z := range zones {
		if z.IsHazard() && z.Contains(p) {
			return true
		}
	}

	return false
}

// Siren is the audio side effect behind the alarm. Start may fail (for
// example an autoplay policy or missing audio device); failures degrade
// the alert to visual-only and are never fatal.
type Siren interface {
	Start(ctx context.Context) error
	Stop()
}

// NopSiren is a Siren that does nothing, for observers without audio.
type NopSiren struct{}

// Start implements Siren.
func (NopSiren) Start(context.Context) error { return nil }

// Stop implements Siren.
func (NopSiren) Stop() {}

// Detector combines the zone and location feeds and drives the alarm
// state machine for one subject.
type Detector struct {
	siren Siren

	// mu protects state, location, zones and the ended flag.
	mu       sync.Mutex
	state    AlarmState
	location *geo.Point
	zones    []*zone.Zone
	// ended marks the transition channel as closed; notify must observe
	// it under mu so no send can race the close.
	ended bool

	transitions chan AlarmState

	zoneFeed    *feed.ZoneFeed
	subjectFeed *feed.SubjectFeed

	// done gates asynchronous callbacks so nothing mutates state after
	// Close.
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// transitionBuffer bounds the transition notification queue.
const transitionBuffer = 16

// New subscribes the detector to the subject's location and the zone set
// and starts continuous evaluation. The caller must Close it.
func New(ctx context.Context, st store.Store, subjectID string, siren Siren) (*Detector, error) {
	if siren == nil {
		siren = NopSiren{}
	}

	zoneFeed, err := feed.WatchZones(ctx, st)
	if err != nil {
		return nil, err
	}

	subjectFeed, err := feed.WatchSubject(ctx, st, subjectID)
	if err != nil {
		zoneFeed.Close()

		return nil, err
	}

	d := &Detector{
		siren:       siren,
		state:       StateIdle,
		transitions: make(chan AlarmState, transitionBuffer),
		zoneFeed:    zoneFeed,
		subjectFeed: subjectFeed,
		done:        make(chan struct{}),
	}

	d.wg.Add(1)

	go d.run(ctx)

	return d, nil
}

// State returns the current alarm state.
func (d *Detector) State() AlarmState {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state
}

// Transitions delivers every alarm state change, latest-wins under a slow
// consumer. The channel is closed by Close.
func (d *Detector) Transitions() <-chan AlarmState {
	return d.transitions
}

// Acknowledge silences a sounding alarm. The subject may still be inside
// the zone; re-triggering is suppressed only until the next exit.
func (d *Detector) Acknowledge() {
	d.mu.Lock()

	if d.state != StateSounding {
		d.mu.Unlock()

		return
	}

	d.state = StateAcknowledged
	d.mu.Unlock()

	d.siren.Stop()
	d.notify(StateAcknowledged)
}

// Close releases both feeds, stops any ongoing audio and ends the
// transition channel. Safe to call more than once.
func (d *Detector) Close() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.zoneFeed.Close()
		d.subjectFeed.Close()
	})

	d.wg.Wait()
}

// run re-evaluates on every change from either feed until teardown.
func (d *Detector) run(ctx context.Context) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		d.ended = true
		d.mu.Unlock()

		close(d.transitions)
	}()
	defer d.siren.Stop()

	zoneUpdates := d.zoneFeed.Updates()
	subjectUpdates := d.subjectFeed.Updates()

	for {
		select {
		case <-d.done:
			return
		case zones, ok := <-zoneUpdates:
			if !ok {
				zoneUpdates = nil

				continue
			}

			d.mu.Lock()
			d.zones = zones
			d.mu.Unlock()

			d.reevaluate(ctx)
		case record, ok := <-subjectUpdates:
			if !ok {
				subjectUpdates = nil

				continue
			}

			d.mu.Lock()
			if record == nil {
				d.location = nil
			} else {
				d.location = record.Coordinates
			}
			d.mu.Unlock()

			d.reevaluate(ctx)
		}

		if zoneUpdates == nil && subjectUpdates == nil {
			return
		}
	}
}

// reevaluate recomputes the alarm state and applies side effects on
// transitions. Repeated evaluation with unchanged inputs never toggles.
func (d *Detector) reevaluate(ctx context.Context) {
	select {
	case <-d.done:
		return
	default:
	}

	d.mu.Lock()

	var (
		previous = d.state
		next     = Evaluate(d.location, d.zones, d.state)
	)

	d.state = next
	d.mu.Unlock()

	if next == previous {
		return
	}

	switch next {
	case StateSounding:
		logger.WarnKV(ctx, "Subject entered a hazard zone, alarm sounding", "previous", previous)

		if err := d.siren.Start(ctx); err != nil {
			// Degrade to a visual-only alert.
			logger.ErrorKV(ctx, "Siren failed to start, alert is visual only", "error", err)
		}
	case StateIdle:
		logger.InfoKV(ctx, "Subject left all hazard zones, alarm reset", "previous", previous)
		d.siren.Stop()
	case StateAcknowledged:
		// Reached only via Acknowledge, never by evaluation.
	}

	d.notify(next)
}

// notify pushes a transition without blocking evaluation; the oldest
// pending transition is dropped when the consumer lags. Holding mu while
// sending keeps the send ordered before the channel close in run.
func (d *Detector) notify(state AlarmState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ended {
		return
	}

	for {
		select {
		case d.transitions <- state:
			return
		default:
			select {
			case <-d.transitions:
			default:
			}
		}
	}
}
