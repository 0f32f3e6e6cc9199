package feed

import (
	"context"
	"sync"

	"github.com/reliefops/redzone/internal/domain/subject"
	"github.com/reliefops/redzone/internal/domain/zone"
	"github.com/reliefops/redzone/internal/logger"
	"github.com/reliefops/redzone/internal/store"
)

const (
	// ZonesPath is the store node holding the complete zone set.
	ZonesPath = "zones"
	// LocationsPrefix is the store node holding per-subject records.
	LocationsPrefix = "locations/"
	// EmbeddingsPath is the store node holding face embeddings.
	EmbeddingsPath = "embeddings"

	// feedBuffer bounds the typed update queue handed to consumers.
	feedBuffer = 16
)

// LocationPath returns the store path for one subject's live record.
func LocationPath(subjectID string) string {
	return LocationsPrefix + subjectID
}

// ZoneFeed delivers the complete normalized zone set on every upstream
// change. Consumers always receive full snapshots, never diffs.
type ZoneFeed struct {
	updates chan []*zone.Zone
	stop    func()
}

// WatchZones subscribes to the zone node and starts normalization. The
// feed ends when Close is called or ctx is cancelled.
func WatchZones(ctx context.Context, st store.Store) (*ZoneFeed, error) {
	sub, err := st.Subscribe(ctx, ZonesPath)
	if err != nil {
		return nil, err
	}

	f := &ZoneFeed{
		updates: make(chan []*zone.Zone, feedBuffer),
	}

	var (
		alive sync.Once
		done  = make(chan struct{})
	)

	f.stop = func() {
		alive.Do(func() {
			close(done)
			sub.Cancel()
		})
	}

	go func() {
		defer close(f.updates)

		for raw := range sub.Updates() {
			zones := zone.ParseSet(raw)

			select {
			case f.updates <- zones:
			case <-done:
				// Torn down; drop the snapshot instead of mutating
				// anything after close.
				return
			}
		}

		logger.Debug(ctx, "Zone feed ended")
	}()

	return f, nil
}

// Updates is the normalized zone-set channel. Closed after Close.
func (f *ZoneFeed) Updates() <-chan []*zone.Zone {
	return f.updates
}

// Close releases the underlying subscription.
func (f *ZoneFeed) Close() {
	f.stop()
}

// SubjectFeed delivers one subject's normalized record on every upstream
// change. A nil record means the subject has no store entry (yet); the
// record's Coordinates stay nil until a location is reported, which
// consumers must treat as "no location yet", never as (0,0).
type SubjectFeed struct {
	updates chan *subject.Subject
	stop    func()
}

// WatchSubject subscribes to a single subject's record.
func WatchSubject(ctx context.Context, st store.Store, subjectID string) (*SubjectFeed, error) {
	sub, err := st.Subscribe(ctx, LocationPath(subjectID))
	if err != nil {
		return nil, err
	}

	f := &SubjectFeed{
		updates: make(chan *subject.Subject, feedBuffer),
	}

	var (
		alive sync.Once
		done  = make(chan struct{})
	)

	f.stop = func() {
		alive.Do(func() {
			close(done)
			sub.Cancel()
		})
	}

	go func() {
		defer close(f.updates)

		for raw := range sub.Updates() {
			record := subject.Parse(subjectID, raw)

			select {
			case f.updates <- record:
			case <-done:
				return
			}
		}

		logger.DebugKV(ctx, "Subject feed ended", "subject_id", subjectID)
	}()

	return f, nil
}

// Updates is the normalized subject channel. Closed after Close.
func (f *SubjectFeed) Updates() <-chan *subject.Subject {
	return f.updates
}

// Close releases the underlying subscription.
func (f *SubjectFeed) Close() {
	f.stop()
}
