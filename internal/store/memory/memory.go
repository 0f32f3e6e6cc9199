package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/reliefops/redzone/internal/store"
)

// watchBuffer bounds the per-subscription queue. A slow consumer has its
// oldest snapshot replaced rather than blocking writers, so the final
// value observed is always the latest.
const watchBuffer = 16

// maxTransactAttempts caps the optimistic retry loop. Contention on a
// single subject record is short-lived, so exhausting this indicates a
// livelock bug rather than load.
const maxTransactAttempts = 25

// entry is one stored value with the version counter the CAS loop
// compares against.
type entry struct {
	data    json.RawMessage
	version uint64
}

// Store is the in-process store backend. It is the reference semantics
// for the store contract and serves single-node deployments and tests.
type Store struct {
	// mu protects values, watchers and the closed flag.
	mu       sync.Mutex
	values   map[string]entry
	watchers map[string]map[uint64]*subscription
	nextID   uint64
	closed   bool
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		values:   make(map[string]entry),
		watchers: make(map[string]map[uint64]*subscription),
	}
}

// Get returns the value at the path or store.ErrNotFound.
func (s *Store) Get(_ context.Context, path string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	e, ok := s.values[path]
	if !ok {
		return nil, store.ErrNotFound
	}

	return append(json.RawMessage(nil), e.data...), nil
}

// Put unconditionally replaces the value at the path.
func (s *Store) Put(_ context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	s.writeLocked(path, data)

	return nil
}

// Delete removes the value at the path. Missing values are a no-op.
func (s *Store) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	if _, ok := s.values[path]; !ok {
		return nil
	}

	delete(s.values, path)
	s.notifyLocked(path, nil)

	return nil
}

// List returns every value stored under the prefix, keyed by the remainder
// of the path.
func (s *Store) List(_ context.Context, prefix string) (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	values := make(map[string]json.RawMessage)

	for path, e := range s.values {
		if strings.HasPrefix(path, prefix) {
			values[strings.TrimPrefix(path, prefix)] = append(json.RawMessage(nil), e.data...)
		}
	}

	return values, nil
}

// Transact runs fn optimistically: the current value is read, fn computes
// a replacement, and the write commits only if no concurrent writer
// touched the path in between. Conflicts re-run fn against the fresh
// value.
func (s *Store) Transact(ctx context.Context, path string, fn store.UpdateFunc) (store.TxResult, error) {
	for attempt := 0; attempt < maxTransactAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return store.TxResult{}, err
		}

		s.mu.Lock()

		if s.closed {
			s.mu.Unlock()

			return store.TxResult{}, store.ErrClosed
		}

		var (
			current = s.values[path]
			snap    = append(json.RawMessage(nil), current.data...)
		)

		s.mu.Unlock()

		next, ok := fn(snap)
		if !ok {
			return store.TxResult{Committed: false, Value: snap}, nil
		}

		data, err := json.Marshal(next)
		if err != nil {
			return store.TxResult{}, fmt.Errorf("encode value: %w", err)
		}

		s.mu.Lock()

		if s.closed {
			s.mu.Unlock()

			return store.TxResult{}, store.ErrClosed
		}

		if s.values[path].version != current.version {
			// A concurrent writer won; re-read and re-run.
			s.mu.Unlock()

			continue
		}

		s.writeLocked(path, data)
		s.mu.Unlock()

		return store.TxResult{Committed: true, Value: data}, nil
	}

	return store.TxResult{}, fmt.Errorf("transact %q: gave up after %d attempts", path, maxTransactAttempts)
}

// Subscribe opens a full-snapshot feed for the path. The current value
// (nil when absent) is delivered first.
func (s *Store) Subscribe(ctx context.Context, path string) (store.Subscription, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil, store.ErrClosed
	}

	s.nextID++

	sub := &subscription{
		owner:   s,
		path:    path,
		id:      s.nextID,
		updates: make(chan json.RawMessage, watchBuffer),
		done:    make(chan struct{}),
	}

	if s.watchers[path] == nil {
		s.watchers[path] = make(map[uint64]*subscription)
	}

	s.watchers[path][sub.id] = sub

	// Initial snapshot before any subsequent change can be observed.
	sub.push(append(json.RawMessage(nil), s.values[path].data...))

	s.mu.Unlock()

	if ctx != nil {
		go func() {
			// Cancel also releases this goroutine, so a subscription on a
			// long-lived context does not park a watcher forever.
			select {
			case <-ctx.Done():
				sub.Cancel()
			case <-sub.done:
			}
		}()
	}

	return sub, nil
}

// Close releases the store and cancels all subscriptions.
func (s *Store) Close() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true

	subs := make([]*subscription, 0)
	for _, byID := range s.watchers {
		for _, sub := range byID {
			subs = append(subs, sub)
		}
	}

	s.watchers = make(map[string]map[uint64]*subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}

	return nil
}

// writeLocked stores the value, bumps the version and fans the snapshot
// out to watchers. Caller holds mu.
func (s *Store) writeLocked(path string, data json.RawMessage) {
	e := s.values[path]
	e.data = data
	e.version++
	s.values[path] = e

	s.notifyLocked(path, data)
}

// notifyLocked delivers the new snapshot to every watcher of the path.
// Caller holds mu.
func (s *Store) notifyLocked(path string, data json.RawMessage) {
	for _, sub := range s.watchers[path] {
		sub.push(append(json.RawMessage(nil), data...))
	}
}

// removeWatcher unregisters a subscription. Safe to call repeatedly.
func (s *Store) removeWatcher(path string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.watchers[path]
	if !ok {
		return
	}

	delete(byID, id)

	if len(byID) == 0 {
		delete(s.watchers, path)
	}
}

// subscription is one registered watcher with latest-wins buffering.
type subscription struct {
	owner   *Store
	path    string
	id      uint64
	updates chan json.RawMessage
	// done releases the context watcher goroutine once the subscription
	// ends for any reason.
	done chan struct{}

	// once guards channel close on the Cancel/Close race.
	once sync.Once
}

// Updates is the snapshot channel.
func (s *subscription) Updates() <-chan json.RawMessage {
	return s.updates
}

// Cancel releases the watch and closes the update channel.
func (s *subscription) Cancel() {
	s.owner.removeWatcher(s.path, s.id)
	s.close()
}

// close closes the channels exactly once.
func (s *subscription) close() {
	s.once.Do(func() {
		close(s.done)
		close(s.updates)
	})
}

// push enqueues a snapshot without ever blocking a writer: when the buffer
// is full the oldest snapshot is dropped so the consumer converges on the
// latest value.
func (s *subscription) push(data json.RawMessage) {
	for {
		select {
		case s.updates <- data:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}
