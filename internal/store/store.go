package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Get when no value exists at the path.
var ErrNotFound = errors.New("store: value not found")

// ErrClosed is returned when operating on a store after Close.
var ErrClosed = errors.New("store: closed")

// UpdateFunc computes the next value for a transactional write. It receives
// the current value (nil when absent) and returns the replacement together
// with ok=true, or ok=false to abort and leave the record unchanged. The
// function may run more than once when concurrent writers conflict, so it
// must be pure.
type UpdateFunc func(current json.RawMessage) (next any, ok bool)

// TxResult reports the outcome of a transaction. Committed is true only
// when the update function produced a replacement that was written; an
// abort leaves Committed false and Value holding the record that was
// observed. Callers deciding whether a state change happened should diff
// the value rather than trust the flag alone, since other store
// implementations report unchanged commits as true.
type TxResult struct {
	// Committed reports whether a replacement value was written.
	Committed bool
	// Value is the value at the path after the transaction finished.
	Value json.RawMessage
}

// Subscription is a live full-snapshot feed for a single path. The current
// value is delivered first, then every subsequent value. Cancel releases
// the watch; it is safe to call more than once and on every exit path.
type Subscription interface {
	// Updates is the snapshot channel. It is closed after Cancel.
	Updates() <-chan json.RawMessage
	// Cancel releases the watch and closes the update channel.
	Cancel()
}

// Store is the shared mutable state all components coordinate through.
// Plain writes are last-writer-wins; Transact provides the optimistic
// compare-and-swap discipline required for race-free assignment.
type Store interface {
	// Get returns the value at the path or ErrNotFound.
	Get(ctx context.Context, path string) (json.RawMessage, error)
	// Put unconditionally replaces the value at the path.
	Put(ctx context.Context, path string, value any) error
	// Delete removes the value at the path. Missing values are a no-op.
	Delete(ctx context.Context, path string) error
	// List returns every value stored under the prefix, keyed by the
	// remainder of the path. An empty result is not an error.
	List(ctx context.Context, prefix string) (map[string]json.RawMessage, error)
	// Transact runs fn against the current value and writes its result
	// atomically, retrying when a concurrent writer interferes.
	Transact(ctx context.Context, path string, fn UpdateFunc) (TxResult, error)
	// Subscribe opens a full-snapshot feed for the path. The feed is
	// cancelled with the subscription or when ctx ends.
	Subscribe(ctx context.Context, path string) (Subscription, error)
	// Close releases the store and cancels all subscriptions.
	Close() error
}
