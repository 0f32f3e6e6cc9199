package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/reliefops/redzone/internal/store"
)

const (
	// keyPrefix namespaces every stored path.
	keyPrefix = "redzone:"
	// channelPrefix namespaces the pub/sub channel carrying snapshots.
	channelPrefix = "redzone:changes:"

	// maxTransactAttempts caps WATCH retries on conflicting writers.
	maxTransactAttempts = 25

	// watchBuffer bounds the per-subscription queue.
	watchBuffer = 16
)

// Options configures the Redis store backend.
type Options struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the optional server password.
	Password string
	// DB is the logical database number.
	DB int
}

// Store is the Redis-backed store. Values live as JSON strings under a key
// prefix; every write publishes the new snapshot on a per-path channel so
// subscribers receive the same full-snapshot feed as the in-memory
// backend. Transactions use WATCH/MULTI optimistic concurrency.
type Store struct {
	client *goredis.Client

	// mu guards closed.
	mu     sync.Mutex
	closed bool
}

// errAddrRequired is returned when no Redis address is configured.
var errAddrRequired = errors.New("redis address must be provided")

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.Addr == "" {
		return nil, errAddrRequired
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Get returns the value at the path or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, path string) (json.RawMessage, error) {
	data, err := s.client.Get(ctx, keyPrefix+path).Bytes()

	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, goredis.Nil):
		return nil, store.ErrNotFound
	default:
		return nil, fmt.Errorf("get %q: %w", path, err)
	}
}

// Put unconditionally replaces the value at the path and publishes the new
// snapshot.
func (s *Store) Put(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyPrefix+path, data, 0)
	pipe.Publish(ctx, channelPrefix+path, string(data))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put %q: %w", path, err)
	}

	return nil
}

// Delete removes the value at the path and publishes an absent snapshot.
func (s *Store) Delete(ctx context.Context, path string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keyPrefix+path)
	pipe.Publish(ctx, channelPrefix+path, "null")

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete %q: %w", path, err)
	}

	return nil
}

// List scans every key under the prefix and returns the stored values keyed
// by the remainder of the path. Keys deleted between the scan and the read
// are skipped.
func (s *Store) List(ctx context.Context, prefix string) (map[string]json.RawMessage, error) {
	values := make(map[string]json.RawMessage)

	iter := s.client.Scan(ctx, 0, keyPrefix+prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}

		values[strings.TrimPrefix(key, keyPrefix+prefix)] = data
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}

	return values, nil
}

// Transact runs fn under WATCH: the write commits only if no other client
// touched the key between the read and the MULTI/EXEC, retrying on
// conflict with a fresh read each time.
func (s *Store) Transact(ctx context.Context, path string, fn store.UpdateFunc) (store.TxResult, error) {
	var (
		key     = keyPrefix + path
		channel = channelPrefix + path
		result  store.TxResult
	)

	run := func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return fmt.Errorf("read current: %w", err)
		}

		next, ok := fn(current)
		if !ok {
			result = store.TxResult{Committed: false, Value: current}

			// Aborting must not leave the WATCH armed against the
			// caller's next command.
			return tx.Unwatch(ctx).Err()
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode value: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.Publish(ctx, channel, string(data))

			return nil
		})
		if err != nil {
			return err
		}

		result = store.TxResult{Committed: true, Value: data}

		return nil
	}

	for attempt := 0; attempt < maxTransactAttempts; attempt++ {
		err := s.client.Watch(ctx, run, key)

		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, goredis.TxFailedErr):
			// Conflicting concurrent write, re-read and re-run.
			continue
		default:
			return store.TxResult{}, fmt.Errorf("transact %q: %w", path, err)
		}
	}

	return store.TxResult{}, fmt.Errorf("transact %q: gave up after %d attempts", path, maxTransactAttempts)
}

// Subscribe opens a full-snapshot feed for the path: the current value is
// fetched and delivered first, then pub/sub messages follow.
func (s *Store) Subscribe(ctx context.Context, path string) (store.Subscription, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil, store.ErrClosed
	}

	s.mu.Unlock()

	pubsub := s.client.Subscribe(ctx, channelPrefix+path)

	// Force the subscription onto the wire before reading the initial
	// snapshot, so no change can slip between the two.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()

		return nil, fmt.Errorf("subscribe %q: %w", path, err)
	}

	initial, err := s.Get(ctx, path)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		_ = pubsub.Close()

		return nil, err
	}

	sub := &subscription{
		pubsub:  pubsub,
		updates: make(chan json.RawMessage, watchBuffer),
		done:    make(chan struct{}),
	}

	go sub.run(ctx, initial)

	return sub, nil
}

// Close releases the Redis connection. Open subscriptions are terminated
// by the client shutdown.
func (s *Store) Close() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true
	s.mu.Unlock()

	return s.client.Close()
}

// subscription adapts a Redis pub/sub stream to the store contract.
type subscription struct {
	pubsub  *goredis.PubSub
	updates chan json.RawMessage
	done    chan struct{}

	// once guards Cancel being called from multiple exit paths.
	once sync.Once
}

// Updates is the snapshot channel.
func (s *subscription) Updates() <-chan json.RawMessage {
	return s.updates
}

// Cancel releases the watch and closes the update channel.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		_ = s.pubsub.Close()
	})
}

// run forwards the initial snapshot and then every published change until
// the subscription or the context ends. The updates channel is closed on
// exit so consumers observe termination.
func (s *subscription) run(ctx context.Context, initial json.RawMessage) {
	defer close(s.updates)

	if !s.deliver(ctx, initial) {
		return
	}

	messages := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			s.Cancel()

			return
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			snapshot := json.RawMessage(msg.Payload)
			if string(snapshot) == "null" {
				snapshot = nil
			}

			if !s.deliver(ctx, snapshot) {
				return
			}
		}
	}
}

// deliver pushes one snapshot, giving up when the feed is being torn down.
func (s *subscription) deliver(ctx context.Context, data json.RawMessage) bool {
	select {
	case s.updates <- data:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		s.Cancel()

		return false
	}
}
