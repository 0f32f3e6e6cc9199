package watcher

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// defaultBellInterval is how often the console siren rings while active.
const defaultBellInterval = time.Second

// ConsoleSiren rings the terminal bell at a fixed interval while started.
// It satisfies the detector's Siren contract.
type ConsoleSiren struct {
	out      io.Writer
	interval time.Duration

	// mu guards stop; a nil stop channel means the siren is idle.
	mu   sync.Mutex
	stop chan struct{}
}

// NewConsoleSiren creates a siren ringing on the writer.
func NewConsoleSiren(out io.Writer) *ConsoleSiren {
	return &ConsoleSiren{
		out:      out,
		interval: defaultBellInterval,
	}
}

// Start begins ringing. Starting an already-ringing siren is a no-op.
func (s *ConsoleSiren) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	s.stop = stop

	go s.ring(ctx, stop)

	return nil
}

// Stop silences the siren. Safe to call when idle.
func (s *ConsoleSiren) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil {
		return
	}

	close(s.stop)
	s.stop = nil
}

// ring emits the bell until stopped. The first bell fires immediately so
// the alarm is audible without waiting out the interval.
func (s *ConsoleSiren) ring(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	fmt.Fprint(s.out, "\a")

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(s.out, "\a")
		}
	}
}
