package sinks

import (
	"context"
	"sync"

	"github.com/domainscope/sitemapper/internal/progress"
)

const defaultRingCapacity = 1024

// RingSink keeps the most recent events in a fixed-size ring. The API reads
// it to answer the recent-events endpoint; old events are overwritten, never
// returned to callers again.
type RingSink struct {
	mu   sync.Mutex
	buf  []progress.Event
	next int
	full bool
}

// NewRingSink builds a RingSink holding up to capacity events. Non-positive
// capacities fall back to a sensible default.
func NewRingSink(capacity int) *RingSink {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &RingSink{buf: make([]progress.Event, capacity)}
}

// Consume appends the batch, overwriting the oldest events once the ring is
// full.
func (r *RingSink) Consume(_ context.Context, events []progress.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, evt := range events {
		r.buf[r.next] = evt
		r.next = (r.next + 1) % len(r.buf)
		if r.next == 0 {
			r.full = true
		}
	}
	return nil
}

// Recent returns up to limit events, newest first. A non-positive limit
// returns everything currently held.
func (r *RingSink) Recent(limit int) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := r.next
	if r.full {
		size = len(r.buf)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]progress.Event, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Close is a no-op; the ring stays readable after the hub shuts down.
func (r *RingSink) Close(context.Context) error {
	return nil
}
