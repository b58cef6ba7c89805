package audit

import (
	"sync"
	"time"
)

// Ring is a bounded append-only event buffer with FIFO eviction. It backs the
// post-hoc queries served by the system resources and the threat analyzer.
type Ring struct {
	mu    sync.RWMutex
	buf   []*Event
	head  int
	count int
}

// NewRing creates a ring holding at most capacity events.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]*Event, capacity)}
}

// Append adds an event, evicting the oldest when full.
func (r *Ring) Append(e *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.head + r.count) % len(r.buf)
	if r.count == len(r.buf) {
		// Overwrite oldest
		r.buf[r.head] = e
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[idx] = e
	r.count++
}

// Len returns the number of retained events.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Capacity returns the maximum number of retained events.
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// Snapshot returns retained events oldest first.
func (r *Ring) Snapshot() []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

// Since returns retained events with a timestamp at or after ts, oldest first.
func (r *Ring) Since(ts time.Time) []*Event {
	events := r.Snapshot()
	out := events[:0]
	for _, e := range events {
		if !e.Timestamp.Before(ts) {
			out = append(out, e)
		}
	}
	return out
}
