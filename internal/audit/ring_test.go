package audit

import (
	"testing"
	"time"
)

func TestRingAppendAndSnapshot(t *testing.T) {
	r := NewRing(3)

	for i, kind := range []EventType{EventAuthFailed, EventAuthSucceeded, EventRateLimited} {
		e := NewEvent(kind).WithDescription(string(rune('a' + i)))
		r.Append(e)
	}

	if r.Len() != 3 {
		t.Fatalf("expected 3 events, got %d", r.Len())
	}

	snap := r.Snapshot()
	if snap[0].EventType != EventAuthFailed || snap[2].EventType != EventRateLimited {
		t.Fatalf("unexpected order: %v %v %v", snap[0].EventType, snap[1].EventType, snap[2].EventType)
	}
}

func TestRingEvictsOldestOnOverflow(t *testing.T) {
	r := NewRing(2)

	r.Append(NewEvent(EventAuthFailed))
	r.Append(NewEvent(EventAuthSucceeded))
	r.Append(NewEvent(EventRateLimited))

	if r.Len() != 2 {
		t.Fatalf("expected ring to stay bounded at 2, got %d", r.Len())
	}

	snap := r.Snapshot()
	if snap[0].EventType != EventAuthSucceeded {
		t.Fatalf("expected oldest event evicted, head is %v", snap[0].EventType)
	}
	if snap[1].EventType != EventRateLimited {
		t.Fatalf("expected newest event retained, tail is %v", snap[1].EventType)
	}
}

func TestRingSince(t *testing.T) {
	r := NewRing(10)

	old := NewEvent(EventAuthFailed)
	old.Timestamp = time.Now().Add(-time.Hour)
	r.Append(old)

	recent := NewEvent(EventLockout)
	r.Append(recent)

	got := r.Since(time.Now().Add(-time.Minute))
	if len(got) != 1 || got[0].EventType != EventLockout {
		t.Fatalf("expected only the recent event, got %d", len(got))
	}
}
