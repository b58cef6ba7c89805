package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aerolink/drone-mcp/internal/audit"
	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/metrics"
)

func testRateLimiter(t *testing.T, rpm, burst int) *RateLimiter {
	t.Helper()
	auditor, err := audit.NewLogger(&audit.Config{RingSize: 100})
	if err != nil {
		t.Fatalf("creating audit logger: %v", err)
	}
	t.Cleanup(func() { auditor.Close() })

	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerMinute: rpm,
		Burst:             burst,
	}, auditor, metrics.NewRegistry())
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := testRateLimiter(t, 60, 5)
	p := &Principal{ID: "op-1", Role: RoleOperator}

	for i := 0; i < 5; i++ {
		if err := rl.Allow(context.Background(), p); err != nil {
			t.Fatalf("request %d inside burst rejected: %v", i, err)
		}
	}
}

func TestRateLimiterRejectsWithRetryAfter(t *testing.T) {
	rl := testRateLimiter(t, 60, 2)
	p := &Principal{ID: "op-1", Role: RoleOperator}
	ctx := context.Background()

	_ = rl.Allow(ctx, p)
	_ = rl.Allow(ctx, p)

	err := rl.Allow(ctx, p)
	if fault.KindOf(err) != fault.KindRateLimited {
		t.Fatalf("expected rate_limited, got %v", err)
	}
	var fe *fault.Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *fault.Error, got %T", err)
	}
	if fe.RetryAfter <= 0 {
		t.Fatal("rejection must carry a positive retry_after")
	}
	if fe.RetryAfter > 2*time.Second {
		t.Fatalf("retry_after should reflect a one-token refill, got %v", fe.RetryAfter)
	}
}

// A rejection must not consume the reservation; the bucket refills as if the
// rejected request never happened.
func TestRateLimiterIsolatesPrincipals(t *testing.T) {
	rl := testRateLimiter(t, 60, 1)
	ctx := context.Background()

	a := &Principal{ID: "a", Role: RoleOperator}
	b := &Principal{ID: "b", Role: RoleReadonly}

	if err := rl.Allow(ctx, a); err != nil {
		t.Fatalf("first request for a rejected: %v", err)
	}
	if err := rl.Allow(ctx, a); fault.KindOf(err) != fault.KindRateLimited {
		t.Fatalf("second request for a should be limited, got %v", err)
	}
	if err := rl.Allow(ctx, b); err != nil {
		t.Fatalf("b must have an independent bucket: %v", err)
	}
}
