package security

import (
	"context"
	"testing"
	"time"

	"github.com/aerolink/drone-mcp/internal/audit"
)

func testAnalyzer(t *testing.T) (*ThreatAnalyzer, audit.Logger) {
	t.Helper()
	auditor, err := audit.NewLogger(&audit.Config{RingSize: 100})
	if err != nil {
		t.Fatalf("creating audit logger: %v", err)
	}
	t.Cleanup(func() { auditor.Close() })

	return NewThreatAnalyzer(auditor.Ring(), auditor, 30*time.Second), auditor
}

func TestThreatAnalyzerQuiet(t *testing.T) {
	analyzer, _ := testAnalyzer(t)

	summary := analyzer.AnalyzeOnce(context.Background(), time.Now())
	if summary.Level != "normal" {
		t.Fatalf("empty ring must be normal, got %s", summary.Level)
	}
	if got := analyzer.Latest(); got.Level != "normal" {
		t.Fatalf("Latest out of sync: %+v", got)
	}
}

func TestThreatAnalyzerElevatesOnAuthFailures(t *testing.T) {
	analyzer, auditor := testAnalyzer(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		auditor.Log(ctx, audit.NewEvent(audit.EventAuthFailed).
			WithSeverity(audit.SeverityMedium).
			WithSourceIP("6.6.6.6").
			WithResult(audit.ResultDenied))
	}

	summary := analyzer.AnalyzeOnce(ctx, time.Now())
	if summary.Level != "elevated" {
		t.Fatalf("expected elevated, got %s (%+v)", summary.Level, summary)
	}
	if summary.AuthFailures != 6 {
		t.Fatalf("expected 6 auth failures, got %d", summary.AuthFailures)
	}
	if len(summary.Recommendations) == 0 {
		t.Fatal("repeated failures from one source should yield a recommendation")
	}
}

func TestThreatAnalyzerCriticalOnLockout(t *testing.T) {
	analyzer, auditor := testAnalyzer(t)
	ctx := context.Background()

	auditor.Log(ctx, audit.NewEvent(audit.EventLockout).
		WithSeverity(audit.SeverityHigh).
		WithResult(audit.ResultDenied))

	summary := analyzer.AnalyzeOnce(ctx, time.Now())
	if summary.Level != "critical" {
		t.Fatalf("expected critical, got %s", summary.Level)
	}
	if summary.Lockouts != 1 {
		t.Fatalf("expected 1 lockout, got %d", summary.Lockouts)
	}
}

func TestThreatAnalyzerIgnoresOldEvents(t *testing.T) {
	analyzer, auditor := testAnalyzer(t)
	ctx := context.Background()

	old := audit.NewEvent(audit.EventAuthFailed)
	old.Timestamp = time.Now().Add(-time.Hour)
	auditor.Log(ctx, old)

	summary := analyzer.AnalyzeOnce(ctx, time.Now())
	if summary.AuthFailures != 0 {
		t.Fatalf("events outside the window must be ignored, got %d", summary.AuthFailures)
	}
}
