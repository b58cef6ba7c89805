package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aerolink/drone-mcp/internal/audit"
)

// ThreatSummary aggregates security-relevant audit activity over one
// analysis window.
type ThreatSummary struct {
	GeneratedAt   time.Time `json:"generated_at"`
	WindowStart   time.Time `json:"window_start"`
	AuthFailures  int       `json:"auth_failures"`
	AuthzDenials  int       `json:"authz_denials"`
	RateLimitHits int       `json:"rate_limit_hits"`
	Lockouts      int       `json:"lockouts"`
	Sanitizations int       `json:"sanitizer_rejections"`
	HighCount     int       `json:"high_count"`
	CriticalCount int       `json:"critical_count"`
	// Level is "normal", "elevated" or "critical".
	Level           string   `json:"level"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// ThreatAnalyzer periodically scans the audit ring for attack patterns and
// records a summary event. The latest summary backs the system://health
// resource.
type ThreatAnalyzer struct {
	ring     *audit.Ring
	auditor  audit.Logger
	interval time.Duration
	window   time.Duration

	mu     sync.RWMutex
	latest ThreatSummary

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewThreatAnalyzer creates an analyzer over the given ring. A zero interval
// defaults to 30 seconds; the analysis window is ten intervals.
func NewThreatAnalyzer(ring *audit.Ring, auditor audit.Logger, interval time.Duration) *ThreatAnalyzer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ThreatAnalyzer{
		ring:     ring,
		auditor:  auditor,
		interval: interval,
		window:   10 * interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the analysis loop until Stop is called.
func (t *ThreatAnalyzer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.AnalyzeOnce(ctx, time.Now())
			case <-t.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the analysis loop.
func (t *ThreatAnalyzer) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Latest returns the most recent summary.
func (t *ThreatAnalyzer) Latest() ThreatSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}

// AnalyzeOnce scans audit events since now minus the window and stores the
// resulting summary.
func (t *ThreatAnalyzer) AnalyzeOnce(ctx context.Context, now time.Time) ThreatSummary {
	windowStart := now.Add(-t.window)
	summary := ThreatSummary{
		GeneratedAt: now,
		WindowStart: windowStart,
	}

	failuresBySource := map[string]int{}
	for _, ev := range t.ring.Since(windowStart) {
		switch ev.EventType {
		case audit.EventAuthFailed:
			summary.AuthFailures++
			if ev.SourceIP != "" {
				failuresBySource[ev.SourceIP]++
			}
		case audit.EventAuthzDenied:
			summary.AuthzDenials++
		case audit.EventRateLimited:
			summary.RateLimitHits++
		case audit.EventLockout:
			summary.Lockouts++
		case audit.EventSanitizerRejected:
			summary.Sanitizations++
		}
		switch ev.Severity {
		case audit.SeverityHigh:
			summary.HighCount++
		case audit.SeverityCritical:
			summary.CriticalCount++
		}
	}

	summary.Level = "normal"
	if summary.HighCount > 0 || summary.AuthFailures >= 5 || summary.RateLimitHits >= 10 {
		summary.Level = "elevated"
	}
	if summary.CriticalCount > 0 || summary.Lockouts > 0 {
		summary.Level = "critical"
	}

	for src, n := range failuresBySource {
		if n >= 5 {
			summary.Recommendations = append(summary.Recommendations,
				fmt.Sprintf("consider blocking source %s (%d failed authentications)", src, n))
		}
	}
	if summary.Sanitizations > 0 {
		summary.Recommendations = append(summary.Recommendations,
			"injection patterns observed in input, review audit trail")
	}

	t.mu.Lock()
	t.latest = summary
	t.mu.Unlock()

	if summary.Level != "normal" && t.auditor != nil {
		sev := audit.SeverityHigh
		if summary.Level == "critical" {
			sev = audit.SeverityCritical
		}
		t.auditor.Log(ctx, audit.NewEvent(audit.EventThreatSummary).
			WithSeverity(sev).
			WithResult(audit.ResultSuccess).
			WithDescription(fmt.Sprintf("threat level %s", summary.Level)).
			WithAttribute("auth_failures", summary.AuthFailures).
			WithAttribute("rate_limit_hits", summary.RateLimitHits).
			WithAttribute("lockouts", summary.Lockouts))
	}
	return summary
}
