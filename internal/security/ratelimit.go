package security

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aerolink/drone-mcp/internal/audit"
	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/metrics"
)

// RateLimiterConfig tunes the per-principal token buckets.
type RateLimiterConfig struct {
	RequestsPerMinute int
	Burst             int
	// StaleAfter is how long an idle bucket survives before cleanup.
	StaleAfter      time.Duration
	CleanupInterval time.Duration
}

type principalBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-principal request budget. Buckets refill
// continuously at the configured rate; rejections carry the wait the caller
// should observe before retrying.
type RateLimiter struct {
	cfg     RateLimiterConfig
	auditor audit.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	buckets map[string]*principalBucket

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates the limiter and starts its cleanup loop.
func NewRateLimiter(cfg RateLimiterConfig, auditor audit.Logger, reg *metrics.Registry) *RateLimiter {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	rl := &RateLimiter{
		cfg:     cfg,
		auditor: auditor,
		metrics: reg,
		buckets: make(map[string]*principalBucket),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow consumes one token for the principal. When the bucket is exhausted
// the returned fault carries a retry_after hint derived from the refill rate.
func (rl *RateLimiter) Allow(ctx context.Context, p *Principal) error {
	bucket := rl.bucket(p.ID)

	res := bucket.limiter.Reserve()
	if !res.OK() {
		return fault.New(fault.KindRateLimited, "request rate exceeded")
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		if rl.metrics != nil {
			rl.metrics.RateLimitRejections.WithLabelValues(p.Role.String()).Inc()
		}
		rl.auditor.Log(ctx, audit.NewEvent(audit.EventRateLimited).
			WithSeverity(audit.SeverityMedium).
			WithPrincipal(p.ID).
			WithResult(audit.ResultDenied).
			WithDescription("request rate exceeded").
			WithAttribute("retry_after_ms", delay.Milliseconds()))
		return fault.New(fault.KindRateLimited, "request rate exceeded").
			WithRetryAfter(delay)
	}
	return nil
}

func (rl *RateLimiter) bucket(principalID string) *principalBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[principalID]
	if !ok {
		limit := rate.Limit(float64(rl.cfg.RequestsPerMinute) / 60.0)
		b = &principalBucket{limiter: rate.NewLimiter(limit, rl.cfg.Burst)}
		rl.buckets[principalID] = b
	}
	b.lastSeen = time.Now()
	return b
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.cfg.StaleAfter)
	for id, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, id)
		}
	}
}

// Stop terminates the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}
