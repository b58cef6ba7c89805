package security

import (
	"sync"
	"time"
)

// LockoutScope selects which keys accumulate failed authentication attempts.
type LockoutScope string

const (
	ScopeCredential LockoutScope = "credential"
	ScopeSource     LockoutScope = "source"
	ScopeBoth       LockoutScope = "both"
)

// LockoutConfig tunes the failed-authentication tracker.
type LockoutConfig struct {
	// MaxFailures within Window triggers a lockout of Duration.
	MaxFailures int
	Window      time.Duration
	Duration    time.Duration
	Scope       LockoutScope
}

type lockoutEntry struct {
	failures []time.Time
	until    time.Time
}

// Lockout tracks failed authentication attempts per credential and per source
// address and denies further attempts while a lockout is in effect.
type Lockout struct {
	cfg LockoutConfig

	mu      sync.Mutex
	entries map[string]*lockoutEntry
	now     func() time.Time
}

// NewLockout creates a tracker with the given policy.
func NewLockout(cfg LockoutConfig) *Lockout {
	if cfg.Scope == "" {
		cfg.Scope = ScopeBoth
	}
	return &Lockout{
		cfg:     cfg,
		entries: make(map[string]*lockoutEntry),
		now:     time.Now,
	}
}

func (l *Lockout) keys(credentialID, sourceIP string) []string {
	var keys []string
	if l.cfg.Scope == ScopeCredential || l.cfg.Scope == ScopeBoth {
		if credentialID != "" {
			keys = append(keys, "cred:"+credentialID)
		}
	}
	if l.cfg.Scope == ScopeSource || l.cfg.Scope == ScopeBoth {
		if sourceIP != "" {
			keys = append(keys, "src:"+sourceIP)
		}
	}
	return keys
}

// Locked reports whether either tracked key is currently locked out, and how
// long the lockout has left.
func (l *Lockout) Locked(credentialID, sourceIP string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var remaining time.Duration
	for _, key := range l.keys(credentialID, sourceIP) {
		e, ok := l.entries[key]
		if !ok {
			continue
		}
		if left := e.until.Sub(now); left > remaining {
			remaining = left
		}
	}
	return remaining > 0, remaining
}

// RecordFailure registers a failed attempt against the tracked keys and
// reports whether this attempt tripped a new lockout.
func (l *Lockout) RecordFailure(credentialID, sourceIP string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tripped := false
	for _, key := range l.keys(credentialID, sourceIP) {
		e, ok := l.entries[key]
		if !ok {
			e = &lockoutEntry{}
			l.entries[key] = e
		}

		// Drop failures outside the sliding window.
		cutoff := now.Add(-l.cfg.Window)
		kept := e.failures[:0]
		for _, ts := range e.failures {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		e.failures = append(kept, now)

		if len(e.failures) >= l.cfg.MaxFailures && now.After(e.until) {
			e.until = now.Add(l.cfg.Duration)
			e.failures = nil
			tripped = true
		}
	}
	return tripped
}

// RecordSuccess clears accumulated failures for the tracked keys. An active
// lockout is not cut short.
func (l *Lockout) RecordSuccess(credentialID, sourceIP string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, key := range l.keys(credentialID, sourceIP) {
		if e, ok := l.entries[key]; ok {
			e.failures = nil
		}
	}
}

// Sweep drops entries with no recent failures and no active lockout. Called
// periodically by the owner.
func (l *Lockout) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.cfg.Window)
	for key, e := range l.entries {
		if now.After(e.until) && latestFailure(e.failures).Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

func latestFailure(failures []time.Time) time.Time {
	if len(failures) == 0 {
		return time.Time{}
	}
	return failures[len(failures)-1]
}
