package metrics

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AlertRule declares a `metric > threshold for duration` condition.
type AlertRule struct {
	Name      string
	Metric    string
	Threshold float64
	For       time.Duration
	Severity  string
}

// Alert is a firing rule instance. Resolution is automatic when the
// condition clears.
type Alert struct {
	ID            string    `json:"id"`
	Rule          string    `json:"rule"`
	Metric        string    `json:"metric"`
	Severity      string    `json:"severity"`
	StartedAt     time.Time `json:"started_at"`
	LastSeenValue float64   `json:"last_seen_value"`
}

// ruleState tracks the evaluation state of one rule.
type ruleState struct {
	pendingSince time.Time
	active       *Alert
}

// AlertEvaluator evaluates alert rules against the registry at a fixed
// cadence.
type AlertEvaluator struct {
	registry *Registry
	interval time.Duration

	mu    sync.Mutex
	rules []AlertRule
	state map[string]*ruleState

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewAlertEvaluator creates an evaluator for the given rules.
func NewAlertEvaluator(registry *Registry, rules []AlertRule, interval time.Duration) *AlertEvaluator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	e := &AlertEvaluator{
		registry: registry,
		interval: interval,
		rules:    append([]AlertRule(nil), rules...),
		state:    make(map[string]*ruleState),
		stopCh:   make(chan struct{}),
	}
	for _, r := range e.rules {
		e.state[r.Name] = &ruleState{}
	}
	return e
}

// Start runs the evaluation loop until Stop is called.
func (e *AlertEvaluator) Start() {
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.EvaluateOnce(time.Now())
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the evaluation loop.
func (e *AlertEvaluator) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// SetRules replaces the rule set; state for removed rules is dropped.
func (e *AlertEvaluator) SetRules(rules []AlertRule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = append([]AlertRule(nil), rules...)
	next := make(map[string]*ruleState, len(rules))
	for _, r := range rules {
		if st, ok := e.state[r.Name]; ok {
			next[r.Name] = st
		} else {
			next[r.Name] = &ruleState{}
		}
	}
	e.state = next
}

// EvaluateOnce evaluates all rules against current metric values at now.
func (e *AlertEvaluator) EvaluateOnce(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range e.rules {
		st := e.state[rule.Name]
		value, found, err := e.registry.FamilyValue(rule.Metric)
		if err != nil || !found {
			continue
		}

		if value <= rule.Threshold {
			// Condition cleared: resolve and reset pending window.
			st.pendingSince = time.Time{}
			st.active = nil
			continue
		}

		if st.active != nil {
			st.active.LastSeenValue = value
			continue
		}

		if st.pendingSince.IsZero() {
			st.pendingSince = now
		}
		if now.Sub(st.pendingSince) >= rule.For {
			st.active = &Alert{
				ID:            uuid.NewString(),
				Rule:          rule.Name,
				Metric:        rule.Metric,
				Severity:      rule.Severity,
				StartedAt:     now,
				LastSeenValue: value,
			}
		}
	}
}

// ActiveAlerts returns currently firing alerts.
func (e *AlertEvaluator) ActiveAlerts() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Alert
	for _, rule := range e.rules {
		if st := e.state[rule.Name]; st != nil && st.active != nil {
			out = append(out, *st.active)
		}
	}
	return out
}
