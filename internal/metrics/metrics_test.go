package metrics

import (
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRegistryInstruments(t *testing.T) {
	r := NewRegistry()

	r.RPCRequestsTotal.WithLabelValues("tools/call", "success").Inc()
	r.RPCLatency.WithLabelValues("tools/call").Observe(0.05)
	r.ParseConfidence.Observe(0.9)
	r.BackendRequestsTotal.WithLabelValues("/takeoff", "503").Inc()
	r.BackendLatency.WithLabelValues("/takeoff").Observe(0.2)
	r.SecurityEventsTotal.WithLabelValues("auth_failed", "high").Inc()
	r.ActiveSessions.Set(1)
	r.RateLimitRejections.WithLabelValues("operator").Inc()

	families, err := r.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"rpc_requests_total",
		"rpc_latency_seconds",
		"nlp_parse_confidence",
		"backend_requests_total",
		"backend_latency_seconds",
		"security_events_total",
		"active_sessions",
		"rate_limit_rejections_total",
	} {
		if !names[want] {
			t.Errorf("missing instrument %s", want)
		}
	}
}

// Histogram invariants: sum >= 0, count >= largest cumulative bucket count,
// count monotonic in observations.
func TestHistogramInvariants(t *testing.T) {
	r := NewRegistry()

	for _, v := range []float64{0.1, 0.5, 0.9, 0.3} {
		r.ParseConfidence.Observe(v)
	}

	families, err := r.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var hist *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "nlp_parse_confidence" {
			hist = mf.GetMetric()[0].GetHistogram()
		}
	}
	if hist == nil {
		t.Fatal("nlp_parse_confidence not found")
	}

	if hist.GetSampleSum() < 0 {
		t.Errorf("sum must be >= 0, got %v", hist.GetSampleSum())
	}
	if hist.GetSampleCount() != 4 {
		t.Errorf("expected count 4, got %d", hist.GetSampleCount())
	}
	var maxBucket uint64
	for _, b := range hist.GetBucket() {
		if b.GetCumulativeCount() > maxBucket {
			maxBucket = b.GetCumulativeCount()
		}
	}
	if hist.GetSampleCount() < maxBucket {
		t.Errorf("count %d < max cumulative bucket %d", hist.GetSampleCount(), maxBucket)
	}
}

func TestTextExposition(t *testing.T) {
	r := NewRegistry()
	r.RPCRequestsTotal.WithLabelValues("initialize", "success").Inc()

	text, err := r.TextExposition()
	if err != nil {
		t.Fatalf("TextExposition failed: %v", err)
	}
	if !strings.Contains(text, "rpc_requests_total") {
		t.Fatalf("exposition missing counter:\n%s", text)
	}
	if !strings.Contains(text, `method="initialize"`) {
		t.Fatalf("exposition missing labels:\n%s", text)
	}
}

func TestJSONDump(t *testing.T) {
	r := NewRegistry()
	r.BackendRequestsTotal.WithLabelValues("/connect", "200").Inc()

	dump, err := r.JSONDump()
	if err != nil {
		t.Fatalf("JSONDump failed: %v", err)
	}

	var found bool
	for _, fd := range dump {
		if fd.Name == "backend_requests_total" {
			found = true
			if fd.Kind != "counter" {
				t.Errorf("expected counter kind, got %s", fd.Kind)
			}
			if len(fd.Samples) != 1 || fd.Samples[0].Value != 1 {
				t.Errorf("unexpected samples: %+v", fd.Samples)
			}
			if fd.Samples[0].Labels["endpoint"] != "/connect" {
				t.Errorf("unexpected labels: %+v", fd.Samples[0].Labels)
			}
		}
	}
	if !found {
		t.Fatal("backend_requests_total missing from dump")
	}
}

func TestAlertEvaluatorFiresAndResolves(t *testing.T) {
	r := NewRegistry()
	rules := []AlertRule{{
		Name:      "too_many_rejections",
		Metric:    "rate_limit_rejections_total",
		Threshold: 2,
		For:       10 * time.Second,
		Severity:  "high",
	}}
	e := NewAlertEvaluator(r, rules, time.Second)

	base := time.Now()

	// Below threshold: nothing pending.
	r.RateLimitRejections.WithLabelValues("operator").Add(2)
	e.EvaluateOnce(base)
	if len(e.ActiveAlerts()) != 0 {
		t.Fatal("alert fired below threshold")
	}

	// Above threshold but inside the For window: still pending.
	r.RateLimitRejections.WithLabelValues("operator").Inc()
	e.EvaluateOnce(base.Add(time.Second))
	if len(e.ActiveAlerts()) != 0 {
		t.Fatal("alert fired before For duration elapsed")
	}

	// Condition held past the window: fires.
	e.EvaluateOnce(base.Add(12 * time.Second))
	alerts := e.ActiveAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 firing alert, got %d", len(alerts))
	}
	if alerts[0].Rule != "too_many_rejections" || alerts[0].LastSeenValue != 3 {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}
}

func TestAlertEvaluatorGaugeResolution(t *testing.T) {
	r := NewRegistry()
	rules := []AlertRule{{
		Name:      "sessions_high",
		Metric:    "active_sessions",
		Threshold: 5,
		For:       0,
		Severity:  "low",
	}}
	e := NewAlertEvaluator(r, rules, time.Second)

	r.ActiveSessions.Set(10)
	e.EvaluateOnce(time.Now())
	if len(e.ActiveAlerts()) != 1 {
		t.Fatal("expected alert to fire immediately with For=0")
	}

	r.ActiveSessions.Set(1)
	e.EvaluateOnce(time.Now())
	if len(e.ActiveAlerts()) != 0 {
		t.Fatal("expected alert to auto-resolve when condition cleared")
	}
}
