package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aerolink/drone-mcp/internal/audit"
	"github.com/aerolink/drone-mcp/internal/config"
	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/metrics"
)

func testClient(t *testing.T, handler http.Handler) (Client, *metrics.Registry) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	auditor, err := audit.NewLogger(&audit.Config{RingSize: 100})
	if err != nil {
		t.Fatalf("creating audit logger: %v", err)
	}
	t.Cleanup(func() { auditor.Close() })

	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = srv.URL
	cfg.Backend.APIKey = "backend-key-0123456789abcdef"
	cfg.Backend.TimeoutS = 5

	reg := metrics.NewRegistry()
	return NewClient(cfg, reg, auditor), reg
}

func TestDoSendsBearerAndDecodes(t *testing.T) {
	var gotAuth, gotPath string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"connected":true}`))
	}))

	raw, err := client.Do(context.Background(), Call{
		Method:   http.MethodPost,
		Path:     "/drones/AA/connect",
		Endpoint: "/connect",
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if gotAuth != "Bearer backend-key-0123456789abcdef" {
		t.Errorf("missing bearer header, got %q", gotAuth)
	}
	if gotPath != "/drones/AA/connect" {
		t.Errorf("unexpected path %q", gotPath)
	}

	var body map[string]bool
	if err := json.Unmarshal(raw, &body); err != nil || !body["connected"] {
		t.Fatalf("unexpected response payload: %s", raw)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status    int
		kind      fault.Kind
		retryable bool
	}{
		{http.StatusBadRequest, fault.KindInvalidArgument, false},
		{http.StatusUnauthorized, fault.KindBackendAuthFailed, false},
		{http.StatusForbidden, fault.KindBackendAuthFailed, false},
		{http.StatusNotFound, fault.KindNotFound, false},
		{http.StatusConflict, fault.KindConflict, false},
		{http.StatusTooManyRequests, fault.KindRateLimited, true},
		{http.StatusInternalServerError, fault.KindBackendUnavailable, true},
		{http.StatusServiceUnavailable, fault.KindBackendUnavailable, true},
	}
	for _, tc := range cases {
		client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := client.Do(context.Background(), Call{Method: http.MethodPost, Path: "/drones/AA/takeoff", Endpoint: "/takeoff"})
		if fault.KindOf(err) != tc.kind {
			t.Errorf("status %d: expected %s, got %v", tc.status, tc.kind, err)
		}
		if fault.IsRetryable(err) != tc.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tc.status, fault.IsRetryable(err), tc.retryable)
		}
	}
}

func TestRetryAfterHeader(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.Do(context.Background(), Call{Method: http.MethodPost, Path: "/drones/AA/photo", Endpoint: "/photo"})
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Kind != fault.KindRateLimited {
		t.Fatalf("expected rate_limited, got %v", err)
	}
	if fe.RetryAfter != 3*time.Second {
		t.Fatalf("expected retry after 3s, got %v", fe.RetryAfter)
	}
}

func TestDeadlineMapsToTimedOut(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))

	_, err := client.Do(context.Background(), Call{
		Method:     http.MethodPost,
		Path:       "/drones/AA/land",
		Endpoint:   "/land",
		Timeout:    20 * time.Millisecond,
		Idempotent: true,
	})
	if fault.KindOf(err) != fault.KindTimedOut {
		t.Fatalf("expected timed_out, got %v", err)
	}
	if !fault.IsRetryable(err) {
		t.Fatal("idempotent timeout must be retryable")
	}
}

func TestTransportFailureRetryable(t *testing.T) {
	auditor, err := audit.NewLogger(&audit.Config{RingSize: 100})
	if err != nil {
		t.Fatalf("creating audit logger: %v", err)
	}
	t.Cleanup(func() { auditor.Close() })

	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = "http://127.0.0.1:1" // nothing listens here
	cfg.Backend.TimeoutS = 1
	client := NewClient(cfg, metrics.NewRegistry(), auditor)

	_, err = client.Do(context.Background(), Call{Method: http.MethodGet, Path: "/drones", Endpoint: "/drones"})
	if fault.KindOf(err) != fault.KindBackendUnavailable {
		t.Fatalf("expected backend_unavailable, got %v", err)
	}
	if !fault.IsRetryable(err) {
		t.Fatal("transport failure must be retryable")
	}
}

func TestMetricsObserved(t *testing.T) {
	client, reg := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	for i := 0; i < 3; i++ {
		client.Do(context.Background(), Call{Method: http.MethodPost, Path: "/drones/AA/takeoff", Endpoint: "/takeoff"})
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var observed uint64
	for _, mf := range families {
		if mf.GetName() != "backend_latency_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			observed += m.GetHistogram().GetSampleCount()
		}
	}
	if observed != 3 {
		t.Fatalf("expected 3 latency observations, got %d", observed)
	}
}

func TestStatusAndListDrones(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/drones/AA":
			w.Write([]byte(`{"drone_id":"AA","connected":true,"flying":false,"battery_percent":80}`))
		case "/drones":
			w.Write([]byte(`{"drones":[{"drone_id":"AA","connected":true},{"drone_id":"BB","connected":false}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	status, err := client.Status(context.Background(), "AA")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Connected || status.Flying || status.BatteryPercent != 80 {
		t.Fatalf("unexpected status: %+v", status)
	}

	fleet, err := client.ListDrones(context.Background())
	if err != nil {
		t.Fatalf("ListDrones failed: %v", err)
	}
	if len(fleet) != 2 || fleet[0].DroneID != "AA" || fleet[1].DroneID != "BB" {
		t.Fatalf("unexpected fleet: %+v", fleet)
	}
}
