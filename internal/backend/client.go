// Package backend implements the HTTP client for the drone fleet API: path
// composition against a single base URL, bearer authentication, timeout
// handling and the mapping of HTTP statuses onto the error taxonomy.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aerolink/drone-mcp/internal/audit"
	"github.com/aerolink/drone-mcp/internal/config"
	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/metrics"
)

// maxResponseBytes bounds how much of a backend response is read.
const maxResponseBytes = 1 << 20

// Call describes one backend request. Endpoint is the metric label for the
// call family ("/takeoff"), distinct from Path which carries the drone id.
type Call struct {
	Method     string
	Path       string
	Endpoint   string
	Body       interface{}
	Timeout    time.Duration
	Idempotent bool
}

// Client issues calls against the drone fleet API.
type Client interface {
	// Do executes one call and returns the decoded JSON response body.
	Do(ctx context.Context, call Call) (json.RawMessage, error)

	// Status fetches the status of one drone.
	Status(ctx context.Context, droneID string) (*DroneStatus, error)

	// ListDrones fetches the status of the whole fleet.
	ListDrones(ctx context.Context) ([]DroneStatus, error)
}

type httpClient struct {
	baseURL    string
	apiKey     string
	defaultTTL time.Duration
	hc         *http.Client

	metrics *metrics.Registry
	auditor audit.Logger
}

// NewClient builds a client from configuration. The underlying http.Client
// carries no timeout of its own; every call runs under a context deadline.
func NewClient(cfg *config.Config, reg *metrics.Registry, auditor audit.Logger) Client {
	return &httpClient{
		baseURL:    strings.TrimRight(cfg.Backend.BaseURL, "/"),
		apiKey:     cfg.Backend.APIKey,
		defaultTTL: time.Duration(cfg.Backend.TimeoutS) * time.Second,
		hc:         &http.Client{},
		metrics:    reg,
		auditor:    auditor,
	}
}

func (c *httpClient) Do(ctx context.Context, call Call) (json.RawMessage, error) {
	ttl := call.Timeout
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	ctx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()

	var bodyReader io.Reader
	if call.Body != nil {
		encoded, err := json.Marshal(call.Body)
		if err != nil {
			return nil, fault.Wrap(fault.KindInternal, "encoding request body", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, c.baseURL+call.Path, bodyReader)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "building request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.hc.Do(req)
	elapsed := time.Since(started)

	if err != nil {
		c.observe(call.Endpoint, "error", elapsed)
		if ctx.Err() == context.DeadlineExceeded {
			fe := fault.Wrap(fault.KindTimedOut, "backend call deadline exceeded", err).
				WithRetryable(call.Idempotent)
			c.auditFailure(ctx, call, fe, elapsed)
			return nil, fe
		}
		if ctx.Err() == context.Canceled {
			fe := fault.Wrap(fault.KindCancelled, "backend call cancelled", err)
			c.auditFailure(ctx, call, fe, elapsed)
			return nil, fe
		}
		fe := fault.Wrap(fault.KindBackendUnavailable, "backend unreachable", err).
			WithRetryable(true)
		c.auditFailure(ctx, call, fe, elapsed)
		return nil, fe
	}
	defer resp.Body.Close()

	c.observe(call.Endpoint, strconv.Itoa(resp.StatusCode), elapsed)

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		fe := fault.Wrap(fault.KindBackendUnavailable, "reading backend response", err).
			WithRetryable(true)
		c.auditFailure(ctx, call, fe, elapsed)
		return nil, fe
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		c.auditor.Log(ctx, audit.NewEvent(audit.EventBackendCall).
			WithResult(audit.ResultSuccess).
			WithDescription(fmt.Sprintf("%s %s", call.Method, call.Path)).
			WithDuration(elapsed))
		if len(payload) == 0 {
			return json.RawMessage("null"), nil
		}
		return json.RawMessage(payload), nil
	}

	fe := statusFault(resp, payload)
	c.auditFailure(ctx, call, fe, elapsed)
	return nil, fe
}

// statusFault maps an HTTP failure status onto the taxonomy.
func statusFault(resp *http.Response, payload []byte) *fault.Error {
	detail := strings.TrimSpace(string(payload))
	if detail == "" {
		detail = resp.Status
	}
	if len(detail) > 200 {
		detail = detail[:200]
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return fault.New(fault.KindInvalidArgument, detail)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fault.New(fault.KindBackendAuthFailed, detail)
	case resp.StatusCode == http.StatusNotFound:
		return fault.New(fault.KindNotFound, detail)
	case resp.StatusCode == http.StatusConflict:
		return fault.New(fault.KindConflict, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		fe := fault.New(fault.KindRateLimited, detail).WithRetryable(true)
		if d := parseRetryAfter(resp.Header.Get("Retry-After")); d > 0 {
			fe = fe.WithRetryAfter(d)
		}
		return fe
	case resp.StatusCode >= 500:
		return fault.Newf(fault.KindBackendUnavailable, "backend returned %d: %s", resp.StatusCode, detail).
			WithRetryable(true)
	default:
		return fault.Newf(fault.KindInternal, "unexpected backend status %d: %s", resp.StatusCode, detail)
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func (c *httpClient) observe(endpoint, status string, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.BackendRequestsTotal.WithLabelValues(endpoint, status).Inc()
	c.metrics.BackendLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (c *httpClient) auditFailure(ctx context.Context, call Call, fe *fault.Error, elapsed time.Duration) {
	c.auditor.Log(ctx, audit.NewEvent(audit.EventBackendFailed).
		WithSeverity(audit.SeverityMedium).
		WithDescription(fmt.Sprintf("%s %s", call.Method, call.Path)).
		WithError(fe, string(fe.Kind)).
		WithDuration(elapsed))
}

func (c *httpClient) Status(ctx context.Context, droneID string) (*DroneStatus, error) {
	raw, err := c.Do(ctx, Call{
		Method:     http.MethodGet,
		Path:       "/drones/" + droneID,
		Endpoint:   "/drones/{id}",
		Idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	var status DroneStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "decoding drone status", err)
	}
	if status.DroneID == "" {
		status.DroneID = droneID
	}
	return &status, nil
}

func (c *httpClient) ListDrones(ctx context.Context) ([]DroneStatus, error) {
	raw, err := c.Do(ctx, Call{
		Method:     http.MethodGet,
		Path:       "/drones",
		Endpoint:   "/drones",
		Idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	var fleet struct {
		Drones []DroneStatus `json:"drones"`
	}
	if err := json.Unmarshal(raw, &fleet); err == nil && fleet.Drones != nil {
		return fleet.Drones, nil
	}
	var list []DroneStatus
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "decoding fleet status", err)
	}
	return list, nil
}
