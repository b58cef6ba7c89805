package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aerolink/drone-mcp/internal/audit"
	"github.com/aerolink/drone-mcp/internal/backend"
	"github.com/aerolink/drone-mcp/internal/config"
	"github.com/aerolink/drone-mcp/internal/executor"
	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/metrics"
	"github.com/aerolink/drone-mcp/internal/nlp"
	"github.com/aerolink/drone-mcp/internal/router"
	"github.com/aerolink/drone-mcp/internal/security"
)

// Session lifecycle. Tool and resource calls are accepted only while
// serving; shutdown switches to draining, in-flight work finishes, then the
// session closes.
const (
	stateCreated int32 = iota
	stateInitialized
	stateServing
	stateDraining
	stateClosed
)

type lifecycle struct {
	v atomic.Int32
}

func (l *lifecycle) get() int32  { return l.v.Load() }
func (l *lifecycle) set(s int32) { l.v.Store(s) }
func (l *lifecycle) name() string {
	switch l.v.Load() {
	case stateCreated:
		return "created"
	case stateInitialized:
		return "initialized"
	case stateServing:
		return "serving"
	case stateDraining:
		return "draining"
	default:
		return "closed"
	}
}

// Server is the protocol aggregate: it owns every sub-component and wires
// them unidirectionally. One Server serves one peer over one byte stream.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	auditor audit.Logger
	metrics *metrics.Registry
	alerts  *metrics.AlertEvaluator
	threats *security.ThreatAnalyzer
	auth    *security.Authenticator
	limiter *security.RateLimiter
	lockout *security.Lockout

	engine  atomic.Pointer[nlp.Engine]
	router  *router.Router
	exec    *executor.Executor
	backend backend.Client
	catalog *Catalog
	fleet   *fleetState

	in  io.Reader
	out io.Writer

	writeMu   sync.Mutex
	state     lifecycle
	startedAt time.Time

	sessionMu sync.RWMutex
	principal *security.Principal

	stats toolStats

	queue    chan *pendingRequest
	inflight sync.WaitGroup

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	lastActivity atomic.Int64
}

type pendingRequest struct {
	req *Request
}

// toolStats counts tool invocations for the system://status resource.
type toolStats struct {
	mu      sync.Mutex
	total   int64
	ok      int64
	failed  int64
	perTool map[string]int64
}

func (ts *toolStats) record(name string, success bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.perTool == nil {
		ts.perTool = make(map[string]int64)
	}
	ts.total++
	if success {
		ts.ok++
	} else {
		ts.failed++
	}
	ts.perTool[name]++
}

func (ts *toolStats) snapshot() map[string]interface{} {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	perTool := make(map[string]int64, len(ts.perTool))
	for name, n := range ts.perTool {
		perTool[name] = n
	}
	return map[string]interface{}{
		"total":     ts.total,
		"succeeded": ts.ok,
		"failed":    ts.failed,
		"per_tool":  perTool,
	}
}

// NewServer builds a fully wired server from configuration. The caller owns
// the byte streams; stdout must carry nothing but protocol frames.
func NewServer(cfg *config.Config, in io.Reader, out io.Writer, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	auditor, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Logging.AuditLogPath,
		RingSize:     cfg.Monitoring.AuditRingSize,
		MaxSize:      cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAge:       cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("creating audit logger: %w", err)
	}

	reg := metrics.NewRegistry()

	lockout := security.NewLockout(security.LockoutConfig{
		MaxFailures: cfg.Security.MaxFailedAttempts,
		Window:      time.Duration(cfg.Security.LockoutWindowMinutes) * time.Minute,
		Duration:    time.Duration(cfg.Security.LockoutDurationMinutes) * time.Minute,
		Scope:       security.LockoutScope(cfg.Security.LockoutScope),
	})
	auth, err := security.NewAuthenticator(cfg, lockout, auditor, reg)
	if err != nil {
		auditor.Close()
		return nil, fmt.Errorf("creating authenticator: %w", err)
	}
	limiter := security.NewRateLimiter(security.RateLimiterConfig{
		RequestsPerMinute: cfg.Security.RequestsPerMinute,
		Burst:             cfg.Security.Burst,
	}, auditor, reg)

	catalog, err := NewCatalog()
	if err != nil {
		auditor.Close()
		limiter.Stop()
		return nil, fmt.Errorf("building tool catalog: %w", err)
	}

	backendClient := backend.NewClient(cfg, reg, auditor)

	var rules []metrics.AlertRule
	for _, r := range cfg.Monitoring.AlertRules {
		rules = append(rules, metrics.AlertRule{
			Name:      r.Name,
			Metric:    r.Metric,
			Threshold: r.Threshold,
			For:       time.Duration(r.ForSeconds) * time.Second,
			Severity:  r.Severity,
		})
	}
	evalInterval := time.Duration(cfg.Monitoring.AlertEvaluationIntervalS) * time.Second

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		auditor:    auditor,
		metrics:    reg,
		alerts:     metrics.NewAlertEvaluator(reg, rules, evalInterval),
		threats:    security.NewThreatAnalyzer(auditor.Ring(), auditor, 30*time.Second),
		auth:       auth,
		limiter:    limiter,
		lockout:    lockout,
		router:     router.New(cfg),
		exec:       executor.New(cfg, backendClient, auditor),
		backend:    backendClient,
		catalog:    catalog,
		fleet:      newFleetState(),
		in:         in,
		out:        out,
		startedAt:  time.Now(),
		queue:      make(chan *pendingRequest, cfg.Protocol.QueueSize),
		shutdownCh: make(chan struct{}),
	}
	s.engine.Store(nlp.NewEngine(cfg, nil))
	return s, nil
}

// ApplyConfig applies the reloadable subset of a new configuration snapshot:
// the NLP threshold and lexicon, and the monitoring alert rules.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.engine.Store(nlp.NewEngine(cfg, nil))

	var rules []metrics.AlertRule
	for _, r := range cfg.Monitoring.AlertRules {
		rules = append(rules, metrics.AlertRule{
			Name:      r.Name,
			Metric:    r.Metric,
			Threshold: r.Threshold,
			For:       time.Duration(r.ForSeconds) * time.Second,
			Severity:  r.Severity,
		})
	}
	s.alerts.SetRules(rules)

	s.auditor.Log(context.Background(), audit.NewEvent(audit.EventConfigReload).
		WithResult(audit.ResultSuccess).
		WithDescription("reloadable configuration applied"))
}

// Serve runs the session until the peer disconnects, shutdown completes or
// the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.metrics.ActiveSessions.Set(1)
	defer s.metrics.ActiveSessions.Set(0)

	s.auditor.Log(ctx, audit.NewEvent(audit.EventSessionOpened).
		WithResult(audit.ResultSuccess).
		WithDescription("peer session opened"))
	defer func() {
		s.auditor.Log(context.Background(), audit.NewEvent(audit.EventSessionClosed).
			WithResult(audit.ResultSuccess).
			WithDescription("peer session closed"))
		s.auditor.Sync()
	}()

	if s.cfg.Monitoring.Enabled {
		s.alerts.Start()
		defer s.alerts.Stop()
		s.threats.Start(ctx)
		defer s.threats.Stop()
	}
	defer s.limiter.Stop()

	workers := s.cfg.Protocol.WorkerPoolSize
	if workers < 1 {
		workers = 4
	}
	var workerWG sync.WaitGroup
	for i := 0; i < workers; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			s.worker(ctx)
		}()
	}

	s.touch()
	if s.cfg.Protocol.IdleTimeoutS > 0 {
		go s.idleWatch(ctx)
	}

	readErr := s.readLoop(ctx)

	// Drain: in-flight requests finish, then workers stop.
	s.inflight.Wait()
	close(s.queue)
	workerWG.Wait()
	s.state.set(stateClosed)

	if readErr != nil && !errors.Is(readErr, io.EOF) {
		return readErr
	}
	return nil
}

// readLoop consumes newline-delimited frames until EOF, shutdown or
// cancellation.
func (s *Server) readLoop(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	maxFrame := s.cfg.Protocol.FrameMaxBytes
	if maxFrame < 1024 {
		maxFrame = 1 << 20
	}
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrame)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			case <-s.shutdownCh:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if errors.Is(err, bufio.ErrTooLong) {
						s.write(errorResponse(nil, fault.New(fault.KindParseError, "frame exceeds size limit")))
					}
					return err
				default:
					return nil
				}
			}
			s.touch()
			s.handleFrame(ctx, line)
		case <-s.shutdownCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleFrame parses and routes one inbound frame.
func (s *Server) handleFrame(ctx context.Context, frame []byte) {
	req, err := parseRequest(frame)
	if err != nil {
		s.metrics.RPCRequestsTotal.WithLabelValues("(malformed)", "error").Inc()
		s.write(errorResponse(nil, err))
		return
	}

	switch req.Method {
	case "initialize":
		s.respond(ctx, req, s.handleInitialize(ctx, req))
	case "notifications/initialized":
		// Handshake acknowledgment; no response for notifications.
	case "ping":
		s.respond(ctx, req, result(map[string]interface{}{}))
	case "shutdown":
		s.respond(ctx, req, s.handleShutdown(ctx, req))
	case "tools/list", "tools/call", "resources/list", "resources/read":
		s.enqueue(ctx, req)
	default:
		s.respond(ctx, req, outcome{err: fault.Newf(fault.KindMethodNotFound, "unknown method %q", req.Method)})
	}
}

// enqueue hands a request to the worker pool, rejecting immediately when the
// queue is full or the lifecycle forbids calls.
func (s *Server) enqueue(ctx context.Context, req *Request) {
	switch s.state.get() {
	case stateCreated, stateInitialized:
		s.respond(ctx, req, outcome{err: fault.New(fault.KindNotInitialized, "session not initialized")})
		return
	case stateDraining, stateClosed:
		s.respond(ctx, req, outcome{err: fault.New(fault.KindShuttingDown, "server is shutting down")})
		return
	}

	s.inflight.Add(1)
	select {
	case s.queue <- &pendingRequest{req: req}:
	default:
		s.inflight.Done()
		s.respond(ctx, req, outcome{err: fault.New(fault.KindOverloaded, "request queue full")})
	}
}

// worker drains the request queue.
func (s *Server) worker(ctx context.Context) {
	for pending := range s.queue {
		func() {
			defer s.inflight.Done()
			reqCtx := audit.WithCorrelationID(ctx, audit.GenerateCorrelationID())
			s.respond(reqCtx, pending.req, s.dispatch(reqCtx, pending.req))
		}()
	}
}

// outcome pairs a result with an error; exactly one is set.
type outcome struct {
	result interface{}
	err    error
}

func result(v interface{}) outcome { return outcome{result: v} }

// respond writes the response frame (if the request expects one) and records
// protocol metrics. Each request id is answered exactly once.
func (s *Server) respond(ctx context.Context, req *Request, out outcome) {
	status := "success"
	if out.err != nil {
		status = string(fault.KindOf(out.err))
	}
	s.metrics.RPCRequestsTotal.WithLabelValues(req.Method, status).Inc()

	if req.IsNotification() {
		return
	}
	if out.err != nil {
		s.write(errorResponse(req.ID, out.err))
		return
	}
	s.write(successResponse(req.ID, out.result))
}

// write emits one frame. Frames are newline-delimited and never interleaved.
func (s *Server) write(resp *Response) {
	encoded, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encoding response", zap.Error(err))
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(append(encoded, '\n')); err != nil {
		s.logger.Error("writing response", zap.Error(err))
	}
}

// dispatch serves pool-handled methods, timing them for the latency
// histogram.
func (s *Server) dispatch(ctx context.Context, req *Request) outcome {
	started := time.Now()
	defer func() {
		s.metrics.RPCLatency.WithLabelValues(req.Method).Observe(time.Since(started).Seconds())
	}()

	switch req.Method {
	case "tools/list":
		if _, err := s.requirePrincipal(ctx, req.Params, security.RoleReadonly); err != nil {
			return outcome{err: err}
		}
		return result(map[string]interface{}{"tools": s.catalog.List()})

	case "resources/list":
		if _, err := s.requirePrincipal(ctx, req.Params, resourceMinRole); err != nil {
			return outcome{err: err}
		}
		return result(map[string]interface{}{"resources": resourceDescriptors})

	case "resources/read":
		if _, err := s.requirePrincipal(ctx, req.Params, resourceMinRole); err != nil {
			return outcome{err: err}
		}
		var params struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
			return outcome{err: fault.New(fault.KindInvalidParams, "resources/read requires a uri")}
		}
		content, err := s.readResource(ctx, params.URI)
		if err != nil {
			return outcome{err: err}
		}
		return result(map[string]interface{}{"contents": []*resourceContent{content}})

	case "tools/call":
		out := s.handleToolCall(ctx, req)
		var named struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(req.Params, &named); err == nil && named.Name != "" {
			s.stats.record(named.Name, out.err == nil)
		}
		return out

	default:
		return outcome{err: fault.Newf(fault.KindMethodNotFound, "unknown method %q", req.Method)}
	}
}

// handleInitialize performs the handshake: optional credential material in
// params.auth becomes the session principal.
func (s *Server) handleInitialize(ctx context.Context, req *Request) outcome {
	if s.state.get() != stateCreated {
		return outcome{err: fault.New(fault.KindInvalidParams, "session already initialized")}
	}

	var params struct {
		ProtocolVersion string          `json:"protocol_version"`
		ClientInfo      json.RawMessage `json:"client_info"`
		Auth            *authMaterial   `json:"auth"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return outcome{err: fault.Wrap(fault.KindInvalidParams, "malformed initialize params", err)}
		}
	}

	if params.Auth != nil {
		principal, err := s.auth.Authenticate(ctx, security.Credentials{
			Token:  params.Auth.Token,
			APIKey: params.Auth.APIKey,
		}, params.Auth.SourceIP)
		if err != nil {
			return outcome{err: err}
		}
		s.sessionMu.Lock()
		s.principal = principal
		s.sessionMu.Unlock()
	}

	s.state.set(stateInitialized)
	s.state.set(stateServing)

	return result(map[string]interface{}{
		"protocol_version": "2024-11-05",
		"server_info": map[string]string{
			"name":    "drone-mcp",
			"version": "1.0.0",
		},
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
		},
		"tools":     s.catalog.List(),
		"resources": resourceDescriptors,
	})
}

// handleShutdown switches to draining and arranges for Serve to return once
// in-flight work completes.
func (s *Server) handleShutdown(ctx context.Context, req *Request) outcome {
	if s.state.get() == stateCreated {
		return outcome{err: fault.New(fault.KindNotInitialized, "session not initialized")}
	}
	s.state.set(stateDraining)
	s.auditor.Log(ctx, audit.NewEvent(audit.EventServerShutdown).
		WithResult(audit.ResultSuccess).
		WithDescription("shutdown requested"))

	s.shutdownOnce.Do(func() {
		go func() {
			s.inflight.Wait()
			close(s.shutdownCh)
		}()
	})
	return result(map[string]interface{}{"draining": true})
}

// authMaterial is the wire form of credentials in initialize params.auth and
// per-request params._auth.
type authMaterial struct {
	Token    string `json:"token,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	SourceIP string `json:"source_ip,omitempty"`
}

// requirePrincipal resolves the request's principal: per-request _auth
// overrides the session principal established at initialize. The principal
// must satisfy the minimum role.
func (s *Server) requirePrincipal(ctx context.Context, params json.RawMessage, min security.Role) (*security.Principal, error) {
	var principal *security.Principal

	if len(params) > 0 {
		var carrier struct {
			Auth *authMaterial `json:"_auth"`
		}
		if err := json.Unmarshal(params, &carrier); err == nil && carrier.Auth != nil {
			p, err := s.auth.Authenticate(ctx, security.Credentials{
				Token:  carrier.Auth.Token,
				APIKey: carrier.Auth.APIKey,
			}, carrier.Auth.SourceIP)
			if err != nil {
				return nil, err
			}
			principal = p
		}
	}

	if principal == nil {
		s.sessionMu.RLock()
		principal = s.principal
		s.sessionMu.RUnlock()
	}
	if principal == nil {
		return nil, fault.New(fault.KindUnauthorized, "no credentials presented")
	}
	if err := s.auth.Authorize(ctx, principal, min); err != nil {
		return nil, err
	}
	return principal, nil
}

// touch records request activity for the idle watchdog.
func (s *Server) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// idleWatch drains the session when no frame arrives within the idle
// timeout. In-flight commands are allowed to complete.
func (s *Server) idleWatch(ctx context.Context) {
	idle := time.Duration(s.cfg.Protocol.IdleTimeoutS) * time.Second
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			last := time.Unix(0, s.lastActivity.Load())
			if time.Since(last) < idle {
				continue
			}
			s.logger.Info("closing idle session", zap.Duration("idle", time.Since(last)))
			s.state.set(stateDraining)
			s.shutdownOnce.Do(func() {
				go func() {
					s.inflight.Wait()
					close(s.shutdownCh)
				}()
			})
			return
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		}
	}
}

// Close releases server resources after Serve returns.
func (s *Server) Close() error {
	s.limiter.Stop()
	s.threats.Stop()
	s.alerts.Stop()
	return s.auditor.Close()
}
