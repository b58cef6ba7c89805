package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Command events
	EventCommandStarted   EventType = "command.started"
	EventCommandSucceeded EventType = "command.succeeded"
	EventCommandFailed    EventType = "command.failed"
	EventCommandSkipped   EventType = "command.skipped"
	EventBatchStarted     EventType = "batch.started"
	EventBatchFinished    EventType = "batch.finished"

	// NLP events
	EventParseAccepted EventType = "nlp.parse_accepted"
	EventParseRejected EventType = "nlp.parse_rejected"

	// Security events
	EventAuthSucceeded      EventType = "security.auth_succeeded"
	EventAuthFailed         EventType = "security.auth_failed"
	EventAuthzDenied        EventType = "security.authz_denied"
	EventRateLimited        EventType = "security.rate_limited"
	EventLockout            EventType = "security.lockout"
	EventSanitizerRejected  EventType = "security.sanitizer_rejected"
	EventThreatSummary      EventType = "security.threat_summary"

	// Backend events
	EventBackendCall   EventType = "backend.call"
	EventBackendFailed EventType = "backend.call_failed"

	// System events
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
	EventSessionOpened  EventType = "system.session_opened"
	EventSessionClosed  EventType = "system.session_closed"
	EventConfigReload   EventType = "system.config_reload"
	EventInternalError  EventType = "system.internal_error"
)

// Severity grades the security relevance of an event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "med"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
	ResultDenied  Result = "denied"
)

// Event represents a single audit event
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	EventType     EventType `json:"event_type"`
	Severity      Severity  `json:"severity"`
	Result        Result    `json:"result"`

	// Actor information
	PrincipalID string `json:"principal_id,omitempty"`
	SourceIP    string `json:"source_ip,omitempty"`

	// Subject information
	DroneID string `json:"drone_id,omitempty"`
	Tool    string `json:"tool,omitempty"`

	Description string                 `json:"description,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`

	// Error information
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		Severity:   SeverityLow,
		Result:     ResultPending,
		Attributes: make(map[string]interface{}),
	}
}

// WithCorrelationID sets the correlation ID for event tracking
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithSeverity sets the security severity
func (e *Event) WithSeverity(s Severity) *Event {
	e.Severity = s
	return e
}

// WithPrincipal sets the principal that triggered the event
func (e *Event) WithPrincipal(id string) *Event {
	e.PrincipalID = id
	return e
}

// WithSourceIP sets the source address of the peer
func (e *Event) WithSourceIP(ip string) *Event {
	e.SourceIP = ip
	return e
}

// WithDrone sets the drone the event concerns
func (e *Event) WithDrone(id string) *Event {
	e.DroneID = id
	return e
}

// WithTool sets the tool being invoked
func (e *Event) WithTool(name string) *Event {
	e.Tool = name
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information
func (e *Event) WithError(err error, code string) *Event {
	if err != nil {
		e.Error = err.Error()
		e.ErrorCode = code
		e.Result = ResultFailure
	}
	return e
}

// WithDuration sets the duration in milliseconds
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

// WithAttribute adds structured context to the event
func (e *Event) WithAttribute(key string, value interface{}) *Event {
	e.Attributes[key] = value
	return e
}
