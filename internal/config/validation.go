package config

import (
	"fmt"
	"net"
	"net/url"
)

// minJWTSecretBytes is the weakest secret accepted at startup.
const minJWTSecretBytes = 32

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Backend
	if c.Backend.BaseURL == "" {
		errs = append(errs, &ValidationError{
			Field:   "backend.base_url",
			Message: "backend base URL is required",
		})
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, &ValidationError{
			Field:   "backend.base_url",
			Message: fmt.Sprintf("invalid URL: %s", c.Backend.BaseURL),
		})
	}
	if c.Backend.TimeoutS < 1 {
		errs = append(errs, &ValidationError{
			Field:   "backend.timeout_s",
			Message: fmt.Sprintf("timeout must be >= 1 second, got %d", c.Backend.TimeoutS),
		})
	}
	if c.Backend.MaxRetries < 0 || c.Backend.MaxRetries > 10 {
		errs = append(errs, &ValidationError{
			Field:   "backend.max_retries",
			Message: fmt.Sprintf("max_retries must be in [0,10], got %d", c.Backend.MaxRetries),
		})
	}

	// Security
	if len(c.Security.JWTSecret) < minJWTSecretBytes {
		errs = append(errs, &ValidationError{
			Field:   "security.jwt_secret",
			Message: fmt.Sprintf("secret must be at least %d bytes", minJWTSecretBytes),
		})
	}
	if len(c.Security.Users) == 0 {
		errs = append(errs, &ValidationError{
			Field:   "security.users",
			Message: "at least one user is required",
		})
	}
	for i, u := range c.Security.Users {
		if u.ID == "" {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("security.users[%d].id", i),
				Message: "user id is required",
			})
		}
		switch u.Role {
		case RoleReadonly, RoleOperator, RoleAdmin, RoleSystem:
		default:
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("security.users[%d].role", i),
				Message: fmt.Sprintf("unknown role %q", u.Role),
			})
		}
		if u.Credential != "" && len(u.Credential) < 24 {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("security.users[%d].credential", i),
				Message: "API keys must be at least 24 bytes",
			})
		}
	}
	if c.Security.RequestsPerMinute < 1 {
		errs = append(errs, &ValidationError{
			Field:   "security.rate_limits.requests_per_minute",
			Message: fmt.Sprintf("must be >= 1, got %d", c.Security.RequestsPerMinute),
		})
	}
	if c.Security.Burst < 1 {
		errs = append(errs, &ValidationError{
			Field:   "security.rate_limits.burst",
			Message: fmt.Sprintf("must be >= 1, got %d", c.Security.Burst),
		})
	}
	switch c.Security.LockoutScope {
	case "credential", "source", "both":
	default:
		errs = append(errs, &ValidationError{
			Field:   "security.lockout_scope",
			Message: fmt.Sprintf("must be credential, source or both, got %q", c.Security.LockoutScope),
		})
	}
	for _, cidr := range append(append([]string{}, c.Security.AllowedIPs...), c.Security.BlockedIPs...) {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			if net.ParseIP(cidr) == nil {
				errs = append(errs, &ValidationError{
					Field:   "security.allowed_ips/blocked_ips",
					Message: fmt.Sprintf("invalid CIDR or IP: %s", cidr),
				})
			}
		}
	}

	// NLP
	if c.NLP.ConfidenceThreshold < 0 || c.NLP.ConfidenceThreshold > 1 {
		errs = append(errs, &ValidationError{
			Field:   "nlp.confidence_threshold",
			Message: fmt.Sprintf("must be in [0,1], got %v", c.NLP.ConfidenceThreshold),
		})
	}

	// Monitoring
	if c.Monitoring.AlertEvaluationIntervalS < 1 {
		errs = append(errs, &ValidationError{
			Field:   "monitoring.alert_evaluation_interval_s",
			Message: "must be >= 1 second",
		})
	}
	if c.Monitoring.AuditRingSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "monitoring.audit_ring_size",
			Message: "must be >= 1",
		})
	}

	// Protocol
	if c.Protocol.FrameMaxBytes < 1024 {
		errs = append(errs, &ValidationError{
			Field:   "protocol.frame_max_bytes",
			Message: fmt.Sprintf("must be >= 1024, got %d", c.Protocol.FrameMaxBytes),
		})
	}
	if c.Protocol.WorkerPoolSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "protocol.worker_pool_size",
			Message: "must be >= 1",
		})
	}
	if c.Protocol.QueueSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "protocol.queue_size",
			Message: "must be >= 1",
		})
	}

	return errs
}
