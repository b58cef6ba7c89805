package config

import "context"

// Package config provides configuration management for the drone MCP gateway.
//
// Responsibilities:
//   - Load configuration from a YAML file and environment variables
//   - Validate configuration on startup (fail fast on weak secrets)
//   - Provide runtime access to all configuration
//   - Support configuration reloading for a small set of tunables
//   - Manage sensitive data (backend API key, JWT secret, user credentials)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (DRONEMCP_* prefix)
//   2. YAML config file (default: /etc/dronemcp/config.yaml)
//   3. Built-in defaults
//
// Only nlp.confidence_threshold and the monitoring section are applied on
// reload; security and protocol settings require a restart.

// Role names accepted in security.users[*].role. The total order over roles
// lives in the security package; these strings are the configuration surface.
const (
	RoleReadonly = "readonly"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
	RoleSystem   = "system"
)

// User declares a static principal known to the gateway.
type User struct {
	ID   string `mapstructure:"id"`
	Role string `mapstructure:"role"`
	// Credential is an opaque API key (>= 24 bytes). JWT principals are
	// validated against security.jwt_secret instead and need no entry here.
	Credential string `mapstructure:"credential"`
	// ExpiresAt is an optional RFC 3339 expiry for the credential.
	ExpiresAt string `mapstructure:"expires_at"`
	// AllowedIPs optionally restricts the principal to source addresses.
	AllowedIPs []string `mapstructure:"allowed_ips"`
}

// AlertRule declares a threshold alert evaluated by the monitoring core.
type AlertRule struct {
	Name      string  `mapstructure:"name"`
	Metric    string  `mapstructure:"metric"`
	Threshold float64 `mapstructure:"threshold"`
	// ForSeconds is how long the condition must hold before the rule fires.
	ForSeconds int    `mapstructure:"for_seconds"`
	Severity   string `mapstructure:"severity"`
}

// Config contains all configuration fields.
type Config struct {
	// Backend drone fleet API
	Backend struct {
		BaseURL    string
		TimeoutS   int
		MaxRetries int
		APIKey     string
	}

	// Security core
	Security struct {
		JWTSecret              string
		Users                  []User
		RequestsPerMinute      int
		Burst                  int
		MaxFailedAttempts      int
		LockoutDurationMinutes int
		LockoutWindowMinutes   int
		// LockoutScope selects failed-attempt tracking: "credential",
		// "source" or "both".
		LockoutScope string
		AllowedIPs   []string
		BlockedIPs   []string
	}

	// NLP engine
	NLP struct {
		ConfidenceThreshold float64
		DefaultLanguage     string
		// NumeralLexicon maps kanji numeral runes to digit values. Populated
		// from defaults when empty; fully overridable from configuration.
		NumeralLexicon map[string]int
	}

	// Monitoring core
	Monitoring struct {
		Enabled                  bool
		RetentionHours           int
		AlertEvaluationIntervalS int
		AuditRingSize            int
		AlertRules               []AlertRule
	}

	// Protocol server
	Protocol struct {
		FrameMaxBytes  int
		IdleTimeoutS   int
		WorkerPoolSize int
		QueueSize      int
	}

	// Logging
	Logging struct {
		Level        string
		AppLogPath   string
		AuditLogPath string
		MaxSizeMB    int
		MaxBackups   int
		MaxAgeDays   int
		Compress     bool
	}
}

// Manager defines the interface for configuration access.
type Manager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and delivers updated snapshots.
	Watch(ctx context.Context) <-chan Config

	// Reload re-reads configuration from sources.
	Reload(ctx context.Context) error
}

// NewManager creates a new configuration manager.
func NewManager(configPath string) (Manager, error) {
	mgr := &viperManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewManagerWithDefaults creates a config manager with the default file path.
func NewManagerWithDefaults() (Manager, error) {
	return NewManager("/etc/dronemcp/config.yaml")
}
