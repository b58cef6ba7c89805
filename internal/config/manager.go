package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperManager implements Manager using Viper.
type viperManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("DRONEMCP")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// Config file is optional; defaults plus env vars are a valid setup.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// use defaults
		} else if os.IsNotExist(err) {
			// use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and delivers updated snapshots.
func (m *viperManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload re-reads configuration from sources.
func (m *viperManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperManager) setDefaults() {
	defaults := DefaultConfig()

	// Backend defaults
	m.viper.SetDefault("backend.base_url", defaults.Backend.BaseURL)
	m.viper.SetDefault("backend.timeout_s", defaults.Backend.TimeoutS)
	m.viper.SetDefault("backend.max_retries", defaults.Backend.MaxRetries)
	m.viper.SetDefault("backend.api_key", defaults.Backend.APIKey)

	// Security defaults
	m.viper.SetDefault("security.jwt_secret", defaults.Security.JWTSecret)
	m.viper.SetDefault("security.rate_limits.requests_per_minute", defaults.Security.RequestsPerMinute)
	m.viper.SetDefault("security.rate_limits.burst", defaults.Security.Burst)
	m.viper.SetDefault("security.max_failed_attempts", defaults.Security.MaxFailedAttempts)
	m.viper.SetDefault("security.lockout_duration_minutes", defaults.Security.LockoutDurationMinutes)
	m.viper.SetDefault("security.lockout_window_minutes", defaults.Security.LockoutWindowMinutes)
	m.viper.SetDefault("security.lockout_scope", defaults.Security.LockoutScope)
	m.viper.SetDefault("security.allowed_ips", defaults.Security.AllowedIPs)
	m.viper.SetDefault("security.blocked_ips", defaults.Security.BlockedIPs)

	// NLP defaults
	m.viper.SetDefault("nlp.confidence_threshold", defaults.NLP.ConfidenceThreshold)
	m.viper.SetDefault("nlp.default_language", defaults.NLP.DefaultLanguage)

	// Monitoring defaults
	m.viper.SetDefault("monitoring.enabled", defaults.Monitoring.Enabled)
	m.viper.SetDefault("monitoring.retention_hours", defaults.Monitoring.RetentionHours)
	m.viper.SetDefault("monitoring.alert_evaluation_interval_s", defaults.Monitoring.AlertEvaluationIntervalS)
	m.viper.SetDefault("monitoring.audit_ring_size", defaults.Monitoring.AuditRingSize)

	// Protocol defaults
	m.viper.SetDefault("protocol.frame_max_bytes", defaults.Protocol.FrameMaxBytes)
	m.viper.SetDefault("protocol.idle_timeout_s", defaults.Protocol.IdleTimeoutS)
	m.viper.SetDefault("protocol.worker_pool_size", defaults.Protocol.WorkerPoolSize)
	m.viper.SetDefault("protocol.queue_size", defaults.Protocol.QueueSize)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.app_log_path", defaults.Logging.AppLogPath)
	m.viper.SetDefault("logging.audit_log_path", defaults.Logging.AuditLogPath)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// unmarshalConfig unmarshals viper config into the Config struct.
func (m *viperManager) unmarshalConfig() error {
	cfg := &Config{}

	// Backend
	cfg.Backend.BaseURL = m.viper.GetString("backend.base_url")
	cfg.Backend.TimeoutS = m.viper.GetInt("backend.timeout_s")
	cfg.Backend.MaxRetries = m.viper.GetInt("backend.max_retries")
	cfg.Backend.APIKey = m.viper.GetString("backend.api_key")

	// Security
	cfg.Security.JWTSecret = m.viper.GetString("security.jwt_secret")
	cfg.Security.RequestsPerMinute = m.viper.GetInt("security.rate_limits.requests_per_minute")
	cfg.Security.Burst = m.viper.GetInt("security.rate_limits.burst")
	cfg.Security.MaxFailedAttempts = m.viper.GetInt("security.max_failed_attempts")
	cfg.Security.LockoutDurationMinutes = m.viper.GetInt("security.lockout_duration_minutes")
	cfg.Security.LockoutWindowMinutes = m.viper.GetInt("security.lockout_window_minutes")
	cfg.Security.LockoutScope = m.viper.GetString("security.lockout_scope")
	cfg.Security.AllowedIPs = m.viper.GetStringSlice("security.allowed_ips")
	cfg.Security.BlockedIPs = m.viper.GetStringSlice("security.blocked_ips")
	if err := m.viper.UnmarshalKey("security.users", &cfg.Security.Users); err != nil {
		return fmt.Errorf("security.users: %w", err)
	}

	// NLP
	cfg.NLP.ConfidenceThreshold = m.viper.GetFloat64("nlp.confidence_threshold")
	cfg.NLP.DefaultLanguage = m.viper.GetString("nlp.default_language")
	if m.viper.IsSet("nlp.numeral_lexicon") {
		lex := map[string]int{}
		for k, v := range m.viper.GetStringMap("nlp.numeral_lexicon") {
			if n, ok := v.(int); ok {
				lex[k] = n
			}
		}
		cfg.NLP.NumeralLexicon = lex
	} else {
		cfg.NLP.NumeralLexicon = DefaultNumeralLexicon()
	}

	// Monitoring
	cfg.Monitoring.Enabled = m.viper.GetBool("monitoring.enabled")
	cfg.Monitoring.RetentionHours = m.viper.GetInt("monitoring.retention_hours")
	cfg.Monitoring.AlertEvaluationIntervalS = m.viper.GetInt("monitoring.alert_evaluation_interval_s")
	cfg.Monitoring.AuditRingSize = m.viper.GetInt("monitoring.audit_ring_size")
	if err := m.viper.UnmarshalKey("monitoring.alert_rules", &cfg.Monitoring.AlertRules); err != nil {
		return fmt.Errorf("monitoring.alert_rules: %w", err)
	}

	// Protocol
	cfg.Protocol.FrameMaxBytes = m.viper.GetInt("protocol.frame_max_bytes")
	cfg.Protocol.IdleTimeoutS = m.viper.GetInt("protocol.idle_timeout_s")
	cfg.Protocol.WorkerPoolSize = m.viper.GetInt("protocol.worker_pool_size")
	cfg.Protocol.QueueSize = m.viper.GetInt("protocol.queue_size")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive data.
func (m *viperManager) applyEnvOverrides() {
	if key := os.Getenv("DRONE_API_KEY"); key != "" {
		m.config.Backend.APIKey = key
	}
	if secret := os.Getenv("DRONEMCP_JWT_SECRET"); secret != "" {
		m.config.Security.JWTSecret = secret
	}
	if baseURL := os.Getenv("DRONE_API_BASE_URL"); baseURL != "" {
		m.config.Backend.BaseURL = baseURL
	}
}
