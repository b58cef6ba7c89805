package config

// DefaultNumeralLexicon is the kanji numeral coverage applied when the
// configuration does not override nlp.numeral_lexicon. ASCII and full-width
// digits are always handled by normalization regardless of this table.
func DefaultNumeralLexicon() map[string]int {
	return map[string]int{
		"〇": 0,
		"一": 1,
		"二": 2,
		"三": 3,
		"四": 4,
		"五": 5,
		"六": 6,
		"七": 7,
		"八": 8,
		"九": 9,
		"十": 10,
		"百": 100,
	}
}

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Backend defaults
	cfg.Backend.BaseURL = "http://localhost:8080"
	cfg.Backend.TimeoutS = 30
	cfg.Backend.MaxRetries = 3
	cfg.Backend.APIKey = ""

	// Security defaults
	cfg.Security.JWTSecret = ""
	cfg.Security.Users = nil
	cfg.Security.RequestsPerMinute = 60
	cfg.Security.Burst = 10
	cfg.Security.MaxFailedAttempts = 5
	cfg.Security.LockoutDurationMinutes = 15
	cfg.Security.LockoutWindowMinutes = 5
	cfg.Security.LockoutScope = "both"
	cfg.Security.AllowedIPs = nil
	cfg.Security.BlockedIPs = nil

	// NLP defaults
	cfg.NLP.ConfidenceThreshold = 0.7
	cfg.NLP.DefaultLanguage = "ja"
	cfg.NLP.NumeralLexicon = DefaultNumeralLexicon()

	// Monitoring defaults
	cfg.Monitoring.Enabled = true
	cfg.Monitoring.RetentionHours = 24
	cfg.Monitoring.AlertEvaluationIntervalS = 30
	cfg.Monitoring.AuditRingSize = 10000
	cfg.Monitoring.AlertRules = nil

	// Protocol defaults
	cfg.Protocol.FrameMaxBytes = 1 << 20
	cfg.Protocol.IdleTimeoutS = 600
	cfg.Protocol.WorkerPoolSize = 4
	cfg.Protocol.QueueSize = 64

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.AppLogPath = ""
	cfg.Logging.AuditLogPath = ""
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	return cfg
}
