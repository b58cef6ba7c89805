package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://localhost:8080", cfg.Backend.BaseURL)
	assert.Equal(t, 30, cfg.Backend.TimeoutS)
	assert.Equal(t, 3, cfg.Backend.MaxRetries)
	assert.Equal(t, 0.7, cfg.NLP.ConfidenceThreshold)
	assert.Equal(t, "both", cfg.Security.LockoutScope)
	assert.Equal(t, 10000, cfg.Monitoring.AuditRingSize)
	assert.Equal(t, 4, cfg.Protocol.WorkerPoolSize)
	assert.Equal(t, 10, cfg.NLP.NumeralLexicon["十"])
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
backend:
  base_url: http://fleet.internal:9000
  timeout_s: 10
security:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  users:
    - id: ops
      role: operator
      credential: "operator-key-000000000000001"
nlp:
  confidence_threshold: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	mgr, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, "http://fleet.internal:9000", cfg.Backend.BaseURL)
	assert.Equal(t, 10, cfg.Backend.TimeoutS)
	assert.Equal(t, 0.8, cfg.NLP.ConfidenceThreshold)
	require.Len(t, cfg.Security.Users, 1)
	assert.Equal(t, "ops", cfg.Security.Users[0].ID)
	assert.Equal(t, "operator", cfg.Security.Users[0].Role)

	// Unset sections keep their defaults.
	assert.Equal(t, 60, cfg.Security.RequestsPerMinute)
	assert.Equal(t, 1<<20, cfg.Protocol.FrameMaxBytes)

	require.NoError(t, mgr.Validate(context.Background()))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	mgr, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, "http://localhost:8080", cfg.Backend.BaseURL)
}

func TestValidateRejectsWeakSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.JWTSecret = "short"
	cfg.Security.Users = []User{{ID: "u", Role: RoleOperator}}

	errs := cfg.Validate()
	require.NotEmpty(t, errs)

	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "security.jwt_secret") {
			found = true
		}
	}
	assert.True(t, found, "expected jwt_secret validation error, got %v", errs)
}

func TestValidateRejectsMissingUsers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.JWTSecret = strings.Repeat("x", 32)

	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "security.users")
}

func TestValidateRejectsBadRole(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.JWTSecret = strings.Repeat("x", 32)
	cfg.Security.Users = []User{{ID: "u", Role: "superuser"}}

	errs := cfg.Validate()
	require.NotEmpty(t, errs)

	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "unknown role") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateRejectsShortAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.JWTSecret = strings.Repeat("x", 32)
	cfg.Security.Users = []User{{ID: "u", Role: RoleOperator, Credential: "tiny"}}

	errs := cfg.Validate()
	require.NotEmpty(t, errs)

	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "24 bytes") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateCIDRs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.JWTSecret = strings.Repeat("x", 32)
	cfg.Security.Users = []User{{ID: "u", Role: RoleOperator}}
	cfg.Security.AllowedIPs = []string{"10.0.0.0/8", "192.168.1.7"}

	assert.Empty(t, cfg.Validate())

	cfg.Security.BlockedIPs = []string{"not-an-ip"}
	assert.NotEmpty(t, cfg.Validate())
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DRONE_API_KEY", "env-injected-key")

	mgr, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))

	assert.Equal(t, "env-injected-key", mgr.Get(context.Background()).Backend.APIKey)
}
