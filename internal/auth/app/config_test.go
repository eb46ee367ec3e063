package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Env:              "dev",
		Port:             8080,
		TokenTTL:         30 * time.Minute,
		MFASkew:          1,
		LoginMaxAttempts: 5,
		LoginWindow:      5 * time.Minute,
		LimiterBackend:   BackendMemory,
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"ENV", "PORT", "AUTH_JWT_SECRET", "AUTH_JWT_SECRET_FILE", "AUTH_TOKEN_TTL",
		"LOGIN_MAX_ATTEMPTS", "LOGIN_WINDOW", "RATELIMIT_BACKEND", "AUTH_MFA_ISSUER",
		"AUTH_MFA_REPLAY_PROTECTION", "CORS_ALLOWED_ORIGINS", "AUDIT_RETENTION",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 30*time.Minute, cfg.TokenTTL)
	require.Equal(t, 5, cfg.LoginMaxAttempts)
	require.Equal(t, 300*time.Second, cfg.LoginWindow)
	require.Equal(t, BackendMemory, cfg.LimiterBackend)
	require.Equal(t, "Óptica Villalba Admin", cfg.MFAIssuer)
	require.True(t, cfg.MFAReplayStop)
	require.Equal(t, 2160*time.Hour, cfg.AuditRetention)
	require.Empty(t, cfg.CORSOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "jwt.key")
	require.NoError(t, os.WriteFile(secretFile, []byte(strings.Repeat("x", 40)+"\n"), 0600))

	t.Setenv("AUTH_JWT_SECRET", "ignored")
	t.Setenv("AUTH_JWT_SECRET_FILE", secretFile)
	t.Setenv("LOGIN_WINDOW", "120")
	t.Setenv("AUTH_MFA_REPLAY_PROTECTION", "false")
	t.Setenv("RATELIMIT_BACKEND", "Postgres")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.example.com, ,https://ops.example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("x", 40), cfg.JWTSecret)
	require.Equal(t, 2*time.Minute, cfg.LoginWindow)
	require.False(t, cfg.MFAReplayStop)
	require.Equal(t, BackendPostgres, cfg.LimiterBackend)
	require.Equal(t, []string{"https://admin.example.com", "https://ops.example.com"}, cfg.CORSOrigins)
}

func TestLoadConfigMissingSecretFile(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET_FILE", filepath.Join(t.TempDir(), "absent"))
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "dev without secret", mutate: func(*Config) {}},
		{
			name:    "prod without secret",
			mutate:  func(c *Config) { c.Env = "prod" },
			wantErr: "required in production",
		},
		{
			name: "prod with placeholder",
			mutate: func(c *Config) {
				c.Env = "prod"
				c.JWTSecret = PlaceholderSecret
			},
			wantErr: "placeholder",
		},
		{
			name: "prod with short secret",
			mutate: func(c *Config) {
				c.Env = "prod"
				c.JWTSecret = "short"
			},
			wantErr: "at least 32 bytes",
		},
		{
			name: "prod with strong secret",
			mutate: func(c *Config) {
				c.Env = "prod"
				c.JWTSecret = strings.Repeat("z", 32)
			},
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.LimiterBackend = BackendPostgres },
			wantErr: "RATELIMIT_POSTGRES_DSN",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.LimiterBackend = "redis" },
			wantErr: "unknown RATELIMIT_BACKEND",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.LoginMaxAttempts = 0 },
			wantErr: "LOGIN_MAX_ATTEMPTS",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Port = 70000 },
			wantErr: "PORT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
