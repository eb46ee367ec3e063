package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opticavillalba/authcore/pkg/jwtx"
	"github.com/opticavillalba/authcore/pkg/ratelimit"
	"github.com/opticavillalba/authcore/pkg/totpx"
)

// PlaceholderSecret is the value shipped in example env files. It is refused
// in production.
const PlaceholderSecret = "your-super-secret-jwt-key-change-in-production"

// MinSecretBytes is the shortest signing key accepted in production.
const MinSecretBytes = 32

// Limiter backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 5m)

	DatabaseFile  string // Path to SQLite database file (default: auth.db)
	PepperFile    string // Path to the password pepper, created when missing (default: pepper.key)
	MasterKeyPath string // Optional: key material for MFA secrets at rest

	JWTSecret     string        // Signing key, from AUTH_JWT_SECRET or AUTH_JWT_SECRET_FILE
	Issuer        string        // Token issuer (default: authcore)
	TokenTTL      time.Duration // Session lifetime (default: 30m)
	MFAIssuer     string        // Label shown in authenticator apps
	MFASkew       uint          // Accepted TOTP steps either side of now (default: 1)
	MFAReplayStop bool          // Reject reuse of an accepted TOTP step (default: true)

	LoginMaxAttempts int           // Failures allowed per window (default: 5)
	LoginWindow      time.Duration // Sliding window length (default: 5m)
	LimiterBackend   string        // memory or postgres (default: memory)
	LimiterDSN       string        // Postgres DSN for the shared limiter

	TrustProxyHeaders bool          // Take the client address from X-Forwarded-For
	CORSOrigins       []string      // Allowed browser origins
	BootstrapToken    string        // Optional: token required to perform bootstrap
	AuditRetention    time.Duration // Age at which login attempts are purged; 0 keeps them (default: 90 days)
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 5*time.Minute),

		DatabaseFile:  getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:    getEnvOrDefault("AUTH_PEPPER_FILE", "pepper.key"),
		MasterKeyPath: os.Getenv("AUTH_MASTER_KEY_PATH"),

		JWTSecret:     os.Getenv("AUTH_JWT_SECRET"),
		Issuer:        getEnvOrDefault("AUTH_ISSUER", "authcore"),
		TokenTTL:      getEnvDurationOrDefault("AUTH_TOKEN_TTL", jwtx.DefaultSessionTTL),
		MFAIssuer:     getEnvOrDefault("AUTH_MFA_ISSUER", "Óptica Villalba Admin"),
		MFASkew:       uint(getEnvIntOrDefault("AUTH_MFA_SKEW", totpx.DefaultSkew)),
		MFAReplayStop: getEnvBoolOrDefault("AUTH_MFA_REPLAY_PROTECTION", true),

		LoginMaxAttempts: getEnvIntOrDefault("LOGIN_MAX_ATTEMPTS", ratelimit.DefaultLimit),
		LoginWindow:      getEnvDurationOrDefault("LOGIN_WINDOW", ratelimit.DefaultWindow),
		LimiterBackend:   strings.ToLower(getEnvOrDefault("RATELIMIT_BACKEND", BackendMemory)),
		LimiterDSN:       os.Getenv("RATELIMIT_POSTGRES_DSN"),

		TrustProxyHeaders: getEnvBoolOrDefault("TRUST_PROXY_HEADERS", false),
		CORSOrigins:       splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		BootstrapToken:    os.Getenv("BOOTSTRAP_TOKEN"),
		AuditRetention:    getEnvDurationOrDefault("AUDIT_RETENTION", 90*24*time.Hour),
	}

	if path := os.Getenv("AUTH_JWT_SECRET_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read AUTH_JWT_SECRET_FILE: %w", err)
		}
		cfg.JWTSecret = strings.TrimSpace(string(data))
	}

	return cfg, nil
}

// IsProd reports whether production rules apply.
func (c Config) IsProd() bool {
	return c.Env == "prod" || c.Env == "production"
}

// Validate checks the configuration. Production refuses a missing, placeholder
// or short signing key; other environments get an ephemeral key instead.
func (c Config) Validate() error {
	var errs []error

	if c.IsProd() {
		switch {
		case c.JWTSecret == "":
			errs = append(errs, errors.New("AUTH_JWT_SECRET is required in production"))
		case c.JWTSecret == PlaceholderSecret:
			errs = append(errs, errors.New("AUTH_JWT_SECRET still holds the placeholder value"))
		case len(c.JWTSecret) < MinSecretBytes:
			errs = append(errs, fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes", MinSecretBytes))
		}
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL must be positive"))
	}
	if c.MFASkew > 10 {
		errs = append(errs, fmt.Errorf("AUTH_MFA_SKEW %d is out of range", c.MFASkew))
	}
	if c.LoginMaxAttempts <= 0 {
		errs = append(errs, errors.New("LOGIN_MAX_ATTEMPTS must be positive"))
	}
	if c.LoginWindow <= 0 {
		errs = append(errs, errors.New("LOGIN_WINDOW must be positive"))
	}
	if c.AuditRetention < 0 {
		errs = append(errs, errors.New("AUDIT_RETENTION must not be negative"))
	}

	switch c.LimiterBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.LimiterDSN == "" {
			errs = append(errs, errors.New("RATELIMIT_POSTGRES_DSN is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RATELIMIT_BACKEND %q", c.LimiterBackend))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
