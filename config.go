package goAuthClient

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by LoadConfigFromEnv.
const EnvPrefix = "GOAUTH_CLIENT_"

// Config is the Manager configuration. Obtain defaults from DefaultConfig,
// adjust, and pass to Builder.WithConfig.
type Config struct {
	Backend BackendConfig `envPrefix:"BACKEND_"`
	Storage StorageConfig `envPrefix:"STORAGE_"`
	Routes  RoutesConfig  `envPrefix:"ROUTES_"`
	Refresh RefreshConfig `envPrefix:"REFRESH_"`
	Audit   AuditConfig   `envPrefix:"AUDIT_"`
	Metrics MetricsConfig `envPrefix:"METRICS_"`
	Logging LoggingConfig `envPrefix:"LOG_"`
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig configures the HTTP backend client.
type BackendConfig struct {
	BaseURL string `env:"BASE_URL"`
	// Timeout bounds every backend call. A timeout maps to ErrNetwork.
	Timeout time.Duration `env:"TIMEOUT"`
	// LogoutTimeout bounds the background logout notify.
	LogoutTimeout time.Duration `env:"LOGOUT_TIMEOUT"`
	UserAgent     string        `env:"USER_AGENT"`
	Paths         BackendPaths  `envPrefix:"PATH_"`
}

// BackendPaths are the endpoint paths relative to BaseURL.
type BackendPaths struct {
	CurrentUser    string `env:"CURRENT_USER"`
	Login          string `env:"LOGIN"`
	Register       string `env:"REGISTER"`
	Logout         string `env:"LOGOUT"`
	Refresh        string `env:"REFRESH"`
	VerifyEmail    string `env:"VERIFY_EMAIL"`
	ForgotPassword string `env:"FORGOT_PASSWORD"`
	ResetPassword  string `env:"RESET_PASSWORD"`
	ChangePassword string `env:"CHANGE_PASSWORD"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig selects and configures the token store used by the
// executables. Library users inject a store.Store directly.
type StorageConfig struct {
	Driver      string        `env:"DRIVER"` // "memory", "file" (default) or "redis"
	FilePath    string        `env:"FILE_PATH"`
	RedisAddr   string        `env:"REDIS_ADDR"`
	RedisPrefix string        `env:"REDIS_PREFIX"`
	RedisTTL    time.Duration `env:"REDIS_TTL"`
	AccessKey   string        `env:"ACCESS_KEY"`
	RefreshKey  string        `env:"REFRESH_KEY"`
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig resolves navigation intents to paths.
type RoutesConfig struct {
	Landing      string `env:"LANDING"`
	Home         string `env:"HOME"`
	Login        string `env:"LOGIN"`
	Unauthorized string `env:"UNAUTHORIZED"`
}

// RefreshConfig controls proactive refresh in AccessToken.
type RefreshConfig struct {
	Proactive bool `env:"PROACTIVE"`
	// Leeway is how close to exp a JWT access token must be before
	// AccessToken refreshes it first.
	Leeway time.Duration `env:"LEEWAY"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

// LoggingConfig controls NewLogger.
type LoggingConfig struct {
	Level  string `env:"LEVEL"`  // debug, info, warn, error
	Format string `env:"FORMAT"` // text or json
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:       "http://localhost:8000",
			Timeout:       10 * time.Second,
			LogoutTimeout: 5 * time.Second,
			UserAgent:     "goauth-client",
			Paths: BackendPaths{
				CurrentUser:    "/auth/me",
				Login:          "/auth/login",
				Register:       "/auth/register",
				Logout:         "/auth/logout",
				Refresh:        "/auth/refresh",
				VerifyEmail:    "/auth/verify-email",
				ForgotPassword: "/auth/forgot-password",
				ResetPassword:  "/auth/reset-password",
				ChangePassword: "/auth/change-password",
			},
		},
		Storage: StorageConfig{
			Driver:      "file",
			FilePath:    "goauth-session.json",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "goauth-client",
			RedisTTL:    30 * 24 * time.Hour,
			AccessKey:   "access_token",
			RefreshKey:  "refresh_token",
		},
		Routes: RoutesConfig{
			Landing:      "/dashboard",
			Home:         "/",
			Login:        "/login",
			Unauthorized: "/unauthorized",
		},
		Refresh: RefreshConfig{
			Proactive: true,
			Leeway:    30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfigFromEnv overlays GOAUTH_CLIENT_* environment variables on
// DefaultConfig and validates the result.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the Manager cannot run with.
func (c *Config) Validate() error {
	// Backend
	if c.Backend.BaseURL == "" {
		return errors.New("Backend BaseURL must be set")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("Backend BaseURL must be an absolute http(s) URL")
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("Backend Timeout must be > 0")
	}
	if c.Backend.LogoutTimeout <= 0 {
		return errors.New("Backend LogoutTimeout must be > 0")
	}
	paths := map[string]string{
		"CurrentUser":    c.Backend.Paths.CurrentUser,
		"Login":          c.Backend.Paths.Login,
		"Register":       c.Backend.Paths.Register,
		"Logout":         c.Backend.Paths.Logout,
		"Refresh":        c.Backend.Paths.Refresh,
		"VerifyEmail":    c.Backend.Paths.VerifyEmail,
		"ForgotPassword": c.Backend.Paths.ForgotPassword,
		"ResetPassword":  c.Backend.Paths.ResetPassword,
		"ChangePassword": c.Backend.Paths.ChangePassword,
	}
	for name, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("Backend path %s must start with '/'", name)
		}
	}

	// Storage
	switch c.Storage.Driver {
	case "memory":
	case "file":
		if c.Storage.FilePath == "" {
			return errors.New("Storage FilePath must be set for the file driver")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return errors.New("Storage RedisAddr must be set for the redis driver")
		}
		if c.Storage.RedisTTL < 0 {
			return errors.New("Storage RedisTTL must be >= 0")
		}
	default:
		return errors.New("Storage Driver must be 'memory', 'file' or 'redis'")
	}
	if c.Storage.AccessKey == "" || c.Storage.RefreshKey == "" {
		return errors.New("Storage AccessKey and RefreshKey must be set")
	}
	if c.Storage.AccessKey == c.Storage.RefreshKey {
		return errors.New("Storage AccessKey and RefreshKey must differ")
	}

	// Routes
	for name, p := range map[string]string{
		"Landing":      c.Routes.Landing,
		"Home":         c.Routes.Home,
		"Login":        c.Routes.Login,
		"Unauthorized": c.Routes.Unauthorized,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("Routes %s must start with '/'", name)
		}
	}

	// Refresh
	if c.Refresh.Leeway < 0 {
		return errors.New("Refresh Leeway must be >= 0")
	}
	if c.Refresh.Leeway > 10*time.Minute {
		return errors.New("Refresh Leeway must be <= 10m")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.New("Logging Level must be debug, info, warn or error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return errors.New("Logging Format must be 'text' or 'json'")
	}

	return nil
}

// Path resolves a navigation target to its configured path.
func (r RoutesConfig) Path(target NavTarget) string {
	switch target {
	case NavLanding:
		return r.Landing
	case NavHome:
		return r.Home
	case NavLogin:
		return r.Login
	default:
		return ""
	}
}
