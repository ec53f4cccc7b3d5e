// Package config provides application configuration management.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported environments.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// minSigningSecretLength is the shortest accepted cookie signing secret.
const minSigningSecretLength = 32

// Config defines the application configuration interface.
type Config interface {
	GetServerPort() string
	GetEnvironment() string
	GetLogLevel() slog.Level
	IsProduction() bool
}

// ServerConfig interface for server-specific configuration.
type ServerConfig interface {
	GetServerPort() string
	GetReadTimeout() time.Duration
	GetWriteTimeout() time.Duration
	GetIdleTimeout() time.Duration
	GetPublicBaseURL() string
}

// GatewayConfig interface for the login flow and its collaborators.
type GatewayConfig interface {
	GetSettingsFile() string
	GetPolicyFile() string
	GetProviderTimeout() time.Duration
	GetProfileCacheTTL() time.Duration
	GetClearDestinationOnUse() bool
}

// CookieConfig interface for cookie persistence settings.
type CookieConfig interface {
	GetCookieSigningSecret() string
	GetCookieSecure() bool
	GetCookieDomain() string
}

// RedisConfig interface for the optional redis backend.
type RedisConfig interface {
	GetRedisEnabled() bool
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type settings struct {
	ServerPort            string        `env:"SERVER_PORT" envDefault:"8080"`
	Environment           string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"info"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	PublicBaseURL         string        `env:"PUBLIC_BASE_URL"`
	SettingsFile          string        `env:"SETTINGS_FILE" envDefault:"config/settings.yaml"`
	PolicyFile            string        `env:"POLICY_FILE" envDefault:"config/policies.yaml"`
	ProviderTimeout       time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	ProfileCacheTTL       time.Duration `env:"PROFILE_CACHE_TTL" envDefault:"60s"`
	ClearDestinationOnUse bool          `env:"CLEAR_DESTINATION_ON_USE" envDefault:"false"`
	CookieSigningSecret   string        `env:"COOKIE_SIGNING_SECRET"`
	CookieSecure          bool          `env:"COOKIE_SECURE" envDefault:"false"`
	CookieDomain          string        `env:"COOKIE_DOMAIN"`
	RedisEnabled          bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisAddr             string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword         string        `env:"REDIS_PASSWORD"`
	RedisDB               int           `env:"REDIS_DB" envDefault:"0"`
	RateLimitEnabled      bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPerMinute    int           `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" envDefault:"60"`
	RateLimitCapacity     int           `env:"RATE_LIMIT_CACHE_CAPACITY" envDefault:"10000"`
	MetricsEnabled        bool          `env:"METRICS_ENABLED" envDefault:"true"`
	CORSAllowedOrigins    []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// AppConfig implements all configuration interfaces.
type AppConfig struct {
	s settings
}

// NewConfig creates a new configuration instance with default values
// and overrides from environment variables.
func NewConfig() (*AppConfig, error) {
	s, err := env.ParseAs[settings]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &AppConfig{s: s}, nil
}

// GetServerPort returns the server port configuration.
func (c *AppConfig) GetServerPort() string {
	return c.s.ServerPort
}

// GetEnvironment returns the application environment configuration.
func (c *AppConfig) GetEnvironment() string {
	return c.s.Environment
}

// GetLogLevel returns the parsed log level, falling back to info.
func (c *AppConfig) GetLogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// IsProduction returns true if the application is running in production environment.
func (c *AppConfig) IsProduction() bool {
	return c.s.Environment == EnvProduction
}

// GetReadTimeout returns the server read timeout configuration.
func (c *AppConfig) GetReadTimeout() time.Duration {
	return c.s.ReadTimeout
}

// GetWriteTimeout returns the server write timeout configuration.
func (c *AppConfig) GetWriteTimeout() time.Duration {
	return c.s.WriteTimeout
}

// GetIdleTimeout returns the server idle timeout configuration.
func (c *AppConfig) GetIdleTimeout() time.Duration {
	return c.s.IdleTimeout
}

// GetPublicBaseURL returns the externally visible base URL, without trailing slash.
// Empty means the callback URI is derived from each request.
func (c *AppConfig) GetPublicBaseURL() string {
	return strings.TrimRight(c.s.PublicBaseURL, "/")
}

// GetSettingsFile returns the path of the per-locale provider settings file.
func (c *AppConfig) GetSettingsFile() string {
	return c.s.SettingsFile
}

// GetPolicyFile returns the path of the resource policy file.
func (c *AppConfig) GetPolicyFile() string {
	return c.s.PolicyFile
}

// GetProviderTimeout returns the timeout for calls to the OAuth provider.
func (c *AppConfig) GetProviderTimeout() time.Duration {
	return c.s.ProviderTimeout
}

// GetProfileCacheTTL returns how long user profiles are cached. Zero disables caching.
func (c *AppConfig) GetProfileCacheTTL() time.Duration {
	return c.s.ProfileCacheTTL
}

// GetClearDestinationOnUse reports whether the destination cookie is expired
// once a visitor has been sent there.
func (c *AppConfig) GetClearDestinationOnUse() bool {
	return c.s.ClearDestinationOnUse
}

// GetCookieSigningSecret returns the HMAC secret for signed cookies, or empty.
func (c *AppConfig) GetCookieSigningSecret() string {
	return c.s.CookieSigningSecret
}

// GetCookieSecure reports whether cookies carry the Secure attribute.
func (c *AppConfig) GetCookieSecure() bool {
	return c.s.CookieSecure
}

// GetCookieDomain returns the cookie domain, empty for host-only cookies.
func (c *AppConfig) GetCookieDomain() string {
	return c.s.CookieDomain
}

// GetRedisEnabled reports whether redis backs the profile cache and rate limiter.
func (c *AppConfig) GetRedisEnabled() bool {
	return c.s.RedisEnabled
}

// GetRedisAddr returns the redis address.
func (c *AppConfig) GetRedisAddr() string {
	return c.s.RedisAddr
}

// GetRedisPassword returns the redis password.
func (c *AppConfig) GetRedisPassword() string {
	return c.s.RedisPassword
}

// GetRedisDB returns the redis database number.
func (c *AppConfig) GetRedisDB() int {
	return c.s.RedisDB
}

// GetRateLimitEnabled reports whether the login routes are rate limited.
func (c *AppConfig) GetRateLimitEnabled() bool {
	return c.s.RateLimitEnabled
}

// GetRateLimitRequestsPerMinute returns the per-client request budget.
func (c *AppConfig) GetRateLimitRequestsPerMinute() int {
	return c.s.RateLimitPerMinute
}

// GetRateLimitCacheCapacity returns how many in-memory limiters are kept.
func (c *AppConfig) GetRateLimitCacheCapacity() int {
	return c.s.RateLimitCapacity
}

// GetMetricsEnabled reports whether /metrics is served.
func (c *AppConfig) GetMetricsEnabled() bool {
	return c.s.MetricsEnabled
}

// GetCORSAllowedOrigins returns the origins allowed to call the JSON endpoints
// with credentials. Empty disables CORS.
func (c *AppConfig) GetCORSAllowedOrigins() []string {
	origins := make([]string, 0, len(c.s.CORSAllowedOrigins))
	for _, origin := range c.s.CORSAllowedOrigins {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// Validate checks if the configuration is valid.
func (c *AppConfig) Validate() error {
	if c.s.ServerPort == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	switch c.s.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("environment must be one of: development, staging, production")
	}

	if c.s.SettingsFile == "" {
		return fmt.Errorf("settings file cannot be empty")
	}

	if c.s.ProviderTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}

	if c.s.ProfileCacheTTL < 0 {
		return fmt.Errorf("profile cache TTL cannot be negative")
	}

	if secret := c.s.CookieSigningSecret; secret != "" && len(secret) < minSigningSecretLength {
		return fmt.Errorf("cookie signing secret must be at least %d characters long", minSigningSecretLength)
	}

	if c.s.PublicBaseURL != "" {
		u, err := url.Parse(c.s.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("public base URL must be an absolute URL")
		}
	}

	if c.s.RateLimitEnabled && c.s.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limit requests per minute must be positive")
	}

	for _, origin := range c.GetCORSAllowedOrigins() {
		if origin == "*" {
			return fmt.Errorf("CORS origins must be listed explicitly, credentials are sent")
		}
	}

	if c.IsProduction() && !c.s.CookieSecure {
		return fmt.Errorf("cookies must be secure in production")
	}

	return nil
}
