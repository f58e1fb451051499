package config

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Session storage strategies
const (
	StrategyCookie   = "cookie"
	StrategyPostgres = "postgres"
	StrategyRedis    = "redis"
)

const (
	devSessionSecret = "dev-secret-not-for-production-use"
	devAuthAPIURL    = "http://localhost:4000"
	minSecretLength  = 32
)

// Config holds application configuration
type Config struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string
	LogFormat   string

	AuthAPIURL     string
	AuthAPITimeout time.Duration // zero means no client-side timeout

	SessionSecret     string
	SessionStrategy   string
	SessionMaxAge     time.Duration
	SessionCookieName string
	RefreshBuffer     time.Duration
	RefreshDedup      bool

	DatabaseURL string
	RedisURL    string
	RabbitMQURL string

	AllowedOrigins  string
	StaticDir       string
	OpenAPISpecPath string

	// parseErrs collects malformed values so Validate can report them together.
	parseErrs []error
}

// Load loads configuration from environment variables and validates it.
// A .env file in the working directory is read first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	return cfg
}

// FromEnv reads the configuration without validating it.
func FromEnv() *Config {
	cfg := &Config{
		Port:              getEnv("PORT", "3000"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		AuthAPIURL:        getEnv("AUTH_API_URL", ""),
		SessionSecret:     getEnv("SESSION_SECRET", ""),
		SessionStrategy:   getEnv("SESSION_STRATEGY", StrategyCookie),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "aetheris.session-token"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		RabbitMQURL:       getEnv("RABBITMQ_URL", ""),
		AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		StaticDir:         getEnv("STATIC_DIR", "./web"),
		OpenAPISpecPath:   getEnv("OPENAPI_SPEC_PATH", "artifacts/openapi.yaml"),
	}

	cfg.AuthAPITimeout = cfg.duration("AUTH_API_TIMEOUT", 0)
	cfg.SessionMaxAge = cfg.duration("SESSION_MAX_AGE", 30*24*time.Hour)
	cfg.RefreshBuffer = cfg.duration("REFRESH_BUFFER", 30*time.Second)
	cfg.RefreshDedup = cfg.boolean("REFRESH_DEDUP", true)

	return cfg
}

// Validate checks configuration for security and correctness. Outside
// production, missing secrets and URLs get development defaults.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.parseErrs...)

	if c.IsProduction() {
		if c.SessionSecret == "" || c.SessionSecret == devSessionSecret {
			errs = append(errs, fmt.Errorf("SESSION_SECRET must be set to a strong random value in production"))
		} else if len(c.SessionSecret) < minSecretLength {
			errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d characters in production (got %d)", minSecretLength, len(c.SessionSecret)))
		}
		if c.AuthAPIURL == "" {
			errs = append(errs, fmt.Errorf("AUTH_API_URL must be set in production"))
		}
	} else {
		if c.SessionSecret == "" {
			c.SessionSecret = devSessionSecret
			slog.Warn("using default SESSION_SECRET for development")
		}
		if c.AuthAPIURL == "" {
			c.AuthAPIURL = devAuthAPIURL
		}
	}

	switch c.SessionStrategy {
	case StrategyCookie:
		if len(c.SessionSecret) < minSecretLength {
			errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d characters for the cookie session strategy", minSecretLength))
		}
	case StrategyPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for the postgres session strategy"))
		}
	case StrategyRedis:
		if c.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL is required for the redis session strategy"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_STRATEGY %q", c.SessionStrategy))
	}

	if c.SessionMaxAge <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_MAX_AGE must be positive"))
	}
	if c.RefreshBuffer < 0 {
		errs = append(errs, fmt.Errorf("REFRESH_BUFFER must not be negative"))
	}

	return errors.Join(errs...)
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

// duration accepts Go duration strings or a plain number of seconds.
func (c *Config) duration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return defaultValue
	}
	return d
}

func (c *Config) boolean(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s: invalid boolean %q", key, raw))
		return defaultValue
	}
	return b
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
