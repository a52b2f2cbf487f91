package core

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the fish store bot.
// It supports four-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Configuration file, JSON or YAML (via LoadConfig)
//  3. Environment variables
//  4. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithTelegramToken(os.Getenv("TELEGRAM_TOKEN")),
//	    WithStrapi("http://localhost:1337", token),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	Name    string `json:"name" yaml:"name" envconfig:"APP_NAME"`
	Workers int    `json:"workers" yaml:"workers" envconfig:"WORKERS"`

	// RedisURL switches the session store to Redis when set.
	RedisURL string `json:"redis_url" yaml:"redis_url" envconfig:"REDIS_URL"`

	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram" envconfig:"TELEGRAM"`
	Strapi    StrapiConfig    `json:"strapi" yaml:"strapi" envconfig:"STRAPI"`
	Session   SessionConfig   `json:"session" yaml:"session" envconfig:"SESSION"`
	Catalog   CatalogConfig   `json:"catalog" yaml:"catalog" envconfig:"CATALOG"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry" envconfig:"OTEL"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging" envconfig:"LOG"`
	HTTP      HTTPConfig      `json:"http" yaml:"http" envconfig:"HTTP"`
}

// TelegramConfig configures the Bot API connection.
type TelegramConfig struct {
	Token string `json:"token" yaml:"token" envconfig:"TOKEN"`
	// PollTimeout is the long-polling timeout in seconds.
	PollTimeout int  `json:"poll_timeout" yaml:"poll_timeout" envconfig:"POLL_TIMEOUT"`
	Debug       bool `json:"debug" yaml:"debug" envconfig:"DEBUG"`
}

// StrapiConfig points at the CMS. URL is the server root; "/api" is appended by the client.
type StrapiConfig struct {
	URL     string        `json:"url" yaml:"url" envconfig:"URL"`
	Token   string        `json:"token" yaml:"token" envconfig:"TOKEN"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" envconfig:"TIMEOUT"`
}

// SessionConfig controls conversation session lifetime.
type SessionConfig struct {
	TTL             time.Duration `json:"ttl" yaml:"ttl" envconfig:"TTL"`
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" envconfig:"CLEANUP_INTERVAL"`
}

// CatalogConfig controls product listing.
type CatalogConfig struct {
	PageSize int `json:"page_size" yaml:"page_size" envconfig:"PAGE_SIZE"`
}

// RateLimitConfig is the per-user token bucket applied to inbound updates.
// PerSecond <= 0 disables limiting.
type RateLimitConfig struct {
	PerSecond float64 `json:"per_second" yaml:"per_second" envconfig:"PER_SECOND"`
	Burst     int     `json:"burst" yaml:"burst" envconfig:"BURST"`
}

// TelemetryConfig contains OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled" envconfig:"ENABLED"`
	Exporter    string  `json:"exporter" yaml:"exporter" envconfig:"EXPORTER"` // otlp | stdout
	Endpoint    string  `json:"endpoint" yaml:"endpoint" envconfig:"EXPORTER_OTLP_ENDPOINT"`
	ServiceName string  `json:"service_name" yaml:"service_name" envconfig:"SERVICE_NAME"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate" envconfig:"SAMPLE_RATE"`
	Insecure    bool    `json:"insecure" yaml:"insecure" envconfig:"EXPORTER_OTLP_INSECURE"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" envconfig:"LEVEL"`
	Format string `json:"format" yaml:"format" envconfig:"FORMAT"` // json | text
}

// HTTPConfig configures the ops server that serves health endpoints.
type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr" envconfig:"ADDR"`
}

// Option is a functional option for configuring the bot
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "fish-store-bot",
		Workers: 8,
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		Strapi: StrapiConfig{
			URL:     "http://localhost:1337",
			Timeout: 10 * time.Second,
		},
		Session: SessionConfig{
			TTL:             24 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Catalog: CatalogConfig{
			PageSize: 6,
		},
		RateLimit: RateLimitConfig{
			PerSecond: 2,
			Burst:     5,
		},
		Telemetry: TelemetryConfig{
			Exporter:   "otlp",
			Endpoint:   "localhost:4317",
			SampleRate: 1.0,
			Insecure:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// LoadFromEnv overlays environment variables on the current values.
// Variables that are not set leave the corresponding field untouched.
func (c *Config) LoadFromEnv() error {
	if err := envconfig.Process("", c); err != nil {
		return &Error{
			Op:      "Config.LoadFromEnv",
			Kind:    KindConfig,
			Message: err.Error(),
			Err:     ErrInvalidConfiguration,
		}
	}
	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file.
//
// Example YAML:
//
//	strapi:
//	  url: http://cms:1337
//	  timeout: 5s
//	session:
//	  ttl: 12h
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- operator-supplied path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
//
// Validation rules:
//   - Telegram token, CMS URL and CMS token are required
//   - CMS URL must be an absolute http(s) URL
//   - Session TTL, page size and worker count must be positive
//   - Telemetry exporter must be otlp or stdout, otlp needs an endpoint
func (c *Config) Validate() error {
	invalid := func(msg string, sentinel error) error {
		return &Error{Op: "Config.Validate", Kind: KindConfig, Message: msg, Err: sentinel}
	}

	if c.Telegram.Token == "" {
		return invalid("telegram token is required (TELEGRAM_TOKEN)", ErrMissingConfiguration)
	}
	if c.Strapi.URL == "" {
		return invalid("CMS URL is required (STRAPI_URL)", ErrMissingConfiguration)
	}
	u, err := url.Parse(c.Strapi.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(fmt.Sprintf("invalid CMS URL: %q", c.Strapi.URL), ErrInvalidConfiguration)
	}
	if c.Strapi.Token == "" {
		return invalid("CMS token is required (STRAPI_TOKEN)", ErrMissingConfiguration)
	}
	if c.Strapi.Timeout <= 0 {
		return invalid("CMS timeout must be positive", ErrInvalidConfiguration)
	}
	if c.Session.TTL <= 0 {
		return invalid(fmt.Sprintf("invalid session TTL: %s", c.Session.TTL), ErrInvalidConfiguration)
	}
	if c.Catalog.PageSize < 1 || c.Catalog.PageSize > 100 {
		return invalid(fmt.Sprintf("invalid page size: %d", c.Catalog.PageSize), ErrInvalidConfiguration)
	}
	if c.Workers < 1 {
		return invalid(fmt.Sprintf("invalid worker count: %d", c.Workers), ErrInvalidConfiguration)
	}
	if c.RateLimit.PerSecond > 0 && c.RateLimit.Burst < 1 {
		return invalid("rate limit burst must be at least 1", ErrInvalidConfiguration)
	}
	if c.Telemetry.Enabled {
		switch strings.ToLower(c.Telemetry.Exporter) {
		case "stdout":
		case "otlp":
			if c.Telemetry.Endpoint == "" {
				return invalid("telemetry endpoint is required for the otlp exporter", ErrMissingConfiguration)
			}
		default:
			return invalid(fmt.Sprintf("unknown telemetry exporter: %q", c.Telemetry.Exporter), ErrInvalidConfiguration)
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return invalid(fmt.Sprintf("unknown log format: %q", c.Logging.Format), ErrInvalidConfiguration)
	}

	return nil
}

// Functional Options

// WithName sets the service name used in logs and traces.
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithTelegramToken sets the Bot API token.
func WithTelegramToken(token string) Option {
	return func(c *Config) error {
		c.Telegram.Token = token
		return nil
	}
}

// WithStrapi sets the CMS root URL and API token.
func WithStrapi(baseURL, token string) Option {
	return func(c *Config) error {
		c.Strapi.URL = strings.TrimRight(baseURL, "/")
		c.Strapi.Token = token
		return nil
	}
}

// WithRedisURL enables the Redis session store.
func WithRedisURL(redisURL string) Option {
	return func(c *Config) error {
		c.RedisURL = redisURL
		return nil
	}
}

// WithSessionTTL sets the inactivity timeout after which sessions are evicted.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl <= 0 {
			return &Error{
				Op:      "WithSessionTTL",
				Kind:    KindConfig,
				Message: fmt.Sprintf("invalid session TTL: %s", ttl),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.Session.TTL = ttl
		return nil
	}
}

// WithPageSize sets how many products are listed per catalog page.
func WithPageSize(size int) Option {
	return func(c *Config) error {
		c.Catalog.PageSize = size
		return nil
	}
}

// WithLogLevel sets the logging level.
// Valid levels: debug, info, warn, error
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the log output format (json or text).
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithTelemetry enables tracing with the given exporter and endpoint.
func WithTelemetry(enabled bool, exporter, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Exporter = exporter
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// NewConfig creates a new configuration without a config file.
// See LoadConfig for the order in which layers are applied.
func NewConfig(opts ...Option) (*Config, error) {
	return LoadConfig("", opts...)
}

// LoadConfig creates a new configuration.
// Configuration is applied in the following order:
//  1. Default values from DefaultConfig()
//  2. The file at path, when path is not empty
//  3. Environment variables via LoadFromEnv()
//  4. Functional options (highest priority)
//  5. Validation via Validate()
func LoadConfig(path string, opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
