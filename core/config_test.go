package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validOptions returns the minimum options that make a config valid.
func validOptions() []Option {
	return []Option{
		WithTelegramToken("123:abc"),
		WithStrapi("http://localhost:1337", "cms-token"),
	}
}

// TestDefaultConfig verifies that DefaultConfig returns usable defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "fish-store-bot", cfg.Name)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "http://localhost:1337", cfg.Strapi.URL)
	assert.Equal(t, 10*time.Second, cfg.Strapi.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 6, cfg.Catalog.PageSize)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Empty(t, cfg.RedisURL)

	// Tokens are never defaulted
	assert.Error(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("STRAPI_URL", "https://cms.example.com")
	t.Setenv("STRAPI_TOKEN", "env-cms-token")
	t.Setenv("STRAPI_TIMEOUT", "3s")
	t.Setenv("SESSION_TTL", "45m")
	t.Setenv("CATALOG_PAGE_SIZE", "10")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER", "stdout")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "https://cms.example.com", cfg.Strapi.URL)
	assert.Equal(t, "env-cms-token", cfg.Strapi.Token)
	assert.Equal(t, 3*time.Second, cfg.Strapi.Timeout)
	assert.Equal(t, 45*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 10, cfg.Catalog.PageSize)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "stdout", cfg.Telemetry.Exporter)

	// Unset variables keep their defaults
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadFromEnv_InvalidValue(t *testing.T) {
	t.Setenv("SESSION_TTL", "forever")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bot.yaml")
		content := "strapi:\n  url: http://cms:1337\n  timeout: 5s\nsession:\n  ttl: 12h\ncatalog:\n  page_size: 4\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(path))
		assert.Equal(t, "http://cms:1337", cfg.Strapi.URL)
		assert.Equal(t, 5*time.Second, cfg.Strapi.Timeout)
		assert.Equal(t, 12*time.Hour, cfg.Session.TTL)
		assert.Equal(t, 4, cfg.Catalog.PageSize)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "bot.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"name":"from-json","workers":3}`), 0o600))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(path))
		assert.Equal(t, "from-json", cfg.Name)
		assert.Equal(t, 3, cfg.Workers)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.LoadFromFile(filepath.Join(dir, "bot.toml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yml")
		require.NoError(t, os.WriteFile(path, []byte("strapi: [unterminated"), 0o600))

		cfg := DefaultConfig()
		assert.ErrorIs(t, cfg.LoadFromFile(path), ErrInvalidConfiguration)
	})
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")
	content := "name: file-name\nworkers: 2\ncatalog:\n  page_size: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("WORKERS", "5")

	cfg, err := LoadConfig(path, append(validOptions(), WithPageSize(9))...)
	require.NoError(t, err)

	assert.Equal(t, "file-name", cfg.Name, "file overrides defaults")
	assert.Equal(t, 5, cfg.Workers, "env overrides file")
	assert.Equal(t, 9, cfg.Catalog.PageSize, "options override everything")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		sentinel error
	}{
		{"missing telegram token", func(c *Config) { c.Telegram.Token = "" }, ErrMissingConfiguration},
		{"missing CMS URL", func(c *Config) { c.Strapi.URL = "" }, ErrMissingConfiguration},
		{"relative CMS URL", func(c *Config) { c.Strapi.URL = "cms:1337" }, ErrInvalidConfiguration},
		{"missing CMS token", func(c *Config) { c.Strapi.Token = "" }, ErrMissingConfiguration},
		{"zero session TTL", func(c *Config) { c.Session.TTL = 0 }, ErrInvalidConfiguration},
		{"page size too large", func(c *Config) { c.Catalog.PageSize = 500 }, ErrInvalidConfiguration},
		{"no workers", func(c *Config) { c.Workers = 0 }, ErrInvalidConfiguration},
		{"burst without tokens", func(c *Config) { c.RateLimit.Burst = 0 }, ErrInvalidConfiguration},
		{"unknown exporter", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }, ErrInvalidConfiguration},
		{"otlp without endpoint", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Endpoint = "" }, ErrMissingConfiguration},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			for _, opt := range validOptions() {
				require.NoError(t, opt(cfg))
			}
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var cfgErr *Error
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, KindConfig, cfgErr.Kind)
		})
	}
}

func TestWithSessionTTL_RejectsNonPositive(t *testing.T) {
	_, err := NewConfig(append(validOptions(), WithSessionTTL(-time.Minute))...)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestWithStrapi_TrimsTrailingSlash(t *testing.T) {
	cfg, err := NewConfig(WithTelegramToken("t"), WithStrapi("http://cms:1337/", "k"))
	require.NoError(t, err)
	assert.Equal(t, "http://cms:1337", cfg.Strapi.URL)
}
