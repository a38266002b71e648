package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, StoreMemory, cfg.Journey.Store)
	assert.Equal(t, 37, cfg.Journey.ProcessingWindowDays)
	assert.Equal(t, 7, cfg.Journey.MinimumWindowDays)
	assert.Equal(t, 90, cfg.Journey.MaximumWindowDays)
	assert.Equal(t, "memberportal.audit", cfg.Kafka.AuditTopic)
	assert.Equal(t, time.Hour, cfg.Journey.PurgeInterval)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 60, cfg.RateLimit.WritePerMinute)
	assert.False(t, cfg.IsProduction())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MEMBERPORTAL_SERVER_ADDR", ":9090")
	t.Setenv("MEMBERPORTAL_JOURNEY_STORE", "redis")
	t.Setenv("MEMBERPORTAL_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("MEMBERPORTAL_JOURNEY_MAXIMUM_WINDOW_DAYS", "120")
	t.Setenv("MEMBERPORTAL_AUTH_JWT_SIGNING_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, StoreRedis, cfg.Journey.Store)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 120, cfg.Journey.MaximumWindowDays)
	assert.Equal(t, "secret", cfg.Auth.JWTSigningKey)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("journey:\n  store: postgres\npostgres:\n  dsn: postgres://localhost/memberportal\n"), 0o600))
	t.Setenv("MEMBERPORTAL_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.Journey.Store)
	assert.Equal(t, "postgres://localhost/memberportal", cfg.Postgres.DSN)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Auth:    AuthConfig{JWTSigningKey: "k"},
			Journey: JourneyConfig{Store: StoreMemory, ProcessingWindowDays: 37, MinimumWindowDays: 7, MaximumWindowDays: 90},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown store", func(c *Config) { c.Journey.Store = "s3" }},
		{"postgres without dsn", func(c *Config) { c.Journey.Store = StorePostgres }},
		{"redis without url", func(c *Config) { c.Journey.Store = StoreRedis }},
		{"maximum below minimum", func(c *Config) { c.Journey.MaximumWindowDays = 3 }},
		{"negative purge interval", func(c *Config) { c.Journey.PurgeInterval = -time.Minute }},
		{"negative rate limit", func(c *Config) { c.RateLimit.WritePerMinute = -1 }},
		{"missing signing key", func(c *Config) { c.Auth.JWTSigningKey = "" }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
