package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"GO_ENV", "HTTP_ADDR", "CORS_ORIGINS", "LOG_LEVEL", "DATABASE_URL",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_BUCKET", "S3_PUBLIC_URL", "S3_USE_SSL",
	"UPLOADS_DIR", "JWT_SECRET", "JWT_TTL", "CACHE_STALE_AFTER", "CACHE_SIZE",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Cache.StaleAfter)
	assert.Equal(t, 1, cfg.Cache.Retries)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "token", cfg.Auth.CookieName)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.S3.Endpoint)
	assert.False(t, cfg.IsProduction())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().HTTP.Addr, cfg.HTTP.Addr)
}

func TestLoadUsesYAMLOverrides(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
env: production
http:
  addr: ":9090"
  cors_origins: ["https://soulmate.example"]
cache:
  stale_after: 2m
  size: 64
redis:
  addr: "localhost:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, []string{"https://soulmate.example"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 2*time.Minute, cfg.Cache.StaleAfter)
	assert.Equal(t, 64, cfg.Cache.Size)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	// untouched defaults survive
	assert.Equal(t, 1, cfg.Cache.Retries)
	assert.Equal(t, "soulmate:invalidate", cfg.Redis.Channel)
}

func TestEnvOverridesYAML(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":9090\"\n"), 0o600))

	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CACHE_STALE_AFTER", "30s")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("S3_USE_SSL", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Postgres.DSN)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.Cache.StaleAfter)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.CORSOrigins)
	assert.True(t, cfg.S3.UseSSL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "Bad Duration", key: "CACHE_STALE_AFTER", val: "soon"},
		{name: "Bad Int", key: "REDIS_DB", val: "zero"},
		{name: "Bad Bool", key: "S3_USE_SSL", val: "maybe"},
		{name: "Non Positive Staleness", key: "CACHE_STALE_AFTER", val: "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
