package config

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment does not
// leak into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "PORT", "TRIVIA_ENV", "LOG_LEVEL", "ALLOWED_ORIGINS",
		"STORE_BACKEND", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "RESULTS_QUEUE",
		"DATABASE_URL", "MUTATION_RETRIES", "HISTORIAN_BATCH_SIZE", "HISTORIAN_FLUSH_MS",
		"LOBBY_TTL", "SWEEP_INTERVAL", "SESSION_TTL", "SESSION_KEY",
	} {
		t.Setenv(k, "")
	}
}

var testSessionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, ed25519.SeedSize))

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, BackendMemory, c.Store.Backend)
	assert.Equal(t, 24*time.Hour, c.Store.LobbyTTL)
	assert.Equal(t, 8, c.Store.Retries)
	assert.Equal(t, "trivia_results", c.Redis.ResultsQueue)
	assert.Equal(t, 500*time.Millisecond, c.Historian.FlushDelay)
	assert.False(t, c.IsProduction())

	key, err := c.SessionKey()
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestSessionKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_KEY", testSessionKey)
	c, err := Load()
	require.NoError(t, err)
	key, err := c.SessionKey()
	require.NoError(t, err)
	assert.Equal(t, ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize)), key)

	clearEnv(t)
	t.Setenv("SESSION_KEY", "not base64!")
	_, err = Load()
	assert.ErrorContains(t, err, "SESSION_KEY")

	clearEnv(t)
	t.Setenv("SESSION_KEY", base64.StdEncoding.EncodeToString([]byte("short")))
	_, err = Load()
	assert.ErrorContains(t, err, "32-byte seed")

	// instances behind a shared redis store must agree on the key
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("TRIVIA_ENV", "production")
	_, err = Load()
	assert.ErrorContains(t, err, "SESSION_KEY is required")

	clearEnv(t)
	t.Setenv("STORE_BACKEND", "redis")
	_, err = Load()
	assert.NoError(t, err)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "trivia.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
env: production
allowed_origins: ["https://trivia.example"]
store:
  backend: redis
  lobby_ttl: 2h
redis:
  addr: redis:6379
  db: 3
historian:
  batch_size: 5
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("REDIS_DB", "4")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("HISTORIAN_FLUSH_MS", "250")
	t.Setenv("SESSION_KEY", testSessionKey)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", c.Port)
	assert.True(t, c.IsProduction())
	assert.Equal(t, BackendRedis, c.Store.Backend)
	assert.Equal(t, 2*time.Hour, c.Store.LobbyTTL)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, 4, c.Redis.DB)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins)
	assert.Equal(t, 5, c.Historian.BatchSize)
	assert.Equal(t, 250*time.Millisecond, c.Historian.FlushDelay)
	// untouched keys keep defaults
	assert.Equal(t, 24*time.Hour, c.Session.TTL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "etcd")
	_, err := Load()
	assert.ErrorContains(t, err, "unknown store backend")

	clearEnv(t)
	t.Setenv("LOBBY_TTL", "0s")
	_, err = Load()
	assert.ErrorContains(t, err, "lobby TTL")

	clearEnv(t)
	t.Setenv("LOBBY_TTL", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "LOBBY_TTL")

	clearEnv(t)
	t.Setenv("REDIS_DB", "zero")
	_, err = Load()
	assert.ErrorContains(t, err, "REDIS_DB")
}
