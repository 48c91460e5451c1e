//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DefaultsAndExpansion(t *testing.T) {
	t.Setenv("TEST_DB_URL", "postgres://u:p@localhost:5432/subs")
	raw := []byte(`
database:
  url: ${TEST_DB_URL}
access:
  knowledge:
    base_url: https://kb.example.com
scheduler:
  interval: 15m
`)
	cfg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@localhost:5432/subs", cfg.Database.URL)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.LockTTL)
	assert.Equal(t, 10*time.Second, cfg.Access.Timeout)
	assert.Equal(t, "grants/", cfg.Access.Storage.Prefix)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "en", cfg.Locale.Lang)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
}

func TestParse_Validation(t *testing.T) {
	_, err := Parse([]byte("log:\n  level: debug\n"))
	assert.EqualError(t, err, "database.url is required")

	_, err = Parse([]byte("database:\n  url: x\nscheduler:\n  distributed_lock: true\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("database: [oops"))
	assert.Error(t, err)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  url: postgres://x\n"), 0o644))

	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)
	assert.True(t, cfg.Runtime.Dev)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
	assert.Error(t, err)
}
