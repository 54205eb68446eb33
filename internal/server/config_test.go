package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TaskForce/internal/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMergesFile(t *testing.T) {
	path := writeConfig(t, `
addr: 127.0.0.1:9000
tick_hz: 20
journal_dir: /tmp/journal
idle_ttl: 90s
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, 20, cfg.TickHz)
	assert.Equal(t, "/tmp/journal", cfg.JournalDir)
	assert.Equal(t, 90*time.Second, cfg.IdleTTL)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultConfig().Workers, cfg.Workers)
	assert.Equal(t, "default", cfg.DefaultSession)
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "tick_hz: [1, 2"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, "tick_hz: 20\nlog_level: warn\n")
	hz := 30
	addr := ":7000"
	cfg, err := ResolveConfig(path, Overrides{TickHz: &hz, Addr: &addr})
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.TickHz)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, logging.LevelWarn, cfg.Level())
}

func TestValidate(t *testing.T) {
	bad := DefaultConfig()
	bad.TickHz = 0
	bad.LogLevel = "loud"
	err := bad.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "tick_hz")
	assert.Contains(t, err.Error(), "loud")

	assert.NoError(t, DefaultConfig().Validate())
}
