package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_OverridesLayerOverDefaults(t *testing.T) {
	path := writeConfig(t, `
send_timeout_seconds: 30
plan_mode_tools:
  - read_file
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.SendTimeoutSeconds)
	assert.Equal(t, []string{"read_file"}, cfg.PlanModeTools)
	assert.Equal(t, 250, cfg.RetryIntervalMs, "unset fields keep their defaults")
	assert.Equal(t, "New chat", cfg.DefaultSessionName)
}

func TestLoad_ClampsOutOfRangeValues(t *testing.T) {
	path := writeConfig(t, `
send_timeout_seconds: 100000
retry_interval_ms: -5
live_output_limit: 0
history_page_size: -1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.SendTimeoutSeconds)
	assert.Equal(t, 250, cfg.RetryIntervalMs)
	assert.Equal(t, 64*1024, cfg.LiveOutputLimit)
	assert.Equal(t, 50, cfg.HistoryPageSize)
}

func TestLoad_MalformedYAMLErrors(t *testing.T) {
	path := writeConfig(t, "send_timeout_seconds: [not a number")
	_, err := Load(path)
	assert.Error(t, err)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
