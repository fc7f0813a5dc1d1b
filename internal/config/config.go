// Package config loads the client core's tunables from an optional YAML
// file, falling back to defaults and clamping out-of-range values.
package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the client core's tunables.
type Config struct {
	// SendTimeoutSeconds bounds the wait for a chat-start after a send;
	// past it the session's loading indicator is force-cleared.
	SendTimeoutSeconds int `yaml:"send_timeout_seconds"`
	// RetryIntervalMs is the transport queue retry cadence.
	RetryIntervalMs int `yaml:"retry_interval_ms"`
	// LiveOutputLimit caps a tool call's accumulated live output in bytes.
	LiveOutputLimit int `yaml:"live_output_limit"`
	// PlanModeTools is the read-only allow-list applied in plan mode.
	PlanModeTools []string `yaml:"plan_mode_tools"`
	// DefaultSessionName labels the session created when the host has none.
	DefaultSessionName string `yaml:"default_session_name"`
	// HistoryPageSize is the page size for paginated history requests.
	HistoryPageSize int `yaml:"history_page_size"`
}

func DefaultConfig() Config {
	return Config{
		SendTimeoutSeconds: 15,
		RetryIntervalMs:    250,
		LiveOutputLimit:    64 * 1024,
		PlanModeTools: []string{
			"read_file", "list_dir", "grep", "search_files",
			"search_symbols", "memory_read",
		},
		DefaultSessionName: "New chat",
		HistoryPageSize:    50,
	}
}

// Load reads the config at path, layering it over defaults. A missing file
// is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.SendTimeoutSeconds <= 0 {
		cfg.SendTimeoutSeconds = 15
	}
	if cfg.SendTimeoutSeconds > 300 {
		cfg.SendTimeoutSeconds = 300
	}
	if cfg.RetryIntervalMs <= 0 {
		cfg.RetryIntervalMs = 250
	}
	if cfg.LiveOutputLimit <= 0 {
		cfg.LiveOutputLimit = 64 * 1024
	}
	if len(cfg.PlanModeTools) == 0 {
		cfg.PlanModeTools = DefaultConfig().PlanModeTools
	}
	if cfg.DefaultSessionName == "" {
		cfg.DefaultSessionName = "New chat"
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = 50
	}
	return cfg, nil
}
