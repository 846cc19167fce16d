package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all flowscope server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr     string `json:"listen_addr"`
	DBPath         string `json:"db_path"`
	LogLevel       string `json:"log_level"`
	LayoutEngine   string `json:"layout_engine"` // "dot" or "layered"
	History        bool   `json:"history"`
	SweepSchedule  string `json:"sweep_schedule"`
	RetentionHours int    `json:"retention_hours"`

	// OutputSelector is an optional jq program applied to response payloads
	// before they land in node view models, e.g. ".choices[0].message".
	OutputSelector string `json:"output_selector"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:     ":4700",
		DBPath:         filepath.Join(flowscopeDir(), "flowscope.db"),
		LogLevel:       "info",
		LayoutEngine:   "dot",
		History:        true,
		SweepSchedule:  "0 3 * * *",
		RetentionHours: 14 * 24,
	}
}

func flowscopeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowscope"
	}
	return filepath.Join(home, ".flowscope")
}

func settingsPath() string {
	return filepath.Join(flowscopeDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWSCOPE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FLOWSCOPE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWSCOPE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWSCOPE_LAYOUT_ENGINE"); v != "" {
		cfg.LayoutEngine = v
	}
	if v := os.Getenv("FLOWSCOPE_HISTORY"); v != "" {
		cfg.History = v == "true" || v == "1"
	}
	if v := os.Getenv("FLOWSCOPE_SWEEP_SCHEDULE"); v != "" {
		cfg.SweepSchedule = v
	}
	if v := os.Getenv("FLOWSCOPE_OUTPUT_SELECTOR"); v != "" {
		cfg.OutputSelector = v
	}
	if v := os.Getenv("FLOWSCOPE_RETENTION_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetentionHours = n
		}
	}

	return cfg
}
