// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management
// for sbrchat.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.sbrchat/config.toml
//   - ~/.sbrchat/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/sbrchat-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete sbrchat configuration.
type Config struct {
	// Backend connection settings
	Backend BackendConfig `toml:"backend" json:"backend"`

	// Chat behavior settings
	Chat ChatConfig `toml:"chat" json:"chat"`

	// UI settings
	UI UIConfig `toml:"ui" json:"ui"`
}

// BackendConfig contains assistant backend connection settings.
type BackendConfig struct {
	// BaseURL is the assistant backend address
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs is the request timeout for non-streaming calls
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// ChatConfig contains chat behavior settings.
type ChatConfig struct {
	// Streaming selects chunked streaming responses; when false the
	// client waits for one complete JSON answer per question
	Streaming bool `toml:"streaming" json:"streaming"`
	// HistoryLimit caps how many messages a history fetch requests
	HistoryLimit int `toml:"history_limit" json:"history_limit"`
	// StaleAfterDays is the session auto-expiry age
	StaleAfterDays int `toml:"stale_after_days" json:"stale_after_days"`
}

// UIConfig contains interface settings.
type UIConfig struct {
	// Locale is the interface language: "ru", "kk" or "en"
	Locale string `toml:"locale" json:"locale"`
	// Theme is the color theme name
	Theme string `toml:"theme" json:"theme"`
	// ShowTimestamps toggles per-message timestamps in the transcript
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:     "http://localhost:8001",
			TimeoutSecs: 60,
		},
		Chat: ChatConfig{
			Streaming:      true,
			HistoryLimit:   50,
			StaleAfterDays: 7,
		},
		UI: UIConfig{
			Locale: "ru",
			Theme:  "dark",
		},
	}
}

// Dir returns the configuration directory, creating it if needed.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(homeDir, ".sbrchat")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads configuration from the standard locations, falling back to
// defaults, then applies environment overrides and validates.
func Load() (*Config, error) {
	cfg := Default()

	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	tomlPath := filepath.Join(dir, "config.toml")
	jsonPath := filepath.Join(dir, "config.json")

	switch {
	case fileExists(tomlPath):
		if err := LoadTOML(cfg, tomlPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", tomlPath, err)
		}
	case fileExists(jsonPath):
		if err := LoadJSON(cfg, jsonPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", jsonPath, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML merges a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	_, err := toml.DecodeFile(path, cfg)
	return err
}

// LoadJSON merges a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// LoadFromPath loads configuration from an explicit file, picking the
// format by extension.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch filepath.Ext(path) {
	case ".toml":
		err = LoadTOML(cfg, path)
	case ".json":
		err = LoadJSON(cfg, path)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes cfg to ~/.sbrchat/config.toml atomically.
func Save(cfg *Config) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, filepath.Join(dir, "config.toml"))
}

// SaveTOML writes cfg to a TOML file atomically.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0644)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies SBRCHAT_* environment variables on top of
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if baseURL := os.Getenv("SBRCHAT_BASE_URL"); baseURL != "" {
		c.Backend.BaseURL = baseURL
	}
	if timeout := os.Getenv("SBRCHAT_TIMEOUT_SECS"); timeout != "" {
		if v, err := strconv.Atoi(timeout); err == nil {
			c.Backend.TimeoutSecs = v
		}
	}
	if streaming := os.Getenv("SBRCHAT_STREAMING"); streaming != "" {
		if v, err := strconv.ParseBool(streaming); err == nil {
			c.Chat.Streaming = v
		}
	}
	if locale := os.Getenv("SBRCHAT_LOCALE"); locale != "" {
		c.UI.Locale = locale
	}
	if theme := os.Getenv("SBRCHAT_THEME"); theme != "" {
		c.UI.Theme = theme
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url cannot be empty")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend.base_url is not a valid http(s) URL: %q", c.Backend.BaseURL)
	}
	if c.Backend.TimeoutSecs <= 0 {
		return fmt.Errorf("backend.timeout_secs must be positive, got %d", c.Backend.TimeoutSecs)
	}
	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("chat.history_limit must be positive, got %d", c.Chat.HistoryLimit)
	}
	if c.Chat.StaleAfterDays <= 0 {
		return fmt.Errorf("chat.stale_after_days must be positive, got %d", c.Chat.StaleAfterDays)
	}
	switch c.UI.Locale {
	case "ru", "kk", "en":
	default:
		return fmt.Errorf("ui.locale must be ru, kk or en, got %q", c.UI.Locale)
	}
	return nil
}

// =============================================================================
// GLOBAL ACCESS
// =============================================================================

var (
	globalConfig *Config
	globalMu     sync.RWMutex
)

// Global returns the process-wide configuration, loading it on first
// use. Load failures fall back to defaults.
func Global() *Config {
	globalMu.RLock()
	if globalConfig != nil {
		defer globalMu.RUnlock()
		return globalConfig
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		globalConfig = cfg
	}
	return globalConfig
}

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *Config) {
	globalMu.Lock()
	globalConfig = cfg
	globalMu.Unlock()
}
