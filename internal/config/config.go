// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/mockchat/internal/model"
	"github.com/jeranaias/mockchat/internal/storage"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete mockchat configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Client  ClientConfig  `toml:"client"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
	UI      UIConfig      `toml:"ui"`

	// Models holds per-model tunables keyed by model id. Missing entries
	// keep the built-in defaults.
	Models map[string]model.ModelConfig `toml:"models,omitempty"`
}

// ServerConfig configures the mock LLM server.
type ServerConfig struct {
	Addr string `toml:"addr"`

	// Delay before the first streamed token.
	ThinkDelayMinMs int `toml:"think_delay_min_ms"`
	ThinkDelayMaxMs int `toml:"think_delay_max_ms"`

	// Upper bound of the random pause between streamed characters.
	TokenDelayMaxMs int `toml:"token_delay_max_ms"`

	// Delay before a non-streaming reply.
	CompletionDelayMinMs int `toml:"completion_delay_min_ms"`
	CompletionDelayMaxMs int `toml:"completion_delay_max_ms"`

	// MaxTokensPerSecond caps token emission across all streams. 0 disables.
	MaxTokensPerSecond float64 `toml:"max_tokens_per_second"`

	ShutdownTimeoutSecs int `toml:"shutdown_timeout_secs"`
}

// ClientConfig configures the chat client side.
type ClientConfig struct {
	BaseURL      string `toml:"base_url"`
	TimeoutSecs  int    `toml:"timeout_secs"`
	DefaultModel string `toml:"default_model"`
}

// StorageConfig selects where conversations are persisted.
type StorageConfig struct {
	Backend string `toml:"backend"` // "file" or "sqlite"
	Path    string `toml:"path"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
	File   string `toml:"file,omitempty"`
}

// UIConfig contains terminal UI preferences.
type UIConfig struct {
	Theme string `toml:"theme"` // "light" or "dark"
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                 ":3001",
			ThinkDelayMinMs:      800,
			ThinkDelayMaxMs:      2000,
			TokenDelayMaxMs:      30,
			CompletionDelayMinMs: 1500,
			CompletionDelayMaxMs: 3500,
			ShutdownTimeoutSecs:  5,
		},
		Client: ClientConfig{
			BaseURL:      "http://localhost:3001",
			TimeoutSecs:  30,
			DefaultModel: model.DefaultModelID,
		},
		Storage: StorageConfig{
			Backend: string(storage.KindFile),
			Path:    "~/.mockchat/data",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		UI: UIConfig{
			Theme: "light",
		},
	}
}

// ThinkDelay returns the configured think delay range.
func (s ServerConfig) ThinkDelay() (time.Duration, time.Duration) {
	return ms(s.ThinkDelayMinMs), ms(s.ThinkDelayMaxMs)
}

// CompletionDelay returns the configured non-streaming delay range.
func (s ServerConfig) CompletionDelay() (time.Duration, time.Duration) {
	return ms(s.CompletionDelayMinMs), ms(s.CompletionDelayMaxMs)
}

// TokenDelay returns the upper bound of the per-character pause.
func (s ServerConfig) TokenDelay() time.Duration {
	return ms(s.TokenDelayMaxMs)
}

// ShutdownTimeout returns how long a graceful shutdown may take.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSecs) * time.Second
}

// Timeout returns the non-streaming request timeout.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// ModelConfigs merges the configured tunables over the built-in ones for
// every known model.
func (c *Config) ModelConfigs() map[string]model.ModelConfig {
	out := make(map[string]model.ModelConfig)
	for _, m := range model.DefaultModels() {
		out[m.ID] = m.Config
		if cfg, ok := c.Models[m.ID]; ok {
			out[m.ID] = cfg
		}
	}
	return out
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the mockchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".mockchat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads ./.env and ~/.mockchat/config.toml. A missing config file
// yields the defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return LoadFromPath(path)
	}

	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation. Keys absent from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to path atomically with 0600
// permissions, creating parent directories as needed.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# mockchat configuration file")
	fmt.Fprintln(&buf, "# Generated by mockchat - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := storage.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns ValidateErrors when
// anything is wrong.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if c.Server.Addr == "" {
		add("server.addr", "must not be empty")
	}
	checkRange := func(field string, lo, hi int) {
		if lo < 0 || hi < 0 {
			add(field, "delays must not be negative")
		} else if lo > hi {
			add(field, "minimum %d exceeds maximum %d", lo, hi)
		}
	}
	checkRange("server.think_delay_ms", c.Server.ThinkDelayMinMs, c.Server.ThinkDelayMaxMs)
	checkRange("server.completion_delay_ms", c.Server.CompletionDelayMinMs, c.Server.CompletionDelayMaxMs)
	if c.Server.TokenDelayMaxMs < 0 {
		add("server.token_delay_max_ms", "must not be negative")
	}
	if c.Server.MaxTokensPerSecond < 0 {
		add("server.max_tokens_per_second", "must not be negative")
	}

	// Client
	if u, err := url.Parse(c.Client.BaseURL); err != nil || u.Host == "" {
		add("client.base_url", "invalid URL %q", c.Client.BaseURL)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("client.base_url", "scheme must be http or https, got %q", u.Scheme)
	}
	if c.Client.TimeoutSecs <= 0 {
		add("client.timeout_secs", "must be positive")
	}
	if _, ok := model.FindModel(model.DefaultModels(), c.Client.DefaultModel); !ok {
		add("client.default_model", "unknown model %q", c.Client.DefaultModel)
	}

	// Storage
	switch storage.Kind(c.Storage.Backend) {
	case storage.KindFile, storage.KindSQLite:
	default:
		add("storage.backend", "must be file or sqlite, got %q", c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		add("storage.path", "must not be empty")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level", "unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		add("logging.format", "must be text or json, got %q", c.Logging.Format)
	}

	// UI
	switch c.UI.Theme {
	case "light", "dark":
	default:
		add("ui.theme", "must be light or dark, got %q", c.UI.Theme)
	}

	// Models
	for id, mc := range c.Models {
		if _, ok := model.FindModel(model.DefaultModels(), id); !ok {
			add("models."+id, "unknown model")
			continue
		}
		if mc.Temperature < 0 || mc.Temperature > 2 {
			add("models."+id+".temperature", "must be between 0 and 2, got %g", mc.Temperature)
		}
		if mc.MaxTokens <= 0 {
			add("models."+id+".max_tokens", "must be positive")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that would otherwise fail validation.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ShutdownTimeoutSecs <= 0 {
		c.Server.ShutdownTimeoutSecs = d.Server.ShutdownTimeoutSecs
	}
	if c.Client.BaseURL == "" {
		c.Client.BaseURL = d.Client.BaseURL
	}
	c.Client.BaseURL = strings.TrimRight(c.Client.BaseURL, "/")
	if c.Client.TimeoutSecs == 0 {
		c.Client.TimeoutSecs = d.Client.TimeoutSecs
	}
	if c.Client.DefaultModel == "" {
		c.Client.DefaultModel = d.Client.DefaultModel
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Storage.Path == "" {
		c.Storage.Path = d.Storage.Path
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - MOCKCHAT_ADDR: overrides server.addr
//   - MOCKCHAT_BASE_URL: overrides client.base_url
//   - MOCKCHAT_MODEL: overrides client.default_model
//   - MOCKCHAT_STORAGE_BACKEND: overrides storage.backend
//   - MOCKCHAT_STORAGE_PATH: overrides storage.path
//   - MOCKCHAT_LOG_LEVEL: overrides logging.level
//   - MOCKCHAT_LOG_FORMAT: overrides logging.format
//   - MOCKCHAT_THEME: overrides ui.theme
//   - MOCKCHAT_THINK_DELAY: "min-max" in milliseconds, or a single value
//   - MOCKCHAT_NO_DELAY: when true, zeroes every server delay
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MOCKCHAT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MOCKCHAT_BASE_URL"); v != "" {
		c.Client.BaseURL = v
	}
	if v := os.Getenv("MOCKCHAT_MODEL"); v != "" {
		c.Client.DefaultModel = v
	}
	if v := os.Getenv("MOCKCHAT_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("MOCKCHAT_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("MOCKCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("MOCKCHAT_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("MOCKCHAT_THEME"); v != "" {
		c.UI.Theme = strings.ToLower(v)
	}
	if v := os.Getenv("MOCKCHAT_THINK_DELAY"); v != "" {
		if lo, hi, ok := parseRange(v); ok {
			c.Server.ThinkDelayMinMs, c.Server.ThinkDelayMaxMs = lo, hi
		}
	}
	if v := os.Getenv("MOCKCHAT_NO_DELAY"); v == "1" || strings.EqualFold(v, "true") {
		c.Server.ThinkDelayMinMs, c.Server.ThinkDelayMaxMs = 0, 0
		c.Server.CompletionDelayMinMs, c.Server.CompletionDelayMaxMs = 0, 0
		c.Server.TokenDelayMaxMs = 0
	}
}

// parseRange parses "lo-hi" or "n".
func parseRange(s string) (int, int, bool) {
	loStr, hiStr, found := strings.Cut(strings.TrimSpace(s), "-")
	lo, err := strconv.Atoi(strings.TrimSpace(loStr))
	if err != nil {
		return 0, 0, false
	}
	if !found {
		return lo, lo, true
	}
	hi, err := strconv.Atoi(strings.TrimSpace(hiStr))
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}
