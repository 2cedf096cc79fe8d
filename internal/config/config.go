// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/jeranaias/forgechat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the process-wide connection configuration. The transport reads it
// on every call, so edits take effect on the next request.
type Config struct {
	// APIURL is the base URL of the inference backend.
	APIURL string `toml:"api_url" json:"api_url" env:"FORGECHAT_API_URL"`
	// APIKey is sent as X-API-Key on every request.
	APIKey string `toml:"api_key" json:"api_key" env:"FORGECHAT_API_KEY"`
	// Temperature is the sampling temperature in [0, 1].
	Temperature float64 `toml:"temperature" json:"temperature" env:"FORGECHAT_TEMPERATURE"`
	// MaxTokens caps the length of generated answers.
	MaxTokens int `toml:"max_tokens" json:"max_tokens" env:"FORGECHAT_MAX_TOKENS"`
	// UseRAG enables retrieval augmentation for plain chat.
	UseRAG bool `toml:"use_rag" json:"use_rag" env:"FORGECHAT_USE_RAG"`
	// DemoMode answers every call from the local simulation instead of the network.
	DemoMode bool `toml:"demo_mode" json:"demo_mode" env:"FORGECHAT_DEMO"`

	Timeouts   TimeoutConfig    `toml:"timeouts" json:"timeouts"`
	Health     HealthConfig     `toml:"health" json:"health"`
	Simulation SimulationConfig `toml:"simulation" json:"simulation"`
	Log        LogConfig        `toml:"log" json:"log"`
}

// TimeoutConfig holds the per-endpoint request budgets.
type TimeoutConfig struct {
	// FileChat is the budget for retrieval-augmented chat over staged files.
	FileChat Duration `toml:"file_chat" json:"file_chat" env:"FORGECHAT_TIMEOUT_FILECHAT"`
	// Chat is the budget for plain chat.
	Chat Duration `toml:"chat" json:"chat" env:"FORGECHAT_TIMEOUT_CHAT"`
	// Upload is the budget for file uploads.
	Upload Duration `toml:"upload" json:"upload" env:"FORGECHAT_TIMEOUT_UPLOAD"`
	// Default applies to every other endpoint.
	Default Duration `toml:"default" json:"default" env:"FORGECHAT_TIMEOUT_DEFAULT"`
}

// HealthConfig controls the liveness poll.
type HealthConfig struct {
	Interval Duration `toml:"interval" json:"interval" env:"FORGECHAT_HEALTH_INTERVAL"`
}

// SimulationConfig controls the demo-mode backend.
type SimulationConfig struct {
	// Delay is the artificial latency of every simulated call.
	Delay Duration `toml:"delay" json:"delay" env:"FORGECHAT_SIMULATION_DELAY"`
}

// LogConfig controls the file logger.
type LogConfig struct {
	// Level is one of: silent, error, warn, info, debug.
	Level string `toml:"level" json:"level" env:"FORGECHAT_LOG_LEVEL"`
	// Path is the log file (empty = ~/.forgechat/forgechat.log).
	Path string `toml:"path" json:"path" env:"FORGECHAT_LOG_PATH"`
}

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration that reads and writes as "30s" style text in
// TOML, JSON and environment variables.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// String formats the duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}
	*d = Duration(parsed)
	return nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		APIURL:      "http://localhost:8000",
		APIKey:      "",
		Temperature: 0.1,
		MaxTokens:   2048,
		UseRAG:      false,
		DemoMode:    false,

		Timeouts: TimeoutConfig{
			FileChat: Duration(60 * time.Second),
			Chat:     Duration(30 * time.Second),
			Upload:   Duration(60 * time.Second),
			Default:  Duration(10 * time.Second),
		},

		Health: HealthConfig{
			Interval: Duration(30 * time.Second),
		},

		Simulation: SimulationConfig{
			Delay: Duration(400 * time.Millisecond),
		},

		Log: LogConfig{
			Level: "info",
		},
	}
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.APIURL == "" {
		cfg.APIURL = defaults.APIURL
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Timeouts.FileChat == 0 {
		cfg.Timeouts.FileChat = defaults.Timeouts.FileChat
	}
	if cfg.Timeouts.Chat == 0 {
		cfg.Timeouts.Chat = defaults.Timeouts.Chat
	}
	if cfg.Timeouts.Upload == 0 {
		cfg.Timeouts.Upload = defaults.Timeouts.Upload
	}
	if cfg.Timeouts.Default == 0 {
		cfg.Timeouts.Default = defaults.Timeouts.Default
	}
	if cfg.Health.Interval == 0 {
		cfg.Health.Interval = defaults.Health.Interval
	}
	if cfg.Simulation.Delay == 0 {
		cfg.Simulation.Delay = defaults.Simulation.Delay
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the forgechat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "could not determine home directory")
	}
	return filepath.Join(home, ".forgechat"), nil
}

// DefaultPath returns the path to the TOML config file.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions fixes permissions on config files holding the API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return errors.Wrapf(err, "failed to fix insecure permissions (was %o)", mode)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from path (the default location when empty),
// falling back to defaults when the file does not exist. Values from .env
// files and FORGECHAT_* variables are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := decodeFile(cfg, path); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat %s", path)
	}

	fillDefaults(cfg)
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// LoadFile decodes a config file without applying environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(cfg, path); err != nil {
		return nil, err
	}
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func decodeFile(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "failed to read JSON config")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return errors.Wrap(err, "failed to decode JSON config")
		}
		return nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return errors.Wrap(err, "failed to decode TOML config")
	}
	return nil
}

// envFiles are loaded, when present, before environment overrides apply.
var envFiles = []string{".env", ".env.local"}

// ApplyEnvOverrides loads .env files from the working directory and then
// overrides fields from FORGECHAT_* environment variables. Variables that are
// not set leave the current value alone.
func (c *Config) ApplyEnvOverrides() error {
	existing := make([]string, 0, len(envFiles))
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return errors.Wrap(err, "failed to load .env files")
		}
	}

	if err := env.Parse(c); err != nil {
		return errors.Wrap(err, "failed to parse environment overrides")
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to path as TOML (JSON for .json paths).
// The file is written atomically with 0600 permissions.
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	var buf bytes.Buffer
	if strings.HasSuffix(path, ".json") {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode config")
		}
		buf.Write(data)
	} else {
		buf.WriteString("# forgechat configuration file\n")
		buf.WriteString("# Generated by forgechat - edit with care\n\n")
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return errors.Wrap(err, "failed to encode config")
		}
	}

	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return errors.Wrap(err, "failed to write config file")
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
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validLogLevels = map[string]bool{"silent": true, "error": true, "warn": true, "info": true, "debug": true}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.APIURL == "" {
		errs = append(errs, ValidationError{Field: "api_url", Message: "must not be empty"})
	} else if u, err := url.Parse(c.APIURL); err != nil {
		errs = append(errs, ValidationError{Field: "api_url", Message: fmt.Sprintf("invalid URL: %v", err)})
	} else if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		errs = append(errs, ValidationError{Field: "api_url", Message: "only http and https schemes are allowed"})
	} else if u.Host == "" {
		errs = append(errs, ValidationError{Field: "api_url", Message: "missing host"})
	}

	if c.Temperature < 0 || c.Temperature > 1 {
		errs = append(errs, ValidationError{
			Field:   "temperature",
			Message: fmt.Sprintf("must be between 0 and 1, got %g", c.Temperature),
		})
	}

	if c.MaxTokens < 1 {
		errs = append(errs, ValidationError{
			Field:   "max_tokens",
			Message: fmt.Sprintf("must be positive, got %d", c.MaxTokens),
		})
	}

	for field, d := range map[string]Duration{
		"timeouts.file_chat": c.Timeouts.FileChat,
		"timeouts.chat":      c.Timeouts.Chat,
		"timeouts.upload":    c.Timeouts.Upload,
		"timeouts.default":   c.Timeouts.Default,
		"health.interval":    c.Health.Interval,
	} {
		if d <= 0 {
			errs = append(errs, ValidationError{Field: field, Message: "must be positive"})
		}
	}

	if c.Simulation.Delay < 0 {
		errs = append(errs, ValidationError{Field: "simulation.delay", Message: "must not be negative"})
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: silent, error, warn, info, debug", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// BaseURL returns the API URL without a trailing slash.
func (c *Config) BaseURL() string {
	return strings.TrimRight(c.APIURL, "/")
}

// ConnectionChanged reports whether two configs differ in anything that
// requires reconnecting: base URL, API key or demo mode.
func ConnectionChanged(old, cur *Config) bool {
	if old == nil || cur == nil {
		return old != cur
	}
	return old.BaseURL() != cur.BaseURL() || old.APIKey != cur.APIKey || old.DemoMode != cur.DemoMode
}

// Clone creates a copy of the configuration. Config holds no reference types,
// so a value copy is a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a JSON rendering of the config with the API key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.APIKey != "" {
		safe.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
