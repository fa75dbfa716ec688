package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Long-document modes.
const (
	ModeTruncate = "truncate"
	ModeChunk    = "chunk"
)

// Config is the per-run configuration. It is treated as immutable once a
// run starts.
type Config struct {
	Endpoint          string      `json:"endpoint"`
	Model             string      `json:"model"`
	APIKey            string      `json:"api_key,omitempty"`
	Temperature       float64     `json:"temperature"`
	MaxOutputTokens   int         `json:"max_output_tokens"`
	TimeoutSec        int         `json:"timeout_sec"`
	Concurrency       int         `json:"concurrency"`
	IncludeTables     bool        `json:"include_tables"`
	LongDocMode       string      `json:"long_doc_mode"`
	MaxInputTokens    int         `json:"max_input_tokens"`
	ChunkTargetTokens int         `json:"chunk_target_tokens"`
	RedactSecrets     bool        `json:"redact_secrets"`
	StateDB           string      `json:"state_db,omitempty"`
	Cache             CacheConfig `json:"cache"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled    bool   `json:"enabled"`
	Dir        string `json:"dir,omitempty"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Endpoint:          "https://openrouter.ai/api/v1/chat/completions",
		Model:             "openai/gpt-oss-20b:free",
		Temperature:       0.0,
		MaxOutputTokens:   8192,
		TimeoutSec:        120,
		Concurrency:       2,
		IncludeTables:     true,
		LongDocMode:       ModeTruncate,
		MaxInputTokens:    20000,
		ChunkTargetTokens: 6000,
		Cache: CacheConfig{
			TTLSeconds: 86400,
		},
	}
}

// Timeout returns the per-request timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// Sanitized returns a copy safe to persist: the credential is removed.
func (c Config) Sanitized() Config {
	c.APIKey = ""
	return c
}

// Normalize clamps values that have an obvious floor.
func (c *Config) Normalize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	c.LongDocMode = strings.ToLower(strings.TrimSpace(c.LongDocMode))
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Endpoint) == "":
		return errors.New("endpoint must not be empty")
	case c.Model == "":
		return errors.New("model must not be empty")
	case c.LongDocMode != ModeTruncate && c.LongDocMode != ModeChunk:
		return fmt.Errorf("long_doc_mode must be %q or %q, got %q", ModeTruncate, ModeChunk, c.LongDocMode)
	case c.TimeoutSec <= 0:
		return fmt.Errorf("timeout_sec must be positive, got %d", c.TimeoutSec)
	case c.MaxOutputTokens <= 0:
		return fmt.Errorf("max_output_tokens must be positive, got %d", c.MaxOutputTokens)
	case c.Temperature < 0:
		return fmt.Errorf("temperature must not be negative, got %g", c.Temperature)
	case c.Concurrency < 1:
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}

// ConfigDir returns the platform-appropriate config directory.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wordbatch"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "wordbatch"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "wordbatch"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "wordbatch"), nil
	default:
		return filepath.Join(home, ".config", "wordbatch"), nil
	}
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// sections are flattened into the top level on load.
var sections = []string{"api", "processing"}

// DecodeFile applies the JSON document in data onto cfg. Keys missing from
// the document keep their current values.
func DecodeFile(cfg *Config, data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	flat := make(map[string]json.RawMessage, len(raw))
	for _, name := range sections {
		sec, ok := raw[name]
		if !ok {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(sec, &fields); err != nil {
			// Non-object sections are ignored.
			continue
		}
		for k, v := range fields {
			flat[k] = v
		}
	}
	for k, v := range raw {
		if k == "api" || k == "processing" {
			continue
		}
		flat[k] = v
	}
	for k, v := range flat {
		if string(v) == "null" {
			delete(flat, k)
		}
	}

	merged, err := json.Marshal(flat)
	if err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	if err := json.Unmarshal(merged, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// LoadFile applies the config file at path onto cfg. When required is false
// a missing file is not an error.
func LoadFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	return DecodeFile(cfg, data)
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// LoadOptions selects the inputs to Load.
type LoadOptions struct {
	// File is an explicit config path. It must exist. When empty the user
	// config file is read if present.
	File string
	// Overrides come from CLI flags, keyed like SetField.
	Overrides map[string]string
	// APIKey is an explicit credential; it wins over everything else.
	APIKey string
}

// Load builds the effective config: defaults <- file <- env <- overrides,
// then resolves the credential.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		if err := LoadFile(&cfg, opts.File, true); err != nil {
			return Config{}, err
		}
	} else if path, err := ConfigPath(); err == nil {
		if err := LoadFile(&cfg, path, false); err != nil {
			return Config{}, err
		}
	}

	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, opts.Overrides); err != nil {
		return Config{}, err
	}
	cfg.APIKey = ResolveAPIKey(opts.APIKey, cfg.APIKey)
	cfg.Normalize()
	return cfg, nil
}

// Environment variables consulted for the credential, in order.
var apiKeyEnv = []string{"WORDBATCH_API_KEY", "APP_API_KEY"}

// ResolveAPIKey returns the first non-empty of override, configured and the
// credential environment variables.
func ResolveAPIKey(override, configured string) string {
	if override != "" {
		return override
	}
	if configured != "" {
		return configured
	}
	for _, name := range apiKeyEnv {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// envKeys maps environment variables onto SetField keys.
var envKeys = []struct {
	env string
	key string
}{
	{"WORDBATCH_ENDPOINT", "endpoint"},
	{"WORDBATCH_MODEL", "model"},
	{"WORDBATCH_TEMPERATURE", "temperature"},
	{"WORDBATCH_MAX_OUTPUT_TOKENS", "max_output_tokens"},
	{"WORDBATCH_TIMEOUT_SEC", "timeout_sec"},
	{"WORDBATCH_CONCURRENCY", "concurrency"},
	{"WORDBATCH_INCLUDE_TABLES", "include_tables"},
	{"WORDBATCH_LONG_DOC_MODE", "long_doc_mode"},
	{"WORDBATCH_MAX_INPUT_TOKENS", "max_input_tokens"},
	{"WORDBATCH_CHUNK_TARGET_TOKENS", "chunk_target_tokens"},
	{"WORDBATCH_REDACT_SECRETS", "redact_secrets"},
	{"WORDBATCH_STATE_DB", "state_db"},
}

func mergeEnv(cfg *Config) error {
	for _, e := range envKeys {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		if err := SetField(cfg, e.key, v); err != nil {
			return fmt.Errorf("%s: %w", e.env, err)
		}
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for k, v := range overrides {
		if v == "" {
			continue
		}
		if err := SetField(cfg, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists every key SetField accepts.
var Keys = []string{
	"endpoint", "model", "api_key", "temperature", "max_output_tokens",
	"timeout_sec", "concurrency", "include_tables", "long_doc_mode",
	"max_input_tokens", "chunk_target_tokens", "redact_secrets", "state_db",
	"cache.enabled", "cache.dir", "cache.ttl_seconds",
}

// SetField sets a single config field by key name.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "endpoint":
		cfg.Endpoint = value
	case "model":
		cfg.Model = value
	case "api_key":
		cfg.APIKey = value
	case "long_doc_mode":
		mode := strings.ToLower(strings.TrimSpace(value))
		if mode != ModeTruncate && mode != ModeChunk {
			return fmt.Errorf("long_doc_mode must be %q or %q", ModeTruncate, ModeChunk)
		}
		cfg.LongDocMode = mode
	case "state_db":
		cfg.StateDB = value
	case "cache.dir":
		cfg.Cache.Dir = value
	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("temperature must be a number: %w", err)
		}
		cfg.Temperature = f
	case "include_tables", "redact_secrets", "cache.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		switch key {
		case "include_tables":
			cfg.IncludeTables = b
		case "redact_secrets":
			cfg.RedactSecrets = b
		default:
			cfg.Cache.Enabled = b
		}
	case "max_output_tokens", "timeout_sec", "concurrency", "max_input_tokens",
		"chunk_target_tokens", "cache.ttl_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		*intField(cfg, key) = n
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func intField(cfg *Config, key string) *int {
	switch key {
	case "max_output_tokens":
		return &cfg.MaxOutputTokens
	case "timeout_sec":
		return &cfg.TimeoutSec
	case "concurrency":
		return &cfg.Concurrency
	case "max_input_tokens":
		return &cfg.MaxInputTokens
	case "chunk_target_tokens":
		return &cfg.ChunkTargetTokens
	default:
		return &cfg.Cache.TTLSeconds
	}
}
