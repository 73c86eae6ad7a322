// Package config provides configuration management for dwell.
//
// Settings live in ~/.dwell/settings.yaml and can be overridden per-key by
// DWELL_* environment variables. The loaded config is a package-level
// singleton guarded by a RWMutex so the settings watcher can swap it at
// runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultListen is the loopback address dwelld binds to.
	DefaultListen = "127.0.0.1:8439"

	// DefaultModel is the summarizer model when none is configured.
	DefaultModel = "gpt-3.5-turbo"

	// DefaultBaseURL is the summarizer endpoint when none is configured.
	DefaultBaseURL = "https://api.openai.com/v1"

	dataDirName  = ".dwell"
	settingsFile = "settings.yaml"
	dbFile       = "dwell.db"
)

// AIConfig holds summarizer credentials. An empty APIKey disables the AI
// overlay without affecting reports.
type AIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// CacheConfig selects the report-cache backend. Backend is "memory" unless
// RedisAddr is set, in which case "redis" is valid.
type CacheConfig struct {
	Backend   string `yaml:"backend"`
	RedisAddr string `yaml:"redis_addr"`
}

// Config is the daemon configuration.
type Config struct {
	Listen           string      `yaml:"listen"`
	AuthToken        string      `yaml:"auth_token"`
	HeartbeatSeconds int         `yaml:"heartbeat_seconds"`
	ExcludedDomains  []string    `yaml:"excluded_domains"`
	AI               AIConfig    `yaml:"ai"`
	Cache            CacheConfig `yaml:"cache"`
}

// Heartbeat returns the tracker heartbeat interval.
func (c *Config) Heartbeat() time.Duration {
	if c.HeartbeatSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen:           DefaultListen,
		HeartbeatSeconds: 30,
		AI: AIConfig{
			BaseURL: DefaultBaseURL,
			Model:   DefaultModel,
		},
		Cache: CacheConfig{
			Backend: "memory",
		},
	}
}

// DataDir returns the dwell data directory. DWELL_DATA_DIR overrides the
// default ~/.dwell.
func DataDir() string {
	if dir := os.Getenv("DWELL_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dataDirName
	}
	return filepath.Join(home, dataDirName)
}

// DBPath returns the SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), dbFile)
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), settingsFile)
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0750); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	return nil
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshaling default settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing default settings: %w", err)
	}
	return nil
}

// EnsureAll creates the data directory and default settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load reads the settings file, falls back to defaults when it is missing or
// malformed, then applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(SettingsPath()); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			// A broken settings file should not take the daemon down.
			cfg = Default()
		}
	}

	applyEnv(cfg)
	normalize(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DWELL_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("DWELL_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := os.Getenv("DWELL_HEARTBEAT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HeartbeatSeconds = n
		}
	}
	if v := os.Getenv("DWELL_EXCLUDED_DOMAINS"); v != "" {
		cfg.ExcludedDomains = splitTrim(v)
	}
	if v := os.Getenv("DWELL_AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("DWELL_AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("DWELL_AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("DWELL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
		cfg.Cache.Backend = "redis"
	}
}

func normalize(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = DefaultBaseURL
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = DefaultModel
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
}

// Save writes cfg to the settings file.
func Save(cfg *Config) error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	if err := os.WriteFile(SettingsPath(), data, 0600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

var (
	mu     sync.RWMutex
	global *Config
)

// Get returns the cached global config, loading it on first use.
func Get() *Config {
	mu.RLock()
	if global != nil {
		defer mu.RUnlock()
		return global
	}
	mu.RUnlock()

	cfg, _ := Load()

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = cfg
	}
	return global
}

// Set replaces the cached global config.
func Set(cfg *Config) {
	normalize(cfg)
	mu.Lock()
	defer mu.Unlock()
	global = cfg
}

// Reload re-reads the settings file and swaps the global config. Used by the
// settings watcher.
func Reload() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	global = cfg
	return cfg, nil
}

// splitTrim splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
