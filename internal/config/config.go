// Package config handles TOML-based configuration loading and validation.
// TOML is parsed as data only, so a config file can never execute code.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"sourcery/internal/httputil"
)

// TokenEnv overrides debrid.token when set.
const TokenEnv = "SOURCERY_DEBRID_TOKEN"

// Duration is a time.Duration written as a string ("2s", "1m30s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func dur(d time.Duration) Duration { return Duration{d} }

// Config holds all application configuration.
type Config struct {
	SubsLanguage string                    `toml:"subs_language"`
	Resolve      ResolveConfig             `toml:"resolve"`
	Fetch        FetchConfig               `toml:"fetch"`
	Providers    map[string]ProviderConfig `toml:"providers"`
	Debrid       DebridConfig              `toml:"debrid"`
	Log          LogConfig                 `toml:"log"`
}

// ResolveConfig tunes the orchestrator.
type ResolveConfig struct {
	ProviderTimeout Duration `toml:"provider_timeout"`
	Prefer          []string `toml:"prefer"`
}

// FetchConfig tunes the shared HTTP client.
type FetchConfig struct {
	UserAgent string   `toml:"user_agent"`
	Proxy     string   `toml:"proxy"`
	Timeout   Duration `toml:"timeout"`
}

// ProviderConfig overrides a compiled-in provider. Zero fields keep the
// provider's own values.
type ProviderConfig struct {
	BaseURL  string `toml:"base_url"`
	Rank     *int   `toml:"rank"`
	Disabled bool   `toml:"disabled"`
	// Key is provider specific: the vidlink payload key, or the URL of the
	// megacloud player key document.
	Key string `toml:"key"`
}

// DebridConfig configures the debrid sourcerer.
type DebridConfig struct {
	Service string   `toml:"service"`
	Token   string   `toml:"token"`
	Addons  []string `toml:"addons"`

	PollInterval    Duration `toml:"poll_interval"`
	InitialAttempts int      `toml:"initial_attempts"`
	MainAttempts    int      `toml:"main_attempts"`
	StallThreshold  int      `toml:"stall_threshold"`
	Concurrency     int      `toml:"concurrency"`

	// RateLimit is requests per second against the debrid API.
	RateLimit float64 `toml:"rate_limit"`
	Retries   int     `toml:"retries"`
}

// LogConfig configures logrus output.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	JSON       bool   `toml:"json"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		SubsLanguage: "english",
		Resolve: ResolveConfig{
			ProviderTimeout: dur(20 * time.Second),
		},
		Fetch: FetchConfig{
			UserAgent: httputil.DefaultUserAgent,
			Timeout:   dur(15 * time.Second),
		},
		Providers: map[string]ProviderConfig{},
		Debrid: DebridConfig{
			Service:         "realdebrid",
			Addons:          []string{"https://torrentio.strem.fun"},
			PollInterval:    dur(2 * time.Second),
			InitialAttempts: 5,
			MainAttempts:    30,
			StallThreshold:  5,
			Concurrency:     2,
			RateLimit:       4,
			Retries:         3,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sourcery"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "sourcery"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the default config file and merges it over the defaults.
// If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Default()
		cfg.applyEnv()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile is Load for an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if tok := strings.TrimSpace(os.Getenv(TokenEnv)); tok != "" {
		c.Debrid.Token = tok
	}
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if c.Resolve.ProviderTimeout.Duration <= 0 {
		return fmt.Errorf("resolve.provider_timeout must be positive")
	}
	if c.Fetch.Timeout.Duration <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Fetch.Proxy != "" {
		u, err := url.Parse(c.Fetch.Proxy)
		if err != nil || u.Host == "" {
			return fmt.Errorf("fetch.proxy %q is not a valid URL", c.Fetch.Proxy)
		}
	}

	for id, p := range c.Providers {
		if p.BaseURL == "" {
			continue
		}
		if err := httputil.ValidateURL(p.BaseURL); err != nil {
			return fmt.Errorf("providers.%s.base_url: %w", id, err)
		}
	}

	if err := c.Debrid.validate(); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func (d *DebridConfig) validate() error {
	validServices := map[string]bool{"realdebrid": true, "alldebrid": true}
	if !validServices[strings.ToLower(d.Service)] {
		return fmt.Errorf("unsupported debrid service %q (valid: realdebrid, alldebrid)", d.Service)
	}
	for _, a := range d.Addons {
		if err := httputil.ValidateURL(a); err != nil {
			return fmt.Errorf("debrid.addons: %w", err)
		}
	}
	if d.PollInterval.Duration <= 0 {
		return fmt.Errorf("debrid.poll_interval must be positive")
	}
	if d.InitialAttempts < 1 || d.MainAttempts < 1 {
		return fmt.Errorf("debrid attempt limits must be at least 1")
	}
	if d.StallThreshold < 1 {
		return fmt.Errorf("debrid.stall_threshold must be at least 1")
	}
	if d.Concurrency < 1 || d.Concurrency > 8 {
		return fmt.Errorf("debrid.concurrency must be between 1 and 8, got %d", d.Concurrency)
	}
	if d.RateLimit <= 0 {
		return fmt.Errorf("debrid.rate_limit must be positive")
	}
	if d.Retries < 0 {
		return fmt.Errorf("debrid.retries cannot be negative")
	}
	return nil
}

// Provider returns the overrides for id.
func (c *Config) Provider(id string) ProviderConfig {
	return c.Providers[id]
}

// LogPath expands ~ in the log file path. Empty means stderr.
func (c *Config) LogPath() (string, error) {
	p := c.Log.File
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		p = filepath.Join(home, p[2:])
	}
	return filepath.Abs(p)
}
