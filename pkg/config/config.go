package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults used when the config file leaves a value unset
const (
	DefaultProbeTimeout   = 10 * time.Second
	DefaultSweepBatchSize = 100
	DefaultFormat         = "url"
)

// Config holds the application configuration
type Config struct {
	Default   DefaultConfig     `toml:"default"`
	Cache     CacheConfig       `toml:"cache"`
	Uploader  UploaderConfig    `toml:"uploader"`
	Log       LogConfig         `toml:"log"`
	Templates map[string]string `toml:"templates,omitempty"`

	path string
}

// DefaultConfig holds default settings
type DefaultConfig struct {
	Format string `toml:"format,omitempty"`
}

// CacheConfig holds the record store and liveness settings
type CacheConfig struct {
	DBPath           string   `toml:"db_path,omitempty"`
	ProbeTimeout     Duration `toml:"probe_timeout,omitempty"`
	SweepBatchSize   int      `toml:"sweep_batch_size,omitempty"`
	SweepConcurrency int      `toml:"sweep_concurrency,omitempty"`
	SweepRate        float64  `toml:"sweep_rate,omitempty"` // probes per second, 0 = unlimited
}

// UploaderConfig selects and configures the external uploader.
// An Endpoint selects the HTTP uploader; otherwise Command is run.
type UploaderConfig struct {
	Command        []string `toml:"command,omitempty"`
	Endpoint       string   `toml:"endpoint,omitempty"`
	FormField      string   `toml:"form_field,omitempty"`
	URLField       string   `toml:"url_field,omitempty"`
	ConsumerKey    string   `toml:"consumer_key,omitempty"`
	ConsumerSecret string   `toml:"consumer_secret,omitempty"`
	AccessToken    string   `toml:"access_token,omitempty"`
	AccessSecret   string   `toml:"access_secret,omitempty"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `toml:"level,omitempty"`
	File  string `toml:"file,omitempty"`
}

// Duration is a time.Duration written as a string such as "10s"
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText formats the duration
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultTemplates returns the default output templates
func DefaultTemplates() map[string]string {
	return map[string]string{
		"url":      "%url%",
		"markdown": "![%filename%](%url%)",
		"html":     `<a href="%url%">%filename%</a>`,
		"json":     `{"id":"%id%","filename":"%filename%","url":"%url%","reused":%reused%}`,
		"org":      "[[%url%][%filename%]]",
	}
}

// Load loads configuration from the default location
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom loads configuration from path. A missing file yields defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{path: path}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Default.Format == "" {
		c.Default.Format = DefaultFormat
	}
	if c.Cache.DBPath == "" {
		c.Cache.DBPath = filepath.Join(Dir(), "uploads.db")
	}
	if c.Cache.ProbeTimeout.Duration <= 0 {
		c.Cache.ProbeTimeout.Duration = DefaultProbeTimeout
	}
	if c.Cache.SweepBatchSize <= 0 {
		c.Cache.SweepBatchSize = DefaultSweepBatchSize
	}
	if c.Cache.SweepConcurrency <= 0 {
		c.Cache.SweepConcurrency = 1
	}

	// Add any missing default templates
	if c.Templates == nil {
		c.Templates = make(map[string]string)
	}
	for k, v := range DefaultTemplates() {
		if _, exists := c.Templates[k]; !exists {
			c.Templates[k] = v
		}
	}
}

// Save writes the configuration back to the file it was loaded from
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = Path()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Dir returns the configuration directory
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "upcache")
}

// Path returns the configuration file path, honoring UPCACHE_CONFIG
func Path() string {
	if p := os.Getenv("UPCACHE_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(Dir(), "config.toml")
}
