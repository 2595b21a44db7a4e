package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"wilayah/internal/bps"
	"wilayah/internal/crawl"
)

// Config models wilayah.yml. Every field has a default; the file only needs
// to name what it overrides. Flags and WILAYAH_* env vars override the file.
type Config struct {
	BaseURL    string `yaml:"base_url"`
	PeriodeURL string `yaml:"periode_url"`
	Levels     string `yaml:"levels"`
	Workers    int    `yaml:"workers"`
	TimeoutSec int    `yaml:"timeout_seconds"`
	DelayMS    int    `yaml:"delay_ms"`
	MaxRetries int    `yaml:"max_retries"`
	OnError    string `yaml:"on_error"`

	RawDir       string `yaml:"raw_dir"`
	ProcessedDir string `yaml:"processed_dir"`
	SQLDir       string `yaml:"sql_dir"`
	SQLFilename  string `yaml:"sql_filename"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:      bps.DefaultBaseURL,
		PeriodeURL:   bps.DefaultPeriodeURL,
		Levels:       "provinsi,kabupaten,kecamatan,desa",
		Workers:      8,
		TimeoutSec:   30,
		DelayMS:      250,
		MaxRetries:   3,
		OnError:      string(crawl.PolicyContinue),
		RawDir:       filepath.Join("data", "raw", "bps"),
		ProcessedDir: filepath.Join("data", "processed", "bps"),
		SQLDir:       filepath.Join("data", "sql"),
	}
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.PeriodeURL == "" {
		return fmt.Errorf("periode_url is required")
	}
	if _, err := bps.ParseLevels(c.Levels); err != nil {
		return fmt.Errorf("levels: %w", err)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.TimeoutSec < 1 {
		return fmt.Errorf("timeout_seconds must be at least 1")
	}
	if c.DelayMS < 0 {
		return fmt.Errorf("delay_ms must not be negative")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}
	if _, err := crawl.ParsePolicy(c.OnError); err != nil {
		return err
	}
	return nil
}

// ParsedLevels returns the configured levels in hierarchy order. Validate
// catches unparseable level lists before any caller gets here.
func (c *Config) ParsedLevels() []bps.Level {
	levels, err := bps.ParseLevels(c.Levels)
	if err != nil {
		return nil
	}
	return levels
}

// Timeout returns the HTTP timeout as a duration.
func (c *Config) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

// Delay returns the retry backoff base as a duration.
func (c *Config) Delay() time.Duration { return time.Duration(c.DelayMS) * time.Millisecond }

// Path returns the config file path for a working directory.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "wilayah.yml")
}

// Load reads and validates config from dir, failing if the file is missing.
func Load(dir string) (*Config, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config when no file exists.
func LoadOptional(dir string) (*Config, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Omitted fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
