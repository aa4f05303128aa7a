// Package config loads and saves the Helios configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fentz26/helios/internal/tasks"
	"github.com/fentz26/helios/internal/transformer"
	"github.com/fentz26/helios/internal/transformer/backends"
	"gopkg.in/yaml.v3"
)

// Config holds Helios configuration.
type Config struct {
	// Workers bounds the number of background tasks running at once.
	Workers int `yaml:"workers"`
	// DBPath is the SQLite database holding history, cached results and audit records.
	DBPath string `yaml:"db_path"`
	// Path lists auxiliary classpath archives searched after opened archives.
	Path []string `yaml:"path"`
	// Tools locates the external programs used by external transformers.
	Tools backends.Tools `yaml:"tools"`
	// Transformers holds per-transformer setting values, keyed by transformer id.
	Transformers map[string]transformer.Values `yaml:"transformers"`
	// API configures the HTTP server.
	API APIConfig `yaml:"api"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// Dir returns ~/.helios, or .helios when the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".helios"
	}
	return filepath.Join(home, ".helios")
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:      tasks.DefaultConfig().Workers,
		DBPath:       filepath.Join(Dir(), "helios.db"),
		Path:         []string{},
		Transformers: map[string]transformer.Values{},
		API:          APIConfig{Listen: "127.0.0.1:7467"},
	}
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// HomePath returns ~/.helios/config.yaml.
func HomePath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// LoadConfigFromHome loads configuration from ~/.helios/config.yaml.
func LoadConfigFromHome() (*Config, error) {
	return LoadConfig(HomePath())
}

// SaveConfig saves configuration to a YAML file, creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.API.Listen == "" {
		return fmt.Errorf("api.listen must not be empty")
	}
	for _, p := range c.Path {
		if p == "" {
			return fmt.Errorf("path entries must not be empty")
		}
	}
	return nil
}

// Settings returns the configured setting values for a transformer.
func (c *Config) Settings(id string) transformer.Values {
	if v, ok := c.Transformers[id]; ok {
		return v
	}
	return transformer.Values{}
}
