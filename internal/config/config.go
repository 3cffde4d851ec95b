// Package config holds cleanplate configuration, loaded from an
// optional YAML file with an environment override for the store
// database path.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// EnvDatabasePath overrides the store database path when set.
const EnvDatabasePath = "CLEANPLATE_DB"

// Config holds all cleanplate configuration.
type Config struct {
	Name string `yaml:"name"`

	// Bulk analysis settings
	Bulk BulkConfig `yaml:"bulk"`

	// Results store
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BulkConfig configures the bulk harness.
type BulkConfig struct {
	// Concurrency bounds the analysis worker pool. Zero means one
	// worker per CPU.
	Concurrency int `yaml:"concurrency"`

	// Input is the JSON file mapping template source to model IDs.
	Input string `yaml:"input"`

	// Output receives the per-template analysis results.
	Output string `yaml:"output"`

	// ShapeOutput receives the shape-frequency report.
	ShapeOutput string `yaml:"shape_output"`
}

// StoreConfig configures the SQLite results store.
type StoreConfig struct {
	// DatabasePath is the SQLite file; empty disables persistence.
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Name: "cleanplate",
		Bulk: BulkConfig{
			Concurrency: runtime.NumCPU(),
			Input:       "chat_template_to_model_ids.json",
			Output:      "template_analysis_results.json",
			ShapeOutput: "shape_frequency_results.json",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML config file on top of the defaults and applies
// environment overrides. A missing file is not an error; the defaults
// are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Bulk.Concurrency <= 0 {
		cfg.Bulk.Concurrency = runtime.NumCPU()
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if db := os.Getenv(EnvDatabasePath); db != "" {
		c.Store.DatabasePath = db
	}
}
