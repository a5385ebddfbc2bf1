// Package config provides configuration loading and management for ricedebias.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
// Command-line flags take precedence over values set here.
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many worker goroutines to use for the
		// parallel correction phase
		NumCores int `yaml:"numCores"`

		// ChunkSize is the number of series-axis indices dispatched to a
		// worker at a time
		ChunkSize int `yaml:"chunkSize"`

		// MaxDiff is the default maximum diffusivity in mm²/s, overridable
		// with --maxdiff
		MaxDiff float64 `yaml:"maxDiff"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// ExtractSlices enables saving QC slice images of the corrected volume
		ExtractSlices bool `yaml:"extractSlices"`

		// SlicesDir is the directory QC slice images are written to
		SlicesDir string `yaml:"slicesDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.ChunkSize = 10
	cfg.Processing.MaxDiff = 3.05e-3

	// Set default output parameters
	cfg.Output.Verbose = true
	cfg.Output.ExtractSlices = false
	cfg.Output.SlicesDir = "qc_slices"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
