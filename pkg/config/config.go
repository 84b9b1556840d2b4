// Package config provides configuration loading and management for sigmatod.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Instrument parameters
	Instrument struct {
		// Preset names a built-in instrument profile applied before the
		// explicit values below (empty means no preset)
		Preset string `yaml:"preset"`

		// SystemCorrection scales noise-subtracted RMS to Sigma
		SystemCorrection float64 `yaml:"systemCorrection"`

		// NAi is the illumination numerical aperture
		NAi float64 `yaml:"nai"`

		// Noise is the instrument noise floor subtracted in quadrature from RMS
		Noise float64 `yaml:"noise"`
	} `yaml:"instrument"`

	// Conversion parameters
	Conversion struct {
		// ExactMode controls when the exact solver runs: "if-requested",
		// "always", or "never"
		ExactMode string `yaml:"exactMode"`

		// RequestExact asks for exact values when ExactMode is "if-requested"
		RequestExact bool `yaml:"requestExact"`

		// Strict promotes range and self-check advisories to errors
		Strict bool `yaml:"strict"`

		// Workers is the number of goroutines for exact solving
		Workers int `yaml:"workers"`

		// PrecisionDigits is the working precision of the exact solver
		PrecisionDigits int `yaml:"precisionDigits"`
	} `yaml:"conversion"`

	// Coefficients parameters
	Coefficients struct {
		// File is a path to a polynomial calibration table
		// (empty means the shipped legacy table)
		File string `yaml:"file"`
	} `yaml:"coefficients"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// Preset holds the instrument values a named profile applies.
type Preset struct {
	SystemCorrection float64
	NAi              float64
	Noise            float64
}

// Presets returns the built-in instrument profiles by name. "lcpws1"
// and "live" are the live-cell PWS systems; "storm" is the lower-NA
// STORM-adapted bench.
func Presets() map[string]Preset {
	return map[string]Preset{
		"lcpws1": {SystemCorrection: 2.43, NAi: 0.55, Noise: 0.009},
		"live":   {SystemCorrection: 2.43, NAi: 0.55, Noise: 0.009},
		"storm":  {SystemCorrection: 2.43, NAi: 0.40, Noise: 0.012},
	}
}

// ApplyPreset overwrites the instrument section with the named profile.
func ApplyPreset(cfg *Config, name string) error {
	p, ok := Presets()[name]
	if !ok {
		return fmt.Errorf("unknown instrument preset %q", name)
	}
	cfg.Instrument.Preset = name
	cfg.Instrument.SystemCorrection = p.SystemCorrection
	cfg.Instrument.NAi = p.NAi
	cfg.Instrument.Noise = p.Noise
	return nil
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default instrument parameters (the lcpws1 profile)
	cfg.Instrument.Preset = "lcpws1"
	cfg.Instrument.SystemCorrection = 2.43
	cfg.Instrument.NAi = 0.55
	cfg.Instrument.Noise = 0.009

	// Set default conversion parameters
	cfg.Conversion.ExactMode = "if-requested"
	cfg.Conversion.RequestExact = false
	cfg.Conversion.Strict = false
	cfg.Conversion.Workers = runtime.NumCPU() // Use all available cores by default
	cfg.Conversion.PrecisionDigits = 40

	// Set default coefficient parameters
	cfg.Coefficients.File = ""

	// Set default output parameters
	cfg.Output.Verbose = true

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
