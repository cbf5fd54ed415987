// Package config loads user settings for the analysis tools.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultConfigPath = "~/.config/nma/config.json"

	// EnvConfig names the environment variable that overrides the config path.
	EnvConfig = "NMA_CONFIG"
)

// Config holds user-editable settings.
type Config struct {
	Analysis Analysis `json:"analysis" toml:"analysis"`
	Logging  Logging  `json:"logging" toml:"logging"`
	Paths    Paths    `json:"paths" toml:"paths"`
	Server   Server   `json:"server" toml:"server"`
}

// Analysis captures contour and segmentation parameters.
type Analysis struct {
	Interval         float64 `json:"interval" toml:"interval"`                   // Border interpolation interval in pixels
	WindowProportion float64 `json:"window_proportion" toml:"window_proportion"` // Angle window as a fraction of perimeter
	MinSegmentLength int     `json:"min_segment_length" toml:"min_segment_length"`
	SegmentCount     int     `json:"segment_count" toml:"segment_count"`
	RuleSet          string  `json:"rule_set" toml:"rule_set"` // Built-in name or path to a YAML rule set
	Workers          int     `json:"workers" toml:"workers"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level" toml:"level"`             // debug, info, warn, error
	Format     string `json:"format" toml:"format"`           // text, json
	FileOutput bool   `json:"file_output" toml:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir" toml:"log_dir"`         // Directory for log files
}

// Paths configures default storage locations.
type Paths struct {
	DatabasePath string `json:"database_path" toml:"database_path"`
	WatchDir     string `json:"watch_dir" toml:"watch_dir"`
}

// Server configures the HTTP API.
type Server struct {
	Address string `json:"address" toml:"address"`
}

// Load reads the config file named by $NMA_CONFIG, or the default path.
// A missing file yields the defaults.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfig)
	if configPath == "" {
		configPath = defaultConfigPath
	}
	return LoadFile(configPath)
}

// LoadFile reads the config at path over the defaults. Files ending in
// .toml are read as TOML, anything else as JSON.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	expanded, err := expandUser(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(expanded), ".toml") {
		_, err = toml.NewDecoder(f).Decode(cfg)
	} else {
		err = json.NewDecoder(f).Decode(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", expanded, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", expanded, err)
	}

	return cfg, nil
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Analysis: Analysis{
			Interval:         1,
			WindowProportion: 0.05,
			MinSegmentLength: 10,
			SegmentCount:     4,
			RuleSet:          "round",
			Workers:          runtime.NumCPU(),
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Paths: Paths{
			DatabasePath: filepath.Join(os.TempDir(), "nma.db"),
			WatchDir:     ".",
		},
		Server: Server{
			Address: "127.0.0.1:8080",
		},
	}
}

// Validate rejects settings the analysis cannot run with.
func (c *Config) Validate() error {
	a := c.Analysis
	switch {
	case a.Interval <= 0:
		return fmt.Errorf("analysis.interval must be positive, got %v", a.Interval)
	case a.WindowProportion <= 0 || a.WindowProportion >= 1:
		return fmt.Errorf("analysis.window_proportion must be in (0,1), got %v", a.WindowProportion)
	case a.MinSegmentLength < 1:
		return fmt.Errorf("analysis.min_segment_length must be at least 1, got %d", a.MinSegmentLength)
	case a.SegmentCount < 1:
		return fmt.Errorf("analysis.segment_count must be at least 1, got %d", a.SegmentCount)
	}
	return nil
}

// Save writes the config as indented JSON, or TOML for a .toml path.
func (c *Config) Save(path string) error {
	expanded, err := expandUser(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(expanded), ".toml") {
		f, err := os.Create(expanded)
		if err != nil {
			return err
		}
		defer f.Close()
		return toml.NewEncoder(f).Encode(c)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(expanded, data, 0644)
}

// Path returns the config path Load would read.
func Path() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return defaultConfigPath
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
