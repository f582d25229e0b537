package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"text": true, "json": true}
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string         `yaml:"level"`  // debug, info, warn, error
	Format   string         `yaml:"format"` // text, json
	Dir      string         `yaml:"dir"`
	Rotation RotationConfig `yaml:"rotation"`
	Console  SinkConfig     `yaml:"console"`
	File     SinkConfig     `yaml:"file"`
}

// RotationConfig holds log rotation settings
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // MB
	MaxBackups int  `yaml:"max_backups"` // files
	MaxAge     int  `yaml:"max_age"`     // days
	Compress   bool `yaml:"compress"`
}

// SinkConfig configures one log destination. Empty Level and Format inherit
// from the top-level settings.
type SinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

// DefaultLoggingConfig returns default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Dir:    "logs",
		Rotation: RotationConfig{
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		},
		Console: SinkConfig{Enabled: true, Level: "info", Format: "text"},
		File:    SinkConfig{Enabled: false, Level: "info", Format: "text"},
	}
}

// ApplyDefaults fills in missing values with defaults
func (c *LoggingConfig) ApplyDefaults() {
	defaults := DefaultLoggingConfig()
	if c.Level == "" {
		c.Level = defaults.Level
	}
	if c.Format == "" {
		c.Format = defaults.Format
	}
	if c.Dir == "" {
		c.Dir = defaults.Dir
	}
	if c.Rotation.MaxSize == 0 {
		c.Rotation.MaxSize = defaults.Rotation.MaxSize
	}
	if c.Rotation.MaxBackups == 0 {
		c.Rotation.MaxBackups = defaults.Rotation.MaxBackups
	}
	if c.Rotation.MaxAge == 0 {
		c.Rotation.MaxAge = defaults.Rotation.MaxAge
	}
	// A console section left entirely empty means "on".
	if c.Console == (SinkConfig{}) {
		c.Console.Enabled = true
	}
	c.Console.inherit(c.Level, c.Format)
	c.File.inherit(c.Level, c.Format)
}

func (s *SinkConfig) inherit(level, format string) {
	if s.Level == "" {
		s.Level = level
	}
	if s.Format == "" {
		s.Format = format
	}
}

// ApplyEnvOverrides applies DEVBRIDGE_LOG_LEVEL, DEVBRIDGE_LOG_FORMAT and DEVBRIDGE_LOG_DIR.
// The level and format overrides reach both sinks.
func (c *LoggingConfig) ApplyEnvOverrides() {
	if v := os.Getenv("DEVBRIDGE_LOG_LEVEL"); v != "" {
		v = strings.ToLower(v)
		c.Level, c.Console.Level, c.File.Level = v, v, v
	}
	if v := os.Getenv("DEVBRIDGE_LOG_FORMAT"); v != "" {
		v = strings.ToLower(v)
		c.Format, c.Console.Format, c.File.Format = v, v, v
	}
	if v := os.Getenv("DEVBRIDGE_LOG_DIR"); v != "" {
		c.Dir = v
		c.File.Enabled = true
	}
}

// ResolvePaths resolves a relative log directory next to the config
// directory, or from it when the path climbs with "..".
func (c *LoggingConfig) ResolvePaths(configDir string) {
	if c.Dir == "" || filepath.IsAbs(c.Dir) {
		return
	}
	base := filepath.Dir(configDir)
	if strings.HasPrefix(c.Dir, "..") {
		base = configDir
	}
	c.Dir = filepath.Clean(filepath.Join(base, c.Dir))
}

// Validate validates the configuration
func (c *LoggingConfig) Validate() error {
	if !validLevels[c.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Format)
	}
	if c.File.Enabled && c.Dir == "" {
		return fmt.Errorf("log directory cannot be empty when file logging is enabled")
	}
	for name, sink := range map[string]SinkConfig{"console": c.Console, "file": c.File} {
		if !sink.Enabled {
			continue
		}
		if sink.Level != "" && !validLevels[sink.Level] {
			return fmt.Errorf("invalid %s log level: %s", name, sink.Level)
		}
		if sink.Format != "" && !validFormats[sink.Format] {
			return fmt.Errorf("invalid %s log format: %s", name, sink.Format)
		}
	}
	return nil
}
