package config

import (
	"log/slog"
	"os"
	"path/filepath"

	server "github.com/syntrixbase/devbridge/internal/server"
	"gopkg.in/yaml.v3"
)

// DefaultDir is where LoadConfig looks for relay.yml and relay.local.yml.
const DefaultDir = "config"

// Config holds the relay configuration
type Config struct {
	Server  server.Config `yaml:"server"`
	Channel ChannelConfig `yaml:"channel"`
	Relay   RelayConfig   `yaml:"relay"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the built-in configuration before any file is read.
func Default() *Config {
	return &Config{
		Server:  server.DefaultConfig(),
		Channel: DefaultChannelConfig(),
		Relay:   DefaultRelayConfig(),
		Auth:    DefaultAuthConfig(),
		Logging: DefaultLoggingConfig(),
	}
}

// LoadConfig loads configuration from dir and environment variables
// Order: defaults -> relay.yml -> relay.local.yml -> ApplyDefaults -> ApplyEnvOverrides -> ResolvePaths -> Validate
func LoadConfig(dir string) (*Config, error) {
	if dir == "" {
		dir = DefaultDir
	}

	// Defaults first so YAML can override them, including bool fields
	cfg := Default()

	loadFile(filepath.Join(dir, "relay.yml"), cfg)
	loadFile(filepath.Join(dir, "relay.local.yml"), cfg)

	if err := cfg.Finalize(dir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize runs the configuration lifecycle on every section.
func (c *Config) Finalize(configDir string) error {
	return ApplyServiceConfigs(configDir,
		&c.Server,
		&c.Channel,
		&c.Relay,
		&c.Auth,
		&c.Logging,
	)
}

func loadFile(filename string, cfg *Config) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return // File doesn't exist, skip
		}
		slog.Warn("Error reading config file", "file", filename, "error", err)
		return
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Error parsing config file", "file", filename, "error", err)
	}
}
