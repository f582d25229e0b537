package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the configuration for the relay HTTP server.
type Config struct {
	Host string `yaml:"host"`

	HTTPPort         int           `yaml:"http_port"`
	HTTPReadTimeout  time.Duration `yaml:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `yaml:"http_write_timeout"`
	HTTPIdleTimeout  time.Duration `yaml:"http_idle_timeout"`

	// CORS
	EnableCORS       bool     `yaml:"enable_cors"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	CORSMaxAge       int      `yaml:"cors_max_age"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns safe defaults for development.
func DefaultConfig() Config {
	return Config{
		Host:             "localhost",
		HTTPPort:         8000,
		HTTPReadTimeout:  10 * time.Second,
		HTTPWriteTimeout: 10 * time.Second,
		HTTPIdleTimeout:  60 * time.Second,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		CORSMaxAge:       600,
		ShutdownTimeout:  10 * time.Second,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = defaults.HTTPPort
	}
	if c.HTTPReadTimeout == 0 {
		c.HTTPReadTimeout = defaults.HTTPReadTimeout
	}
	if c.HTTPWriteTimeout == 0 {
		c.HTTPWriteTimeout = defaults.HTTPWriteTimeout
	}
	if c.HTTPIdleTimeout == 0 {
		c.HTTPIdleTimeout = defaults.HTTPIdleTimeout
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = defaults.AllowedMethods
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = defaults.AllowedHeaders
	}
	if c.CORSMaxAge == 0 {
		c.CORSMaxAge = defaults.CORSMaxAge
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
}

// ApplyEnvOverrides applies DEVBRIDGE_HOST and DEVBRIDGE_HTTP_PORT.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DEVBRIDGE_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("DEVBRIDGE_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = port
		}
	}
}

// ResolvePaths resolves relative paths using the given base directory.
// No paths to resolve in server config.
func (c *Config) ResolvePaths(_ string) {}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", c.HTTPPort)
	}
	if c.AllowCredentials {
		for _, o := range c.AllowedOrigins {
			if o == "*" {
				return errors.New("server.allow_credentials cannot be used with a wildcard origin")
			}
		}
	}
	return nil
}
