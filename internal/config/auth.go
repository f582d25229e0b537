package config

import (
	"errors"
	"os"
	"time"
)

// AuthConfig holds relay API authentication settings.
type AuthConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// DefaultAuthConfig returns default auth configuration
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Issuer:   "devbridge",
		TokenTTL: 12 * time.Hour,
	}
}

// ApplyDefaults fills in missing values with defaults
func (c *AuthConfig) ApplyDefaults() {
	defaults := DefaultAuthConfig()
	if c.Issuer == "" {
		c.Issuer = defaults.Issuer
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = defaults.TokenTTL
	}
}

// ApplyEnvOverrides applies DEVBRIDGE_AUTH_SECRET. Setting it enables auth.
func (c *AuthConfig) ApplyEnvOverrides() {
	if v := os.Getenv("DEVBRIDGE_AUTH_SECRET"); v != "" {
		c.Secret = v
		c.Enabled = true
	}
}

// ResolvePaths is a no-op; the auth section has no file paths.
func (c *AuthConfig) ResolvePaths(_ string) {}

// Validate validates the configuration
func (c *AuthConfig) Validate() error {
	if c.Enabled && len(c.Secret) < 16 {
		return errors.New("auth secret must be at least 16 characters when auth is enabled")
	}
	return nil
}
