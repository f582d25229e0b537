package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/syntrixbase/devbridge/internal/actionlog"
	"github.com/syntrixbase/devbridge/internal/relay/filter"
)

// RelayConfig holds history and relay behavior settings.
type RelayConfig struct {
	// MaxAge is the number of history entries kept per instance.
	MaxAge int `yaml:"max_age"`
	// Sync starts the relay in sync mode.
	Sync    bool          `yaml:"sync"`
	Filters FiltersConfig `yaml:"filters"`
}

// FiltersConfig holds CEL action filter expressions.
type FiltersConfig struct {
	Allow string `yaml:"allow"`
	Deny  string `yaml:"deny"`
}

// DefaultRelayConfig returns default relay configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{MaxAge: actionlog.DefaultMaxAge}
}

// ApplyDefaults fills in missing values with defaults
func (c *RelayConfig) ApplyDefaults() {
	if c.MaxAge == 0 {
		c.MaxAge = actionlog.DefaultMaxAge
	}
}

// ApplyEnvOverrides applies DEVBRIDGE_MAX_AGE and DEVBRIDGE_SYNC.
func (c *RelayConfig) ApplyEnvOverrides() {
	if v := os.Getenv("DEVBRIDGE_MAX_AGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAge = n
		}
	}
	if v := os.Getenv("DEVBRIDGE_SYNC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Sync = b
		}
	}
}

// ResolvePaths is a no-op; the relay section has no file paths.
func (c *RelayConfig) ResolvePaths(_ string) {}

// Validate validates the configuration, compiling the filter expressions.
func (c *RelayConfig) Validate() error {
	if c.MaxAge < 1 {
		return fmt.Errorf("relay max_age must be at least 1, got %d", c.MaxAge)
	}
	if _, err := c.Filter(); err != nil {
		return fmt.Errorf("relay filters: %w", err)
	}
	return nil
}

// Filter compiles the configured filter.
func (c *RelayConfig) Filter() (*filter.Filter, error) {
	return filter.New(c.Filters.Allow, c.Filters.Deny)
}
