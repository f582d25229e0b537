package config

// ServiceConfig defines the standard configuration lifecycle methods.
// Each section implements it so LoadConfig handles them uniformly.
type ServiceConfig interface {
	// ApplyDefaults fills zero values with sensible defaults
	ApplyDefaults()

	// ApplyEnvOverrides applies DEVBRIDGE_* environment variable overrides
	ApplyEnvOverrides()

	// ResolvePaths resolves relative paths against the config directory.
	ResolvePaths(configDir string)

	// Validate returns an error if the configuration is invalid.
	Validate() error
}

// ApplyServiceConfigs applies the configuration lifecycle to all service configs.
// It calls ApplyDefaults, ApplyEnvOverrides, ResolvePaths, and Validate in order.
func ApplyServiceConfigs(configDir string, configs ...ServiceConfig) error {
	for _, cfg := range configs {
		cfg.ApplyDefaults()
		cfg.ApplyEnvOverrides()
		cfg.ResolvePaths(configDir)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}
