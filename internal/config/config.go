// Package config wraps viper behind a small read-only accessor and loads the
// typed hostpanel settings from defaults, an optional YAML file and the
// environment.
package config

import "github.com/spf13/viper"

// Config is a read-only view over a viper instance. A nil viper behaves like
// an empty configuration.
type Config struct {
	v *viper.Viper
}

// New wraps v. Passing nil yields an empty configuration.
func New(v *viper.Viper) *Config {
	if v == nil {
		v = viper.New()
	}
	return &Config{v: v}
}

// Unmarshal decodes the whole configuration into target using mapstructure tags.
func (c *Config) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

// AllSettings returns the merged configuration as a nested map.
func (c *Config) AllSettings() map[string]any {
	return c.v.AllSettings()
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (c *Config) ConfigFileUsed() string {
	return c.v.ConfigFileUsed()
}
