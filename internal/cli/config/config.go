// Package config loads harness configuration from slang-harness.yml and the
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the harness configuration.
type Config struct {
	// Binary is the path to the slang server executable.
	Binary string `mapstructure:"binary"`

	// Record runs the server under `rr record`.
	Record bool `mapstructure:"record"`

	// DebugWaitSeconds pauses after launch so a debugger can attach.
	DebugWaitSeconds int `mapstructure:"debug_wait"`

	// TimeoutSeconds bounds each request or notification wait.
	TimeoutSeconds int `mapstructure:"timeout"`

	// Workspace is the workspace root sent during initialize. Empty means
	// the current directory.
	Workspace string `mapstructure:"workspace"`
}

// Load loads the configuration from slang-harness.yml, falling back to
// defaults. Environment variables prefixed SLANG_HARNESS_ override the file.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("binary", "build/bin/slang-server")
	v.SetDefault("record", false)
	v.SetDefault("debug_wait", 0)
	v.SetDefault("timeout", 30)
	v.SetDefault("workspace", "")

	v.SetConfigName("slang-harness")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SLANG_HARNESS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Timeout returns the configured wait timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DebugWait returns the configured attach pause as a duration.
func (c *Config) DebugWait() time.Duration {
	return time.Duration(c.DebugWaitSeconds) * time.Second
}

func validateConfig(config *Config) error {
	if config.Binary == "" {
		return fmt.Errorf("binary must not be empty")
	}
	if config.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	if config.DebugWaitSeconds < 0 {
		return fmt.Errorf("debug_wait must not be negative, got %d", config.DebugWaitSeconds)
	}
	return nil
}
