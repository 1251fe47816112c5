package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/harun/plugkit/internal/logger"
)

// Config is the host configuration for the plugkit runtime and CLI.
type Config struct {
	PluginsDir     string        `mapstructure:"plugins_dir"`
	DataDir        string        `mapstructure:"data_dir"`
	AgentID        string        `mapstructure:"agent_id"`
	AllowedTools   []string      `mapstructure:"allowed_tools"`
	ReloadInterval int           `mapstructure:"reload_interval_seconds"`
	Logging        logger.Config `mapstructure:"logging"`
}

// DefaultConfig returns the default host configuration.
func DefaultConfig() *Config {
	return &Config{
		AllowedTools:   []string{},
		ReloadInterval: 5,
		Logging:        logger.DefaultConfig(),
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.PluginsDir == "" {
		return fmt.Errorf("plugins_dir is required")
	}
	info, err := os.Stat(c.PluginsDir)
	if err != nil {
		return fmt.Errorf("plugins_dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("plugins_dir %s is not a directory", c.PluginsDir)
	}
	if c.ReloadInterval <= 0 {
		return fmt.Errorf("reload_interval_seconds must be positive")
	}
	return nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".plugkit", "plugkit.json"), nil
}
