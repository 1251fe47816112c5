package plugin

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// ConfigFileName is the per-plugin persisted user configuration file, stored
// under the plugin's data directory.
const ConfigFileName = "config.json"

// ExecutionContext is the isolated environment a plugin is instantiated with.
// Ownership passes to the plugin; the manager does not retain it.
type ExecutionContext struct {
	AgentID     string
	ProjectRoot string
	Bus         EventBus
	Config      map[string]any
	DataDir     string
	PluginDir   string

	// Identity fields assigned by the loader.
	Name    string
	Version string
	Type    string
}

// ContextBuilder assembles execution contexts for plugin instantiation.
type ContextBuilder struct {
	logger      zerolog.Logger
	agentID     string
	projectRoot string
	bus         EventBus
}

// NewContextBuilder creates a context builder. The bus reference is shared
// and non-owning.
func NewContextBuilder(logger zerolog.Logger, agentID, projectRoot string, bus EventBus) *ContextBuilder {
	return &ContextBuilder{
		logger:      logger.With().Str("component", "context-builder").Logger(),
		agentID:     agentID,
		projectRoot: projectRoot,
		bus:         bus,
	}
}

// Build constructs a fresh execution context for one plugin load.
func (b *ContextBuilder) Build(meta Metadata, pluginDir string) *ExecutionContext {
	dataDir := filepath.Join(b.projectRoot, "data", "plugins", meta.Name)

	return &ExecutionContext{
		AgentID:     b.agentID,
		ProjectRoot: b.projectRoot,
		Bus:         b.bus,
		Config:      b.resolveConfig(meta, dataDir),
		DataDir:     dataDir,
		PluginDir:   pluginDir,
		Name:        meta.Name,
		Version:     meta.Version,
		Type:        meta.Type,
	}
}

// resolveConfig layers schema-declared defaults under persisted user values.
// A missing or unparseable user config file leaves the defaults in place.
func (b *ContextBuilder) resolveConfig(meta Metadata, dataDir string) map[string]any {
	v := viper.New()
	for key, field := range meta.ConfigSchema {
		if field.Default != nil {
			v.SetDefault(key, field.Default)
		}
	}

	configPath := filepath.Join(dataDir, ConfigFileName)
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			b.logger.Warn().
				Err(err).
				Str("plugin", meta.Name).
				Str("path", configPath).
				Msg("Failed to read persisted plugin config, using schema defaults")
		}
	}

	return v.AllSettings()
}
