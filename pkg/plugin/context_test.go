package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextBuilder_Build(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	bus := newFakeBus()
	root := t.TempDir()
	pluginDir := filepath.Join(root, "plugins", "notes")

	builder := NewContextBuilder(logger, "agent-1", root, bus)

	meta := Metadata{
		Name:    "notes",
		Version: "1.0.0",
		Type:    "feature",
		ConfigSchema: map[string]SchemaField{
			"retention_days": {Type: "integer", Default: 30},
			"endpoint":       {Type: "string", Default: "http://localhost"},
			"token":          {Type: "string"}, // no default
		},
	}

	t.Run("schema defaults without user config", func(t *testing.T) {
		ec := builder.Build(meta, pluginDir)

		assert.Equal(t, "agent-1", ec.AgentID)
		assert.Equal(t, root, ec.ProjectRoot)
		assert.Equal(t, pluginDir, ec.PluginDir)
		assert.Equal(t, filepath.Join(root, "data", "plugins", "notes"), ec.DataDir)
		assert.Equal(t, "notes", ec.Name)
		assert.Equal(t, "1.0.0", ec.Version)
		assert.Equal(t, "feature", ec.Type)

		assert.Equal(t, 30, ec.Config["retention_days"])
		assert.Equal(t, "http://localhost", ec.Config["endpoint"])
		_, hasToken := ec.Config["token"]
		assert.False(t, hasToken)
	})

	t.Run("persisted user values override defaults", func(t *testing.T) {
		dataDir := filepath.Join(root, "data", "plugins", "notes")
		require.NoError(t, os.MkdirAll(dataDir, 0755))
		userConfig := `{"retention_days": 7, "token": "secret"}`
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, ConfigFileName), []byte(userConfig), 0644))

		ec := builder.Build(meta, pluginDir)

		assert.EqualValues(t, 7, ec.Config["retention_days"])
		assert.Equal(t, "secret", ec.Config["token"])
		assert.Equal(t, "http://localhost", ec.Config["endpoint"])
	})

	t.Run("unparseable user config falls back to defaults", func(t *testing.T) {
		dataDir := filepath.Join(root, "data", "plugins", "broken")
		require.NoError(t, os.MkdirAll(dataDir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, ConfigFileName), []byte("{nope"), 0644))

		brokenMeta := Metadata{
			Name: "broken",
			ConfigSchema: map[string]SchemaField{
				"limit": {Type: "integer", Default: 10},
			},
		}
		ec := builder.Build(brokenMeta, pluginDir)

		assert.Equal(t, 10, ec.Config["limit"])
	})
}
