package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harun/plugkit/internal/config"
	"github.com/harun/plugkit/pkg/plugin"
)

var enableCmd = &cobra.Command{
	Use:   "enable <plugin>",
	Short: "Enable a plugin and request a reconcile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <plugin>",
	Short: "Disable a plugin and request a reconcile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], false)
	},
}

// setEnabled flips only the enabled field of the manifest, leaving every
// other persisted field untouched for the runtime to regenerate.
func setEnabled(cmd *cobra.Command, name string, enabled bool) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	dir, err := findPluginDir(cfg.PluginsDir, name)
	if err != nil {
		return err
	}

	manifestPath := filepath.Join(dir, plugin.ManifestFileName)
	raw := map[string]any{"name": name}
	if data, err := os.ReadFile(manifestPath); err == nil {
		var existing map[string]any
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("failed to parse manifest %s: %w", manifestPath, err)
		}
		raw = existing
	}
	raw["enabled"] = enabled

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := plugin.TouchTrigger(cfg.PluginsDir); err != nil {
		return fmt.Errorf("failed to touch reload trigger: %w", err)
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Plugin %q %s; reconcile requested.\n", name, state)
	return nil
}

// findPluginDir locates the plugin directory whose manifest name or directory
// name matches.
func findPluginDir(pluginsDir, name string) (string, error) {
	if pluginsDir == "" {
		return "", fmt.Errorf("plugins_dir is not configured")
	}

	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		return "", fmt.Errorf("failed to read plugins directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(pluginsDir, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, plugin.EntryFileName)); err != nil {
			continue
		}
		if entry.Name() == name {
			return dir, nil
		}
		if manifest, err := readManifest(dir); err == nil && manifest.Name == name {
			return dir, nil
		}
	}

	return "", fmt.Errorf("plugin %q not found under %s", name, pluginsDir)
}

func readManifest(dir string) (*plugin.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, plugin.ManifestFileName))
	if err != nil {
		return nil, err
	}
	var manifest plugin.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

func init() {
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}
