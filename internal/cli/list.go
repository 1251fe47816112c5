package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harun/plugkit/internal/config"
	"github.com/harun/plugkit/pkg/plugin"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List plugins found in the plugins directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cfg.PluginsDir == "" {
			return fmt.Errorf("plugins_dir is not configured")
		}

		entries, err := os.ReadDir(cfg.PluginsDir)
		if err != nil {
			return fmt.Errorf("failed to read plugins directory: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tTYPE\tENABLED\tDIRECTORY")

		found := 0
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(cfg.PluginsDir, entry.Name())
			if _, err := os.Stat(filepath.Join(dir, plugin.EntryFileName)); err != nil {
				continue
			}
			found++

			name := entry.Name()
			pluginVersion := "-"
			pluginType := "-"
			enabled := true

			if manifest, err := readManifest(dir); err == nil {
				if manifest.Name != "" {
					name = manifest.Name
				}
				if manifest.Version != "" {
					pluginVersion = manifest.Version
				}
				if manifest.Type != "" {
					pluginType = manifest.Type
				}
				enabled = manifest.IsEnabled()
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", name, pluginVersion, pluginType, enabled, entry.Name())
		}

		if err := w.Flush(); err != nil {
			return err
		}
		if found == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No plugins found.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
