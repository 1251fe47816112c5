package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/plugkit/internal/config"
	"github.com/harun/plugkit/pkg/plugin"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Bump the reload trigger so running hosts reconcile",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cfg.PluginsDir == "" {
			return fmt.Errorf("plugins_dir is not configured")
		}

		if err := plugin.TouchTrigger(cfg.PluginsDir); err != nil {
			return fmt.Errorf("failed to touch reload trigger: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Reconcile requested.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(triggerCmd)
}
