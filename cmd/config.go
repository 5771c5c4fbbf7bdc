package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/vecview/internal/config"
	"github.com/Yates-Labs/vecview/internal/ui"
)

var (
	configForce  bool
	configOutput string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage vecview configuration",
	// Config commands never open the database.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default settings",
	Long: `Write a configuration file holding every default setting.

The file is created at $XDG_CONFIG_HOME/vecview/config.yaml (or
~/.config/vecview/config.yaml) unless --output is given.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configInitCmd.Flags().StringVarP(&configOutput, "output", "o", "", "Output path (default user config path)")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configOutput
	if path == "" {
		path = config.UserConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.NewConfig().WriteYAML(path); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), ui.DefaultStyles().Success.Render("✓ Wrote config to "+path))
	return nil
}
