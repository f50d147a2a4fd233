package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/warden/internal/config"
	"github.com/holomush/warden/internal/xdg"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the warden CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warden",
		Short: "warden - session-based authentication service",
		Long: `warden registers users, logs them in with session cookies and
resets their passwords, backed by memory, PostgreSQL or Redis.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewHashPasswordCmd())

	return cmd
}

// loadConfig reads settings for cmd from the config file, the environment
// and the flags the user changed. Without --config, the XDG config file is
// used when present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file := configFile
	if file == "" {
		found, err := xdg.FindConfigFile()
		if err != nil {
			return nil, err
		}
		file = found
	}
	//nolint:wrapcheck // config errors carry their own codes
	return config.Load(config.LoadOptions{
		File:   file,
		DotEnv: envFile,
		Flags:  cmd.Flags(),
	})
}
