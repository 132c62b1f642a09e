// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bugreport/bugreport/internal/config"
	"github.com/bugreport/bugreport/internal/logging"
)

const serviceName = "bugreport"

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the bugreport CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bugreport",
		Short: "BugReport - issue tracking API",
		Long: `BugReport is an issue tracker served as a JSON API, with
account registration, token based authentication and password reset by email.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/bugreport/config.yaml)")
	flags.StringVar(&envFile, "env-file", "", "dotenv file read before the environment (default: .env when present)")
	flags.String("log-format", "json", "log format (json or text)")
	flags.String("log-level", "info", "log level (debug, info, warn or error)")
	flags.String("database-url", "", "PostgreSQL connection URL")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadConfig reads the layered configuration. Flags set on cmd or its
// parents take precedence over every other source.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.Options{ //nolint:wrapcheck // oops errors carry codes already
		File:    configFile,
		EnvFile: envFile,
		Flags:   cmd.Flags(),
	})
}

// setupLogging installs the process logger described by cfg.
func setupLogging(cfg *config.Config) *slog.Logger {
	return logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
}
