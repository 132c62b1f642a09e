// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bugreport/bugreport/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, the config file, the
environment and flags. Secrets and the database password are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runConfig(cmd, cfg, validate)
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "also check that the settings are sufficient for serve")

	return cmd
}

func runConfig(cmd *cobra.Command, cfg *config.Config, validate bool) error {
	check := cfg.Validate
	if validate {
		check = cfg.ValidateServe
	}
	if err := check(); err != nil {
		return err //nolint:wrapcheck // coded by config
	}

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	cmd.Print(string(out))
	return nil
}
