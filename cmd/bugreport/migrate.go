// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/bugreport/bugreport/internal/config"
)

// migrateConfig holds flags for the migrate subcommands.
type migrateConfig struct {
	all bool
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	cfg := &migrateConfig{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back and inspect the embedded PostgreSQL schema migrations.`,
	}

	run := func(action string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runMigrateWithDeps(cmd.Context(), appCfg, cmd, action, args, cfg, nil)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  run("up"),
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Long: `Roll back the most recent migration. With --all every migration is
rolled back and all data is lost.`,
		Args: cobra.NoArgs,
		RunE: run("down"),
	}
	down.Flags().BoolVar(&cfg.all, "all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		Args:  cobra.NoArgs,
		RunE:  run("status"),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		Args:  cobra.NoArgs,
		RunE:  run("version"),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Mark VERSION as applied without running any SQL. Use it to clear the
dirty flag after fixing a migration that failed partway.`,
		Args: cobra.ExactArgs(1),
		RunE: run("force"),
	})

	return cmd
}

func runMigrateWithDeps(_ context.Context, appCfg *config.Config, cmd *cobra.Command, action string,
	args []string, cfg *migrateConfig, deps *MigrateDeps,
) error {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = newMigrator
	}

	if err := appCfg.ValidateDatabase(); err != nil {
		return err //nolint:wrapcheck // coded by config
	}
	logger := setupLogging(appCfg)

	// Parse before connecting so a typo never touches the database.
	var forceVersion int
	if action == "force" {
		v, err := parseForceVersion(args[0])
		if err != nil {
			return err
		}
		forceVersion = v
	}

	m, err := deps.MigratorFactory(appCfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	switch action {
	case "up":
		cmd.Println("Running migrations...")
		if err := m.Up(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "migrate up").Wrap(err)
		}
		cmd.Println("Migrations completed successfully")
	case "down":
		if cfg.all {
			cmd.Println("Rolling back all migrations...")
			err = m.Down()
		} else {
			cmd.Println("Rolling back one migration...")
			err = m.Steps(-1)
		}
		if err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "migrate down").With("all", cfg.all).Wrap(err)
		}
		cmd.Println("Rollback completed successfully")
	case "status":
		return printStatus(cmd, m)
	case "version":
		st, err := m.Status()
		if err != nil {
			return oops.Code("MIGRATION_STATUS_FAILED").With("operation", "read version").Wrap(err)
		}
		cmd.Println(formatVersion(st.Version, st.Dirty))
	case "force":
		if err := m.Force(forceVersion); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "force version").With("version", forceVersion).Wrap(err)
		}
		logger.Info("forced migration version", "version", forceVersion)
		cmd.Printf("Forced version %d\n", forceVersion)
	default:
		return oops.Code("MIGRATION_UNKNOWN_ACTION").With("action", action).Errorf("unknown migrate action %q", action)
	}
	return nil
}

func printStatus(cmd *cobra.Command, m Migrator) error {
	st, err := m.Status()
	if err != nil {
		return oops.Code("MIGRATION_STATUS_FAILED").With("operation", "read status").Wrap(err)
	}

	current := formatVersion(st.Version, st.Dirty)
	if st.Name != "" {
		current += " (" + st.Name + ")"
	}
	cmd.Println("Current version: " + current)
	if st.Dirty {
		cmd.Println("Database is dirty: fix the failed migration, then run migrate force")
	}

	if len(st.Pending) == 0 {
		cmd.Println("Database is up to date")
		return nil
	}
	pending := make([]string, len(st.Pending))
	for i, v := range st.Pending {
		pending[i] = fmt.Sprintf("%06d", v)
	}
	cmd.Printf("Pending migrations (%d): %s\n", len(pending), strings.Join(pending, ", "))
	return nil
}

func formatVersion(version uint, dirty bool) string {
	if version == 0 {
		return "none"
	}
	if dirty {
		return fmt.Sprintf("%d (dirty)", version)
	}
	return fmt.Sprintf("%d", version)
}

// parseForceVersion reads the leading integer of s.
func parseForceVersion(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer, got %q", s)
	}
	return v, nil
}
