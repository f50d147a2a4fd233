// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// migratorFactory is swapped by tests.
var migratorFactory = newStoreMigrator

// NewMigrateCmd creates the migrate subcommand. Without a subcommand it
// applies all pending migrations.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Apply, roll back or inspect the embedded users and sessions schema.
Run without a subcommand to apply all pending migrations.`,
		RunE: runMigrateUp,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL URL (default: DATABASE_URL)")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE:  runMigrateUp,
	}
	up.Flags().Int("steps", 0, "apply at most this many migrations (0 = all)")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  `Roll back the last migration, or every migration with --all. Rolling back drops user data.`,
		RunE:  runMigrateDown,
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")
	down.Flags().Bool("all", false, "roll back every migration")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE:  runMigrateStatus,
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long:  `Mark VERSION as applied and clear the dirty flag after a failed migration was repaired by hand.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runMigrateForce,
	}

	cmd.AddCommand(up, down, status, force)
	return cmd
}

// openMigrator loads the config for cmd and opens a migrator on its
// database URL.
func openMigrator(cmd *cobra.Command) (Migrator, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("database url is required (--database-url or DATABASE_URL)")
	}
	m, err := migratorFactory(cfg.Database.URL)
	if err != nil {
		return nil, oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	return m, nil
}

func closeMigrator(cmd *cobra.Command, m Migrator) {
	if err := m.Close(); err != nil {
		cmd.PrintErrln("warning: closing migrator:", err)
	}
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	// Only "migrate up" defines --steps; the bare command applies everything.
	steps, _ := cmd.Flags().GetInt("steps")

	cmd.Println("Running migrations...")
	if steps > 0 {
		err = m.Steps(steps)
	} else {
		err = m.Up()
	}
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	return printVersion(cmd, m, "Migrations completed successfully")
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	all, _ := cmd.Flags().GetBool("all")
	steps, _ := cmd.Flags().GetInt("steps")
	if !all && steps < 1 {
		return oops.Code("CONFIG_INVALID").Errorf("--steps must be at least 1")
	}

	cmd.Println("Rolling back migrations...")
	if all {
		err = m.Down()
	} else {
		err = m.Steps(-steps)
	}
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
	}
	return printVersion(cmd, m, "Rollback completed successfully")
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	applied, pending, err := m.Status()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "migration status").Wrap(err)
	}
	_, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "migration version").Wrap(err)
	}

	for _, mig := range applied {
		cmd.Printf("  [x] %s\n", mig.Name)
	}
	for _, mig := range pending {
		cmd.Printf("  [ ] %s\n", mig.Name)
	}
	cmd.Printf("%d applied, %d pending\n", len(applied), len(pending))
	if dirty {
		cmd.Println("WARNING: schema is dirty; repair it and run 'warden migrate force VERSION'")
	}
	return nil
}

func runMigrateForce(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil || version < 0 {
		return oops.Code("CONFIG_INVALID").With("version", args[0]).Errorf("version must be a non-negative integer")
	}

	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	if err := m.Force(version); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "force version").Wrap(err)
	}
	return printVersion(cmd, m, "Version forced")
}

func printVersion(cmd *cobra.Command, m Migrator, msg string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "migration version").Wrap(err)
	}
	cmd.Printf("%s (version %d, dirty %t)\n", msg, version, dirty)
	return nil
}
