// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/skycast/skycast/internal/config"
	"github.com/skycast/skycast/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmdWithDeps(nil)
}

func newMigrateCmdWithDeps(deps *MigrateDeps) *cobra.Command {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage PostgreSQL schema migrations",
		Long: `Apply, roll back and inspect the PostgreSQL schema migrations.
The MongoDB driver creates its indexes on startup and needs no migrations.`,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL (overrides config)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  `Roll back the last migration, or every migration with --all.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return oops.Wrap(err)
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if all {
					cmd.Println("Rolling back all migrations...")
					return m.Down()
				}
				cmd.Println("Rolling back one migration...")
				return m.Steps(-1)
			})
		},
	}
	down.Flags().Bool("all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				status, err := m.Status()
				if err != nil {
					return err
				}
				cmd.Print(formatStatus(status))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if v == 0 {
					cmd.Println("No migrations applied")
					return nil
				}
				suffix := ""
				if dirty {
					suffix = " (dirty)"
				}
				cmd.Printf("Version %d%s\n", v, suffix)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag. Use after
repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				cmd.Printf("Forced version %d\n", v)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator resolves the database URL, opens a migrator and closes it
// after fn.
func withMigrator(cmd *cobra.Command, deps *MigrateDeps, fn func(Migrator) error) (err error) {
	databaseURL, err := resolveDatabaseURL(cmd)
	if err != nil {
		return err
	}

	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := fn(m); err != nil {
		return oops.Code("MIGRATION_FAILED").With("command", cmd.Name()).Wrap(err)
	}
	return nil
}

// resolveDatabaseURL takes --database-url when set, else the loaded config.
func resolveDatabaseURL(cmd *cobra.Command) (string, error) {
	flags := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	if f := cmd.Flags().Lookup("database-url"); f != nil {
		flags.AddFlag(f)
	}
	cfg, err := config.Load(resolveConfigPath(configFile), flags)
	if err != nil {
		return "", err
	}
	if cfg.Storage.DatabaseURL == "" {
		return "", oops.Code(config.CodeInvalid).Errorf("storage.database_url is required (set DATABASE_URL or --database-url)")
	}
	return cfg.Storage.DatabaseURL, nil
}

// parseForceVersion parses the VERSION argument of migrate force.
func parseForceVersion(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	return v, nil
}

func formatStatus(status *store.MigrationStatus) string {
	var b strings.Builder
	if status.Version == 0 {
		b.WriteString("Current version: none\n")
	} else {
		fmt.Fprintf(&b, "Current version: %d", status.Version)
		if status.Dirty {
			b.WriteString(" (dirty)")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Applied: %d, pending: %d\n", len(status.Applied), len(status.Pending))
	for _, m := range status.Applied {
		fmt.Fprintf(&b, "  [x] %06d %s\n", m.Version, m.Name)
	}
	for _, m := range status.Pending {
		fmt.Fprintf(&b, "  [ ] %06d %s\n", m.Version, m.Name)
	}
	return b.String()
}
