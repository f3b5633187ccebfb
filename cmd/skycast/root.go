// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/skycast/skycast/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Skycast CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skycast",
		Short: "Skycast - weather dashboard backend",
		Long: `Skycast serves the weather dashboard API: account registration and
sessions, profiles and preferences, weather lookups and search history.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("skycast %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}

// resolveConfigPath returns the --config value, or the XDG user config
// file when the flag is empty and that file exists. "" means no file.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if path, ok, err := xdg.ConfigFile(); err == nil && ok {
		return path
	}
	return ""
}
