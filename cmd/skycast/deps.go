// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/skycast/skycast/internal/config"
	"github.com/skycast/skycast/internal/httpapi"
	"github.com/skycast/skycast/internal/observability"
	"github.com/skycast/skycast/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConfigLoader builds the configuration from a file path and flags.
	// Default: config.Load
	ConfigLoader func(path string, flags *pflag.FlagSet) (*config.Config, error)

	// StorageOpener connects the configured persistence backend.
	// Default: openStorage
	StorageOpener func(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Storage, error)

	// APIServerFactory creates the API server.
	// Default: httpapi.New
	APIServerFactory func(deps httpapi.Deps, cfg httpapi.Config) (APIServer, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, gatherer prometheus.Gatherer, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// LogOutput receives process logs.
	// Default: os.Stderr
	LogOutput io.Writer
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory opens a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// APIServer interface wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Status() (*store.MigrationStatus, error)
	Close() error
}
