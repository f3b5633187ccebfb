// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package storetest starts throwaway PostgreSQL and MongoDB containers for
// integration tests.
package storetest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/skycast/skycast/internal/store"
)

// Postgres is a migrated PostgreSQL container.
type Postgres struct {
	DSN       string
	Pool      *pgxpool.Pool
	container *postgres.PostgresContainer
}

// StartPostgres runs postgres:16-alpine, applies every migration and opens
// a pool.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("skycast_test"),
		postgres.WithUsername("skycast"),
		postgres.WithPassword("skycast"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, oops.With("operation", "start postgres container").Wrap(err)
	}
	pg := &Postgres{container: container}

	pg.DSN, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		pg.Terminate(ctx)
		return nil, oops.With("operation", "connection string").Wrap(err)
	}

	migrator, err := store.NewMigrator(pg.DSN)
	if err != nil {
		pg.Terminate(ctx)
		return nil, err
	}
	upErr := migrator.Up()
	_ = migrator.Close() //nolint:errcheck // migration result matters, not close
	if upErr != nil {
		pg.Terminate(ctx)
		return nil, upErr
	}

	pg.Pool, err = store.OpenPostgres(ctx, pg.DSN, store.DefaultConnectOptions())
	if err != nil {
		pg.Terminate(ctx)
		return nil, err
	}
	return pg, nil
}

// Terminate closes the pool and removes the container.
func (p *Postgres) Terminate(ctx context.Context) {
	if p.Pool != nil {
		p.Pool.Close()
	}
	_ = p.container.Terminate(ctx) //nolint:errcheck // best-effort teardown
}

// Mongo is a MongoDB container with the Skycast indexes in place.
type Mongo struct {
	URI       string
	DB        *mongo.Database
	container testcontainers.Container
}

// StartMongo runs mongo:7 and opens database dbName.
func StartMongo(ctx context.Context, dbName string) (*Mongo, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, oops.With("operation", "start mongo container").Wrap(err)
	}
	m := &Mongo{container: container}

	m.URI, err = container.PortEndpoint(ctx, "27017/tcp", "mongodb")
	if err != nil {
		m.Terminate(ctx)
		return nil, oops.With("operation", "mongo endpoint").Wrap(err)
	}

	m.DB, err = store.OpenMongo(ctx, m.URI, dbName, store.DefaultConnectOptions())
	if err != nil {
		m.Terminate(ctx)
		return nil, err
	}
	return m, nil
}

// Terminate disconnects and removes the container.
func (m *Mongo) Terminate(ctx context.Context) {
	if m.DB != nil {
		_ = m.DB.Client().Disconnect(ctx) //nolint:errcheck // best-effort teardown
	}
	_ = m.container.Terminate(ctx) //nolint:errcheck // best-effort teardown
}
