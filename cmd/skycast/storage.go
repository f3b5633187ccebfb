// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/skycast/skycast/internal/auth"
	authmongo "github.com/skycast/skycast/internal/auth/mongo"
	authpg "github.com/skycast/skycast/internal/auth/postgres"
	"github.com/skycast/skycast/internal/config"
	"github.com/skycast/skycast/internal/history"
	historymongo "github.com/skycast/skycast/internal/history/mongo"
	historypg "github.com/skycast/skycast/internal/history/postgres"
	"github.com/skycast/skycast/internal/store"
)

// Storage bundles the repositories of one backend.
type Storage struct {
	Users   auth.UserRepository
	History history.Repository

	close func(ctx context.Context) error
}

// Close releases the backend connections.
func (s *Storage) Close(ctx context.Context) error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// openStorage connects the backend selected by cfg.Driver.
func openStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Storage, error) {
	opts := store.DefaultConnectOptions()
	opts.Logger = logger

	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := store.OpenPostgres(ctx, cfg.DatabaseURL, opts)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Users:   authpg.NewUserRepository(pool),
			History: historypg.NewRepository(pool),
			close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil
	case config.DriverMongo:
		db, err := store.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, opts)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Users:   authmongo.NewUserRepository(db),
			History: historymongo.NewRepository(db),
			close: func(ctx context.Context) error {
				if err := db.Client().Disconnect(ctx); err != nil {
					return oops.Code("DB_DISCONNECT_FAILED").Wrap(err)
				}
				return nil
			},
		}, nil
	default:
		return nil, oops.Code(config.CodeInvalid).With("driver", cfg.Driver).Errorf("unknown storage driver")
	}
}
