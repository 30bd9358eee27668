// Package bootstrap opens the configured backends for the binaries under cmd/.
package bootstrap

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/williamsbolu/natours/internal/repo"
	"github.com/williamsbolu/natours/internal/repo/memory"
	"github.com/williamsbolu/natours/internal/repo/mongodb"
	"github.com/williamsbolu/natours/internal/repo/postgres"
	"github.com/williamsbolu/natours/pkg/config"
	"github.com/williamsbolu/natours/pkg/database"
	"github.com/williamsbolu/natours/pkg/logger"
	"github.com/williamsbolu/natours/pkg/middleware"
)

// OpenStores connects the driver named in cfg.Database.Driver and prepares its
// schema. The returned check reports the backend's health.
func OpenStores(ctx context.Context, cfg *config.Config) (repo.Stores, middleware.Check, error) {
	switch cfg.Database.Driver {
	case "mongo", "mongodb":
		client, db, err := database.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return repo.Stores{}, nil, err
		}
		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return repo.Stores{}, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		logger.Info("Connected to MongoDB", "database", cfg.Mongo.Database)
		return mongodb.New(client, db), func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		}, nil

	case "postgres", "postgresql":
		pool, err := database.ConnectPostgres(ctx, cfg.Database)
		if err != nil {
			return repo.Stores{}, nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return repo.Stores{}, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("Connected to Postgres")
		return postgres.New(pool), pool.Ping, nil

	case "memory":
		logger.Warn("Using in-memory store; data is lost on restart")
		return memory.New().Stores(), func(context.Context) error { return nil }, nil

	default:
		return repo.Stores{}, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
