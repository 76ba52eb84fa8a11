package main

import (
	"context"
	"fmt"
	"log/slog"

	"webhook-recorder/internal/config"
	"webhook-recorder/internal/store"
	"webhook-recorder/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// openStore builds the configured backend. When rdb is non-nil, point
// lookups go through the Redis record cache. The returned func releases
// process-level resources.
func openStore(ctx context.Context, cfg config.Config, rdb *redis.Client, log *slog.Logger) (store.Store, func(), error) {
	var (
		st      store.Store
		cleanup = func() {}
	)

	switch cfg.Store.Driver {
	case config.StoreMongo:
		m, err := store.NewMongo(store.MongoConfig{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, nil, err
		}
		st = m

	case config.StorePostgres:
		db, err := utils.OpenPostgres(ctx, cfg.Postgres.DSN, utils.PostgresPoolConfig{})
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		st = pg
		cleanup = func() { _ = db.Close() }

	case config.StoreMemory:
		log.Warn("using in-memory store; calls are lost on restart")
		st = store.NewMemory()

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if rdb != nil {
		st = store.NewCached(st, rdb, cfg.Redis.CacheTTL, log)
	}
	return st, cleanup, nil
}
