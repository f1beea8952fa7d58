package runstore

import (
	"context"
	"fmt"

	"github.com/spinup/spinup/internal/config"
)

// Open builds the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreSQLite:
		db, err := OpenSQLite(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return NewSQLStore(db), nil
	case config.StorePostgres:
		db, err := OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewSQLStore(db), nil
	case config.StoreRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		})
	default:
		return nil, fmt.Errorf("run store: unknown driver %q", cfg.Driver)
	}
}
