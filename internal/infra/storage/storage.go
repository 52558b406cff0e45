package storage

import (
	"context"
	"fmt"

	"crypto_exchange/internal/domain"
	"crypto_exchange/internal/infra"
)

// Backend is a cache store owned by the process: it can be health-checked and closed.
type Backend interface {
	domain.CacheStore
	Health(ctx context.Context) error
	Close() error
}

// Open builds the backend selected by cfg.Cache.Driver.
func Open(ctx context.Context, cfg *infra.Config) (Backend, error) {
	switch cfg.Cache.Driver {
	case infra.CacheDriverRedis:
		return NewRedisStore(ctx, cfg.RedisAddr(), cfg.Cache.Redis.Password, cfg.Cache.Redis.DB)
	case infra.CacheDriverSQLite:
		return NewSQLiteStore(cfg.Cache.SQLite.Path)
	case infra.CacheDriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, &domain.ConfigError{Field: "cache.driver", Err: fmt.Errorf("unknown driver %q", cfg.Cache.Driver)}
	}
}
