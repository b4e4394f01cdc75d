package memory

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/yojana/internal/config"
)

// NewStore opens the StatsStore selected by cfg.Store.
func NewStore(ctx context.Context, cfg config.MemoryConfig) (StatsStore, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password.Value(),
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Timeout:   cfg.Redis.Timeout.Duration(),
		})
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, cfg.Store)
	}
}
