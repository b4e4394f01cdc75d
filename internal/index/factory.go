package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/yojana/internal/config"
)

// New opens the index backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.IndexConfig, logger *zap.Logger) (Index, error) {
	switch cfg.Backend {
	case "", "chromem":
		return NewChromemIndex(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			Collection: cfg.Collection,
			VectorSize: cfg.VectorSize,
		}, logger)
	case "qdrant":
		return NewQdrantIndex(ctx, QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Collection,
			VectorSize: cfg.VectorSize,
			UseTLS:     cfg.Qdrant.UseTLS,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			MaxRetries: uint64(max(cfg.Qdrant.MaxRetries, 0)),
			Timeout:    cfg.Qdrant.Timeout.Duration(),
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
	}
}
