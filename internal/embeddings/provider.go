package embeddings

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/yojana/internal/config"
)

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is "hashing", "fastembed" or "tei".
	Provider  string
	Model     string
	BaseURL   string
	CacheDir  string
	Dimension int
	// CacheSize enables the query LRU cache when positive.
	CacheSize int
	RateLimit float64
	Timeout   time.Duration
}

// ConfigFromApp converts the application config section.
func ConfigFromApp(app config.EmbeddingsConfig) ProviderConfig {
	return ProviderConfig{
		Provider:  app.Provider,
		Model:     app.Model,
		BaseURL:   app.BaseURL,
		CacheDir:  app.CacheDir,
		Dimension: app.Dimension,
		CacheSize: app.CacheSize,
		RateLimit: app.RateLimit,
		Timeout:   app.Timeout.Duration(),
	}
}

// NewProvider creates an embedding provider from configuration and checks
// that it produces vectors of the configured dimension.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "hashing", "":
		p, err = NewHashingProvider(cfg.Dimension)
	case "fastembed":
		p, err = NewFastEmbedProvider(FastEmbedConfig{Model: cfg.Model, CacheDir: cfg.CacheDir})
	case "tei":
		p, err = NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			RateLimit: cfg.RateLimit,
			Timeout:   cfg.Timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Dimension > 0 && p.Dimension() != cfg.Dimension {
		_ = p.Close()
		return nil, fmt.Errorf("%w: provider %q produces %d dimensions, configured %d",
			ErrInvalidConfig, cfg.Provider, p.Dimension(), cfg.Dimension)
	}

	if cfg.CacheSize > 0 {
		cached, err := NewCachedProvider(p, cfg.CacheSize)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p = cached
	}

	logger.Debug("embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.Int("dimension", p.Dimension()),
		zap.Bool("cached", cfg.CacheSize > 0))
	return p, nil
}
