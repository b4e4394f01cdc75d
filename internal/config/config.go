// Package config provides configuration loading for yojana.
//
// Configuration is read from an optional YAML file and overridden by
// YOJANA_-prefixed environment variables. Every section has defaults so an
// empty configuration runs fully in-process (chromem index, hashing
// embedder, in-memory access statistics).
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete yojana configuration.
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Index      IndexConfig      `koanf:"index"`
	Memory     MemoryConfig     `koanf:"memory"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Data       DataConfig       `koanf:"data"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool     `koanf:"enabled"`
	Endpoint     string   `koanf:"endpoint"`
	Protocol     string   `koanf:"protocol"`
	Insecure     bool     `koanf:"insecure"`
	ServiceName  string   `koanf:"service_name"`
	SamplingRate float64  `koanf:"sampling_rate"`
	Shutdown     Duration `koanf:"shutdown"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of "hashing", "fastembed" or "tei".
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	CacheDir  string   `koanf:"cache_dir"`
	Dimension int      `koanf:"dimension"`
	CacheSize int      `koanf:"cache_size"`
	RateLimit float64  `koanf:"rate_limit"`
	Timeout   Duration `koanf:"timeout"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	// Backend is "chromem" or "qdrant".
	Backend    string        `koanf:"backend"`
	Collection string        `koanf:"collection"`
	VectorSize int           `koanf:"vector_size"`
	Chromem    ChromemConfig `koanf:"chromem"`
	Qdrant     QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go database.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps the index in memory.
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host       string   `koanf:"host"`
	Port       int      `koanf:"port"`
	UseTLS     bool     `koanf:"use_tls"`
	APIKey     Secret   `koanf:"api_key"`
	MaxRetries int      `koanf:"max_retries"`
	Timeout    Duration `koanf:"timeout"`
}

// MemoryConfig selects where access statistics are kept.
type MemoryConfig struct {
	// Store is "memory", "redis" or "sqlite".
	Store     string       `koanf:"store"`
	Reinforce bool         `koanf:"reinforce"`
	Redis     RedisConfig  `koanf:"redis"`
	SQLite    SQLiteConfig `koanf:"sqlite"`
}

// RedisConfig configures the Redis statistics store.
type RedisConfig struct {
	Addr      string   `koanf:"addr"`
	Password  Secret   `koanf:"password"`
	DB        int      `koanf:"db"`
	KeyPrefix string   `koanf:"key_prefix"`
	Timeout   Duration `koanf:"timeout"`
}

// SQLiteConfig configures the SQLite statistics store.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// RetrievalConfig tunes answer retrieval.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
	// CandidateFactor widens the similarity search so decay re-ranking can
	// promote older chunks into the final top_k.
	CandidateFactor int `koanf:"candidate_factor"`
}

// DataConfig points at the reference tables loaded at startup.
type DataConfig struct {
	RulesPath   string `koanf:"rules_path"`
	AliasesPath string `koanf:"aliases_path"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := base()
	applyDefaults(cfg)
	return cfg
}

// base carries the boolean defaults, which applyDefaults cannot tell apart
// from an explicit false. Sources are unmarshaled on top of it.
func base() *Config {
	return &Config{
		Telemetry: TelemetryConfig{Insecure: true},
		Memory:    MemoryConfig{Reinforce: true},
	}
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "yojana"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
	if cfg.Telemetry.Shutdown == 0 {
		cfg.Telemetry.Shutdown = Duration(5 * time.Second)
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "hashing"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 384
	}
	if cfg.Embeddings.CacheSize == 0 {
		cfg.Embeddings.CacheSize = 1024
	}
	if cfg.Embeddings.RateLimit == 0 {
		cfg.Embeddings.RateLimit = 20
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(30 * time.Second)
	}

	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "chromem"
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "welfare_schemes"
	}
	if cfg.Index.VectorSize == 0 {
		cfg.Index.VectorSize = cfg.Embeddings.Dimension
	}
	if cfg.Index.Qdrant.Host == "" {
		cfg.Index.Qdrant.Host = "localhost"
	}
	if cfg.Index.Qdrant.Port == 0 {
		cfg.Index.Qdrant.Port = 6334
	}
	if cfg.Index.Qdrant.MaxRetries == 0 {
		cfg.Index.Qdrant.MaxRetries = 3
	}
	if cfg.Index.Qdrant.Timeout == 0 {
		cfg.Index.Qdrant.Timeout = Duration(10 * time.Second)
	}

	if cfg.Memory.Store == "" {
		cfg.Memory.Store = "memory"
	}
	if cfg.Memory.Redis.Addr == "" {
		cfg.Memory.Redis.Addr = "localhost:6379"
	}
	if cfg.Memory.Redis.KeyPrefix == "" {
		cfg.Memory.Redis.KeyPrefix = "yojana:chunk:"
	}
	if cfg.Memory.Redis.Timeout == 0 {
		cfg.Memory.Redis.Timeout = Duration(3 * time.Second)
	}
	if cfg.Memory.SQLite.Path == "" {
		cfg.Memory.SQLite.Path = "yojana-stats.db"
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.CandidateFactor == 0 {
		cfg.Retrieval.CandidateFactor = 4
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
			return fmt.Errorf("telemetry.protocol must be 'grpc' or 'http', got %q", c.Telemetry.Protocol)
		}
		if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
			return fmt.Errorf("telemetry.sampling_rate must be in [0,1], got %v", c.Telemetry.SamplingRate)
		}
	}

	switch c.Embeddings.Provider {
	case "hashing", "fastembed", "tei":
	default:
		return fmt.Errorf("unknown embeddings.provider %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension <= 0 {
		return errors.New("embeddings.dimension must be positive")
	}

	switch c.Index.Backend {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown index.backend %q", c.Index.Backend)
	}
	if c.Index.VectorSize != c.Embeddings.Dimension {
		return fmt.Errorf("index.vector_size (%d) must equal embeddings.dimension (%d)",
			c.Index.VectorSize, c.Embeddings.Dimension)
	}
	if c.Index.Backend == "qdrant" && (c.Index.Qdrant.Port < 1 || c.Index.Qdrant.Port > 65535) {
		return fmt.Errorf("invalid index.qdrant.port: %d (must be 1-65535)", c.Index.Qdrant.Port)
	}

	switch c.Memory.Store {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown memory.store %q", c.Memory.Store)
	}

	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be >= 1, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.CandidateFactor < 1 {
		return fmt.Errorf("retrieval.candidate_factor must be >= 1, got %d", c.Retrieval.CandidateFactor)
	}

	return nil
}
