package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "yojana.index"

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps the index in memory.
	Path string

	// Compress enables gzip compression of persisted documents.
	Compress bool

	// Collection is the collection name.
	// Default: "welfare_schemes"
	Collection string

	// VectorSize is the expected embedding dimension.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "welfare_schemes"
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemIndex implements Index on chromem-go.
//
// Embeddings are always precomputed by the caller; the collection's embedding
// function refuses to run so that a missing vector surfaces as an error rather
// than a silent remote call.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *zap.Logger

	// mu serializes Add so that duplicate checks and Seq assignment are
	// atomic with the insert.
	mu      sync.Mutex
	nextSeq int64
}

// NewChromemIndex opens (or creates) a chromem-go collection.
func NewChromemIndex(config ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		config.Path = path
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}

	idx := &ChromemIndex{
		db:         db,
		collection: collection,
		config:     config,
		logger:     logger,
		nextSeq:    int64(collection.Count()),
	}

	logger.Info("chromem index initialized",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
		zap.Int64("chunks", idx.nextSeq),
	)
	return idx, nil
}

func refuseEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("%w: embeddings must be precomputed", ErrEmptyEmbedding)
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Add stores chunks. The whole batch is rejected if any chunk is invalid or
// already present.
func (x *ChromemIndex) Add(ctx context.Context, chunks ...Chunk) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "index.add")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.backend", "chromem"),
		attribute.Int("chunk_count", len(chunks)),
	)

	if len(chunks) == 0 {
		return nil
	}
	if err := validateBatch(chunks, x.config.VectorSize); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for _, c := range chunks {
		if _, err := x.collection.GetByID(ctx, c.ID); err == nil {
			err := fmt.Errorf("%w: %s", ErrDuplicateChunk, c.ID)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		c.Seq = x.nextSeq + int64(i)
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Metadata:  chunkMetadata(c),
			Embedding: c.Embedding,
		}
	}

	// Concurrency of 1 since embeddings are precomputed.
	if err := x.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}
	x.nextSeq += int64(len(chunks))

	span.SetStatus(codes.Ok, "success")
	x.logger.Debug("added chunks to chromem",
		zap.String("collection", x.config.Collection),
		zap.Int("count", len(chunks)),
	)
	return nil
}

// Search returns hits matching pred ordered by similarity, then Seq.
func (x *ChromemIndex) Search(ctx context.Context, vector []float32, pred Predicate, k int) ([]Hit, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "index.search")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.backend", "chromem"),
		attribute.String("predicate.policy_id", pred.PolicyID),
		attribute.String("predicate.year", pred.Year),
		attribute.Int("k", k),
	)

	if err := validateQuery(vector, x.config.VectorSize); err != nil {
		span.RecordError(err)
		return nil, err
	}

	results, err := x.queryAll(ctx, vector, pred)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			Chunk:      chunkFromMetadata(r.ID, r.Content, r.Embedding, r.Metadata),
			Similarity: float64(r.Similarity),
		}
	}
	hits = sortHits(hits, k)

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// Scan returns every chunk matching pred in insertion order.
func (x *ChromemIndex) Scan(ctx context.Context, pred Predicate) ([]Chunk, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "index.scan")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.backend", "chromem"),
		attribute.String("predicate.policy_id", pred.PolicyID),
		attribute.String("predicate.year", pred.Year),
	)

	// chromem has no listing API; a ranked query over the whole filtered set
	// with an arbitrary unit probe returns every match.
	probe := make([]float32, x.config.VectorSize)
	probe[0] = 1

	results, err := x.queryAll(ctx, probe, pred)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	chunks := make([]Chunk, len(results))
	for i, r := range results {
		chunks[i] = chunkFromMetadata(r.ID, r.Content, r.Embedding, r.Metadata)
	}
	sortBySeq(chunks)

	span.SetAttributes(attribute.Int("results_count", len(chunks)))
	span.SetStatus(codes.Ok, "success")
	return chunks, nil
}

func (x *ChromemIndex) queryAll(ctx context.Context, vector []float32, pred Predicate) ([]chromem.Result, error) {
	// chromem requires nResults <= document count; the filter may reduce
	// the result set further.
	n := x.collection.Count()
	if n == 0 {
		return nil, nil
	}
	results, err := x.collection.QueryEmbedding(ctx, vector, n, pred.where(), nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", x.config.Collection, err)
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (x *ChromemIndex) Count(_ context.Context) (int, error) {
	return x.collection.Count(), nil
}

// Close is a no-op; chromem persists every document on write.
func (x *ChromemIndex) Close() error {
	return nil
}

var _ Index = (*ChromemIndex)(nil)
