package index

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// collectionNamePattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// chunkNamespace derives stable Qdrant point IDs from chunk IDs.
var chunkNamespace = uuid.MustParse("6f1c2a53-8d7e-4b0e-9a47-1f3c5d2e8b90")

// maxQueryLimit bounds a single Query or Scroll call.
const maxQueryLimit = 10000

// ValidateCollectionName validates a collection name.
// Pattern: ^[a-z0-9_]{1,64}$
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, name)
	}
	return nil
}

// QdrantConfig holds configuration for the Qdrant gRPC index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the gRPC port (6334), not the REST port.
	Port int

	// Collection is the collection name; created on first use.
	Collection string

	// VectorSize must match the embedding provider's dimension.
	VectorSize int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// APIKey is sent with every request when set.
	APIKey string

	// MaxRetries bounds retries of transient gRPC failures.
	// Default: 3
	MaxRetries uint64

	// Timeout bounds the startup health check.
	// Default: 5s
	Timeout time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "welfare_schemes"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// IsTransientError reports whether err is a gRPC failure worth retrying.
func IsTransientError(err error) bool {
	st, ok := status.FromError(err)
	if !ok || err == nil {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantIndex implements Index on a Qdrant server using the native gRPC
// client.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	mu      sync.Mutex
	nextSeq int64
}

// NewQdrantIndex connects to Qdrant, verifies health and ensures the
// collection exists.
func NewQdrantIndex(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext; enable TLS outside local development",
			zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	x := &QdrantIndex{
		client: client,
		config: config,
		logger: logger,
	}

	initCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := x.init(initCtx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant index initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
		zap.Int64("chunks", x.nextSeq),
	)
	return x, nil
}

func (x *QdrantIndex) init(ctx context.Context) error {
	if _, err := x.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	var exists bool
	err := x.retry(ctx, func(ctx context.Context) error {
		var err error
		exists, err = x.client.CollectionExists(ctx, x.config.Collection)
		return err
	})
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", x.config.Collection, err)
	}
	if !exists {
		err = x.retry(ctx, func(ctx context.Context) error {
			return x.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: x.config.Collection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(x.config.VectorSize),
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", x.config.Collection, err)
		}
	}

	n, err := x.count(ctx, nil)
	if err != nil {
		return err
	}
	x.nextSeq = int64(n)
	return nil
}

// retry runs op with exponential backoff, retrying only transient gRPC
// failures.
func (x *QdrantIndex) retry(ctx context.Context, op func(context.Context) error) error {
	backoff := retry.WithMaxRetries(x.config.MaxRetries,
		retry.WithJitter(50*time.Millisecond, retry.NewExponential(200*time.Millisecond)))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && IsTransientError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// Add upserts chunks after rejecting IDs that are already stored.
func (x *QdrantIndex) Add(ctx context.Context, chunks ...Chunk) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "index.add")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.backend", "qdrant"),
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

	ids := make([]*qdrant.PointId, len(chunks))
	for i, c := range chunks {
		ids[i] = pointID(c.ID)
	}
	var existing []*qdrant.RetrievedPoint
	err := x.retry(ctx, func(ctx context.Context) error {
		var err error
		existing, err = x.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: x.config.Collection,
			Ids:            ids,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking existing chunks: %w", err)
	}
	if len(existing) > 0 {
		err := fmt.Errorf("%w: %s", ErrDuplicateChunk, existing[0].GetPayload()[keyChunkID].GetStringValue())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		c.Seq = x.nextSeq + int64(i)
		points[i] = &qdrant.PointStruct{
			Id:      ids[i],
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: chunkPayload(c),
		}
	}

	err = x.retry(ctx, func(ctx context.Context) error {
		_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: x.config.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", x.config.Collection, err)
	}
	x.nextSeq += int64(len(chunks))

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search returns hits matching pred ordered by similarity, then Seq. The
// whole filtered set is ranked locally so that ties at the cut-off resolve
// by insertion order.
func (x *QdrantIndex) Search(ctx context.Context, vector []float32, pred Predicate, k int) ([]Hit, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "index.search")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.backend", "qdrant"),
		attribute.String("predicate.policy_id", pred.PolicyID),
		attribute.String("predicate.year", pred.Year),
		attribute.Int("k", k),
	)

	if err := validateQuery(vector, x.config.VectorSize); err != nil {
		span.RecordError(err)
		return nil, err
	}

	filter := predicateFilter(pred)
	n, err := x.count(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if n == 0 {
		return []Hit{}, nil
	}

	var points []*qdrant.ScoredPoint
	err = x.retry(ctx, func(ctx context.Context) error {
		var err error
		points, err = x.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: x.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(min(n, maxQueryLimit))),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
			Filter:         filter,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", x.config.Collection, err)
	}

	hits := make([]Hit, len(points))
	for i, p := range points {
		hits[i] = Hit{
			Chunk:      chunkFromPayload(p.GetPayload(), vectorData(p.GetVectors())),
			Similarity: float64(p.GetScore()),
		}
	}
	hits = sortHits(hits, k)

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// Scan scrolls every chunk matching pred and returns them in insertion
// order.
func (x *QdrantIndex) Scan(ctx context.Context, pred Predicate) ([]Chunk, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "index.scan")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.backend", "qdrant"),
		attribute.String("predicate.policy_id", pred.PolicyID),
		attribute.String("predicate.year", pred.Year),
	)

	filter := predicateFilter(pred)
	n, err := x.count(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if n == 0 {
		return []Chunk{}, nil
	}

	var points []*qdrant.RetrievedPoint
	err = x.retry(ctx, func(ctx context.Context) error {
		var err error
		points, err = x.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: x.config.Collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint32(min(n, maxQueryLimit))),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scrolling collection %s: %w", x.config.Collection, err)
	}
	if n > maxQueryLimit {
		x.logger.Warn("scan truncated", zap.Int("matches", n), zap.Int("limit", maxQueryLimit))
	}

	chunks := make([]Chunk, len(points))
	for i, p := range points {
		chunks[i] = chunkFromPayload(p.GetPayload(), vectorData(p.GetVectors()))
	}
	sortBySeq(chunks)

	span.SetAttributes(attribute.Int("results_count", len(chunks)))
	span.SetStatus(codes.Ok, "success")
	return chunks, nil
}

// Count returns the number of stored chunks.
func (x *QdrantIndex) Count(ctx context.Context) (int, error) {
	return x.count(ctx, nil)
}

func (x *QdrantIndex) count(ctx context.Context, filter *qdrant.Filter) (int, error) {
	var n uint64
	err := x.retry(ctx, func(ctx context.Context) error {
		var err error
		n, err = x.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: x.config.Collection,
			Filter:         filter,
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counting points in %s: %w", x.config.Collection, err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (x *QdrantIndex) Close() error {
	if x.client != nil {
		return x.client.Close()
	}
	return nil
}

func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(chunkNamespace, []byte(chunkID)).String())
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// predicateFilter converts pred into a Qdrant must-filter; nil matches all.
func predicateFilter(pred Predicate) *qdrant.Filter {
	where := pred.where()
	if len(where) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(where))
	for _, key := range []string{keyPolicyID, keyYear, keyModality} {
		if v, ok := where[key]; ok {
			conditions = append(conditions, keywordCondition(key, v))
		}
	}
	return &qdrant.Filter{Must: conditions}
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func chunkPayload(c Chunk) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		keyChunkID:     stringValue(c.ID),
		keyText:        stringValue(c.Text),
		keyPolicyID:    stringValue(c.PolicyID),
		keyYear:        stringValue(c.Year),
		keyModality:    stringValue(string(c.Modality)),
		keySource:      stringValue(c.Source),
		keySeq:         {Kind: &qdrant.Value_IntegerValue{IntegerValue: c.Seq}},
		keyAccessCount: {Kind: &qdrant.Value_IntegerValue{IntegerValue: c.AccessCount}},
		keyDecayWeight: {Kind: &qdrant.Value_DoubleValue{DoubleValue: c.DecayWeight}},
	}
}

func chunkFromPayload(payload map[string]*qdrant.Value, embedding []float32) Chunk {
	return Chunk{
		ID:          payload[keyChunkID].GetStringValue(),
		Text:        payload[keyText].GetStringValue(),
		Embedding:   embedding,
		PolicyID:    payload[keyPolicyID].GetStringValue(),
		Year:        payload[keyYear].GetStringValue(),
		Modality:    Modality(payload[keyModality].GetStringValue()),
		Source:      payload[keySource].GetStringValue(),
		Seq:         payload[keySeq].GetIntegerValue(),
		AccessCount: payload[keyAccessCount].GetIntegerValue(),
		DecayWeight: payload[keyDecayWeight].GetDoubleValue(),
	}
}

func vectorData(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if dense := out.GetDense(); dense != nil {
		return dense.GetData()
	}
	return out.GetData()
}

var _ Index = (*QdrantIndex)(nil)
