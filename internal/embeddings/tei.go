package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TEIConfig holds configuration for a Text Embeddings Inference server.
type TEIConfig struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string
	// Model is recorded on metrics; TEI serves a single model.
	Model string
	// Dimension is the model's output dimension.
	Dimension int
	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64
	// Timeout bounds a single HTTP request.
	Timeout time.Duration
	// MaxRetries bounds retries of transient failures.
	MaxRetries uint64
}

// Validate validates the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// TEIProvider generates embeddings through the TEI /embed endpoint.
type TEIProvider struct {
	config  TEIConfig
	client  *http.Client
	limiter *rate.Limiter
	metrics *Metrics
	logger  *zap.Logger
}

// NewTEIProvider creates a TEI-backed provider.
func NewTEIProvider(config TEIConfig, logger *zap.Logger) (*TEIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &TEIProvider{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: limiter,
		metrics: NewMetrics(logger),
		logger:  logger,
	}, nil
}

type teiRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	return p.embed(ctx, texts, len(texts), "embed_documents")
}

// EmbedQuery generates an embedding for a single query.
func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.embed(ctx, text, 1, "embed_query")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *TEIProvider) embed(ctx context.Context, inputs interface{}, n int, op string) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, op, time.Since(start), n, err)
	}()

	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	backoff := retry.WithMaxRetries(p.config.MaxRetries,
		retry.WithJitter(50*time.Millisecond, retry.NewExponential(100*time.Millisecond)))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		out, callErr := p.post(ctx, body)
		if callErr != nil {
			var te *transientError
			if errors.As(callErr, &te) {
				p.logger.Debug("retrying embedding request", zap.String("operation", op), zap.Error(callErr))
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		vectors = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(vectors) != n {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbeddingFailed, n, len(vectors))
	}
	for _, v := range vectors {
		if len(v) != p.config.Dimension {
			return nil, fmt.Errorf("%w: expected dimension %d, got %d", ErrEmbeddingFailed, p.config.Dimension, len(v))
		}
	}
	return vectors, nil
}

// transientError marks failures worth retrying (network errors, 429, 5xx).
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (p *TEIProvider) post(ctx context.Context, body []byte) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.config.BaseURL, "/")+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transientError{fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &transientError{statusErr}
		}
		return nil, statusErr
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return vectors, nil
}

// Dimension returns the configured dimension.
func (p *TEIProvider) Dimension() int {
	return p.config.Dimension
}

// Close is a no-op since TEI is reached over HTTP.
func (p *TEIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

var _ Provider = (*TEIProvider)(nil)
