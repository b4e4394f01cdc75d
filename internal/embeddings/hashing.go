package embeddings

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+`)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {},
	"was": {}, "were": {}, "what": {}, "which": {}, "with": {},
}

// HashingProvider embeds text by feature hashing unigrams and bigrams into a
// fixed number of signed buckets. Output is L2-normalized and fully
// deterministic, which makes it the default for tests and offline use.
type HashingProvider struct {
	dimension int
}

// NewHashingProvider creates a hashing embedder producing vectors of the
// given dimension.
func NewHashingProvider(dimension int) (*HashingProvider, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dimension)
	}
	return &HashingProvider{dimension: dimension}, nil
}

// EmbedDocuments embeds each text independently.
func (p *HashingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := p.embed(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// EmbedQuery embeds a single text.
func (p *HashingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.embed(text)
}

// Dimension returns the configured dimension.
func (p *HashingProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op.
func (p *HashingProvider) Close() error {
	return nil
}

func (p *HashingProvider) embed(text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		// Only stopwords or punctuation; hash the raw text so the vector
		// is still non-zero.
		tokens = []string{strings.ToLower(strings.TrimSpace(text))}
	}

	acc := make([]float64, p.dimension)
	for i, tok := range tokens {
		p.add(acc, tok, 1.0)
		if i > 0 {
			p.add(acc, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, p.dimension)
	if norm == 0 {
		// Every feature cancelled out; fall back to a fixed unit vector.
		vec[0] = 1
		return vec, nil
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

func (p *HashingProvider) add(acc []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	bucket := int(h % uint64(p.dimension))
	if h&(1<<63) != 0 {
		weight = -weight
	}
	acc[bucket] += weight
}

// Tokenize lowercases text, splits it on non letter/digit runes and drops
// stopwords. Devanagari combining marks are kept inside tokens.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := raw[:0]
	for _, tok := range raw {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

var _ Provider = (*HashingProvider)(nil)
