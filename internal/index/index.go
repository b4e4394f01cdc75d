// Package index stores welfare-scheme document chunks with their embeddings
// and answers filtered similarity queries over them.
//
// Two backends implement Index: ChromemIndex, an embedded store with optional
// on-disk persistence, and QdrantIndex, which talks to a Qdrant server over
// gRPC. Both order search hits by cosine similarity descending with ties
// broken by insertion order, so results are reproducible for a fixed index
// state.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

var (
	// ErrInvalidConfig indicates invalid index configuration.
	ErrInvalidConfig = errors.New("invalid index configuration")

	// ErrDuplicateChunk indicates a chunk ID that is already stored.
	ErrDuplicateChunk = errors.New("chunk already exists")

	// ErrDimensionMismatch indicates an embedding whose length differs from
	// the index vector size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyEmbedding indicates a missing or all-zero embedding.
	ErrEmptyEmbedding = errors.New("embedding is empty")

	// ErrInvalidChunk indicates a chunk with missing identity or an unknown
	// modality.
	ErrInvalidChunk = errors.New("invalid chunk")
)

// Modality is the kind of source a chunk was extracted from.
type Modality string

const (
	ModalityBudget   Modality = "budget"
	ModalityNews     Modality = "news"
	ModalityTemporal Modality = "temporal"
)

// Valid reports whether m is a known modality.
func (m Modality) Valid() bool {
	switch m {
	case ModalityBudget, ModalityNews, ModalityTemporal:
		return true
	}
	return false
}

// Chunk is a unit of retrievable text with its embedding and provenance.
//
// AccessCount and DecayWeight are the ingestion-time seed for the memory
// model; the live values are owned by a memory.StatsStore.
type Chunk struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Embedding   []float32 `json:"embedding,omitempty"`
	PolicyID    string    `json:"policy_id"`
	Year        string    `json:"year"`
	Modality    Modality  `json:"modality"`
	Source      string    `json:"source"`
	AccessCount int64     `json:"access_count"`
	DecayWeight float64   `json:"decay_weight"`
	Seq         int64     `json:"seq"`
}

// Predicate is a conjunction of equality constraints. Empty fields match any
// value.
type Predicate struct {
	PolicyID string
	Year     string
	Modality Modality
}

// WithoutYear returns a copy of p with the year constraint dropped.
func (p Predicate) WithoutYear() Predicate {
	p.Year = ""
	return p
}

// WithoutPolicy returns a copy of p with the policy constraint dropped.
func (p Predicate) WithoutPolicy() Predicate {
	p.PolicyID = ""
	return p
}

// IsZero reports whether p matches every chunk.
func (p Predicate) IsZero() bool {
	return p == Predicate{}
}

// Matches reports whether c satisfies every constraint of p.
func (p Predicate) Matches(c Chunk) bool {
	if p.PolicyID != "" && p.PolicyID != c.PolicyID {
		return false
	}
	if p.Year != "" && p.Year != c.Year {
		return false
	}
	if p.Modality != "" && p.Modality != c.Modality {
		return false
	}
	return true
}

func (p Predicate) where() map[string]string {
	where := make(map[string]string, 3)
	if p.PolicyID != "" {
		where[keyPolicyID] = p.PolicyID
	}
	if p.Year != "" {
		where[keyYear] = p.Year
	}
	if p.Modality != "" {
		where[keyModality] = string(p.Modality)
	}
	if len(where) == 0 {
		return nil
	}
	return where
}

// Hit is a search result: the stored chunk and its raw cosine similarity to
// the query vector.
type Hit struct {
	Chunk      Chunk
	Similarity float64
}

// Index is an append-only store of chunks supporting filtered similarity
// search.
type Index interface {
	// Add stores chunks, assigning each an insertion sequence number.
	Add(ctx context.Context, chunks ...Chunk) error

	// Search returns up to k chunks matching pred, ordered by similarity to
	// vector descending and then by insertion order. k <= 0 returns every
	// match.
	Search(ctx context.Context, vector []float32, pred Predicate, k int) ([]Hit, error)

	// Scan returns every chunk matching pred in insertion order.
	Scan(ctx context.Context, pred Predicate) ([]Chunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// Payload keys shared by both backends.
const (
	keyPolicyID    = "policy_id"
	keyYear        = "year"
	keyModality    = "modality"
	keySource      = "source"
	keySeq         = "seq"
	keyAccessCount = "access_count"
	keyDecayWeight = "decay_weight"
	keyChunkID     = "chunk_id"
	keyText        = "text"
)

// validateChunk checks identity, modality and embedding shape.
func validateChunk(c Chunk, vectorSize int) error {
	if c.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidChunk)
	}
	if !c.Modality.Valid() {
		return fmt.Errorf("%w: chunk %s has unknown modality %q", ErrInvalidChunk, c.ID, c.Modality)
	}
	if len(c.Embedding) == 0 {
		return fmt.Errorf("%w: chunk %s", ErrEmptyEmbedding, c.ID)
	}
	if len(c.Embedding) != vectorSize {
		return fmt.Errorf("%w: chunk %s has %d dimensions, index expects %d",
			ErrDimensionMismatch, c.ID, len(c.Embedding), vectorSize)
	}
	if !usableVector(c.Embedding) {
		return fmt.Errorf("%w: chunk %s has a zero or non-finite vector", ErrEmptyEmbedding, c.ID)
	}
	return nil
}

func usableVector(v []float32) bool {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	return norm != 0 && !math.IsNaN(norm) && !math.IsInf(norm, 0)
}

// validateBatch validates every chunk and rejects IDs repeated within the
// batch.
func validateBatch(chunks []Chunk, vectorSize int) error {
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if err := validateChunk(c, vectorSize); err != nil {
			return err
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: %s repeated in batch", ErrDuplicateChunk, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

func validateQuery(vector []float32, vectorSize int) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: query vector", ErrEmptyEmbedding)
	}
	if len(vector) != vectorSize {
		return fmt.Errorf("%w: query has %d dimensions, index expects %d",
			ErrDimensionMismatch, len(vector), vectorSize)
	}
	if !usableVector(vector) {
		return fmt.Errorf("%w: query vector is zero or non-finite", ErrEmptyEmbedding)
	}
	return nil
}

// sortHits orders hits by similarity descending, then Seq ascending, and
// truncates to k when k > 0.
func sortHits(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Chunk.Seq < hits[j].Chunk.Seq
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func sortBySeq(chunks []Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Seq < chunks[j].Seq
	})
}

// chunkMetadata flattens chunk fields into string metadata.
func chunkMetadata(c Chunk) map[string]string {
	return map[string]string{
		keyPolicyID:    c.PolicyID,
		keyYear:        c.Year,
		keyModality:    string(c.Modality),
		keySource:      c.Source,
		keySeq:         strconv.FormatInt(c.Seq, 10),
		keyAccessCount: strconv.FormatInt(c.AccessCount, 10),
		keyDecayWeight: strconv.FormatFloat(c.DecayWeight, 'g', -1, 64),
	}
}

// chunkFromMetadata rebuilds a chunk from string metadata. Malformed numeric
// fields decode as zero.
func chunkFromMetadata(id, text string, embedding []float32, md map[string]string) Chunk {
	c := Chunk{
		ID:        id,
		Text:      text,
		Embedding: embedding,
		PolicyID:  md[keyPolicyID],
		Year:      md[keyYear],
		Modality:  Modality(md[keyModality]),
		Source:    md[keySource],
	}
	c.Seq, _ = strconv.ParseInt(md[keySeq], 10, 64)
	c.AccessCount, _ = strconv.ParseInt(md[keyAccessCount], 10, 64)
	c.DecayWeight, _ = strconv.ParseFloat(md[keyDecayWeight], 64)
	return c
}
