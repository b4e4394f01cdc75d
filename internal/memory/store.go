package memory

import (
	"context"
	"sync"
)

// Stats is the mutable memory state of one chunk.
type Stats struct {
	AccessCount int64   `json:"access_count"`
	DecayWeight float64 `json:"decay_weight"`
}

// StatsStore persists per-chunk Stats. Every single-chunk update is atomic.
type StatsStore interface {
	// Get returns stored stats for the given IDs. IDs without stats are
	// absent from the result.
	Get(ctx context.Context, ids []string) (map[string]Stats, error)

	// Reinforce increments the access count and raises the weight by
	// ReinforceStep, capped at MaxWeight. A chunk without stats starts
	// from seed.
	Reinforce(ctx context.Context, id string, seed Stats) (Stats, error)

	// SetWeight overwrites the weight and keeps the access count, seeding
	// the count from seed when the chunk has no stats.
	SetWeight(ctx context.Context, id string, weight float64, seed Stats) (Stats, error)

	// Close releases store resources.
	Close() error
}

// MemoryStore is an in-process StatsStore.
type MemoryStore struct {
	mu    sync.Mutex
	stats map[string]Stats
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stats: make(map[string]Stats)}
}

func (s *MemoryStore) Get(_ context.Context, ids []string) (map[string]Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Stats, len(ids))
	for _, id := range ids {
		if st, ok := s.stats[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (s *MemoryStore) Reinforce(_ context.Context, id string, seed Stats) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[id]
	if !ok {
		st = seed
	}
	st.AccessCount++
	st.DecayWeight = Reinforced(st.DecayWeight)
	s.stats[id] = st
	return st, nil
}

func (s *MemoryStore) SetWeight(_ context.Context, id string, weight float64, seed Stats) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[id]
	if !ok {
		st = seed
	}
	st.DecayWeight = weight
	s.stats[id] = st
	return st, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ StatsStore = (*MemoryStore)(nil)
