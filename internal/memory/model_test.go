package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/yojana/internal/index"
	"github.com/fyrsmithlabs/yojana/internal/memory"
	"github.com/fyrsmithlabs/yojana/internal/telemetry"
)

func fixedClock(year int) memory.Option {
	return memory.WithClock(func() time.Time {
		return time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC)
	})
}

func TestModel_Baseline(t *testing.T) {
	m := memory.NewModel(memory.NewMemoryStore(), fixedClock(2024))

	assert.InDelta(t, 1.2, m.Baseline(index.Chunk{Year: "2020", DecayWeight: 1.2}).DecayWeight, 1e-9,
		"valid ingested weight is kept")
	assert.InDelta(t, 0.6, m.Baseline(index.Chunk{Year: "2020"}).DecayWeight, 1e-9,
		"missing weight falls back to time decay")
	assert.InDelta(t, 0.8, m.Baseline(index.Chunk{Year: "2022", DecayWeight: 9}).DecayWeight, 1e-9)
	assert.Equal(t, memory.NeutralWeight, m.Baseline(index.Chunk{Year: "unknown"}).DecayWeight)
	assert.Equal(t, int64(0), m.Baseline(index.Chunk{AccessCount: -3}).AccessCount)
}

func TestModel_WeighReinforceRebase(t *testing.T) {
	ctx := context.Background()
	m := memory.NewModel(memory.NewMemoryStore(), fixedClock(2024))

	chunks := []index.Chunk{
		{ID: "old", Year: "2019"},
		{ID: "new", Year: "2024", DecayWeight: 1.0},
	}

	stats, err := m.Weigh(ctx, chunks)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, stats["old"].DecayWeight, 1e-9)
	assert.InDelta(t, 1.0, stats["new"].DecayWeight, 1e-9)

	reinforced, err := m.Reinforce(ctx, chunks[:1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), reinforced["old"].AccessCount)
	assert.InDelta(t, 0.55, reinforced["old"].DecayWeight, 1e-9)

	stats, err = m.Weigh(ctx, chunks)
	require.NoError(t, err)
	assert.InDelta(t, 0.55, stats["old"].DecayWeight, 1e-9, "stored weight is the source of truth")

	n, err := m.Rebase(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err = m.Weigh(ctx, chunks)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, stats["old"].DecayWeight, 1e-9)
	assert.Equal(t, int64(1), stats["old"].AccessCount)
}

func TestModel_ReinforceSkipsRepeatedIDs(t *testing.T) {
	m := memory.NewModel(memory.NewMemoryStore(), fixedClock(2024))
	out, err := m.Reinforce(context.Background(), []index.Chunk{
		{ID: "a", Year: "2024"},
		{ID: "a", Year: "2024"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out["a"].AccessCount)
}

type failingStore struct{ memory.StatsStore }

func (failingStore) Get(context.Context, []string) (map[string]memory.Stats, error) {
	return nil, errors.New("store down")
}

func (failingStore) Reinforce(context.Context, string, memory.Stats) (memory.Stats, error) {
	return memory.Stats{}, errors.New("store down")
}

func TestModel_StoreErrors(t *testing.T) {
	tel := telemetry.NewTestTelemetry(t)
	m := memory.NewModel(failingStore{memory.NewMemoryStore()})

	_, err := m.Weigh(context.Background(), []index.Chunk{{ID: "a"}})
	assert.Error(t, err)

	_, err = m.Reinforce(context.Background(), []index.Chunk{{ID: "a"}})
	assert.ErrorContains(t, err, "reinforcing chunk a")
	tel.AssertSpanExists(t, "memory.reinforce")
}

func TestRank(t *testing.T) {
	hits := []index.Hit{
		{Chunk: index.Chunk{ID: "recent", Seq: 0}, Similarity: 0.80},
		{Chunk: index.Chunk{ID: "old", Seq: 1}, Similarity: 0.95},
		{Chunk: index.Chunk{ID: "tie", Seq: 2}, Similarity: 0.80},
		{Chunk: index.Chunk{ID: "unweighed", Seq: 3}, Similarity: 0.10},
	}
	stats := map[string]memory.Stats{
		"recent": {DecayWeight: 1.0},
		"old":    {DecayWeight: 0.5},
		"tie":    {DecayWeight: 1.0},
	}

	ranked := memory.Rank(hits, stats)
	require.Len(t, ranked, 4, "re-ranking never drops hits")
	assert.Equal(t, "recent", ranked[0].Hit.Chunk.ID)
	assert.Equal(t, "tie", ranked[1].Hit.Chunk.ID)
	assert.Equal(t, "old", ranked[2].Hit.Chunk.ID)
	assert.Equal(t, "unweighed", ranked[3].Hit.Chunk.ID)
	assert.InDelta(t, 0.475, ranked[2].Score, 1e-9)
	assert.InDelta(t, 0.10, ranked[3].Score, 1e-9)
}
