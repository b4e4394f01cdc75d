package memory_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/yojana/internal/config"
	"github.com/fyrsmithlabs/yojana/internal/memory"
)

func stores(t *testing.T) map[string]memory.StatsStore {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sqliteStore, err := memory.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]memory.StatsStore{
		"memory": memory.NewMemoryStore(),
		"redis":  memory.NewRedisStoreFromClient(client, "test:chunk:"),
		"sqlite": sqliteStore,
	}
}

func TestStatsStore_Contract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := store.Get(ctx, []string{"a", "b"})
			require.NoError(t, err)
			assert.Empty(t, got, "unknown chunks have no stored stats")

			st, err := store.Reinforce(ctx, "a", memory.Stats{AccessCount: 2, DecayWeight: 0.8})
			require.NoError(t, err)
			assert.Equal(t, int64(3), st.AccessCount)
			assert.InDelta(t, 0.85, st.DecayWeight, 1e-9)

			// The seed only applies to the first touch.
			st, err = store.Reinforce(ctx, "a", memory.Stats{AccessCount: 100, DecayWeight: 0.3})
			require.NoError(t, err)
			assert.Equal(t, int64(4), st.AccessCount)
			assert.InDelta(t, 0.90, st.DecayWeight, 1e-9)

			got, err = store.Get(ctx, []string{"a", "b"})
			require.NoError(t, err)
			require.Contains(t, got, "a")
			assert.NotContains(t, got, "b")
			assert.Equal(t, int64(4), got["a"].AccessCount)
			assert.InDelta(t, 0.90, got["a"].DecayWeight, 1e-9)

			st, err = store.SetWeight(ctx, "a", 0.6, memory.Stats{})
			require.NoError(t, err)
			assert.Equal(t, int64(4), st.AccessCount, "rebase preserves access count")
			assert.InDelta(t, 0.6, st.DecayWeight, 1e-9)

			st, err = store.SetWeight(ctx, "b", 1.2, memory.Stats{AccessCount: 5, DecayWeight: 1.0})
			require.NoError(t, err)
			assert.Equal(t, int64(5), st.AccessCount)
			assert.InDelta(t, 1.2, st.DecayWeight, 1e-9)
		})
	}
}

func TestStatsStore_ReinforceIsBounded(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var st memory.Stats
			var err error
			for i := 0; i < 30; i++ {
				st, err = store.Reinforce(ctx, "hot", memory.Stats{DecayWeight: 1.0})
				require.NoError(t, err)
				assert.LessOrEqual(t, st.DecayWeight, memory.MaxWeight)
			}
			assert.Equal(t, int64(30), st.AccessCount)
			assert.InDelta(t, memory.MaxWeight, st.DecayWeight, 1e-9)
		})
	}
}

func TestStatsStore_ConcurrentReinforce(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const workers = 8
			const perWorker = 5

			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < perWorker; i++ {
						_, err := store.Reinforce(ctx, "shared", memory.Stats{DecayWeight: 0.3})
						assert.NoError(t, err)
					}
				}()
			}
			wg.Wait()

			got, err := store.Get(ctx, []string{"shared"})
			require.NoError(t, err)
			assert.Equal(t, int64(workers*perWorker), got["shared"].AccessCount, "no lost updates")
			assert.InDelta(t, memory.MaxWeight, got["shared"].DecayWeight, 1e-9)
		})
	}
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "stats.db")

	store, err := memory.NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	_, err = store.Reinforce(ctx, "nrega-2023-a", memory.Stats{DecayWeight: 0.9})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := memory.NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, []string{"nrega-2023-a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got["nrega-2023-a"].AccessCount)
	assert.InDelta(t, 0.95, got["nrega-2023-a"].DecayWeight, 1e-9)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := memory.NewStore(ctx, config.MemoryConfig{Store: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.MemoryStore{}, s)

	mr := miniredis.RunT(t)
	s, err = memory.NewStore(ctx, config.MemoryConfig{Store: "redis", Redis: config.RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	assert.IsType(t, &memory.RedisStore{}, s)
	assert.NoError(t, s.Close())

	s, err = memory.NewStore(ctx, config.MemoryConfig{Store: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "s.db")}})
	require.NoError(t, err)
	assert.IsType(t, &memory.SQLiteStore{}, s)
	assert.NoError(t, s.Close())

	_, err = memory.NewStore(ctx, config.MemoryConfig{Store: "etcd"})
	assert.ErrorIs(t, err, memory.ErrInvalidConfig)

	_, err = memory.NewStore(ctx, config.MemoryConfig{Store: "redis"})
	assert.ErrorIs(t, err, memory.ErrInvalidConfig)
}
