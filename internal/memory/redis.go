package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldCount  = "count"
	fieldWeight = "weight"
)

// reinforceScript atomically seeds and reinforces one chunk hash.
// KEYS[1]: the chunk stats hash
// ARGV[1]: seed access count
// ARGV[2]: seed weight
// ARGV[3]: reinforcement step
// ARGV[4]: weight ceiling
// Returns: {count, weight-as-string}
var reinforceScript = redis.NewScript(`
	local key = KEYS[1]
	if redis.call('EXISTS', key) == 0 then
		redis.call('HSET', key, 'count', ARGV[1], 'weight', ARGV[2])
	end
	local count = redis.call('HINCRBY', key, 'count', 1)
	local weight = tonumber(redis.call('HGET', key, 'weight')) + tonumber(ARGV[3])
	local ceiling = tonumber(ARGV[4])
	if weight > ceiling then
		weight = ceiling
	end
	local encoded = string.format('%.17g', weight)
	redis.call('HSET', key, 'weight', encoded)
	return {count, encoded}
`)

// setWeightScript overwrites the weight, seeding the count when absent.
// KEYS[1]: the chunk stats hash
// ARGV[1]: seed access count
// ARGV[2]: new weight
// Returns: {count, weight-as-string}
var setWeightScript = redis.NewScript(`
	local key = KEYS[1]
	redis.call('HSETNX', key, 'count', ARGV[1])
	redis.call('HSET', key, 'weight', ARGV[2])
	return {tonumber(redis.call('HGET', key, 'count')), ARGV[2]}
`)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
}

// RedisStore keeps chunk stats in one Redis hash per chunk.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	owned     bool
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: redis address required", ErrInvalidConfig)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	s := NewRedisStoreFromClient(client, cfg.KeyPrefix)
	s.owned = true
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client. The caller keeps
// ownership of the client.
func NewRedisStoreFromClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "yojana:chunk:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

func (s *RedisStore) Get(ctx context.Context, ids []string) (map[string]Stats, error) {
	out := make(map[string]Stats, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, s.key(id), fieldCount, fieldWeight)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get stats: %w", err)
	}
	for i, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) != 2 || vals[0] == nil || vals[1] == nil {
			continue
		}
		st, err := decodeStats(vals[0], vals[1])
		if err != nil {
			return nil, fmt.Errorf("redis: decode stats for %s: %w", ids[i], err)
		}
		out[ids[i]] = st
	}
	return out, nil
}

func (s *RedisStore) Reinforce(ctx context.Context, id string, seed Stats) (Stats, error) {
	res, err := reinforceScript.Run(ctx, s.client, []string{s.key(id)},
		seed.AccessCount, formatWeight(seed.DecayWeight), ReinforceStep, MaxWeight).Slice()
	if err != nil {
		return Stats{}, fmt.Errorf("redis: reinforce %s: %w", id, err)
	}
	return decodeScriptResult(res)
}

func (s *RedisStore) SetWeight(ctx context.Context, id string, weight float64, seed Stats) (Stats, error) {
	res, err := setWeightScript.Run(ctx, s.client, []string{s.key(id)},
		seed.AccessCount, formatWeight(weight)).Slice()
	if err != nil {
		return Stats{}, fmt.Errorf("redis: set weight %s: %w", id, err)
	}
	return decodeScriptResult(res)
}

// Close closes the client when the store created it.
func (s *RedisStore) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'g', -1, 64)
}

func decodeScriptResult(res []interface{}) (Stats, error) {
	if len(res) != 2 {
		return Stats{}, fmt.Errorf("redis: unexpected script result %v", res)
	}
	return decodeStats(res[0], res[1])
}

func decodeStats(count, weight interface{}) (Stats, error) {
	var st Stats
	switch c := count.(type) {
	case int64:
		st.AccessCount = c
	case string:
		n, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			return Stats{}, fmt.Errorf("parsing count %q: %w", c, err)
		}
		st.AccessCount = n
	default:
		return Stats{}, fmt.Errorf("unexpected count type %T", count)
	}
	ws, ok := weight.(string)
	if !ok {
		return Stats{}, fmt.Errorf("unexpected weight type %T", weight)
	}
	w, err := strconv.ParseFloat(ws, 64)
	if err != nil {
		return Stats{}, fmt.Errorf("parsing weight %q: %w", ws, err)
	}
	st.DecayWeight = w
	return st, nil
}

var _ StatsStore = (*RedisStore)(nil)
