package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/yojana/internal/index"
)

const tracerName = "yojana.memory"

// Model applies the decay-plus-reinforcement rule on top of a StatsStore.
type Model struct {
	store  StatsStore
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Model.
type Option func(*Model)

// WithClock overrides the wall clock used to derive the current year.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithLogger sets the model's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewModel creates a Model backed by store.
func NewModel(store StatsStore, opts ...Option) *Model {
	m := &Model{
		store:  store,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CurrentYear returns the calendar year of the model's clock.
func (m *Model) CurrentYear() int {
	return m.now().Year()
}

// Baseline returns the stats a chunk has before any stored update: its
// ingested weight when valid, otherwise the time-decay weight for its year.
func (m *Model) Baseline(c index.Chunk) Stats {
	w := c.DecayWeight
	if !InRange(w) {
		w = YearWeight(c.Year, m.CurrentYear())
	}
	return Stats{AccessCount: max(c.AccessCount, 0), DecayWeight: w}
}

// Weigh returns current stats for every chunk, falling back to the
// baseline for chunks the store has not seen.
func (m *Model) Weigh(ctx context.Context, chunks []index.Chunk) (map[string]Stats, error) {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	stored, err := m.store.Get(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading chunk stats: %w", err)
	}
	out := make(map[string]Stats, len(chunks))
	for _, c := range chunks {
		if st, ok := stored[c.ID]; ok {
			out[c.ID] = st
			continue
		}
		out[c.ID] = m.Baseline(c)
	}
	return out, nil
}

// Reinforce records one access for each chunk.
func (m *Model) Reinforce(ctx context.Context, chunks []index.Chunk) (map[string]Stats, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "memory.reinforce")
	defer span.End()
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	out := make(map[string]Stats, len(chunks))
	for _, c := range chunks {
		if _, done := out[c.ID]; done {
			continue
		}
		st, err := m.store.Reinforce(ctx, c.ID, m.Baseline(c))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return out, fmt.Errorf("reinforcing chunk %s: %w", c.ID, err)
		}
		out[c.ID] = st
	}
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// Rebase resets every chunk's weight to the time-decay formula for the
// current year, keeping access counts. It returns the number of chunks
// updated.
func (m *Model) Rebase(ctx context.Context, chunks []index.Chunk) (int, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "memory.rebase")
	defer span.End()

	year := m.CurrentYear()
	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.Int("current_year", year),
	)

	updated := 0
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		w := YearWeight(c.Year, year)
		if _, err := m.store.SetWeight(ctx, c.ID, w, m.Baseline(c)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return updated, fmt.Errorf("rebasing chunk %s: %w", c.ID, err)
		}
		updated++
	}

	m.logger.Info("rebased decay weights",
		zap.Int("chunks", updated),
		zap.Int("current_year", year),
	)
	span.SetStatus(codes.Ok, "success")
	return updated, nil
}

// Ranked is a search hit re-weighted by the memory model.
type Ranked struct {
	Hit   index.Hit
	Stats Stats
	// Score is Hit.Similarity * Stats.DecayWeight.
	Score float64
}

// Rank re-weights hits and orders them by score descending, then raw
// similarity descending, then insertion order. Hits are never dropped.
func Rank(hits []index.Hit, stats map[string]Stats) []Ranked {
	out := make([]Ranked, len(hits))
	for i, h := range hits {
		st, ok := stats[h.Chunk.ID]
		if !ok {
			st = Stats{AccessCount: h.Chunk.AccessCount, DecayWeight: NeutralWeight}
		}
		out[i] = Ranked{Hit: h, Stats: st, Score: h.Similarity * st.DecayWeight}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Hit.Similarity != out[j].Hit.Similarity {
			return out[i].Hit.Similarity > out[j].Hit.Similarity
		}
		return out[i].Hit.Chunk.Seq < out[j].Hit.Chunk.Seq
	})
	return out
}
