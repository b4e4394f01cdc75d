package drift

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/yojana/internal/index"
	"github.com/fyrsmithlabs/yojana/internal/memory"
)

const tracerName = "yojana.drift"

// Result is the drift between two years of one policy.
type Result struct {
	PolicyID   string   `json:"policy_id"`
	FromYear   int      `json:"from_year"`
	ToYear     int      `json:"to_year"`
	Score      float64  `json:"score"`
	Severity   Severity `json:"severity"`
	FromChunks int      `json:"from_chunks"`
	ToChunks   int      `json:"to_chunks"`
}

// Timeline is the drift between every consecutive pair of years with data.
type Timeline struct {
	PolicyID string   `json:"policy_id"`
	Years    []int    `json:"years"`
	Pairs    []Result `json:"pairs"`
	// Max is the pair with the largest score; the earliest pair wins ties.
	Max Result `json:"max"`
}

// Analyzer computes drift from chunks stored in an index. Centroids are
// computed on demand and never cached.
type Analyzer struct {
	index  index.Index
	logger *zap.Logger
}

// NewAnalyzer creates an Analyzer over idx.
func NewAnalyzer(idx index.Index, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{index: idx, logger: logger}
}

// Drift compares the centroids of policyID's chunks in yearA and yearB.
// The score is symmetric in the two years.
func (a *Analyzer) Drift(ctx context.Context, policyID string, yearA, yearB int) (Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "drift.compare")
	defer span.End()
	span.SetAttributes(
		attribute.String("policy.id", policyID),
		attribute.Int("drift.year_a", yearA),
		attribute.Int("drift.year_b", yearB),
	)

	for _, y := range []int{yearA, yearB} {
		if err := validYear(y); err != nil {
			span.RecordError(err)
			return Result{}, err
		}
	}

	var chunksA, chunksB []index.Chunk
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		chunksA, err = a.index.Scan(gctx, index.Predicate{PolicyID: policyID, Year: strconv.Itoa(yearA)})
		return err
	})
	g.Go(func() error {
		var err error
		chunksB, err = a.index.Scan(gctx, index.Predicate{PolicyID: policyID, Year: strconv.Itoa(yearB)})
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("scanning chunks for %s: %w", policyID, err)
	}

	if len(chunksA) == 0 {
		return Result{}, &InsufficientDataError{PolicyID: policyID, Year: yearA}
	}
	if len(chunksB) == 0 {
		return Result{}, &InsufficientDataError{PolicyID: policyID, Year: yearB}
	}

	res := compare(policyID, yearA, yearB, Centroid(chunksA), Centroid(chunksB), len(chunksA), len(chunksB))
	span.SetAttributes(
		attribute.Float64("drift.score", res.Score),
		attribute.String("drift.severity", string(res.Severity)),
	)
	span.SetStatus(codes.Ok, "success")
	return res, nil
}

func compare(policyID string, yearA, yearB int, ca, cb []float64, na, nb int) Result {
	score := Score(ca, cb)
	return Result{
		PolicyID:   policyID,
		FromYear:   yearA,
		ToYear:     yearB,
		Score:      score,
		Severity:   Classify(score),
		FromChunks: na,
		ToChunks:   nb,
	}
}

// Timeline computes drift between consecutive years with data for
// policyID, optionally bounded by from and to (inclusive).
func (a *Analyzer) Timeline(ctx context.Context, policyID string, from, to *int) (Timeline, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "drift.timeline")
	defer span.End()
	span.SetAttributes(attribute.String("policy.id", policyID))

	if err := validateBounds(from, to); err != nil {
		span.RecordError(err)
		return Timeline{}, err
	}

	chunks, err := a.index.Scan(ctx, index.Predicate{PolicyID: policyID})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Timeline{}, fmt.Errorf("scanning chunks for %s: %w", policyID, err)
	}

	byYear := make(map[int][]index.Chunk)
	for _, c := range chunks {
		y, ok := memory.ParseYear(c.Year)
		if !ok {
			a.logger.Debug("skipping chunk with unparseable year",
				zap.String("chunk_id", c.ID), zap.String("year", c.Year))
			continue
		}
		if (from != nil && y < *from) || (to != nil && y > *to) {
			continue
		}
		byYear[y] = append(byYear[y], c)
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	if len(years) < 2 {
		err := insufficientTimeline(policyID, years, from, to)
		span.RecordError(err)
		return Timeline{}, err
	}

	centroids := make([][]float64, len(years))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, y := range years {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			centroids[i] = Centroid(byYear[y])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Timeline{}, err
	}

	tl := Timeline{PolicyID: policyID, Years: years}
	for i := 1; i < len(years); i++ {
		res := compare(policyID, years[i-1], years[i], centroids[i-1], centroids[i],
			len(byYear[years[i-1]]), len(byYear[years[i]]))
		tl.Pairs = append(tl.Pairs, res)
		if i == 1 || res.Score > tl.Max.Score {
			tl.Max = res
		}
	}

	span.SetAttributes(
		attribute.Int("drift.years", len(years)),
		attribute.Float64("drift.max_score", tl.Max.Score),
	)
	span.SetStatus(codes.Ok, "success")
	return tl, nil
}

func validateBounds(from, to *int) error {
	if from != nil {
		if err := validYear(*from); err != nil {
			return err
		}
	}
	if to != nil {
		if err := validYear(*to); err != nil {
			return err
		}
	}
	if from != nil && to != nil && *from > *to {
		return fmt.Errorf("%w: from %d is after to %d", ErrInvalidYear, *from, *to)
	}
	return nil
}

// insufficientTimeline names the bound lacking data, falling back to the
// policy as a whole.
func insufficientTimeline(policyID string, years []int, from, to *int) error {
	has := func(y int) bool {
		for _, v := range years {
			if v == y {
				return true
			}
		}
		return false
	}
	switch {
	case from != nil && !has(*from):
		return &InsufficientDataError{PolicyID: policyID, Year: *from}
	case to != nil && !has(*to):
		return &InsufficientDataError{PolicyID: policyID, Year: *to}
	default:
		return &InsufficientDataError{PolicyID: policyID}
	}
}
