package advisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/yojana/internal/answer"
	"github.com/fyrsmithlabs/yojana/internal/config"
	"github.com/fyrsmithlabs/yojana/internal/drift"
	"github.com/fyrsmithlabs/yojana/internal/eligibility"
	"github.com/fyrsmithlabs/yojana/internal/embeddings"
	"github.com/fyrsmithlabs/yojana/internal/index"
	"github.com/fyrsmithlabs/yojana/internal/logging"
	"github.com/fyrsmithlabs/yojana/internal/memory"
	"github.com/fyrsmithlabs/yojana/internal/query"
)

const tracerName = "yojana.advisor"

var (
	// ErrEmptyQuery indicates a question with no text.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrNoRuleSet indicates an eligibility check without loaded rules.
	ErrNoRuleSet = errors.New("no eligibility rule set loaded")

	// ErrInvalidRequest indicates a call missing a required argument.
	ErrInvalidRequest = errors.New("invalid request")
)

// Deps are the collaborators of a Service. Interpreter, Embedder, Index and
// Memory are required; the rest default when nil.
type Deps struct {
	Interpreter *query.Interpreter
	Embedder    embeddings.Provider
	Index       index.Index
	Memory      *memory.Model
	Drift       *drift.Analyzer
	Synthesizer *answer.Synthesizer
	Rules       *eligibility.RuleSet
	Retrieval   config.RetrievalConfig
	// Reinforce records every chunk an answer cites as accessed.
	Reinforce bool
	Logger    *logging.Logger
}

// Service runs the core operations against shared collaborators. It is safe
// for concurrent use.
type Service struct {
	interpreter *query.Interpreter
	embedder    embeddings.Provider
	index       index.Index
	memory      *memory.Model
	drift       *drift.Analyzer
	synth       *answer.Synthesizer
	rules       *eligibility.RuleSet
	topK        int
	candidates  int
	reinforce   bool
	logger      *logging.Logger
	metrics     *metrics
}

// NewService validates deps and builds a Service.
func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Interpreter == nil:
		return nil, fmt.Errorf("interpreter cannot be nil")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("embedding provider cannot be nil")
	case deps.Index == nil:
		return nil, fmt.Errorf("index cannot be nil")
	case deps.Memory == nil:
		return nil, fmt.Errorf("memory model cannot be nil")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.FromContext(context.Background())
	}
	analyzer := deps.Drift
	if analyzer == nil {
		analyzer = drift.NewAnalyzer(deps.Index, logger.Underlying())
	}
	synth := deps.Synthesizer
	if synth == nil {
		var err error
		if synth, err = answer.NewSynthesizer(); err != nil {
			return nil, err
		}
	}

	topK := deps.Retrieval.TopK
	if topK < 1 {
		topK = 5
	}
	factor := deps.Retrieval.CandidateFactor
	if factor < 1 {
		factor = 1
	}

	return &Service{
		interpreter: deps.Interpreter,
		embedder:    deps.Embedder,
		index:       deps.Index,
		memory:      deps.Memory,
		drift:       analyzer,
		synth:       synth,
		rules:       deps.Rules,
		topK:        topK,
		candidates:  topK * factor,
		reinforce:   deps.Reinforce,
		logger:      logger,
		metrics:     newMetrics(logger.Underlying()),
	}, nil
}

// AnswerQuery answers a free-text question. Searches relax from the full
// predicate to policy-only to unfiltered; when nothing matches at any level
// the answer is the zero-confidence no-data answer, not an error.
//
// languageHint is recorded on the answer as given.
func (s *Service) AnswerQuery(ctx context.Context, raw, languageHint string) (*answer.Answer, error) {
	ctx = logging.WithOperation(logging.WithQueryID(ctx, uuid.NewString()), "answer_query")
	ctx, span := otel.Tracer(tracerName).Start(ctx, "advisor.answer_query")
	defer span.End()

	interp := s.interpreter.Interpret(raw)
	if strings.TrimSpace(interp.Query) == "" {
		span.RecordError(ErrEmptyQuery)
		span.SetStatus(codes.Error, ErrEmptyQuery.Error())
		return nil, ErrEmptyQuery
	}
	span.SetAttributes(
		attribute.String("query.policy_id", interp.PolicyID),
		attribute.Bool("query.ambiguous", interp.Ambiguous()),
	)

	vector, err := s.embedder.EmbedQuery(ctx, interp.Query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	level, hits, err := s.search(ctx, vector, interp.Predicate())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ranked, err := s.rank(ctx, hits)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	a, err := s.synth.Synthesize(interp, level, ranked, s.topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	a.LanguageHint = languageHint

	if a.Intent == answer.IntentTemporal && interp.PolicyID != "" && !a.NoData {
		s.attachDrift(ctx, &a, interp)
	}

	if s.reinforce && len(ranked) > 0 {
		chunks := make([]index.Chunk, len(ranked))
		for i, r := range ranked {
			chunks[i] = r.Hit.Chunk
		}
		// The answer reflects weights before this access.
		if _, err := s.memory.Reinforce(ctx, chunks); err != nil {
			s.logger.Warn(ctx, "reinforcing cited chunks", zap.Error(err))
		}
	}

	s.metrics.recordAnswer(ctx, &a)
	span.SetAttributes(
		attribute.String("answer.intent", a.Intent.String()),
		attribute.String("answer.relaxation", a.Relaxation.String()),
		attribute.Float64("answer.confidence", a.Confidence),
		attribute.Int("answer.sources", len(a.Sources)),
	)
	span.SetStatus(codes.Ok, "success")

	s.logger.Info(ctx, "answered query",
		zap.String("policy_id", interp.PolicyID),
		zap.String("intent", a.Intent.String()),
		zap.String("relaxation", a.Relaxation.String()),
		zap.Float64("confidence", a.Confidence),
		zap.Int("sources", len(a.Sources)),
	)
	return &a, nil
}

// search runs the relaxation ladder. A level whose predicate was already
// tried is skipped, and an empty predicate is only run as the unfiltered
// level.
func (s *Service) search(ctx context.Context, vector []float32, full index.Predicate) (answer.Relaxation, []index.Hit, error) {
	levels := []answer.Relaxation{answer.RelaxationFull, answer.RelaxationPolicyOnly, answer.RelaxationUnfiltered}
	tried := make([]index.Predicate, 0, len(levels))

	for _, level := range levels {
		pred, _ := level.Predicate(full)
		if pred.IsZero() && level != answer.RelaxationUnfiltered {
			continue
		}
		if slices.Contains(tried, pred) {
			continue
		}
		tried = append(tried, pred)

		hits, err := s.index.Search(ctx, vector, pred, s.candidates)
		if err != nil {
			return answer.RelaxationExhausted, nil, fmt.Errorf("searching at %s level: %w", level, err)
		}
		if len(hits) > 0 {
			if level != answer.RelaxationFull {
				s.logger.Debug(ctx, "relaxed search predicate",
					zap.String("level", level.String()),
					zap.Int("hits", len(hits)),
				)
			}
			return level, hits, nil
		}
	}

	s.logger.Info(ctx, "no matching data at any relaxation level")
	return answer.RelaxationExhausted, nil, nil
}

// rank re-weights the candidate pool with stored memory stats and keeps the
// top K.
func (s *Service) rank(ctx context.Context, hits []index.Hit) ([]memory.Ranked, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	chunks := make([]index.Chunk, len(hits))
	for i, h := range hits {
		chunks[i] = h.Chunk
	}
	stats, err := s.memory.Weigh(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("weighing candidates: %w", err)
	}
	ranked := memory.Rank(hits, stats)
	if len(ranked) > s.topK {
		ranked = ranked[:s.topK]
	}
	return ranked, nil
}

// attachDrift adds the policy's largest drift over the asked range to a
// temporal answer. Missing data leaves the answer unchanged.
func (s *Service) attachDrift(ctx context.Context, a *answer.Answer, interp query.Interpretation) {
	var from, to *int
	if r := interp.YearRange; r != nil && !r.Single() {
		from, to = &r.From, &r.To
	}
	tl, err := s.drift.Timeline(ctx, interp.PolicyID, from, to)
	if err != nil {
		if errors.Is(err, drift.ErrInsufficientData) {
			s.logger.Debug(ctx, "skipping drift summary", zap.Error(err))
		} else {
			s.logger.Warn(ctx, "computing drift summary", zap.Error(err))
		}
		return
	}
	a.AttachDrift(tl)
}

// DriftReport is the result of AnalyzeDrift. Exactly one of Timeline and
// Insufficient is set.
type DriftReport struct {
	PolicyID     string          `json:"policy_id"`
	Timeline     *drift.Timeline `json:"timeline,omitempty"`
	Insufficient *Insufficient   `json:"insufficient,omitempty"`
}

// Insufficient names the year (or policy, when Year is 0) that lacks data.
type Insufficient struct {
	PolicyID string `json:"policy_id"`
	Year     int    `json:"year,omitempty"`
	Message  string `json:"message"`
}

// AnalyzeDrift reports the drift timeline of a policy between optional year
// bounds. policyID may be any alias the interpreter recognizes. Missing data
// is reported in DriftReport.Insufficient; invalid years are errors.
func (s *Service) AnalyzeDrift(ctx context.Context, policyID string, from, to *int) (*DriftReport, error) {
	ctx = logging.WithOperation(logging.WithQueryID(ctx, uuid.NewString()), "analyze_drift")
	ctx, span := otel.Tracer(tracerName).Start(ctx, "advisor.analyze_drift")
	defer span.End()

	policyID = strings.TrimSpace(policyID)
	if policyID == "" {
		err := fmt.Errorf("%w: policy id is required", ErrInvalidRequest)
		span.RecordError(err)
		return nil, err
	}
	if resolved := s.interpreter.Interpret(policyID).PolicyID; resolved != "" {
		policyID = resolved
	}
	span.SetAttributes(attribute.String("policy_id", policyID))

	tl, err := s.drift.Timeline(ctx, policyID, from, to)
	if err != nil {
		var insufficient *drift.InsufficientDataError
		if errors.As(err, &insufficient) {
			s.metrics.recordDrift(ctx, "insufficient")
			s.logger.Info(ctx, "insufficient drift data",
				zap.String("policy_id", policyID),
				zap.Int("year", insufficient.Year),
			)
			span.SetStatus(codes.Ok, "insufficient data")
			return &DriftReport{
				PolicyID: policyID,
				Insufficient: &Insufficient{
					PolicyID: policyID,
					Year:     insufficient.Year,
					Message:  insufficient.Error(),
				},
			}, nil
		}
		s.metrics.recordDrift(ctx, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.metrics.recordDrift(ctx, "ok")
	span.SetAttributes(
		attribute.Int("drift.pairs", len(tl.Pairs)),
		attribute.String("drift.max_severity", string(tl.Max.Severity)),
	)
	span.SetStatus(codes.Ok, "success")
	s.logger.Info(ctx, "analyzed drift",
		zap.String("policy_id", policyID),
		zap.Int("pairs", len(tl.Pairs)),
		zap.Float64("max_score", tl.Max.Score),
		zap.String("max_severity", string(tl.Max.Severity)),
	)
	return &DriftReport{PolicyID: policyID, Timeline: &tl}, nil
}

// CheckEligibility matches a profile against the loaded rule set.
func (s *Service) CheckEligibility(ctx context.Context, profile eligibility.Profile) (*eligibility.Report, error) {
	ctx = logging.WithOperation(logging.WithQueryID(ctx, uuid.NewString()), "check_eligibility")
	ctx, span := otel.Tracer(tracerName).Start(ctx, "advisor.check_eligibility")
	defer span.End()

	if s.rules == nil {
		span.RecordError(ErrNoRuleSet)
		span.SetStatus(codes.Error, ErrNoRuleSet.Error())
		return nil, ErrNoRuleSet
	}

	report, err := eligibility.Check(profile, s.rules)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Debug(ctx, "rejected profile", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("eligible", len(report.Eligible)),
		attribute.Int("excluded", len(report.Excluded)),
	)
	span.SetStatus(codes.Ok, "success")
	s.logger.Info(ctx, "checked eligibility",
		zap.Int("eligible", len(report.Eligible)),
		zap.Int("excluded", len(report.Excluded)),
	)
	return &report, nil
}

// RebaseWeights resets every indexed chunk's decay weight to its time-decay
// baseline for the current year, keeping access counts.
func (s *Service) RebaseWeights(ctx context.Context) (int, error) {
	ctx = logging.WithOperation(ctx, "rebase_weights")
	chunks, err := s.index.Scan(ctx, index.Predicate{})
	if err != nil {
		return 0, fmt.Errorf("scanning index: %w", err)
	}
	n, err := s.memory.Rebase(ctx, chunks)
	if err != nil {
		return n, err
	}
	s.logger.Info(ctx, "rebased weights", zap.Int("chunks", n))
	return n, nil
}
