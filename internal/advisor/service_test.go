package advisor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/yojana/internal/advisor"
	"github.com/fyrsmithlabs/yojana/internal/answer"
	"github.com/fyrsmithlabs/yojana/internal/config"
	"github.com/fyrsmithlabs/yojana/internal/drift"
	"github.com/fyrsmithlabs/yojana/internal/eligibility"
	"github.com/fyrsmithlabs/yojana/internal/embeddings"
	"github.com/fyrsmithlabs/yojana/internal/index"
	"github.com/fyrsmithlabs/yojana/internal/logging"
	"github.com/fyrsmithlabs/yojana/internal/memory"
	"github.com/fyrsmithlabs/yojana/internal/query"
	"github.com/fyrsmithlabs/yojana/internal/telemetry"
)

const dim = 64

var corpus = []index.Chunk{
	{ID: "nrega-2019-1", PolicyID: "NREGA", Year: "2019", Modality: index.ModalityTemporal, Source: "MoRD circular 2019",
		Text: "NREGA guarantees one hundred days of unskilled manual work to every rural household"},
	{ID: "nrega-2019-2", PolicyID: "NREGA", Year: "2019", Modality: index.ModalityTemporal, Source: "MoRD annual report 2019",
		Text: "Job cards were issued to rural households registering under NREGA"},
	{ID: "nrega-2020-1", PolicyID: "NREGA", Year: "2020", Modality: index.ModalityTemporal, Source: "MoRD circular 2020",
		Text: "NREGA expanded during the pandemic to absorb returning migrant workers"},
	{ID: "nrega-2020-2", PolicyID: "NREGA", Year: "2020", Modality: index.ModalityNews, Source: "news wire",
		Text: "Record demand for work under NREGA during the lockdown"},
	{ID: "nrega-2023-1", PolicyID: "NREGA", Year: "2023", Modality: index.ModalityBudget, Source: "Union Budget 2023-24",
		Text: "NREGA budget allocation for 2023-24 is Rs 60,000 crore"},
	{ID: "nrega-2023-2", PolicyID: "NREGA", Year: "2023", Modality: index.ModalityBudget, Source: "Revised Estimates 2023-24",
		Text: "Revised estimates raised the NREGA budget during 2023"},
	{ID: "pmay-2024-1", PolicyID: "PMAY", Year: "2024", Modality: index.ModalityNews, Source: "PIB release",
		Text: "PMAY urban houses sanctioned across states"},
}

const rulesYAML = `
schemes:
  - id: NREGA
    priority: HIGH
    rules:
      age_min: 18
      location_type: [rural]
      flags:
        willingness_manual_work: true
  - id: NSAP
    priority: MEDIUM
    rules:
      age_min: 60
`

type fixture struct {
	svc    *advisor.Service
	idx    index.Index
	store  *memory.MemoryStore
	logger *logging.TestLogger
	tel    *telemetry.TestTelemetry
}

type options struct {
	empty     bool
	reinforce bool
	noRules   bool
	embedder  embeddings.Provider
}

func newFixture(t *testing.T, opts options) *fixture {
	t.Helper()
	ctx := context.Background()
	tel := telemetry.NewTestTelemetry(t)
	logger := logging.NewTestLogger()

	provider, err := embeddings.NewHashingProvider(dim)
	require.NoError(t, err)

	idx, err := index.NewChromemIndex(index.ChromemConfig{VectorSize: dim}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	if !opts.empty {
		chunks := make([]index.Chunk, len(corpus))
		copy(chunks, corpus)
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vecs, err := provider.EmbedDocuments(ctx, texts)
		require.NoError(t, err)
		for i := range chunks {
			chunks[i].Embedding = vecs[i]
		}
		require.NoError(t, idx.Add(ctx, chunks...))
	}

	var rules *eligibility.RuleSet
	if !opts.noRules {
		rules, err = eligibility.ParseRuleSet([]byte(rulesYAML), eligibility.FormatYAML)
		require.NoError(t, err)
	}

	store := memory.NewMemoryStore()
	model := memory.NewModel(store, memory.WithClock(func() time.Time {
		return time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	}))

	embedder := opts.embedder
	if embedder == nil {
		embedder = provider
	}
	svc, err := advisor.NewService(advisor.Deps{
		Interpreter: query.NewInterpreter(nil),
		Embedder:    embedder,
		Index:       idx,
		Memory:      model,
		Rules:       rules,
		Retrieval:   config.RetrievalConfig{TopK: 3, CandidateFactor: 2},
		Reinforce:   opts.reinforce,
		Logger:      logger.Logger,
	})
	require.NoError(t, err)

	return &fixture{svc: svc, idx: idx, store: store, logger: logger, tel: tel}
}

func policiesAndYears(a *answer.Answer) ([]string, []string) {
	var policies, years []string
	for _, s := range a.Sources {
		policies = append(policies, s.PolicyID)
		years = append(years, s.Year)
	}
	return policies, years
}

func TestAnswerQuery_FullPredicate(t *testing.T) {
	f := newFixture(t, options{})

	a, err := f.svc.AnswerQuery(context.Background(), "What was the NREGA budget in 2023?", "en")
	require.NoError(t, err)

	assert.Equal(t, answer.RelaxationFull, a.Relaxation)
	assert.Equal(t, answer.IntentBudget, a.Intent)
	assert.Equal(t, "en", a.LanguageHint)
	policies, years := policiesAndYears(a)
	assert.Equal(t, []string{"NREGA", "NREGA"}, policies)
	assert.Equal(t, []string{"2023", "2023"}, years)
	assert.InDelta(t, 0.5*a.Sources[0].Score+0.5*(2.0/3.0), a.Confidence, 1e-9,
		"both sources agree with the top result but fill two of three slots")

	f.tel.AssertSpanExists(t, "advisor.answer_query")
	f.tel.AssertSpanAttribute(t, "advisor.answer_query", "answer.relaxation", "full")
	f.tel.AssertSpanExists(t, "index.search")
	assert.True(t, f.tel.HasMetric(t, "yojana.answer.confidence"))
	assert.True(t, f.tel.HasMetric(t, "yojana.retrieval.relaxations_total"))

	entries := f.logger.FilterMessage("answered query").All()
	require.Len(t, entries, 1)
	queryID, ok := entries[0].ContextMap()["query.id"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, queryID)
	assert.NotContains(t, a.Text, queryID)
}

func TestAnswerQuery_SingleHitIsNotOverconfident(t *testing.T) {
	f := newFixture(t, options{})

	a, err := f.svc.AnswerQuery(context.Background(), "What is PMAY in 2024?", "")
	require.NoError(t, err)

	assert.Equal(t, answer.RelaxationFull, a.Relaxation)
	require.Len(t, a.Sources, 1)
	top := a.Sources[0].Score
	assert.InDelta(t, 0.5*top+0.5/3.0, a.Confidence, 1e-9)
	assert.Equal(t, answer.LabelFor(a.Confidence), a.Label)
	assert.Less(t, a.Confidence, 0.5*top+0.5, "a lone hit does not count as full agreement")
}

func TestAnswerQuery_RelaxesToPolicyOnly(t *testing.T) {
	f := newFixture(t, options{})

	a, err := f.svc.AnswerQuery(context.Background(), "NREGA budget in 2021", "")
	require.NoError(t, err)

	assert.Equal(t, answer.RelaxationPolicyOnly, a.Relaxation)
	require.Len(t, a.Sources, 3, "candidate pool is trimmed to top_k")
	policies, _ := policiesAndYears(a)
	assert.Equal(t, []string{"NREGA", "NREGA", "NREGA"}, policies)
	assert.Contains(t, a.Text, "Nothing matched NREGA in 2021")
	f.logger.AssertLogged(t, zapcore.DebugLevel, "relaxed search predicate")
}

func TestAnswerQuery_RelaxesToUnfiltered(t *testing.T) {
	f := newFixture(t, options{})

	a, err := f.svc.AnswerQuery(context.Background(), "What is PM Kisan in 2022?", "")
	require.NoError(t, err)

	assert.Equal(t, "PMKISAN", a.PolicyID)
	assert.Equal(t, answer.RelaxationUnfiltered, a.Relaxation)
	assert.Len(t, a.Sources, 3)
	assert.Greater(t, a.Confidence, 0.0, "relaxation never empties silently")
}

func TestAnswerQuery_AmbiguousSearchesEverything(t *testing.T) {
	f := newFixture(t, options{})

	a, err := f.svc.AnswerQuery(context.Background(), "tell me something useful", "")
	require.NoError(t, err)

	assert.Equal(t, answer.RelaxationUnfiltered, a.Relaxation)
	assert.NotEmpty(t, a.Sources)
	assert.Contains(t, a.Text, "No scheme or year was recognized")
}

func TestAnswerQuery_NoData(t *testing.T) {
	f := newFixture(t, options{empty: true})

	a, err := f.svc.AnswerQuery(context.Background(), "What was the NREGA budget in 2023?", "")
	require.NoError(t, err)

	assert.True(t, a.NoData)
	assert.Equal(t, answer.RelaxationExhausted, a.Relaxation)
	assert.Equal(t, 0.0, a.Confidence)
	assert.ErrorIs(t, a.Err(), answer.ErrNoMatchingData)
	f.logger.AssertLogged(t, zapcore.InfoLevel, "no matching data")
	f.logger.AssertNotLogged(t, zapcore.WarnLevel, "")
	f.logger.AssertNotLogged(t, zapcore.ErrorLevel, "")
}

func TestAnswerQuery_Deterministic(t *testing.T) {
	f := newFixture(t, options{})
	ctx := context.Background()

	for _, q := range []string{"What was the NREGA budget in 2023?", "How has NREGA changed?", "PMAY houses"} {
		first, err := f.svc.AnswerQuery(ctx, q, "hi")
		require.NoError(t, err)
		second, err := f.svc.AnswerQuery(ctx, q, "hi")
		require.NoError(t, err)
		assert.Equal(t, *first, *second, q)
	}
}

func TestAnswerQuery_ReinforcesCitedChunks(t *testing.T) {
	f := newFixture(t, options{reinforce: true})
	ctx := context.Background()

	a, err := f.svc.AnswerQuery(ctx, "What was the NREGA budget in 2023?", "")
	require.NoError(t, err)
	require.Len(t, a.Sources, 2)
	// weights used for this answer are the 2023 baseline
	assert.InDelta(t, a.Sources[0].Similarity*0.7, a.Sources[0].Score, 1e-9)

	stats, err := f.store.Get(ctx, []string{"nrega-2023-1", "nrega-2023-2", "nrega-2019-1"})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	for _, id := range []string{"nrega-2023-1", "nrega-2023-2"} {
		assert.Equal(t, int64(1), stats[id].AccessCount)
		assert.InDelta(t, 0.75, stats[id].DecayWeight, 1e-9)
	}
	f.tel.AssertSpanExists(t, "memory.reinforce")
}

func TestAnswerQuery_TemporalIncludesDrift(t *testing.T) {
	f := newFixture(t, options{})

	a, err := f.svc.AnswerQuery(context.Background(), "How has NREGA changed between 2019 and 2020?", "")
	require.NoError(t, err)

	assert.Equal(t, answer.IntentTemporal, a.Intent)
	assert.Equal(t, answer.RelaxationFull, a.Relaxation)
	require.NotNil(t, a.Drift)
	assert.Equal(t, 2019, a.Drift.FromYear)
	assert.Equal(t, 2020, a.Drift.ToYear)
	assert.Contains(t, a.Text, "Largest shift in how NREGA is described: 2019 to 2020")
	f.tel.AssertSpanExists(t, "drift.timeline")
}

func TestAnswerQuery_TemporalWithoutDriftData(t *testing.T) {
	f := newFixture(t, options{})

	a, err := f.svc.AnswerQuery(context.Background(), "How has PMAY changed?", "")
	require.NoError(t, err)

	assert.Equal(t, answer.IntentTemporal, a.Intent)
	assert.Nil(t, a.Drift, "one year of data has no drift")
	f.logger.AssertLogged(t, zapcore.DebugLevel, "skipping drift summary")
}

type failingEmbedder struct{ embeddings.Provider }

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, embeddings.ErrEmbeddingFailed
}

func TestAnswerQuery_Errors(t *testing.T) {
	f := newFixture(t, options{})
	_, err := f.svc.AnswerQuery(context.Background(), "   ", "")
	assert.ErrorIs(t, err, advisor.ErrEmptyQuery)

	provider, err := embeddings.NewHashingProvider(dim)
	require.NoError(t, err)
	f = newFixture(t, options{embedder: failingEmbedder{provider}})
	_, err = f.svc.AnswerQuery(context.Background(), "NREGA 2023", "")
	assert.ErrorIs(t, err, embeddings.ErrEmbeddingFailed)
}

func intPtr(v int) *int { return &v }

func TestAnalyzeDrift(t *testing.T) {
	f := newFixture(t, options{})
	ctx := context.Background()

	report, err := f.svc.AnalyzeDrift(ctx, "mgnrega", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "NREGA", report.PolicyID)
	require.NotNil(t, report.Timeline)
	assert.Nil(t, report.Insufficient)
	assert.Equal(t, []int{2019, 2020, 2023}, report.Timeline.Years)
	assert.Len(t, report.Timeline.Pairs, 2)

	report, err = f.svc.AnalyzeDrift(ctx, "PMAY", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, report.Timeline)
	require.NotNil(t, report.Insufficient)
	assert.Equal(t, "PMAY", report.Insufficient.PolicyID)
	assert.Zero(t, report.Insufficient.Year)

	report, err = f.svc.AnalyzeDrift(ctx, "NREGA", intPtr(2021), intPtr(2022))
	require.NoError(t, err)
	require.NotNil(t, report.Insufficient)
	assert.Equal(t, 2021, report.Insufficient.Year)

	_, err = f.svc.AnalyzeDrift(ctx, "NREGA", intPtr(1999), nil)
	assert.ErrorIs(t, err, drift.ErrInvalidYear)

	_, err = f.svc.AnalyzeDrift(ctx, " ", nil, nil)
	assert.ErrorIs(t, err, advisor.ErrInvalidRequest)

	f.tel.AssertSpanExists(t, "advisor.analyze_drift")
	assert.True(t, f.tel.HasMetric(t, "yojana.drift.analyses_total"))
}

func TestCheckEligibility(t *testing.T) {
	f := newFixture(t, options{})
	ctx := context.Background()

	report, err := f.svc.CheckEligibility(ctx, eligibility.Profile{
		Age:          intPtr(45),
		LocationType: "rural",
		Flags:        map[string]bool{"willingness_manual_work": true},
	})
	require.NoError(t, err)
	require.Len(t, report.Eligible, 1)
	assert.Equal(t, "NREGA", report.Eligible[0].SchemeID)
	assert.Equal(t, 1.0, report.Eligible[0].MatchFraction)
	require.Len(t, report.Excluded, 1)
	assert.Equal(t, "NSAP", report.Excluded[0].SchemeID)

	_, err = f.svc.CheckEligibility(ctx, eligibility.Profile{LocationType: "rural"})
	assert.ErrorIs(t, err, eligibility.ErrInvalidProfile)

	f = newFixture(t, options{noRules: true})
	_, err = f.svc.CheckEligibility(ctx, eligibility.Profile{Age: intPtr(45), LocationType: "rural"})
	assert.ErrorIs(t, err, advisor.ErrNoRuleSet)
}

func TestRebaseWeights(t *testing.T) {
	f := newFixture(t, options{reinforce: true})
	ctx := context.Background()

	_, err := f.svc.AnswerQuery(ctx, "What was the NREGA budget in 2023?", "")
	require.NoError(t, err)

	n, err := f.svc.RebaseWeights(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(corpus), n)

	stats, err := f.store.Get(ctx, []string{"nrega-2019-1", "nrega-2023-1", "pmay-2024-1"})
	require.NoError(t, err)
	assert.InDelta(t, 0.3, stats["nrega-2019-1"].DecayWeight, 1e-9, "floored")
	assert.InDelta(t, 0.7, stats["nrega-2023-1"].DecayWeight, 1e-9)
	assert.Equal(t, int64(1), stats["nrega-2023-1"].AccessCount, "rebase keeps access counts")
	assert.InDelta(t, 0.8, stats["pmay-2024-1"].DecayWeight, 1e-9)
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := advisor.NewService(advisor.Deps{})
	assert.Error(t, err)

	provider, err := embeddings.NewHashingProvider(dim)
	require.NoError(t, err)
	_, err = advisor.NewService(advisor.Deps{Interpreter: query.NewInterpreter(nil), Embedder: provider})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, advisor.ErrEmptyQuery))
}
