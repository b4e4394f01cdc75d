package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/yojana/internal/advisor"
	"github.com/fyrsmithlabs/yojana/internal/answer"
	"github.com/fyrsmithlabs/yojana/internal/drift"
	"github.com/fyrsmithlabs/yojana/internal/eligibility"
)

func withOutput(t *testing.T, format string) {
	t.Helper()
	prev := outputFormat
	outputFormat = format
	t.Cleanup(func() { outputFormat = prev })
}

func TestRenderAnswer(t *testing.T) {
	withOutput(t, "text")
	a := &answer.Answer{
		Text:       "Budget information for NREGA (2023): Rs 60,000 crore",
		Confidence: 0.78,
		Label:      answer.LabelHigh,
		Relaxation: answer.RelaxationFull,
	}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, a, renderAnswer))
	out := buf.String()
	assert.Contains(t, out, "Budget information for NREGA (2023)")
	assert.Contains(t, out, "0.78")
	assert.Contains(t, out, "(High, full search)")
}

func TestRenderAnswer_JSON(t *testing.T) {
	withOutput(t, "json")
	a := &answer.Answer{
		Query:      "nrega",
		Text:       "t",
		Label:      answer.LabelLow,
		Intent:     answer.IntentBudget,
		Relaxation: answer.RelaxationPolicyOnly,
		Sources:    []answer.Source{{ChunkID: "c1", Text: "hidden"}},
	}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, a, renderAnswer))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "budget", decoded["intent"])
	assert.Equal(t, "policy_only", decoded["relaxation"])
	assert.NotContains(t, buf.String(), "hidden", "source text stays out of JSON")
}

func TestRenderDrift(t *testing.T) {
	withOutput(t, "text")
	pair := drift.Result{PolicyID: "NREGA", FromYear: 2019, ToYear: 2020, Score: 0.812, Severity: drift.SeverityCritical, FromChunks: 8, ToChunks: 12}
	report := &advisor.DriftReport{
		PolicyID: "NREGA",
		Timeline: &drift.Timeline{PolicyID: "NREGA", Years: []int{2019, 2020}, Pairs: []drift.Result{pair}, Max: pair},
	}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, report, renderDrift))
	assert.Contains(t, buf.String(), "Drift timeline for NREGA")
	assert.Contains(t, buf.String(), "2019 -> 2020  0.812  CRITICAL")
	assert.Contains(t, buf.String(), "(8/12 chunks)")

	buf.Reset()
	insufficient := &advisor.DriftReport{
		PolicyID:     "PMAY",
		Insufficient: &advisor.Insufficient{PolicyID: "PMAY", Year: 2021, Message: "insufficient data for drift: PMAY has no chunks for 2021"},
	}
	require.NoError(t, render(&buf, insufficient, renderDrift))
	assert.Contains(t, buf.String(), "PMAY has no chunks for 2021")
}

func TestRenderEligibility(t *testing.T) {
	withOutput(t, "text")
	report := &eligibility.Report{
		Eligible: []eligibility.Result{{SchemeID: "NREGA", Name: "Rural employment", Priority: eligibility.PriorityHigh, MatchFraction: 1}},
		Excluded: []eligibility.Result{{
			SchemeID:      "NSAP",
			MatchFraction: 0,
			Failed:        []eligibility.Failure{{Rule: "age_min", Reason: "age 45 is below the minimum of 60", Citation: "NSAP guidelines 3.1"}},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, report, renderEligibility))
	out := buf.String()
	assert.Contains(t, out, "NREGA (Rural employment) [HIGH, 100% of criteria]")
	assert.Contains(t, out, "NSAP")
	assert.Contains(t, out, "age 45 is below the minimum of 60 [NSAP guidelines 3.1]")
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "yojana dev")
}

func TestRootRejectsUnknownOutput(t *testing.T) {
	withOutput(t, "text")
	rootCmd.SetArgs([]string{"version", "--output", "xml"})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--output must be text or json")
}
