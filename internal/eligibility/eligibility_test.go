package eligibility_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/yojana/internal/eligibility"
)

func intp(n int) *int { return &n }

const schemesYAML = `
schemes:
  - id: NREGA
    name: Mahatma Gandhi National Rural Employment Guarantee
    priority: HIGH
    rules:
      age_min: 18
      location_type: [rural]
      flags:
        willingness_manual_work: true
    citations:
      age_min: "MGNREGA 2005, Sec 3(1)"
  - id: PMAY-U
    name: Pradhan Mantri Awas Yojana (Urban)
    priority: MEDIUM
    rules:
      location_type: [urban]
      income_max: 300000
  - id: NSAP
    name: National Social Assistance Programme
    priority: LOW
    rules:
      age_min: 60
  - id: OPEN
    name: Information helpline
`

func loadSchemes(t *testing.T) *eligibility.RuleSet {
	t.Helper()
	rs, err := eligibility.ParseRuleSet([]byte(schemesYAML), eligibility.FormatYAML)
	require.NoError(t, err)
	return rs
}

func TestCheck_RuralWorkerIsEligibleForNREGA(t *testing.T) {
	rs := loadSchemes(t)
	profile, err := eligibility.ParseProfile([]byte(`{"age": 45, "location_type": "rural", "willingness_manual_work": true}`))
	require.NoError(t, err)

	report, err := eligibility.Check(profile, rs)
	require.NoError(t, err)

	require.Len(t, report.Eligible, 2)
	nrega := report.Eligible[0]
	assert.Equal(t, "NREGA", nrega.SchemeID)
	assert.Equal(t, 1.0, nrega.MatchFraction)
	assert.True(t, nrega.Eligible)
	assert.Equal(t, 3, nrega.Declared)
	assert.ElementsMatch(t, []string{"age_min", "location_type", "willingness_manual_work"}, nrega.Satisfied)
	assert.Empty(t, nrega.Failed)

	// no declared rules is trivially satisfied
	assert.Equal(t, "OPEN", report.Eligible[1].SchemeID)
	assert.Equal(t, 1.0, report.Eligible[1].MatchFraction)
	assert.Equal(t, eligibility.PriorityLow, report.Eligible[1].Priority)

	require.Len(t, report.Excluded, 2)
	assert.Equal(t, "PMAY-U", report.Excluded[0].SchemeID, "both score zero, so rule-set order decides")
	assert.Equal(t, "NSAP", report.Excluded[1].SchemeID)
}

func TestCheck_FailedRulesCarryReasonsAndCitations(t *testing.T) {
	rs := loadSchemes(t)
	report, err := eligibility.Check(eligibility.Profile{Age: intp(16), LocationType: "rural"}, rs)
	require.NoError(t, err)

	var nrega eligibility.Result
	for _, r := range report.Excluded {
		if r.SchemeID == "NREGA" {
			nrega = r
		}
	}
	require.Equal(t, "NREGA", nrega.SchemeID)
	assert.InDelta(t, 1.0/3.0, nrega.MatchFraction, 1e-9)
	require.Len(t, nrega.Failed, 2)
	assert.Equal(t, "age_min", nrega.Failed[0].Rule)
	assert.Contains(t, nrega.Failed[0].Reason, "below the minimum of 18")
	assert.Equal(t, "MGNREGA 2005, Sec 3(1)", nrega.Failed[0].Citation)
	assert.Equal(t, "willingness_manual_work", nrega.Failed[1].Rule)
	assert.Contains(t, nrega.Failed[1].Reason, "not provided")
}

func TestCheck_MissingOptionalAttributeFailsRule(t *testing.T) {
	rs := loadSchemes(t)
	report, err := eligibility.Check(eligibility.Profile{Age: intp(30), LocationType: "urban"}, rs)
	require.NoError(t, err)

	var pmay eligibility.Result
	for _, r := range report.Excluded {
		if r.SchemeID == "PMAY-U" {
			pmay = r
		}
	}
	require.Equal(t, "PMAY-U", pmay.SchemeID)
	assert.Equal(t, 0.5, pmay.MatchFraction)
	require.Len(t, pmay.Failed, 1)
	assert.Equal(t, "income_max", pmay.Failed[0].Rule)
	assert.Equal(t, "annual_income not provided", pmay.Failed[0].Reason)
}

func TestCheck_EligibleOrdering(t *testing.T) {
	rs, err := eligibility.ParseRuleSet([]byte(`{
		"schemes": [
			{"id": "low-full", "priority": "LOW", "rules": {"age_min": 18}},
			{"id": "high-partial", "priority": "HIGH", "rules": {"age_min": 18, "age_max": 60, "location_type": ["rural"], "gender": ["female"], "occupation": ["farmer"]}},
			{"id": "high-full", "priority": "HIGH", "rules": {"age_min": 18}},
			{"id": "medium-full", "priority": "MEDIUM", "rules": {}}
		]
	}`), eligibility.FormatJSON)
	require.NoError(t, err)

	profile := eligibility.Profile{Age: intp(40), LocationType: "rural", Gender: "female", Occupation: "labourer"}
	report, err := eligibility.Check(profile, rs)
	require.NoError(t, err)

	ids := make([]string, len(report.Eligible))
	for i, r := range report.Eligible {
		ids[i] = r.SchemeID
	}
	assert.Equal(t, []string{"high-full", "high-partial", "medium-full", "low-full"}, ids)
	assert.Equal(t, 0.8, report.Eligible[1].MatchFraction, "4 of 5 sits exactly on the threshold")
	assert.Empty(t, report.Excluded)
}

func TestCheck_InvalidProfile(t *testing.T) {
	rs := loadSchemes(t)
	tests := []struct {
		name    string
		profile eligibility.Profile
	}{
		{"missing age", eligibility.Profile{LocationType: "rural"}},
		{"age out of range", eligibility.Profile{Age: intp(121), LocationType: "rural"}},
		{"negative age", eligibility.Profile{Age: intp(-1), LocationType: "rural"}},
		{"missing location", eligibility.Profile{Age: intp(30)}},
		{"unknown location", eligibility.Profile{Age: intp(30), LocationType: "suburban"}},
		{"unknown gender", eligibility.Profile{Age: intp(30), LocationType: "urban", Gender: "robot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eligibility.Check(tt.profile, rs)
			require.ErrorIs(t, err, eligibility.ErrInvalidProfile)
			var verrs validator.ValidationErrors
			assert.ErrorAs(t, err, &verrs)
		})
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	rs := loadSchemes(t)
	p := eligibility.Profile{Age: intp(65), LocationType: "rural", Flags: map[string]bool{"willingness_manual_work": false}}
	first := eligibility.Evaluate(p, rs)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, eligibility.Evaluate(p, rs))
	}
	assert.Nil(t, eligibility.Evaluate(p, nil))
}

func TestParseRuleSet_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format eligibility.Format
	}{
		{"duplicate id", `schemes: [{id: A}, {id: A}]`, eligibility.FormatYAML},
		{"missing id", `schemes: [{name: nameless}]`, eligibility.FormatYAML},
		{"inverted ages", `schemes: [{id: A, rules: {age_min: 60, age_max: 18}}]`, eligibility.FormatYAML},
		{"bad priority", `schemes: [{id: A, priority: URGENT}]`, eligibility.FormatYAML},
		{"bad location", `schemes: [{id: A, rules: {location_type: [moon]}}]`, eligibility.FormatYAML},
		{"unknown json field", `{"schemes": [{"id": "A", "rulez": {}}]}`, eligibility.FormatJSON},
		{"malformed toml", `[[schemes]`, eligibility.FormatTOML},
		{"unknown format", `{}`, eligibility.Format("xml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eligibility.ParseRuleSet([]byte(tt.data), tt.format)
			assert.ErrorIs(t, err, eligibility.ErrInvalidRuleSet)
		})
	}
}

func TestLoadRuleSet_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[schemes]]
id = "PMKISAN"
name = "PM Kisan Samman Nidhi"
priority = "HIGH"

[schemes.rules]
occupation = ["farmer"]

[schemes.rules.flags]
owns_cultivable_land = true

[schemes.citations]
occupation = "PM-KISAN Operational Guidelines, para 2"
`), 0o600))

	rs, err := eligibility.LoadRuleSet(path)
	require.NoError(t, err)
	require.Len(t, rs.Schemes, 1)
	s := rs.Schemes[0]
	assert.Equal(t, "PMKISAN", s.ID)
	assert.Equal(t, eligibility.PriorityHigh, s.Priority)
	assert.Equal(t, []string{"farmer"}, s.Rules.Occupation)
	assert.Equal(t, map[string]bool{"owns_cultivable_land": true}, s.Rules.Flags)

	_, err = eligibility.LoadRuleSet(filepath.Join(t.TempDir(), "rules.ini"))
	assert.ErrorIs(t, err, eligibility.ErrInvalidRuleSet)
}

func TestParseProfile(t *testing.T) {
	p, err := eligibility.ParseProfile([]byte(`
age: 34
location_type: Urban
gender: female
occupation: street_vendor
annual_income: 120000
flags:
  has_bank_account: true
bpl_card: false
`))
	require.NoError(t, err)
	require.NotNil(t, p.Age)
	assert.Equal(t, 34, *p.Age)
	assert.Equal(t, "urban", p.LocationType)
	assert.Equal(t, "street_vendor", p.Occupation)
	require.NotNil(t, p.AnnualIncome)
	assert.Equal(t, 120000.0, *p.AnnualIncome)
	assert.Equal(t, map[string]bool{"has_bank_account": true, "bpl_card": false}, p.Flags)
	assert.NoError(t, p.Validate())

	_, err = eligibility.ParseProfile([]byte(`age: 34.5`))
	assert.ErrorIs(t, err, eligibility.ErrInvalidProfile)

	_, err = eligibility.ParseProfile([]byte(`flags: [a, b]`))
	assert.ErrorIs(t, err, eligibility.ErrInvalidProfile)
}

func TestCheck_ExampleData(t *testing.T) {
	rs, err := eligibility.LoadRuleSet(filepath.Join("..", "..", "examples", "data", "rules.yaml"))
	require.NoError(t, err)
	profile, err := eligibility.LoadProfile(filepath.Join("..", "..", "examples", "data", "profile.yaml"))
	require.NoError(t, err)

	report, err := eligibility.Check(profile, rs)
	require.NoError(t, err)

	var eligible, excluded []string
	for _, r := range report.Eligible {
		eligible = append(eligible, r.SchemeID)
	}
	for _, r := range report.Excluded {
		excluded = append(excluded, r.SchemeID)
	}
	assert.Equal(t, []string{"NREGA", "PMKISAN"}, eligible)
	assert.Equal(t, []string{"PMAY-U", "NSAP-IGNOAPS"}, excluded)

	pmay := report.Excluded[0]
	assert.InDelta(t, 1.0/3.0, pmay.MatchFraction, 1e-9)
	require.Len(t, pmay.Failed, 2)
	assert.Equal(t, eligibility.RuleLocationType, pmay.Failed[0].Rule)
	assert.Equal(t, "owns_pucca_house not provided", pmay.Failed[1].Reason)
	assert.Equal(t, "PMAY-U Guidelines 2021, Para 2.4", pmay.Failed[1].Citation)
}
