// Package eligibility matches a user profile against declarative scheme
// rules and explains every satisfied and failed criterion.
package eligibility

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Threshold is the minimum match fraction for a scheme to count as eligible.
const Threshold = 0.8

// Failure is a rule the profile did not satisfy.
type Failure struct {
	Rule     string `json:"rule"`
	Reason   string `json:"reason"`
	Citation string `json:"citation,omitempty"`
}

// Result is the evaluation of one scheme.
type Result struct {
	SchemeID      string    `json:"scheme_id"`
	Name          string    `json:"name,omitempty"`
	Priority      Priority  `json:"priority"`
	MatchFraction float64   `json:"match_fraction"`
	Eligible      bool      `json:"eligible"`
	Declared      int       `json:"declared"`
	Satisfied     []string  `json:"satisfied"`
	Failed        []Failure `json:"failed"`

	order int
}

// Report splits results into eligible and excluded schemes.
type Report struct {
	Eligible []Result `json:"eligible"`
	Excluded []Result `json:"excluded"`
}

// Evaluate scores every scheme in rule-set order. It does not validate the
// profile; use Check for the validated entry point.
func Evaluate(p Profile, rs *RuleSet) []Result {
	if rs == nil {
		return nil
	}
	results := make([]Result, 0, len(rs.Schemes))
	for i, s := range rs.Schemes {
		r := evaluateScheme(p, s)
		r.order = i
		results = append(results, r)
	}
	return results
}

// Check validates the profile and evaluates it against every scheme.
// Eligible schemes are ordered by priority, then match fraction, then
// rule-set order; excluded ones by match fraction, then rule-set order.
func Check(p Profile, rs *RuleSet) (Report, error) {
	if err := p.Validate(); err != nil {
		return Report{}, err
	}
	report := Report{Eligible: []Result{}, Excluded: []Result{}}
	for _, r := range Evaluate(p, rs) {
		if r.Eligible {
			report.Eligible = append(report.Eligible, r)
		} else {
			report.Excluded = append(report.Excluded, r)
		}
	}

	sort.SliceStable(report.Eligible, func(i, j int) bool {
		a, b := report.Eligible[i], report.Eligible[j]
		if a.Priority.rank() != b.Priority.rank() {
			return a.Priority.rank() < b.Priority.rank()
		}
		if a.MatchFraction != b.MatchFraction {
			return a.MatchFraction > b.MatchFraction
		}
		return a.order < b.order
	})
	sort.SliceStable(report.Excluded, func(i, j int) bool {
		a, b := report.Excluded[i], report.Excluded[j]
		if a.MatchFraction != b.MatchFraction {
			return a.MatchFraction > b.MatchFraction
		}
		return a.order < b.order
	})
	return report, nil
}

type evaluation struct {
	s      Scheme
	result Result
}

func (e *evaluation) pass(rule string) {
	e.result.Declared++
	e.result.Satisfied = append(e.result.Satisfied, rule)
}

func (e *evaluation) fail(rule, reason string) {
	e.result.Declared++
	e.result.Failed = append(e.result.Failed, Failure{
		Rule:     rule,
		Reason:   reason,
		Citation: e.s.Citations[rule],
	})
}

func (e *evaluation) check(rule string, ok bool, reason string) {
	if ok {
		e.pass(rule)
	} else {
		e.fail(rule, reason)
	}
}

func evaluateScheme(p Profile, s Scheme) Result {
	priority := s.Priority
	if priority == "" {
		priority = PriorityLow
	}
	e := &evaluation{
		s: s,
		result: Result{
			SchemeID:  s.ID,
			Name:      s.Name,
			Priority:  priority,
			Satisfied: []string{},
			Failed:    []Failure{},
		},
	}
	r := s.Rules

	if r.AgeMin != nil {
		if p.Age == nil {
			e.fail(RuleAgeMin, "age not provided")
		} else {
			e.check(RuleAgeMin, *p.Age >= *r.AgeMin,
				fmt.Sprintf("age %d is below the minimum of %d", *p.Age, *r.AgeMin))
		}
	}
	if r.AgeMax != nil {
		if p.Age == nil {
			e.fail(RuleAgeMax, "age not provided")
		} else {
			e.check(RuleAgeMax, *p.Age <= *r.AgeMax,
				fmt.Sprintf("age %d is above the maximum of %d", *p.Age, *r.AgeMax))
		}
	}
	if r.IncomeMax != nil {
		if p.AnnualIncome == nil {
			e.fail(RuleIncomeMax, "annual_income not provided")
		} else {
			e.check(RuleIncomeMax, *p.AnnualIncome <= *r.IncomeMax,
				fmt.Sprintf("annual income %.0f exceeds the limit of %.0f", *p.AnnualIncome, *r.IncomeMax))
		}
	}
	e.membership(RuleLocationType, p.LocationType, r.LocationType)
	e.membership(RuleOccupation, p.Occupation, r.Occupation)
	e.membership(RuleGender, p.Gender, r.Gender)

	names := make([]string, 0, len(r.Flags))
	for name := range r.Flags {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		want := r.Flags[name]
		got, ok := p.Flags[name]
		if !ok {
			e.fail(name, name+" not provided")
			continue
		}
		e.check(name, got == want, fmt.Sprintf("%s must be %t", name, want))
	}

	if e.result.Declared == 0 {
		e.result.MatchFraction = 1.0
	} else {
		e.result.MatchFraction = float64(len(e.result.Satisfied)) / float64(e.result.Declared)
	}
	e.result.Eligible = e.result.MatchFraction >= Threshold
	return e.result
}

func (e *evaluation) membership(rule, value string, allowed []string) {
	if len(allowed) == 0 {
		return
	}
	if value == "" {
		e.fail(rule, rule+" not provided")
		return
	}
	ok := slices.ContainsFunc(allowed, func(a string) bool {
		return strings.EqualFold(a, value)
	})
	e.check(rule, ok, fmt.Sprintf("%s %q is not one of %s", rule, value, strings.Join(allowed, ", ")))
}
