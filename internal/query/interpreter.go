// Package query turns a free-text welfare question into structured search
// constraints: the policy it names, the years it asks about and any
// demographic attributes it mentions.
package query

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/yojana/internal/index"
)

// maxInputLength bounds the bytes inspected by the extractors.
const maxInputLength = 4096

// Interpretation is the structured reading of one query.
type Interpretation struct {
	// Query is the trimmed (and possibly truncated) input.
	Query        string       `json:"query"`
	PolicyID     string       `json:"policy_id,omitempty"`
	YearRange    *YearRange   `json:"year_range,omitempty"`
	Demographics Demographics `json:"demographics"`
}

// Ambiguous reports whether neither a policy nor a year was found. Callers
// fall back to an unfiltered search.
func (i Interpretation) Ambiguous() bool {
	return i.PolicyID == "" && i.YearRange == nil
}

// Predicate builds the index filter. A year is constrained only when the
// range covers a single year.
func (i Interpretation) Predicate() index.Predicate {
	p := index.Predicate{PolicyID: i.PolicyID}
	if i.YearRange != nil && i.YearRange.Single() {
		p.Year = strconv.Itoa(i.YearRange.From)
	}
	return p
}

// Interpreter extracts structure from queries using an immutable alias
// table. It is safe for concurrent use.
type Interpreter struct {
	aliases *AliasTable
}

// NewInterpreter creates an Interpreter. A nil table uses DefaultAliases.
func NewInterpreter(aliases *AliasTable) *Interpreter {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &Interpreter{aliases: aliases}
}

// Interpret reads policy, years and demographics from raw.
func (p *Interpreter) Interpret(raw string) Interpretation {
	text := truncate(strings.TrimSpace(raw), maxInputLength)
	policy, _ := p.aliases.Lookup(text)
	return Interpretation{
		Query:        text,
		PolicyID:     policy,
		YearRange:    ExtractYears(text),
		Demographics: ExtractDemographics(text),
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
