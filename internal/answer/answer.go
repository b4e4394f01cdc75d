// Package answer turns ranked retrieval results into a templated, cited
// answer with a deterministic confidence score.
//
// Answers never carry timestamps or generated identifiers, so synthesizing
// the same results twice yields identical output.
package answer

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/yojana/internal/drift"
	"github.com/fyrsmithlabs/yojana/internal/index"
	"github.com/fyrsmithlabs/yojana/internal/query"
)

// ErrNoMatchingData is returned by Answer.Err when nothing matched even the
// unfiltered search.
var ErrNoMatchingData = errors.New("no matching data")

// Relaxation is the search level that produced an answer's results.
type Relaxation int

const (
	// RelaxationFull used every constraint the query produced.
	RelaxationFull Relaxation = iota
	// RelaxationPolicyOnly dropped the year constraint.
	RelaxationPolicyOnly
	// RelaxationUnfiltered dropped every constraint.
	RelaxationUnfiltered
	// RelaxationExhausted found nothing at any level.
	RelaxationExhausted
)

func (r Relaxation) String() string {
	switch r {
	case RelaxationFull:
		return "full"
	case RelaxationPolicyOnly:
		return "policy_only"
	case RelaxationUnfiltered:
		return "unfiltered"
	default:
		return "exhausted"
	}
}

// MarshalText encodes the level by name.
func (r Relaxation) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Predicate returns the search predicate for this level, or false when the
// level does not search.
func (r Relaxation) Predicate(full index.Predicate) (index.Predicate, bool) {
	switch r {
	case RelaxationFull:
		return full, true
	case RelaxationPolicyOnly:
		return full.WithoutYear(), true
	case RelaxationUnfiltered:
		return index.Predicate{}, true
	default:
		return index.Predicate{}, false
	}
}

// Source is one cited chunk.
type Source struct {
	ChunkID    string         `json:"chunk_id"`
	PolicyID   string         `json:"policy_id"`
	Year       string         `json:"year"`
	Modality   index.Modality `json:"modality"`
	Provenance string         `json:"provenance"`
	Similarity float64        `json:"similarity"`
	Score      float64        `json:"score"`
	Text       string         `json:"-"`
}

// DriftNote summarizes the largest year-over-year drift of the answered
// policy.
type DriftNote struct {
	FromYear int            `json:"from_year"`
	ToYear   int            `json:"to_year"`
	Score    float64        `json:"score"`
	Severity drift.Severity `json:"severity"`
}

// Answer is the synthesized response to one query.
type Answer struct {
	Query        string           `json:"query"`
	Text         string           `json:"text"`
	Confidence   float64          `json:"confidence"`
	Label        Label            `json:"label"`
	Intent       Intent           `json:"intent"`
	Relaxation   Relaxation       `json:"relaxation"`
	PolicyID     string           `json:"policy_id,omitempty"`
	YearRange    *query.YearRange `json:"year_range,omitempty"`
	LanguageHint string           `json:"language_hint,omitempty"`
	Sources      []Source         `json:"sources"`
	Drift        *DriftNote       `json:"drift,omitempty"`
	NoData       bool             `json:"no_data"`
}

// Err returns ErrNoMatchingData for a no-data answer and nil otherwise.
func (a *Answer) Err() error {
	if a.NoData {
		return fmt.Errorf("%w: %s", ErrNoMatchingData, a.Query)
	}
	return nil
}

// AttachDrift records the maximum drift of a timeline and appends a one-line
// summary to the answer text.
func (a *Answer) AttachDrift(t drift.Timeline) {
	m := t.Max
	a.Drift = &DriftNote{FromYear: m.FromYear, ToYear: m.ToYear, Score: m.Score, Severity: m.Severity}
	a.Text += fmt.Sprintf("\n\nLargest shift in how %s is described: %d to %d (drift %.2f, %s).",
		t.PolicyID, m.FromYear, m.ToYear, m.Score, m.Severity)
}
