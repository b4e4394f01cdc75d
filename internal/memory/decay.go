// Package memory re-weights retrieved chunks by age and use.
//
// Every chunk carries a decay weight in [MinWeight, MaxWeight] that
// multiplies its raw cosine similarity at ranking time. The weight starts
// from a time-decay baseline, grows by ReinforceStep each time the chunk is
// returned to a user, and can be reset to the time-decay formula by a batch
// rebase. Live weights and access counts are kept in a StatsStore so that
// the vector index itself stays append-only.
package memory

import (
	"errors"
	"strconv"
	"strings"
)

const (
	// MinWeight is the floor applied to every decay weight.
	MinWeight = 0.3
	// MaxWeight is the ceiling applied to every decay weight.
	MaxWeight = 1.5
	// DecayPerYear is subtracted from the weight for each year of age.
	DecayPerYear = 0.1
	// ReinforceStep is added to the weight on every access.
	ReinforceStep = 0.05
	// NeutralWeight applies to chunks whose year cannot be parsed.
	NeutralWeight = 1.0
)

// ErrInvalidConfig indicates an invalid store configuration.
var ErrInvalidConfig = errors.New("invalid memory configuration")

// TimeDecay returns clamp(1 - 0.1*(currentYear-docYear), 0.3, 1.5).
// Documents dated after currentYear gain weight up to the ceiling.
func TimeDecay(docYear, currentYear int) float64 {
	return clamp(1.0-DecayPerYear*float64(currentYear-docYear), MinWeight, MaxWeight)
}

// YearWeight applies TimeDecay to a textual year, returning NeutralWeight
// when the year is not an integer.
func YearWeight(year string, currentYear int) float64 {
	y, ok := ParseYear(year)
	if !ok {
		return NeutralWeight
	}
	return TimeDecay(y, currentYear)
}

// ParseYear parses a chunk's year field.
func ParseYear(year string) (int, bool) {
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return 0, false
	}
	return y, true
}

// InRange reports whether w is a valid decay weight.
func InRange(w float64) bool {
	return w >= MinWeight && w <= MaxWeight
}

// Reinforced returns the weight after one access.
func Reinforced(w float64) float64 {
	return min(w+ReinforceStep, MaxWeight)
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
