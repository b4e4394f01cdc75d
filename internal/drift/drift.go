// Package drift measures how a policy's documented meaning moves between
// years by comparing the mean embeddings (centroids) of its chunks.
package drift

import (
	"errors"
	"fmt"
	"math"

	"github.com/fyrsmithlabs/yojana/internal/index"
)

// Year bounds accepted by the analyzer.
const (
	MinYear = 2000
	MaxYear = 2099
)

var (
	// ErrInsufficientData indicates a year without chunks for the policy.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidYear indicates a year outside [MinYear, MaxYear] or an
	// inverted range.
	ErrInvalidYear = errors.New("invalid year")
)

// InsufficientDataError names the policy and year lacking chunks. Year is
// zero when the policy as a whole has too little data.
type InsufficientDataError struct {
	PolicyID string
	Year     int
}

func (e *InsufficientDataError) Error() string {
	if e.Year == 0 {
		return fmt.Sprintf("insufficient data: policy %s has fewer than two years with chunks", e.PolicyID)
	}
	return fmt.Sprintf("insufficient data: no chunks for policy %s in %d", e.PolicyID, e.Year)
}

// Is makes errors.Is(err, ErrInsufficientData) match.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// Severity buckets a drift score.
type Severity string

const (
	SeverityMinimal  Severity = "MINIMAL"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Classify maps a score to its severity: >0.70 CRITICAL, >0.45 HIGH,
// >0.25 MEDIUM, >0.10 LOW, otherwise MINIMAL.
func Classify(score float64) Severity {
	switch {
	case score > 0.70:
		return SeverityCritical
	case score > 0.45:
		return SeverityHigh
	case score > 0.25:
		return SeverityMedium
	case score > 0.10:
		return SeverityLow
	default:
		return SeverityMinimal
	}
}

// Centroid returns the float64 mean of the chunks' embeddings. Chunks are
// summed in the order given; callers pass them in insertion order.
func Centroid(chunks []index.Chunk) []float64 {
	if len(chunks) == 0 {
		return nil
	}
	dim := 0
	for _, c := range chunks {
		dim = max(dim, len(c.Embedding))
	}
	sum := make([]float64, dim)
	for _, c := range chunks {
		for i, v := range c.Embedding {
			sum[i] += float64(v)
		}
	}
	n := float64(len(chunks))
	for i := range sum {
		sum[i] /= n
	}
	return sum
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector.
func Cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, v := range a {
		na += v * v
	}
	for _, v := range b {
		nb += v * v
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Score returns 1 - cos(a, b).
func Score(a, b []float64) float64 {
	return 1 - Cosine(a, b)
}

func validYear(y int) error {
	if y < MinYear || y > MaxYear {
		return fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidYear, y, MinYear, MaxYear)
	}
	return nil
}
