package answer

import "github.com/fyrsmithlabs/yojana/internal/memory"

// Label is the display band of a confidence score.
type Label string

const (
	LabelHigh   Label = "High"
	LabelMedium Label = "Medium"
	LabelLow    Label = "Low"
)

// Label thresholds.
const (
	HighThreshold   = 0.70
	MediumThreshold = 0.45
)

// LabelFor maps a confidence score to its band.
func LabelFor(confidence float64) Label {
	switch {
	case confidence >= HighThreshold:
		return LabelHigh
	case confidence >= MediumThreshold:
		return LabelMedium
	default:
		return LabelLow
	}
}

// Confidence is the mean of the clamped top score and the share of the k
// requested results that agree with the top result on policy and year.
// Missing results count as disagreeing. Empty input scores 0.
func Confidence(ranked []memory.Ranked, k int) float64 {
	if len(ranked) == 0 {
		return 0
	}
	k = max(k, len(ranked))
	top := ranked[0].Hit.Chunk
	agree := 0
	for _, r := range ranked {
		if r.Hit.Chunk.PolicyID == top.PolicyID && r.Hit.Chunk.Year == top.Year {
			agree++
		}
	}
	consistency := float64(agree) / float64(k)
	return 0.5*clamp01(ranked[0].Score) + 0.5*consistency
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
