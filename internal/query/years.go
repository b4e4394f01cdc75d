package query

import (
	"regexp"
	"strconv"
)

// MinYear and MaxYear bound recognized calendar years.
const (
	MinYear = 2000
	MaxYear = 2099
)

var (
	betweenPattern = regexp.MustCompile(`(?i)\bbetween\s+(20\d{2})\s+and\s+(20\d{2})\b`)
	fromToPattern  = regexp.MustCompile(`(?i)\bfrom\s+(20\d{2})\s*(?:to|till|until|-)\s*(20\d{2})\b`)
	yearPattern    = regexp.MustCompile(`\b(20\d{2})\b`)
)

// YearRange is an inclusive range of calendar years.
type YearRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Single reports whether the range covers exactly one year.
func (r YearRange) Single() bool {
	return r.From == r.To
}

// Contains reports whether year lies within the range.
func (r YearRange) Contains(year int) bool {
	return year >= r.From && year <= r.To
}

// ExtractYears returns the leftmost year mention, which is either an
// explicit range or a standalone year. Reversed ranges are normalized.
func ExtractYears(text string) *YearRange {
	var best []int
	for _, re := range []*regexp.Regexp{betweenPattern, fromToPattern, yearPattern} {
		if loc := re.FindStringSubmatchIndex(text); loc != nil && (best == nil || loc[0] < best[0]) {
			best = loc
		}
	}
	if best == nil {
		return nil
	}
	a, _ := strconv.Atoi(text[best[2]:best[3]])
	b := a
	if len(best) > 4 {
		b, _ = strconv.Atoi(text[best[4]:best[5]])
	}
	return &YearRange{From: min(a, b), To: max(a, b)}
}
