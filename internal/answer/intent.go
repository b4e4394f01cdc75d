package answer

import (
	"regexp"
	"strings"
)

// Intent is the kind of question being asked. It selects the answer
// template.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentDefinition
	IntentBudget
	IntentEligibility
	IntentTemporal
)

// String returns the template name of the intent.
func (i Intent) String() string {
	switch i {
	case IntentDefinition:
		return "definition"
	case IntentBudget:
		return "budget"
	case IntentEligibility:
		return "eligibility"
	case IntentTemporal:
		return "temporal"
	default:
		return "unknown"
	}
}

// MarshalText encodes the intent by name.
func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// Intents lists every intent, each of which has a template.
func Intents() []Intent {
	return []Intent{IntentUnknown, IntentDefinition, IntentBudget, IntentEligibility, IntentTemporal}
}

type intentCue struct {
	intent Intent
	latin  *regexp.Regexp
	hindi  []string
}

// Checked in precedence order; the first matching cue wins.
var intentCues = []intentCue{
	{
		intent: IntentTemporal,
		latin:  regexp.MustCompile(`\b(?:chang\w*|evolv\w*|trend\w*|histor\w*|over the years|over time|compare\w*|comparison)\b`),
		hindi:  []string{"बदल", "बदलाव", "परिवर्तन"},
	},
	{
		intent: IntentBudget,
		latin:  regexp.MustCompile(`\b(?:budget\w*|allocat\w*|outlay|fund\w*|crore|lakh|spending|expenditure)\b`),
		hindi:  []string{"बजट", "आवंटन", "करोड़"},
	},
	{
		intent: IntentEligibility,
		latin:  regexp.MustCompile(`\b(?:eligib\w*|qualif\w*|who can|can i|apply|entitled)\b`),
		hindi:  []string{"पात्र", "योग्य", "आवेदन"},
	},
	{
		intent: IntentDefinition,
		latin:  regexp.MustCompile(`\b(?:what is|what's|what are|explain\w*|defin\w*|meaning|describe|tell me about)\b`),
		hindi:  []string{"क्या है", "क्या हैं", "बताइए", "बताओ"},
	},
}

// Classify picks an intent from lexical cues in the raw query. Temporal
// beats budget, budget beats eligibility and eligibility beats definition.
func Classify(query string) Intent {
	q := strings.ToLower(query)
	for _, c := range intentCues {
		if c.latin.MatchString(q) {
			return c.intent
		}
		for _, h := range c.hindi {
			if strings.Contains(q, h) {
				return c.intent
			}
		}
	}
	return IntentUnknown
}
