package query

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidAliasTable indicates a malformed alias table.
var ErrInvalidAliasTable = errors.New("invalid alias table")

// Alias maps one surface form to a canonical policy ID.
type Alias struct {
	Term     string
	PolicyID string
}

// AliasTable is an ordered, immutable many-to-one mapping from surface forms
// to policy IDs. Lookups walk the table in declaration order, so more
// specific terms should be declared before terms they contain.
type AliasTable struct {
	entries []Alias
}

// NewAliasTable builds a table from entries, lowercasing terms.
func NewAliasTable(entries []Alias) (*AliasTable, error) {
	out := make([]Alias, 0, len(entries))
	for i, e := range entries {
		term := strings.ToLower(strings.TrimSpace(e.Term))
		policy := strings.TrimSpace(e.PolicyID)
		if term == "" || policy == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty term or policy", ErrInvalidAliasTable, i)
		}
		out = append(out, Alias{Term: term, PolicyID: policy})
	}
	return &AliasTable{entries: out}, nil
}

// Lookup returns the policy of the first alias contained in text.
func (t *AliasTable) Lookup(text string) (string, bool) {
	if t == nil {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, e := range t.entries {
		if strings.Contains(lower, e.Term) {
			return e.PolicyID, true
		}
	}
	return "", false
}

// Len returns the number of aliases.
func (t *AliasTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Policies returns the distinct policy IDs in first-declaration order.
func (t *AliasTable) Policies() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, e := range t.entries {
		if _, ok := seen[e.PolicyID]; ok {
			continue
		}
		seen[e.PolicyID] = struct{}{}
		out = append(out, e.PolicyID)
	}
	return out
}

// aliasFile is the on-disk layout:
//
//	policies:
//	  - id: NREGA
//	    aliases: [mgnrega, nrega, मनरेगा]
type aliasFile struct {
	Policies []struct {
		ID      string   `yaml:"id"`
		Aliases []string `yaml:"aliases"`
	} `yaml:"policies"`
}

// ParseAliasTable parses a YAML alias table.
func ParseAliasTable(data []byte) (*AliasTable, error) {
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAliasTable, err)
	}
	var entries []Alias
	for _, p := range f.Policies {
		if len(p.Aliases) == 0 {
			return nil, fmt.Errorf("%w: policy %q has no aliases", ErrInvalidAliasTable, p.ID)
		}
		for _, a := range p.Aliases {
			entries = append(entries, Alias{Term: a, PolicyID: p.ID})
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no policies declared", ErrInvalidAliasTable)
	}
	return NewAliasTable(entries)
}

// LoadAliasTable reads a YAML alias table from path.
func LoadAliasTable(path string) (*AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading alias table %s: %w", path, err)
	}
	return ParseAliasTable(data)
}

// DefaultAliases returns the built-in table covering the major central
// schemes in English, Devanagari Hindi and common transliterations.
func DefaultAliases() *AliasTable {
	t, err := NewAliasTable(defaultAliases)
	if err != nil {
		panic(err)
	}
	return t
}

var defaultAliases = []Alias{
	{"mahatma gandhi national rural employment guarantee", "NREGA"},
	{"national rural employment guarantee", "NREGA"},
	{"mgnrega", "NREGA"},
	{"mgnregs", "NREGA"},
	{"nrega", "NREGA"},
	{"narega", "NREGA"},
	{"manrega", "NREGA"},
	{"मनरेगा", "NREGA"},
	{"नरेगा", "NREGA"},
	{"रोजगार गारंटी", "NREGA"},

	{"pradhan mantri awas yojana", "PMAY"},
	{"pm awas", "PMAY"},
	{"pmay", "PMAY"},
	{"awas yojana", "PMAY"},
	{"प्रधानमंत्री आवास योजना", "PMAY"},
	{"आवास योजना", "PMAY"},

	{"pradhan mantri kisan samman nidhi", "PMKISAN"},
	{"kisan samman nidhi", "PMKISAN"},
	{"pm-kisan", "PMKISAN"},
	{"pm kisan", "PMKISAN"},
	{"pmkisan", "PMKISAN"},
	{"किसान सम्मान निधि", "PMKISAN"},
	{"पीएम किसान", "PMKISAN"},

	{"ayushman bharat", "PMJAY"},
	{"pradhan mantri jan arogya", "PMJAY"},
	{"pm-jay", "PMJAY"},
	{"pmjay", "PMJAY"},
	{"ayushman", "PMJAY"},
	{"आयुष्मान भारत", "PMJAY"},
	{"आयुष्मान", "PMJAY"},

	{"pradhan mantri ujjwala", "PMUY"},
	{"ujjwala", "PMUY"},
	{"pmuy", "PMUY"},
	{"उज्ज्वला", "PMUY"},

	{"national social assistance", "NSAP"},
	{"old age pension", "NSAP"},
	{"nsap", "NSAP"},
	{"वृद्धावस्था पेंशन", "NSAP"},
}
