package eligibility

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidRuleSet indicates a malformed or inconsistent rule set.
var ErrInvalidRuleSet = errors.New("invalid rule set")

// Priority orders eligible schemes for presentation.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Rule identifiers used in results and citation maps. Flag rules are
// identified by the flag name.
const (
	RuleAgeMin       = "age_min"
	RuleAgeMax       = "age_max"
	RuleIncomeMax    = "income_max"
	RuleLocationType = "location_type"
	RuleOccupation   = "occupation"
	RuleGender       = "gender"
)

// Rules are the declared requirements of one scheme. Nil pointers, empty
// lists and empty maps are undeclared and never evaluated.
type Rules struct {
	AgeMin       *int            `json:"age_min,omitempty" yaml:"age_min" toml:"age_min" validate:"omitempty,gte=0,lte=120"`
	AgeMax       *int            `json:"age_max,omitempty" yaml:"age_max" toml:"age_max" validate:"omitempty,gte=0,lte=120"`
	IncomeMax    *float64        `json:"income_max,omitempty" yaml:"income_max" toml:"income_max" validate:"omitempty,gte=0"`
	LocationType []string        `json:"location_type,omitempty" yaml:"location_type" toml:"location_type" validate:"dive,oneof=rural urban"`
	Occupation   []string        `json:"occupation,omitempty" yaml:"occupation" toml:"occupation" validate:"dive,required"`
	Gender       []string        `json:"gender,omitempty" yaml:"gender" toml:"gender" validate:"dive,oneof=female male transgender"`
	Flags        map[string]bool `json:"flags,omitempty" yaml:"flags" toml:"flags"`
}

// Scheme is one welfare scheme with its eligibility rules.
type Scheme struct {
	ID       string   `json:"id" yaml:"id" toml:"id" validate:"required"`
	Name     string   `json:"name" yaml:"name" toml:"name"`
	Priority Priority `json:"priority" yaml:"priority" toml:"priority" validate:"omitempty,oneof=HIGH MEDIUM LOW"`
	Rules    Rules    `json:"rules" yaml:"rules" toml:"rules"`
	// Citations maps a rule identifier to the clause it comes from.
	Citations map[string]string `json:"citations,omitempty" yaml:"citations" toml:"citations"`
}

// RuleSet is an ordered, immutable collection of schemes.
type RuleSet struct {
	Schemes []Scheme `json:"schemes" yaml:"schemes" toml:"schemes" validate:"dive"`
}

// Validate checks field constraints, unique IDs and age bounds.
func (rs *RuleSet) Validate() error {
	if err := validate.Struct(rs); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRuleSet, err)
	}
	seen := make(map[string]struct{}, len(rs.Schemes))
	for i, s := range rs.Schemes {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate scheme id %q", ErrInvalidRuleSet, s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Rules.AgeMin != nil && s.Rules.AgeMax != nil && *s.Rules.AgeMin > *s.Rules.AgeMax {
			return fmt.Errorf("%w: scheme %q has age_min %d above age_max %d",
				ErrInvalidRuleSet, s.ID, *s.Rules.AgeMin, *s.Rules.AgeMax)
		}
		if s.Priority == "" {
			rs.Schemes[i].Priority = PriorityLow
		}
	}
	return nil
}

// Format is a rule-set encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFromPath infers the encoding from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: unsupported rule file extension %q", ErrInvalidRuleSet, filepath.Ext(path))
	}
}

// ParseRuleSet decodes and validates a rule set.
func ParseRuleSet(data []byte, format Format) (*RuleSet, error) {
	var rs RuleSet
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &rs)
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&rs)
	case FormatTOML:
		_, err = toml.Decode(string(data), &rs)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidRuleSet, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrInvalidRuleSet, format, err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// LoadRuleSet reads a rule set, choosing the decoder by file extension.
func LoadRuleSet(path string) (*RuleSet, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule set %s: %w", path, err)
	}
	return ParseRuleSet(data, format)
}

var validate = validator.New(validator.WithRequiredStructEnabled())
