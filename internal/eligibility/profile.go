package eligibility

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidProfile indicates a user profile that fails validation.
var ErrInvalidProfile = errors.New("invalid profile")

// Profile describes the person whose eligibility is being checked. Age and
// LocationType are mandatory; every other attribute is optional and a rule
// that needs a missing attribute is reported as failed.
type Profile struct {
	Age          *int            `json:"age" yaml:"age" validate:"required,gte=0,lte=120"`
	LocationType string          `json:"location_type" yaml:"location_type" validate:"required,oneof=rural urban"`
	Gender       string          `json:"gender,omitempty" yaml:"gender" validate:"omitempty,oneof=female male transgender"`
	Occupation   string          `json:"occupation,omitempty" yaml:"occupation" validate:"omitempty,oneof=farmer labourer student unemployed street_vendor artisan salaried"`
	AnnualIncome *float64        `json:"annual_income,omitempty" yaml:"annual_income" validate:"omitempty,gte=0"`
	Flags        map[string]bool `json:"flags,omitempty" yaml:"flags"`
}

// Validate checks mandatory attributes and value ranges.
func (p Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	return nil
}

// ParseProfile decodes a YAML or JSON profile. Besides the named fields and
// an explicit flags map, any other top-level boolean is read as a flag, so
// {"age": 45, "location_type": "rural", "willingness_manual_work": true} is
// accepted as is.
func ParseProfile(data []byte) (Profile, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Profile{}, fmt.Errorf("%w: decoding: %v", ErrInvalidProfile, err)
	}

	var p Profile
	for key, v := range raw {
		switch strings.ToLower(key) {
		case "age":
			n, ok := asInt(v)
			if !ok {
				return Profile{}, fmt.Errorf("%w: age must be a whole number", ErrInvalidProfile)
			}
			p.Age = &n
		case "location_type":
			p.LocationType = strings.ToLower(fmt.Sprint(v))
		case "gender":
			p.Gender = strings.ToLower(fmt.Sprint(v))
		case "occupation":
			p.Occupation = strings.ToLower(fmt.Sprint(v))
		case "annual_income", "income":
			f, ok := asFloat(v)
			if !ok {
				return Profile{}, fmt.Errorf("%w: annual_income must be a number", ErrInvalidProfile)
			}
			p.AnnualIncome = &f
		case "flags":
			m, ok := v.(map[string]any)
			if !ok {
				return Profile{}, fmt.Errorf("%w: flags must be a mapping", ErrInvalidProfile)
			}
			for name, fv := range m {
				b, ok := fv.(bool)
				if !ok {
					return Profile{}, fmt.Errorf("%w: flag %q must be a boolean", ErrInvalidProfile, name)
				}
				p.setFlag(name, b)
			}
		default:
			if b, ok := v.(bool); ok {
				p.setFlag(key, b)
			}
		}
	}
	return p, nil
}

// LoadProfile reads a profile file.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("reading profile %s: %w", path, err)
	}
	return ParseProfile(data)
}

func (p *Profile) setFlag(name string, v bool) {
	if p.Flags == nil {
		p.Flags = make(map[string]bool)
	}
	p.Flags[name] = v
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
