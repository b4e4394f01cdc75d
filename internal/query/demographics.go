package query

import (
	"regexp"
	"strconv"
	"strings"
)

// Gender of the person the query is about.
type Gender string

const (
	GenderFemale      Gender = "female"
	GenderMale        Gender = "male"
	GenderTransgender Gender = "transgender"
)

// Occupation of the person the query is about.
type Occupation string

const (
	OccupationFarmer       Occupation = "farmer"
	OccupationLabourer     Occupation = "labourer"
	OccupationStudent      Occupation = "student"
	OccupationUnemployed   Occupation = "unemployed"
	OccupationStreetVendor Occupation = "street_vendor"
	OccupationArtisan      Occupation = "artisan"
	OccupationSalaried     Occupation = "salaried"
)

// LocationType distinguishes rural from urban residence.
type LocationType string

const (
	LocationRural LocationType = "rural"
	LocationUrban LocationType = "urban"
)

// Demographics are attributes mentioned in a query. Zero values mean the
// attribute was not mentioned.
type Demographics struct {
	Age          *int         `json:"age,omitempty"`
	Gender       Gender       `json:"gender,omitempty"`
	Occupation   Occupation   `json:"occupation,omitempty"`
	LocationType LocationType `json:"location_type,omitempty"`
}

// IsZero reports whether no attribute was extracted.
func (d Demographics) IsZero() bool {
	return d.Age == nil && d.Gender == "" && d.Occupation == "" && d.LocationType == ""
}

// cue matches a category by Latin-script word pattern or Devanagari
// substring; RE2 word boundaries do not apply to Devanagari.
type cue[T ~string] struct {
	value T
	words *regexp.Regexp
	hindi []string
}

func newCue[T ~string](value T, words string, hindi ...string) cue[T] {
	return cue[T]{
		value: value,
		words: regexp.MustCompile(`(?i)\b(?:` + words + `)\b`),
		hindi: hindi,
	}
}

func (c cue[T]) match(text string) bool {
	if c.words.MatchString(text) {
		return true
	}
	for _, h := range c.hindi {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}

func firstCue[T ~string](cues []cue[T], text string) T {
	for _, c := range cues {
		if c.match(text) {
			return c.value
		}
	}
	return ""
}

// Cue order is precedence: "female" must be tested before "male".
var (
	genderCues = []cue[Gender]{
		newCue(GenderTransgender, `transgenders?|third gender|kinnar`, "किन्नर", "ट्रांसजेंडर"),
		newCue(GenderFemale, `female|women|woman|girls?|widows?|mothers?|mahila`, "महिला", "लड़की", "विधवा"),
		newCue(GenderMale, `male|men|man|boys?`, "पुरुष"),
	}
	occupationCues = []cue[Occupation]{
		newCue(OccupationStreetVendor, `street vendors?|hawkers?|rehri|thela`, "रेहड़ी", "फेरीवाले"),
		newCue(OccupationUnemployed, `unemployed|jobless|without (?:a )?job`, "बेरोजगार"),
		newCue(OccupationFarmer, `farmers?|cultivators?|krishak`, "कृषक", "किसानों"),
		newCue(OccupationLabourer, `labou?rers?|labou?r|daily wage|workers?|mazdoor`, "मजदूर", "श्रमिक"),
		newCue(OccupationStudent, `students?|pupils?`, "छात्र", "छात्रा"),
		newCue(OccupationArtisan, `artisans?|craftsm[ae]n|weavers?|karigar`, "कारीगर", "बुनकर"),
		newCue(OccupationSalaried, `salaried|employees?|government servants?`, "वेतनभोगी"),
	}
	locationCues = []cue[LocationType]{
		newCue(LocationRural, `rural|villages?|gaon|gram`, "ग्रामीण", "गांव", "गाँव"),
		newCue(LocationUrban, `urban|city|cities|towns?|metro`, "शहरी", "शहर"),
	}
)

var agePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(\d{1,3})\s*[- ]?\s*(?:years?|yrs?)[- ]?\s*old\b`),
	regexp.MustCompile(`(?i)\baged?\s*(?:is|of|:)?\s*(\d{1,3})\b`),
	regexp.MustCompile(`(\d{1,3})\s*(?:साल\s*(?:का|की|के)|वर्षीय)`),
}

// MaxAge is the largest plausible age.
const MaxAge = 120

// ExtractDemographics extracts each attribute independently.
func ExtractDemographics(text string) Demographics {
	return Demographics{
		Age:          extractAge(text),
		Gender:       firstCue(genderCues, text),
		Occupation:   firstCue(occupationCues, text),
		LocationType: firstCue(locationCues, text),
	}
}

func extractAge(text string) *int {
	for _, re := range agePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		age, err := strconv.Atoi(m[1])
		if err != nil || age < 0 || age > MaxAge {
			return nil
		}
		return &age
	}
	return nil
}
