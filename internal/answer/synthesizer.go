package answer

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/Masterminds/sprig/v3"

	"github.com/fyrsmithlabs/yojana/internal/memory"
	"github.com/fyrsmithlabs/yojana/internal/query"
)

const excerptLength = 480

// Shared blocks plus one template per intent, named by Intent.String.
const baseTemplates = `
{{- define "subject" -}}
{{ .Top.PolicyID | default "This scheme" }}{{ with .Top.Year }} ({{ . }}){{ end }}
{{- end -}}

{{- define "relaxed" -}}
{{ if eq .Relaxation "policy_only" }}Nothing matched {{ .Asked }}; showing other years of {{ .Top.PolicyID }}.
{{ else if eq .Relaxation "unfiltered" }}{{ if .Asked }}Nothing matched {{ .Asked }}; showing the closest material from any scheme.
{{ else }}No scheme or year was recognized in the question; showing the closest material.
{{ end }}{{ end -}}
{{- end -}}

{{- define "sources" -}}
Sources:
{{- range $i, $s := .Sources }}
[{{ add1 $i }}] {{ $s.PolicyID | default "unknown" }} {{ $s.Year }} {{ $s.Modality }}: {{ $s.Provenance | default $s.ChunkID }}
{{- end }}
{{- end -}}

{{- define "definition" -}}
{{ template "relaxed" . }}{{ template "subject" . }}: {{ excerpt .Top.Text }}

{{ template "sources" . }}
{{- end -}}

{{- define "budget" -}}
{{ template "relaxed" . }}Budget information for {{ template "subject" . }}:
{{ excerpt .Top.Text }}
{{- range .Related }}{{ if eq (toString .Modality) "budget" }}
- {{ .Year }}: {{ excerpt .Text }}{{ end }}{{ end }}

{{ template "sources" . }}
{{- end -}}

{{- define "eligibility" -}}
{{ template "relaxed" . }}Eligibility for {{ template "subject" . }}:
{{ excerpt .Top.Text }}

Run an eligibility check with your profile to see which criteria you meet.

{{ template "sources" . }}
{{- end -}}

{{- define "temporal" -}}
{{ template "relaxed" . }}How {{ .Top.PolicyID | default "this scheme" }} has changed:
{{- range .ByYear }}
- {{ .Year | default "undated" }} ({{ .Modality }}): {{ excerpt .Text }}
{{- end }}

{{ template "sources" . }}
{{- end -}}

{{- define "unknown" -}}
{{ template "relaxed" . }}The most relevant information found, from {{ template "subject" . }}:
{{ excerpt .Top.Text }}

{{ template "sources" . }}
{{- end -}}
`

// Synthesizer renders answers from ranked results.
type Synthesizer struct {
	tmpl *template.Template
}

// Option configures a Synthesizer.
type Option func(*Synthesizer) error

// WithTemplate replaces the template of one intent. The body may use the
// shared "subject", "relaxed" and "sources" blocks.
func WithTemplate(intent Intent, body string) Option {
	return func(s *Synthesizer) error {
		if _, err := s.tmpl.New(intent.String()).Parse(body); err != nil {
			return fmt.Errorf("parsing %s template: %w", intent, err)
		}
		return nil
	}
}

// NewSynthesizer parses the built-in templates and applies overrides.
func NewSynthesizer(opts ...Option) (*Synthesizer, error) {
	funcs := sprig.TxtFuncMap()
	funcs["excerpt"] = excerpt

	tmpl, err := template.New("answer").Option("missingkey=error").Funcs(funcs).Parse(baseTemplates)
	if err != nil {
		return nil, fmt.Errorf("parsing answer templates: %w", err)
	}
	s := &Synthesizer{tmpl: tmpl}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	for _, intent := range Intents() {
		if s.tmpl.Lookup(intent.String()) == nil {
			return nil, fmt.Errorf("missing template for intent %s", intent)
		}
	}
	return s, nil
}

type view struct {
	Asked      string
	Relaxation string
	Top        Source
	Related    []Source
	ByYear     []Source
	Sources    []Source
}

// Synthesize renders an answer from the top k results ranked at the given
// relaxation level. Empty results produce the no-data answer.
func (s *Synthesizer) Synthesize(interp query.Interpretation, level Relaxation, ranked []memory.Ranked, k int) (Answer, error) {
	if len(ranked) == 0 || level == RelaxationExhausted {
		return NoData(interp), nil
	}

	sources := make([]Source, len(ranked))
	for i, r := range ranked {
		c := r.Hit.Chunk
		sources[i] = Source{
			ChunkID:    c.ID,
			PolicyID:   c.PolicyID,
			Year:       c.Year,
			Modality:   c.Modality,
			Provenance: c.Source,
			Similarity: r.Hit.Similarity,
			Score:      r.Score,
			Text:       c.Text,
		}
	}

	intent := Classify(interp.Query)
	v := view{
		Asked:      describe(interp),
		Relaxation: level.String(),
		Top:        sources[0],
		Related:    sources[1:],
		ByYear:     byYear(sources),
		Sources:    sources,
	}

	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, intent.String(), v); err != nil {
		return Answer{}, fmt.Errorf("rendering %s answer: %w", intent, err)
	}

	confidence := Confidence(ranked, k)
	return Answer{
		Query:      interp.Query,
		Text:       strings.TrimSpace(buf.String()),
		Confidence: confidence,
		Label:      LabelFor(confidence),
		Intent:     intent,
		Relaxation: level,
		PolicyID:   interp.PolicyID,
		YearRange:  interp.YearRange,
		Sources:    sources,
	}, nil
}

// NoData is the zero-confidence answer for a query nothing matched.
func NoData(interp query.Interpretation) Answer {
	text := "No information was found for this question."
	if asked := describe(interp); asked != "" {
		text = fmt.Sprintf("No information was found for %s.", asked)
	}
	return Answer{
		Query:      interp.Query,
		Text:       text,
		Confidence: 0,
		Label:      LabelLow,
		Intent:     Classify(interp.Query),
		Relaxation: RelaxationExhausted,
		PolicyID:   interp.PolicyID,
		YearRange:  interp.YearRange,
		Sources:    []Source{},
		NoData:     true,
	}
}

// describe names the constraints a query asked for, or "" when it had none.
func describe(interp query.Interpretation) string {
	var parts []string
	if interp.PolicyID != "" {
		parts = append(parts, interp.PolicyID)
	}
	if r := interp.YearRange; r != nil {
		if r.Single() {
			parts = append(parts, fmt.Sprintf("in %d", r.From))
		} else {
			parts = append(parts, fmt.Sprintf("between %d and %d", r.From, r.To))
		}
	}
	return strings.Join(parts, " ")
}

// byYear keeps the best-ranked source per year, ordered by year. Undated
// sources sort last.
func byYear(sources []Source) []Source {
	seen := make(map[string]bool, len(sources))
	var out []Source
	for _, s := range sources {
		if seen[s.Year] {
			continue
		}
		seen[s.Year] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return yearLess(out[i], out[j]) })
	return out
}

func yearLess(a, b Source) bool {
	ya, oka := memory.ParseYear(a.Year)
	yb, okb := memory.ParseYear(b.Year)
	switch {
	case oka && okb:
		return ya < yb
	case oka != okb:
		return oka
	default:
		return false
	}
}

// excerpt collapses whitespace and cuts text to a fixed number of runes.
func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= excerptLength {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:excerptLength])) + "..."
}
