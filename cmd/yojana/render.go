package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/yojana/internal/advisor"
	"github.com/fyrsmithlabs/yojana/internal/answer"
	"github.com/fyrsmithlabs/yojana/internal/drift"
	"github.com/fyrsmithlabs/yojana/internal/eligibility"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	goodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	badStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// render writes v as indented JSON or through its text renderer.
func render[T any](w io.Writer, v T, text func(io.Writer, T) error) error {
	if outputFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w, v)
}

func confidenceStyle(l answer.Label) lipgloss.Style {
	switch l {
	case answer.LabelHigh:
		return goodStyle
	case answer.LabelMedium:
		return warnStyle
	default:
		return badStyle
	}
}

func severityStyle(s drift.Severity) lipgloss.Style {
	switch s {
	case drift.SeverityCritical, drift.SeverityHigh:
		return badStyle
	case drift.SeverityMedium:
		return warnStyle
	case drift.SeverityLow:
		return labelStyle
	default:
		return goodStyle
	}
}

func renderAnswer(w io.Writer, a *answer.Answer) error {
	var b strings.Builder
	b.WriteString(a.Text)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s %s\n",
		labelStyle.Render("Confidence:"),
		confidenceStyle(a.Label).Render(fmt.Sprintf("%.2f", a.Confidence)),
		dimStyle.Render(fmt.Sprintf("(%s, %s search)", a.Label, a.Relaxation)),
	)
	_, err := io.WriteString(w, b.String())
	return err
}

func renderDrift(w io.Writer, r *advisor.DriftReport) error {
	var b strings.Builder
	if r.Insufficient != nil {
		fmt.Fprintf(&b, "%s %s\n", warnStyle.Render("Insufficient data:"), r.Insufficient.Message)
		_, err := io.WriteString(w, b.String())
		return err
	}

	tl := r.Timeline
	b.WriteString(titleStyle.Render("Drift timeline for "+r.PolicyID) + "\n")
	for _, p := range tl.Pairs {
		fmt.Fprintf(&b, "  %d -> %d  %.3f  %s  %s\n",
			p.FromYear, p.ToYear, p.Score,
			severityStyle(p.Severity).Render(string(p.Severity)),
			dimStyle.Render(fmt.Sprintf("(%d/%d chunks)", p.FromChunks, p.ToChunks)),
		)
	}
	fmt.Fprintf(&b, "%s %d -> %d %s\n",
		labelStyle.Render("Largest shift:"),
		tl.Max.FromYear, tl.Max.ToYear,
		severityStyle(tl.Max.Severity).Render(fmt.Sprintf("%.3f %s", tl.Max.Score, tl.Max.Severity)),
	)
	_, err := io.WriteString(w, b.String())
	return err
}

func renderEligibility(w io.Writer, r *eligibility.Report) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Eligible") + "\n")
	if len(r.Eligible) == 0 {
		b.WriteString(dimStyle.Render("  none") + "\n")
	}
	for _, res := range r.Eligible {
		fmt.Fprintf(&b, "  %s %s %s\n",
			goodStyle.Render(res.SchemeID),
			schemeName(res),
			dimStyle.Render(fmt.Sprintf("[%s, %.0f%% of criteria]", res.Priority, res.MatchFraction*100)),
		)
		writeFailures(&b, res.Failed)
	}

	b.WriteString(titleStyle.Render("Not eligible") + "\n")
	if len(r.Excluded) == 0 {
		b.WriteString(dimStyle.Render("  none") + "\n")
	}
	for _, res := range r.Excluded {
		fmt.Fprintf(&b, "  %s %s %s\n",
			badStyle.Render(res.SchemeID),
			schemeName(res),
			dimStyle.Render(fmt.Sprintf("[%.0f%% of criteria]", res.MatchFraction*100)),
		)
		writeFailures(&b, res.Failed)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func schemeName(r eligibility.Result) string {
	if r.Name == "" {
		return ""
	}
	return "(" + r.Name + ")"
}

func writeFailures(b *strings.Builder, failed []eligibility.Failure) {
	for _, f := range failed {
		line := "    - " + f.Reason
		if f.Citation != "" {
			line += " " + dimStyle.Render("["+f.Citation+"]")
		}
		b.WriteString(line + "\n")
	}
}

func renderRebase(w io.Writer, r rebaseResult) error {
	_, err := fmt.Fprintf(w, "%s %d chunks\n", labelStyle.Render("Rebased decay weights for"), r.Chunks)
	return err
}
