package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/yojana/internal/eligibility"
)

var (
	// askLang is the language hint recorded on the answer
	askLang string
	// driftFrom and driftTo bound the drift timeline; zero means unbounded
	driftFrom int
	driftTo   int
	// profilePath is the eligibility profile file
	profilePath string
)

func init() {
	askCmd.Flags().StringVar(&askLang, "lang", "", "language hint recorded on the answer (e.g. en, hi)")

	driftCmd.Flags().IntVar(&driftFrom, "from", 0, "first year of the timeline")
	driftCmd.Flags().IntVar(&driftTo, "to", 0, "last year of the timeline")

	eligibilityCmd.Flags().StringVar(&profilePath, "profile", "", "profile file (JSON or YAML)")
	_ = eligibilityCmd.MarkFlagRequired("profile")
}

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Answer a question about a welfare scheme",
	Long: `Answer a free-text question from the indexed corpus.

The scheme and year mentioned in the question narrow the search; when
nothing matches, the year and then the scheme constraint are dropped.

Examples:
  yojana ask "What was the NREGA budget in 2023?"
  yojana ask --lang hi "मनरेगा का बजट 2023"
  yojana ask -o json How has PMAY changed between 2019 and 2024`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			ans, err := a.svc.AnswerQuery(ctx, strings.Join(args, " "), askLang)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), ans, renderAnswer)
		})
	},
}

var driftCmd = &cobra.Command{
	Use:   "drift <policy>",
	Short: "Show how a scheme's description drifted across years",
	Long: `Compare the centroid of each year's chunks for a scheme with the next
year that has data, and report the largest shift.

Examples:
  yojana drift NREGA
  yojana drift mgnrega --from 2019 --to 2023`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var from, to *int
		if cmd.Flags().Changed("from") {
			from = &driftFrom
		}
		if cmd.Flags().Changed("to") {
			to = &driftTo
		}
		return withApp(ctx, func(a *app) error {
			report, err := a.svc.AnalyzeDrift(ctx, args[0], from, to)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), report, renderDrift)
		})
	},
}

var eligibilityCmd = &cobra.Command{
	Use:   "eligibility",
	Short: "Check a profile against scheme eligibility rules",
	Long: `Match a profile against the rule set configured in data.rules_path.

Besides age, location_type, gender, occupation and annual_income, any
top-level boolean in the profile is treated as a flag.

Examples:
  yojana eligibility --profile me.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		profile, err := eligibility.LoadProfile(profilePath)
		if err != nil {
			return err
		}
		return withApp(ctx, func(a *app) error {
			report, err := a.svc.CheckEligibility(ctx, profile)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), report, renderEligibility)
		})
	},
}

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Reset every chunk's decay weight to its time-decay baseline",
	Long: `Recompute the time-decay weight of every indexed chunk for the current
year. Access counts are kept. Run periodically, e.g. at the start of each
year.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			n, err := a.svc.RebaseWeights(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rebaseResult{Chunks: n}, renderRebase)
		})
	},
}

type rebaseResult struct {
	Chunks int `json:"chunks"`
}
