// Package main implements the yojana CLI: ask questions about welfare
// schemes, analyze policy drift, check eligibility and maintain decay
// weights against a local or remote index.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath is an optional YAML config file
	configPath string
	// logLevel overrides logging.level
	logLevel string
	// outputFormat is "text" or "json"
	outputFormat string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "yojana",
	Short: "Retrieval and reasoning over government welfare schemes",
	Long: `yojana answers questions about government welfare schemes from an indexed
corpus of budget documents, news and guidelines, reports how a scheme's
description drifted across years, and checks a profile against scheme
eligibility rules.

Configuration is read from ~/.config/yojana/config.yaml (or --config) and
YOJANA_* environment variables.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "text", "json":
			return nil
		default:
			return fmt.Errorf("--output must be text or json, got %q", outputFormat)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/yojana/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text or json")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(eligibilityCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "yojana %s (commit %s, built %s)\n", version, gitCommit, buildDate)
	},
}
