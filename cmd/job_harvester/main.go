// Package main provides the job-harvester CLI: discovery of job-posting
// URLs from ATS career sites, detail scraping, and retry management.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

// Exit codes, matched by downstream automation.
const (
	exitOK          = 0
	exitFailures    = 1
	exitRateLimited = 2
	exitInterrupted = 130
)

var rootCmd = &cobra.Command{
	Use:   "job_harvester",
	Short: "ATS job posting harvester",
	Long: `job_harvester discovers job-posting URLs from ATS career sites
(sitemap, feed, then HTML pagination), scrapes posting details, and
manages retries with exponential backoff and rate-limit cooldowns.`,
}

var rootVerbose bool

// exitCode is set by subcommands; main exits with it after Execute.
var exitCode = exitOK

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Print detailed debug information")
	rootCmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		setupLogging(rootVerbose)
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
	slog.SetDefault(slog.New(handler))
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailures)
	}
	os.Exit(exitCode)
}
