package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/job-harvester/internal/db"
)

var runsCommand = &cobra.Command{
	Use:   "runs",
	Short: "List harvest runs recorded in the database",
	Long: `Shows the runs persisted by discover, scrape and retry when a
database URL is configured. With --id, shows a single run.`,
	RunE: runRunsCmd,
}

var (
	runsDatabaseURL string
	runsID          string
	runsLimit       int
)

func init() {
	runsCommand.Flags().StringVar(&runsDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	runsCommand.Flags().StringVar(&runsID, "id", "", "Show a single run by ID")
	runsCommand.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list")

	rootCmd.AddCommand(runsCommand)
}

func runRunsCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := runsDatabaseURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return fmt.Errorf("no database configured: set --db-url or DATABASE_URL")
	}

	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if runsID != "" {
		id, err := uuid.Parse(runsID)
		if err != nil {
			return fmt.Errorf("invalid run ID %q: %w", runsID, err)
		}
		run, err := database.GetRun(ctx, id)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s not found", runsID)
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatRun(*run))
		return nil
	}

	runs, err := database.ListRuns(ctx, runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintln(cmd.OutOrStdout(), formatRun(run))
	}
	return nil
}

// formatRun renders one run as a fixed-order line for the runs listing.
func formatRun(run db.Run) string {
	completed := "-"
	if run.CompletedAt != nil {
		completed = run.CompletedAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s  %-8s  %-9s  created %s  completed %s",
		run.ID, run.RunType, run.Status,
		run.CreatedAt.UTC().Format(time.RFC3339), completed)
}
