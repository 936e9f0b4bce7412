package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-harvester/internal/config"
	"github.com/jonathan/job-harvester/internal/db"
	"github.com/jonathan/job-harvester/internal/discovery"
	"github.com/jonathan/job-harvester/internal/failure"
	"github.com/jonathan/job-harvester/internal/observability"
	"github.com/jonathan/job-harvester/internal/output"
	"github.com/jonathan/job-harvester/internal/retryq"
	"github.com/jonathan/job-harvester/internal/sites"
)

var discoverCommand = &cobra.Command{
	Use:   "discover",
	Short: "Discover job-posting URLs from a list of career sites",
	Long: `Runs the discovery strategy chain (sitemap, feed, HTML pagination)
against every site in the input list, inside a bounded worker pool.

Results are written as categorized JSON Lines files: discovered URLs,
permanent failures, and a retry file for transient ones. The run halts
dispatch on the first rate-limit signal; undispatched sites are parked
in the retry file so no work is lost.

Configuration can be loaded from a JSON file using --config.
Command-line arguments override config file values.`,
	RunE: runDiscoverCmd,
}

var (
	discoverConfigPath  string
	discoverInput       string
	discoverOutputDir   string
	discoverRetryFile   string
	discoverDatabaseURL string
	discoverWorkers     int
	discoverDelay       float64
	discoverTimeout     int
	discoverMaxPages    int
	discoverMaxRetries  int
	discoverEmptyFails  bool
)

func init() {
	discoverCommand.Flags().StringVar(&discoverConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	discoverCommand.Flags().StringVarP(&discoverInput, "input", "i", "", "Path to the site list (text or JSON Lines)")
	discoverCommand.Flags().StringVarP(&discoverOutputDir, "output", "o", "", "Directory for result files")
	discoverCommand.Flags().StringVar(&discoverRetryFile, "retry-file", "", "Path for the durable retry queue file (optional)")
	discoverCommand.Flags().IntVar(&discoverWorkers, "workers", 0, "Concurrent discovery workers")
	discoverCommand.Flags().Float64Var(&discoverDelay, "delay", 0, "Seconds to wait between requests per worker")
	discoverCommand.Flags().IntVar(&discoverTimeout, "timeout", 0, "Per-request timeout in seconds")
	discoverCommand.Flags().IntVar(&discoverMaxPages, "max-pages", 0, "Maximum listing pages to walk per site")
	discoverCommand.Flags().IntVar(&discoverMaxRetries, "max-retries", 0, "Retry attempts before a failure becomes permanent")
	discoverCommand.Flags().BoolVar(&discoverEmptyFails, "empty-is-failure", false, "Treat zero discovered URLs as a parse error")
	discoverCommand.Flags().StringVar(&discoverDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	_ = discoverCommand.MarkFlagRequired("input")
	rootCmd.AddCommand(discoverCommand)
}

func runDiscoverCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveDiscoverConfig(cmd)
	if err != nil {
		return err
	}

	siteList, err := sites.LoadFile(discoverInput)
	if err != nil {
		return fmt.Errorf("failed to load site list: %w", err)
	}
	if len(siteList) == 0 {
		return fmt.Errorf("site list %s contains no sites", discoverInput)
	}

	slog.Info("starting discovery run",
		"sites", len(siteList),
		"workers", cfg.Workers,
		"delay", cfg.RequestDelay())

	queue := retryq.NewQueue(cfg.MaxRetries, cfg.Cooldown())
	run := harvest(ctx, cfg, siteList, queue)

	if err := writeRunOutputs(cfg, run, queue, discoverRetryFile); err != nil {
		return err
	}
	persistRun(ctx, cfg, "discover", run)

	if cfg.Verbose {
		printer := observability.NewPrinter(os.Stdout)
		printer.PrintRunSummary(run.stats)
		printer.PrintRetryQueue(queue.Snapshot(), time.Now().UTC())
	}

	if ctx.Err() != nil {
		slog.Warn("run interrupted")
		exitCode = exitInterrupted
		return nil
	}

	exitCode = runExitCode(run.stats)
	return nil
}

// harvestRun collects everything one discovery pass produced.
type harvestRun struct {
	stats     *output.RunStats
	successes []output.SuccessRecord
	failures  []output.FailureRecord
}

// harvest runs discovery over the sites and partitions outcomes into
// successes, permanent failures, and retry-queue entries.
func harvest(ctx context.Context, cfg config.Config, siteList []discovery.Site, queue *retryq.Queue) *harvestRun {
	started := time.Now().UTC()
	run := &harvestRun{stats: output.NewRunStats(len(siteList), started)}

	orchestrator := discovery.NewOrchestrator(discovery.Options{
		Workers:        cfg.Workers,
		RequestDelay:   cfg.RequestDelay(),
		Timeout:        cfg.Timeout(),
		MaxPages:       cfg.MaxPages,
		EmptyIsFailure: cfg.EmptyIsFailure,
	})

	result := orchestrator.DiscoverAll(ctx, siteList)
	now := time.Now().UTC()

	var printer *observability.Printer
	if cfg.Verbose {
		printer = observability.NewPrinter(os.Stdout)
	}

	for _, outcome := range result.Outcomes {
		if printer != nil {
			printer.PrintOutcome(outcome)
		}
		switch {
		case outcome.IsRateLimited():
			// A Retry-After hint overrides the configured cooldown; the
			// detector's built-in default must not.
			var hint time.Duration
			if outcome.RateLimit.FromHeader {
				hint = outcome.RateLimit.Cooldown
			}
			enqueueRetry(run, queue, outcome.Site, failure.KindRateLimited,
				fmt.Sprintf("rate limited (HTTP %d)", outcome.RateLimit.Status),
				&outcome.RateLimit.Status, hint, now)
		case outcome.IsSuccess():
			run.stats.RecordSuccess(outcome)
			run.successes = append(run.successes, output.SuccessFromOutcome(outcome))
			// A success clears any retry record from earlier attempts.
			queue.Remove(outcome.Site)
		case outcome.Failure.Kind.Retryable():
			enqueueRetry(run, queue, outcome.Site, outcome.Failure.Kind,
				outcome.Failure.Message, outcome.Failure.HTTPStatus, 0, now)
		default:
			run.stats.RecordFailure(outcome)
			run.failures = append(run.failures, output.FailureFromOutcome(outcome))
			// Permanent failures leave the retry queue for good.
			queue.Remove(outcome.Site)
		}
	}

	// Sites never dispatched are parked for the rate-limit cooldown so
	// the next run picks them up.
	for _, site := range result.Remaining {
		run.stats.Undispatched++
		enqueueRetry(run, queue, site, failure.KindRateLimited,
			"run halted before this site was dispatched", nil, 0, now)
	}

	run.stats.RateLimited = result.RateLimited
	run.stats.FinishedAt = time.Now().UTC()
	return run
}

// enqueueRetry re-arms a site in the retry queue, converting it to a
// permanent failure once its budget is spent.
func enqueueRetry(run *harvestRun, queue *retryq.Queue, site discovery.Site, kind failure.Kind, message string, httpStatus *int, cooldownHint time.Duration, now time.Time) {
	rec, exhausted := queue.Enqueue(site, kind, message, httpStatus, cooldownHint, now)
	if exhausted {
		slog.Warn("retries exhausted", "company", site.Company, "attempts", rec.Attempts)
		run.stats.Failed++
		run.stats.ByErrorType[string(failure.KindRetriesExhausted)]++
		run.failures = append(run.failures, output.FailureRecord{
			Company:      rec.Company,
			CareerURL:    rec.CareerURL,
			ErrorType:    string(rec.Kind),
			ErrorMessage: rec.Message,
			HTTPStatus:   rec.HTTPStatus,
			Timestamp:    now,
		})
		return
	}
	run.stats.RecordRetry()
}

// writeRunOutputs writes the categorized result files and, when a path
// is given, the durable retry file.
func writeRunOutputs(cfg config.Config, run *harvestRun, queue *retryq.Queue, retryFile string) error {
	sink, err := output.NewSink(cfg.OutputDir, run.stats.StartedAt)
	if err != nil {
		return err
	}

	if path, err := sink.WriteSuccesses(run.successes); err != nil {
		return err
	} else if path != "" {
		slog.Info("wrote discovered URLs", "path", path, "records", len(run.successes))
	}

	if path, err := sink.WriteFailures(run.failures); err != nil {
		return err
	} else if path != "" {
		slog.Info("wrote permanent failures", "path", path, "records", len(run.failures))
	}

	if path, err := sink.WriteRetries(queue.Snapshot()); err != nil {
		return err
	} else if path != "" {
		slog.Info("wrote retry records", "path", path, "records", queue.Len())
	}

	if retryFile != "" && queue.Len() > 0 {
		if err := retryq.SaveFile(retryFile, queue); err != nil {
			return err
		}
		slog.Info("saved retry queue", "path", retryFile, "records", queue.Len())
	}

	return nil
}

// persistRun mirrors the run into PostgreSQL when a database URL is
// configured. Persistence is best-effort: failures degrade to warnings
// because the files on disk are the source of truth.
func persistRun(ctx context.Context, cfg config.Config, runType string, run *harvestRun) {
	if cfg.DatabaseURL == "" {
		return
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Warn("database unavailable, skipping persistence", "error", err)
		return
	}
	defer database.Close()

	runID, err := database.CreateRun(ctx, runType)
	if err != nil {
		slog.Warn("failed to create run record", "error", err)
		return
	}

	for _, rec := range run.successes {
		if err := database.SaveDiscovery(ctx, runID, rec); err != nil {
			slog.Warn("failed to persist discovery", "company", rec.Company, "error", err)
		}
	}
	for _, rec := range run.failures {
		if err := database.SaveFailure(ctx, runID, rec); err != nil {
			slog.Warn("failed to persist failure", "company", rec.Company, "error", err)
		}
	}

	status := "completed"
	if run.stats.RateLimited {
		status = "halted"
	}
	if err := database.CompleteRun(ctx, runID, status, run.stats); err != nil {
		slog.Warn("failed to complete run record", "error", err)
	}
}

// runExitCode maps the run result to the exit code consumed by
// downstream automation: 2 when rate limiting halted the run, 1 on
// partial failures or pending retries, 0 otherwise.
func runExitCode(stats *output.RunStats) int {
	switch {
	case stats.RateLimited:
		return exitRateLimited
	case stats.Failed > 0 || stats.Retried > 0:
		return exitFailures
	default:
		return exitOK
	}
}

func resolveDiscoverConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if discoverConfigPath != "" {
		loaded, err := config.LoadConfig(discoverConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	// CLI overrides apply only when the flag was explicitly set.
	if cmd.Flags().Changed("workers") {
		cfg.Workers = discoverWorkers
	}
	if cmd.Flags().Changed("delay") {
		cfg.RequestDelaySeconds = discoverDelay
	}
	if cmd.Flags().Changed("timeout") {
		cfg.TimeoutSeconds = discoverTimeout
	}
	if cmd.Flags().Changed("max-pages") {
		cfg.MaxPages = discoverMaxPages
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.MaxRetries = discoverMaxRetries
	}
	if cmd.Flags().Changed("empty-is-failure") {
		cfg.EmptyIsFailure = discoverEmptyFails
	}
	if cmd.Flags().Changed("output") {
		cfg.OutputDir = discoverOutputDir
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = discoverDatabaseURL
	}
	if cmd.Flags().Changed("verbose") || rootVerbose {
		cfg.Verbose = rootVerbose
	}

	cfg = cfg.MergeWithDefaults(config.Defaults())

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
