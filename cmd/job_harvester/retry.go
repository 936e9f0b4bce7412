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
	"github.com/jonathan/job-harvester/internal/discovery"
	"github.com/jonathan/job-harvester/internal/failure"
	"github.com/jonathan/job-harvester/internal/fetch"
	"github.com/jonathan/job-harvester/internal/observability"
	"github.com/jonathan/job-harvester/internal/output"
	"github.com/jonathan/job-harvester/internal/retryq"
	"github.com/jonathan/job-harvester/internal/scraper"
)

var retryCommand = &cobra.Command{
	Use:   "retry",
	Short: "Inspect or run the retry queue",
	Long: `Reads a retry file produced by an earlier run and reports which
records are due. With --run, due records are re-attempted: career-site
records go back through URL discovery, job-detail records are scraped
again. The retry file is rewritten with the surviving records.`,
	RunE: runRetryCmd,
}

var (
	retryConfigPath  string
	retryFilePath    string
	retryRun         bool
	retryOutputDir   string
	retryMaxRetries  int
	retryDatabaseURL string
)

func init() {
	retryCommand.Flags().StringVar(&retryConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	retryCommand.Flags().StringVarP(&retryFilePath, "file", "f", "", "Path to the retry file")
	retryCommand.Flags().BoolVar(&retryRun, "run", false, "Re-attempt due records instead of just listing them")
	retryCommand.Flags().StringVarP(&retryOutputDir, "output", "o", "", "Directory for result files")
	retryCommand.Flags().IntVar(&retryMaxRetries, "max-retries", 0, "Retry attempts before a failure becomes permanent")
	retryCommand.Flags().StringVar(&retryDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	_ = retryCommand.MarkFlagRequired("file")
	rootCmd.AddCommand(retryCommand)
}

func runRetryCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveRetryConfig(cmd)
	if err != nil {
		return err
	}

	queue, err := retryq.LoadFile(retryFilePath, cfg.MaxRetries, cfg.Cooldown())
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	due := queue.Due(now)
	slog.Info("retry queue loaded",
		"path", retryFilePath,
		"pending", queue.Len(),
		"due", len(due))

	if !retryRun {
		observability.NewPrinter(os.Stdout).PrintRetryQueue(queue.Snapshot(), now)
		return nil
	}

	if len(due) == 0 {
		slog.Info("nothing due yet")
		return nil
	}

	// Site-level records go back through discovery; records whose URL
	// points at a single posting are scraped directly.
	var discoverSites []discovery.Site
	var detailRecords []retryq.Record
	for _, rec := range due {
		platform := fetch.DetectPlatform(rec.CareerURL)
		if fetch.JobDetailPattern(platform).MatchString(rec.CareerURL) {
			detailRecords = append(detailRecords, rec)
		} else {
			discoverSites = append(discoverSites, rec.Site())
		}
	}

	started := time.Now().UTC()
	run := &harvestRun{stats: output.NewRunStats(len(due), started)}

	if len(discoverSites) > 0 {
		discovered := harvest(ctx, cfg, discoverSites, queue)
		run.successes = append(run.successes, discovered.successes...)
		run.failures = append(run.failures, discovered.failures...)
		mergeStats(run.stats, discovered.stats)
	}

	if len(detailRecords) > 0 && ctx.Err() == nil {
		if err := retryDetails(ctx, cfg, detailRecords, queue, run); err != nil {
			return err
		}
	}

	run.stats.FinishedAt = time.Now().UTC()

	if err := writeRunOutputs(cfg, run, queue, ""); err != nil {
		return err
	}

	// The retry file is the durable queue: rewrite it with whatever
	// survived this pass.
	if err := retryq.SaveFile(retryFilePath, queue); err != nil {
		return err
	}
	slog.Info("retry file updated", "path", retryFilePath, "pending", queue.Len())

	persistRun(ctx, cfg, "retry", run)

	if cfg.Verbose {
		observability.NewPrinter(os.Stdout).PrintRunSummary(run.stats)
	}

	if ctx.Err() != nil {
		slog.Warn("run interrupted")
		exitCode = exitInterrupted
		return nil
	}

	exitCode = runExitCode(run.stats)
	return nil
}

// retryDetails re-scrapes individual posting URLs from the queue.
func retryDetails(ctx context.Context, cfg config.Config, records []retryq.Record, queue *retryq.Queue, run *harvestRun) error {
	s := scraper.New(cfg.Timeout(), cfg.RequestDelay())

	var details []scraper.JobDetail
	now := time.Now().UTC()

	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.RequestDelay()):
			}
		}

		detail, jobFail := s.JobDetail(ctx, rec.Company, rec.CareerURL)
		if detail != nil {
			run.stats.Succeeded++
			details = append(details, *detail)
			queue.Remove(rec.Site())
			continue
		}

		if jobFail.Kind == failure.KindRateLimited {
			// Freeze: later records keep their queue entries untouched
			// and stay due for the next pass.
			enqueueJobRetry(run.stats, queue, *jobFail)
			run.stats.RateLimited = true
			break
		}
		if jobFail.Kind.Retryable() {
			enqueueJobRetry(run.stats, queue, *jobFail)
			continue
		}

		run.stats.Failed++
		run.stats.ByErrorType[string(jobFail.Kind)]++
		run.failures = append(run.failures, output.FailureRecord{
			Company:      jobFail.Company,
			CareerURL:    jobFail.URL,
			ErrorType:    string(jobFail.Kind),
			ErrorMessage: jobFail.Message,
			HTTPStatus:   jobFail.HTTPStatus,
			Timestamp:    now,
		})
		queue.Remove(rec.Site())
	}

	if len(details) > 0 {
		sink, err := output.NewSink(cfg.OutputDir, run.stats.StartedAt)
		if err != nil {
			return err
		}
		path := sink.File("job_details_retried")
		if err := output.WriteJSONL(path, details); err != nil {
			return err
		}
		slog.Info("wrote retried job details", "path", path, "records", len(details))
	}

	return nil
}

// mergeStats folds a sub-run's counters into the aggregate.
func mergeStats(dst, src *output.RunStats) {
	dst.Succeeded += src.Succeeded
	dst.Failed += src.Failed
	dst.Retried += src.Retried
	dst.Undispatched += src.Undispatched
	dst.JobURLs += src.JobURLs
	dst.RateLimited = dst.RateLimited || src.RateLimited
	for k, v := range src.ByMethod {
		dst.ByMethod[k] += v
	}
	for k, v := range src.ByErrorType {
		dst.ByErrorType[k] += v
	}
}

func resolveRetryConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if retryConfigPath != "" {
		loaded, err := config.LoadConfig(retryConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	if cmd.Flags().Changed("max-retries") {
		cfg.MaxRetries = retryMaxRetries
	}
	if cmd.Flags().Changed("output") {
		cfg.OutputDir = retryOutputDir
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = retryDatabaseURL
	}
	cfg.Verbose = rootVerbose

	cfg = cfg.MergeWithDefaults(config.Defaults())

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
