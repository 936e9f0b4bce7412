package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
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
	"github.com/jonathan/job-harvester/internal/scraper"
)

var scrapeCommand = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape job details from previously discovered URLs",
	Long: `Reads a discovered-URLs file (the job_urls_success output of the
discover command) and fetches each posting page, extracting title,
location, description and metadata into per-company JSON Lines files.

Closed postings (filled, expired, no longer accepting applications) are
recorded as permanent failures. The run halts on the first rate-limit
signal; unattempted URLs are parked in the retry file.`,
	RunE: runScrapeCmd,
}

var (
	scrapeConfigPath  string
	scrapeInput       string
	scrapeOutputDir   string
	scrapeRetryFile   string
	scrapeDatabaseURL string
	scrapeDelay       float64
	scrapeTimeout     int
	scrapeMaxRetries  int
)

func init() {
	scrapeCommand.Flags().StringVar(&scrapeConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	scrapeCommand.Flags().StringVarP(&scrapeInput, "input", "i", "", "Path to a discovered-URLs JSON Lines file")
	scrapeCommand.Flags().StringVarP(&scrapeOutputDir, "output", "o", "", "Directory for result files")
	scrapeCommand.Flags().StringVar(&scrapeRetryFile, "retry-file", "", "Path for the durable retry queue file (optional)")
	scrapeCommand.Flags().Float64Var(&scrapeDelay, "delay", 0, "Seconds to wait between requests")
	scrapeCommand.Flags().IntVar(&scrapeTimeout, "timeout", 0, "Per-request timeout in seconds")
	scrapeCommand.Flags().IntVar(&scrapeMaxRetries, "max-retries", 0, "Retry attempts before a failure becomes permanent")
	scrapeCommand.Flags().StringVar(&scrapeDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	_ = scrapeCommand.MarkFlagRequired("input")
	rootCmd.AddCommand(scrapeCommand)
}

func runScrapeCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveScrapeConfig(cmd)
	if err != nil {
		return err
	}

	records, err := loadSuccessRecords(scrapeInput)
	if err != nil {
		return fmt.Errorf("failed to load discovered URLs: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("input %s contains no discovered URLs", scrapeInput)
	}

	totalURLs := 0
	for _, rec := range records {
		totalURLs += len(rec.JobURLs)
	}
	slog.Info("starting detail scrape", "companies", len(records), "job_urls", totalURLs)

	started := time.Now().UTC()
	stats := output.NewRunStats(totalURLs, started)
	queue := retryq.NewQueue(cfg.MaxRetries, cfg.Cooldown())

	sink, err := output.NewSink(cfg.OutputDir, started)
	if err != nil {
		return err
	}

	s := scraper.New(cfg.Timeout(), cfg.RequestDelay())

	var allDetails []scraper.JobDetail
	var permanentFailures []scraper.JobFailure

	frozen := false
	for _, rec := range records {
		if ctx.Err() != nil || frozen {
			parkJobURLs(stats, queue, rec.Company, rec.JobURLs)
			continue
		}

		batch := s.JobDetails(ctx, rec.Company, rec.JobURLs)

		for _, detail := range batch.Details {
			stats.Succeeded++
			allDetails = append(allDetails, detail)
		}
		for _, jobFail := range batch.Failures {
			if jobFail.Kind.Retryable() {
				enqueueJobRetry(stats, queue, jobFail)
			} else {
				stats.Failed++
				stats.ByErrorType[string(jobFail.Kind)]++
				permanentFailures = append(permanentFailures, jobFail)
			}
		}
		parkJobURLs(stats, queue, rec.Company, batch.Remaining)

		if len(batch.Details) > 0 {
			path := sink.CompanyFile("jobs", rec.Company)
			if err := output.WriteJSONL(path, batch.Details); err != nil {
				return err
			}
			slog.Info("wrote job details", "company", rec.Company, "path", path, "records", len(batch.Details))
		}

		if batch.RateLimited {
			stats.RateLimited = true
			frozen = true
		}
	}

	stats.FinishedAt = time.Now().UTC()

	if len(permanentFailures) > 0 {
		path := sink.File("job_details_failed")
		if err := output.WriteJSONL(path, permanentFailures); err != nil {
			return err
		}
		slog.Info("wrote permanent failures", "path", path, "records", len(permanentFailures))
	}

	if path, err := sink.WriteRetries(queue.Snapshot()); err != nil {
		return err
	} else if path != "" {
		slog.Info("wrote retry records", "path", path, "records", queue.Len())
	}

	if scrapeRetryFile != "" && queue.Len() > 0 {
		if err := retryq.SaveFile(scrapeRetryFile, queue); err != nil {
			return err
		}
	}

	persistScrape(ctx, cfg, allDetails, stats)

	if cfg.Verbose {
		observability.NewPrinter(os.Stdout).PrintRunSummary(stats)
	}

	if ctx.Err() != nil {
		slog.Warn("run interrupted")
		exitCode = exitInterrupted
		return nil
	}

	exitCode = runExitCode(stats)
	return nil
}

// parkJobURLs enqueues unattempted job URLs so a later retry run picks
// them up.
func parkJobURLs(stats *output.RunStats, queue *retryq.Queue, company string, jobURLs []string) {
	now := time.Now().UTC()
	for _, jobURL := range jobURLs {
		site := discovery.Site{Company: company, URL: jobURL}
		_, exhausted := queue.Enqueue(site, failure.KindRateLimited,
			"run halted before this URL was attempted", nil, 0, now)
		if exhausted {
			stats.Failed++
			continue
		}
		stats.Retried++
		stats.Undispatched++
	}
}

// enqueueJobRetry parks one retryable job failure, converting it to a
// permanent failure once its budget is spent.
func enqueueJobRetry(stats *output.RunStats, queue *retryq.Queue, jobFail scraper.JobFailure) {
	site := discovery.Site{Company: jobFail.Company, URL: jobFail.URL}
	_, exhausted := queue.Enqueue(site, jobFail.Kind, jobFail.Message,
		jobFail.HTTPStatus, jobFail.CooldownHint(), time.Now().UTC())
	if exhausted {
		stats.Failed++
		stats.ByErrorType[string(failure.KindRetriesExhausted)]++
		return
	}
	stats.Retried++
}

// loadSuccessRecords reads the discover command's success output.
func loadSuccessRecords(path string) ([]output.SuccessRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []output.SuccessRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec output.SuccessRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// persistScrape mirrors scraped details into PostgreSQL when configured.
func persistScrape(ctx context.Context, cfg config.Config, details []scraper.JobDetail, stats *output.RunStats) {
	if cfg.DatabaseURL == "" {
		return
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Warn("database unavailable, skipping persistence", "error", err)
		return
	}
	defer database.Close()

	runID, err := database.CreateRun(ctx, "scrape")
	if err != nil {
		slog.Warn("failed to create run record", "error", err)
		return
	}

	for _, detail := range details {
		if err := database.SaveJobDetail(ctx, runID, detail); err != nil {
			slog.Warn("failed to persist job detail", "job_id", detail.JobID, "error", err)
		}
	}

	status := "completed"
	if stats.RateLimited {
		status = "halted"
	}
	if err := database.CompleteRun(ctx, runID, status, stats); err != nil {
		slog.Warn("failed to complete run record", "error", err)
	}
}

func resolveScrapeConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if scrapeConfigPath != "" {
		loaded, err := config.LoadConfig(scrapeConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	if cmd.Flags().Changed("delay") {
		cfg.RequestDelaySeconds = scrapeDelay
	}
	if cmd.Flags().Changed("timeout") {
		cfg.TimeoutSeconds = scrapeTimeout
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.MaxRetries = scrapeMaxRetries
	}
	if cmd.Flags().Changed("output") {
		cfg.OutputDir = scrapeOutputDir
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = scrapeDatabaseURL
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
