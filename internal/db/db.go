// Package db provides optional PostgreSQL persistence for harvest runs.
// The pipeline works entirely from files; the database is an additional
// sink enabled by a connection URL.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/job-harvester/internal/output"
	"github.com/jonathan/job-harvester/internal/scraper"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Run represents one harvest run record.
type Run struct {
	ID          uuid.UUID  `json:"id"`
	RunType     string     `json:"run_type"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// CreateRun creates a new harvest run record and returns its ID.
// runType is "discover", "scrape" or "retry".
func (db *DB) CreateRun(ctx context.Context, runType string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO harvest_runs (run_type, status)
		 VALUES ($1, 'running')
		 RETURNING id`,
		runType,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// CompleteRun marks a harvest run as completed with the given status
// and attaches the run statistics.
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, status string, stats *output.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`UPDATE harvest_runs SET status = $1, stats = $2, completed_at = NOW() WHERE id = $3`,
		status, statsJSON, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// SaveDiscovery stores one successful URL-discovery record.
func (db *DB) SaveDiscovery(ctx context.Context, runID uuid.UUID, rec output.SuccessRecord) error {
	urlsJSON, err := json.Marshal(rec.JobURLs)
	if err != nil {
		return fmt.Errorf("failed to marshal job URLs: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO discoveries (run_id, company, career_url, extraction_method, job_urls, discovered_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (run_id, career_url) DO UPDATE
		 SET extraction_method = $4, job_urls = $5, discovered_at = $6`,
		runID, rec.Company, rec.CareerURL, rec.ExtractionMethod, urlsJSON, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save discovery for %s: %w", rec.Company, err)
	}
	return nil
}

// SaveFailure stores one permanent discovery failure.
func (db *DB) SaveFailure(ctx context.Context, runID uuid.UUID, rec output.FailureRecord) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO discovery_failures (run_id, company, career_url, error_type, error_message, http_status, failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		runID, rec.Company, rec.CareerURL, rec.ErrorType, rec.ErrorMessage, rec.HTTPStatus, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save failure for %s: %w", rec.Company, err)
	}
	return nil
}

// SaveJobDetail stores one scraped job posting.
func (db *DB) SaveJobDetail(ctx context.Context, runID uuid.UUID, detail scraper.JobDetail) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO job_details (run_id, company, job_id, url, title, location, description, date_posted, department, employment_type, scraped_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (company, job_id) DO UPDATE
		 SET title = $5, location = $6, description = $7, date_posted = $8,
		     department = $9, employment_type = $10, scraped_at = $11`,
		runID, detail.Company, detail.JobID, detail.URL, detail.Title, detail.Location,
		detail.Description, detail.DatePosted, detail.Department, detail.EmploymentType, detail.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job detail %s: %w", detail.JobID, err)
	}
	return nil
}

// GetRun retrieves a harvest run by ID. A missing run returns (nil, nil).
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	err := db.pool.QueryRow(ctx,
		`SELECT id, run_type, status, created_at, completed_at
		 FROM harvest_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.RunType, &run.Status, &run.CreatedAt, &run.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns retrieves recent harvest runs.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, run_type, status, created_at, completed_at
		 FROM harvest_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.RunType, &run.Status, &run.CreatedAt, &run.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}
