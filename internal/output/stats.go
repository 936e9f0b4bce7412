package output

import (
	"time"

	"github.com/jonathan/job-harvester/internal/discovery"
)

// RunStats aggregates one discovery run for the end-of-run summary.
type RunStats struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	SitesTotal   int `json:"sites_total"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	Retried      int `json:"retried"`
	Undispatched int `json:"undispatched"`

	JobURLs int `json:"job_urls"`

	// ByMethod counts successes per extraction method.
	ByMethod map[string]int `json:"by_method"`
	// ByErrorType counts permanent failures per error type.
	ByErrorType map[string]int `json:"by_error_type"`

	RateLimited bool `json:"rate_limited"`
}

// NewRunStats starts accounting for a run over the given site count.
func NewRunStats(sitesTotal int, startedAt time.Time) *RunStats {
	return &RunStats{
		StartedAt:   startedAt.UTC(),
		SitesTotal:  sitesTotal,
		ByMethod:    make(map[string]int),
		ByErrorType: make(map[string]int),
	}
}

// RecordSuccess accounts a successful discovery outcome.
func (s *RunStats) RecordSuccess(o discovery.Outcome) {
	s.Succeeded++
	s.JobURLs += len(o.JobURLs)
	s.ByMethod[string(o.Method)]++
}

// RecordFailure accounts a permanent failure outcome.
func (s *RunStats) RecordFailure(o discovery.Outcome) {
	s.Failed++
	if o.Failure != nil {
		s.ByErrorType[string(o.Failure.Kind)]++
	}
}

// RecordRetry accounts a site parked in the retry queue.
func (s *RunStats) RecordRetry() {
	s.Retried++
}

// Duration returns how long the run took.
func (s *RunStats) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
