// Package output writes run results as categorized JSON Lines files:
// one file per category (success, failure, retry) per run, one complete
// record per line so downstream tooling can stream them.
package output

import (
	"regexp"
	"strings"
	"time"

	"github.com/jonathan/job-harvester/internal/discovery"
)

// SuccessRecord is one site whose job URLs were discovered.
type SuccessRecord struct {
	Company          string    `json:"company"`
	CareerURL        string    `json:"career_url"`
	ExtractionMethod string    `json:"extraction_method"`
	JobURLsCount     int       `json:"job_urls_count"`
	JobURLs          []string  `json:"job_urls"`
	Timestamp        time.Time `json:"timestamp"`
}

// FailureRecord is one site whose discovery failed permanently.
type FailureRecord struct {
	Company      string    `json:"company"`
	CareerURL    string    `json:"career_url"`
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	HTTPStatus   *int      `json:"http_status"`
	Timestamp    time.Time `json:"timestamp"`
}

// SuccessFromOutcome converts a successful discovery outcome.
func SuccessFromOutcome(o discovery.Outcome) SuccessRecord {
	return SuccessRecord{
		Company:          o.Site.Company,
		CareerURL:        o.Site.URL,
		ExtractionMethod: string(o.Method),
		JobURLsCount:     len(o.JobURLs),
		JobURLs:          o.JobURLs,
		Timestamp:        o.DiscoveredAt,
	}
}

// FailureFromOutcome converts a failed discovery outcome.
func FailureFromOutcome(o discovery.Outcome) FailureRecord {
	rec := FailureRecord{
		Company:   o.Site.Company,
		CareerURL: o.Site.URL,
		Timestamp: o.DiscoveredAt,
	}
	if o.Failure != nil {
		rec.ErrorType = string(o.Failure.Kind)
		rec.ErrorMessage = o.Failure.Message
		rec.HTTPStatus = o.Failure.HTTPStatus
	}
	return rec
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9]+`)

// SanitizeCompany turns a company name into a filesystem-safe filename
// fragment: lowercase, runs of non-alphanumerics collapsed to a single
// underscore.
func SanitizeCompany(name string) string {
	s := unsafeFilenameChars.ReplaceAllString(strings.ToLower(name), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}
