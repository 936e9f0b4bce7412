package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/job-harvester/internal/retryq"
)

// fileStamp is the UTC timestamp layout embedded in output filenames.
const fileStamp = "20060102_150405"

// Error wraps an output write failure with the path involved.
type Error struct {
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("output %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("output %s: %s", e.Path, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Sink writes one run's categorized result files into a directory. All
// files from the same run share a timestamp so they sort together.
type Sink struct {
	dir   string
	stamp string
}

// NewSink creates the output directory if needed and stamps the sink
// with the run start time.
func NewSink(dir string, startedAt time.Time) (*Sink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &Error{Path: dir, Message: "failed to create output directory", Cause: err}
	}
	return &Sink{dir: dir, stamp: startedAt.UTC().Format(fileStamp)}, nil
}

// WriteSuccesses writes discovered-URL records. Empty input writes
// nothing and returns an empty path.
func (s *Sink) WriteSuccesses(records []SuccessRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	path := filepath.Join(s.dir, fmt.Sprintf("job_urls_success_%s.jsonl", s.stamp))
	return path, WriteJSONL(path, records)
}

// WriteFailures writes permanent-failure records. Empty input writes
// nothing and returns an empty path.
func (s *Sink) WriteFailures(records []FailureRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	path := filepath.Join(s.dir, fmt.Sprintf("job_urls_failed_%s.jsonl", s.stamp))
	return path, WriteJSONL(path, records)
}

// WriteRetries writes the pending retry queue. Empty input writes
// nothing and returns an empty path.
func (s *Sink) WriteRetries(records []retryq.Record) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	path := filepath.Join(s.dir, fmt.Sprintf("job_urls_retry_%s.jsonl", s.stamp))
	return path, WriteJSONL(path, records)
}

// File returns the path for a categorized artifact carrying the run
// stamp, e.g. "job_details_failed_20260820_140300.jsonl".
func (s *Sink) File(prefix string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.jsonl", prefix, s.stamp))
}

// CompanyFile returns the path for a per-company artifact, e.g.
// "jobs_acme_corp_20260820_140300.jsonl" for prefix "jobs".
func (s *Sink) CompanyFile(prefix, company string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s_%s.jsonl", prefix, SanitizeCompany(company), s.stamp))
}

// Dir returns the sink's output directory.
func (s *Sink) Dir() string {
	return s.dir
}

// WriteJSONL writes records to path as JSON Lines, one complete record
// per line, replacing any existing file.
func WriteJSONL[T any](path string, records []T) error {
	f, err := os.Create(path)
	if err != nil {
		return &Error{Path: path, Message: "failed to create file", Cause: err}
	}

	enc := json.NewEncoder(f)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			f.Close()
			return &Error{Path: path, Message: "failed to encode record", Cause: err}
		}
	}

	if err := f.Close(); err != nil {
		return &Error{Path: path, Message: "failed to flush file", Cause: err}
	}
	return nil
}
