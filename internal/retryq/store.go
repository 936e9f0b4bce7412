package retryq

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/job-harvester/internal/schemas"
)

// StoreError wraps a retry-file read or write failure with its path.
type StoreError struct {
	Path    string
	Message string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("retry file %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("retry file %s: %s", e.Path, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// WriteRecords writes retry records as JSON Lines, one complete record
// per line in the order given.
func WriteRecords(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// ReadRecords parses retry records from JSON Lines input. Every line is
// validated against the retry record schema before decoding; blank
// lines are skipped. Lines that fail validation are reported with their
// line number so a hand-edited file points at the exact mistake.
func ReadRecords(r io.Reader) ([]Record, error) {
	var records []Record

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := schemas.ValidateRetryRecord(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		var rec Record
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

// SaveFile writes the queue's pending records to path, replacing any
// previous contents. The file is written via a temp file and rename so
// a crash never leaves a truncated retry file behind.
func SaveFile(path string, q *Queue) error {
	records := q.Snapshot()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".retry-*.jsonl")
	if err != nil {
		return &StoreError{Path: path, Message: "failed to create temp file", Cause: err}
	}
	tmpName := tmp.Name()

	if err := WriteRecords(tmp, records); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StoreError{Path: path, Message: "failed to write records", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StoreError{Path: path, Message: "failed to flush temp file", Cause: err}
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &StoreError{Path: path, Message: "failed to replace retry file", Cause: err}
	}
	return nil
}

// LoadFile reads a retry file into a fresh queue. Records keep their
// persisted attempt counts and next-eligible times; enqueue order
// follows file order.
func LoadFile(path string, maxAttempts int, cooldown time.Duration) (*Queue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &StoreError{Path: path, Message: "failed to open", Cause: err}
	}
	defer f.Close()

	records, err := ReadRecords(f)
	if err != nil {
		return nil, &StoreError{Path: path, Message: "failed to parse", Cause: err}
	}

	q := NewQueue(maxAttempts, cooldown)
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range records {
		rec := records[i]
		rec.seq = q.nextSeq
		q.nextSeq++
		q.records[rec.Site().Key()] = &rec
	}
	return q, nil
}
