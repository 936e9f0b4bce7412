// Package sites loads the career-site lists the harvester works
// through: plain text files of URLs, JSON Lines site records, and the
// retry files produced by earlier runs.
package sites

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/job-harvester/internal/discovery"
	"github.com/jonathan/job-harvester/internal/fetch"
)

// ParseError reports a malformed input line.
type ParseError struct {
	Line    int
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Message, e.Cause)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ParseText reads a plain text site list. Each non-blank line is either
// "Company|URL" or a bare URL whose company name is inferred from the
// hostname. Lines starting with '#' are comments.
func ParseText(r io.Reader) ([]discovery.Site, error) {
	var parsed []discovery.Site

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var site discovery.Site
		if company, rawURL, found := strings.Cut(line, "|"); found {
			site = discovery.Site{
				Company: strings.TrimSpace(company),
				URL:     strings.TrimSpace(rawURL),
			}
		} else {
			site = discovery.Site{URL: line}
		}

		if err := checkURL(site.URL); err != nil {
			return nil, &ParseError{Line: lineNo, Message: "invalid career URL", Cause: err}
		}
		if site.Company == "" {
			site.Company = fetch.ExtractCompanyFromURL(site.URL)
		}

		parsed = append(parsed, site)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return Dedupe(parsed), nil
}

// ParseJSONL reads site records as JSON Lines, one
// {"company": ..., "career_url": ...} object per line.
func ParseJSONL(r io.Reader) ([]discovery.Site, error) {
	var parsed []discovery.Site

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var site discovery.Site
		if err := json.Unmarshal([]byte(line), &site); err != nil {
			return nil, &ParseError{Line: lineNo, Message: "malformed site record", Cause: err}
		}
		if err := checkURL(site.URL); err != nil {
			return nil, &ParseError{Line: lineNo, Message: "invalid career URL", Cause: err}
		}
		if site.Company == "" {
			site.Company = fetch.ExtractCompanyFromURL(site.URL)
		}

		parsed = append(parsed, site)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return Dedupe(parsed), nil
}

// LoadFile reads a site list from disk, choosing the parser by file
// extension: .jsonl and .json are JSON Lines, everything else is plain
// text.
func LoadFile(path string) ([]discovery.Site, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json":
		return ParseJSONL(f)
	default:
		return ParseText(f)
	}
}

// Dedupe removes duplicate sites by normalized URL, keeping the first
// occurrence and its company name.
func Dedupe(in []discovery.Site) []discovery.Site {
	seen := make(map[string]bool, len(in))
	out := make([]discovery.Site, 0, len(in))
	for _, site := range in {
		key := site.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, site)
	}
	return out
}

func checkURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", rawURL)
	}
	return nil
}
