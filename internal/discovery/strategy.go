package discovery

import (
	"context"
	"fmt"

	"github.com/jonathan/job-harvester/internal/failure"
	"github.com/jonathan/job-harvester/internal/fetch"
)

// Strategy is one way of enumerating job-detail URLs for a site.
// Implementations must classify every failure into an Outcome; no
// error escapes to the orchestrator.
type Strategy interface {
	// Name identifies the extraction method in output records.
	Name() Method
	// Attempt runs the strategy once against a site.
	Attempt(ctx context.Context, site Site) Outcome
}

// fetchStep performs one HTTP fetch for a strategy and converts any
// transport failure, rate-limit signal, or HTTP error status into a
// terminal Outcome. On a usable response it returns (result, nil).
func fetchStep(ctx context.Context, site Site, urlStr string, opts *fetch.Options) (*fetch.Result, *Outcome) {
	result, err := fetch.URL(ctx, urlStr, opts)
	if err != nil {
		kind := failure.ClassifyError(err)
		out := Failed(site, kind, err.Error(), nil)
		return nil, &out
	}

	if signal := failure.DetectRateLimit(result.StatusCode, result.Header, result.Body); signal != nil {
		out := RateLimited(site, signal)
		return nil, &out
	}

	if !result.OK() {
		kind := failure.ClassifyStatus(result.StatusCode)
		out := Failed(site, kind, fmt.Sprintf("HTTP %d for %s", result.StatusCode, urlStr), intPtr(result.StatusCode))
		return nil, &out
	}

	return result, nil
}

// dedupeByJobID keeps the first URL for each job ID, preserving
// document order. URLs without an extractable ID are kept as-is.
func dedupeByJobID(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	deduped := make([]string, 0, len(urls))
	for _, u := range urls {
		id := fetch.ExtractJobID(u)
		if id == "" {
			deduped = append(deduped, u)
			continue
		}
		if !seen[id] {
			seen[id] = true
			deduped = append(deduped, u)
		}
	}
	return deduped
}
