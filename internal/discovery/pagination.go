package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/job-harvester/internal/failure"
	"github.com/jonathan/job-harvester/internal/fetch"
)

const (
	// DefaultMaxPages bounds pagination so a broken "next page" never
	// loops forever.
	DefaultMaxPages = 25
	// defaultPageSize is assumed until the first page reveals the
	// server's real page size.
	defaultPageSize = 10
)

// PaginationStrategy walks the paginated HTML job listing. It is the
// required fallback: every career site serves the listing, even ones
// without a sitemap or feed. It sees only currently active postings.
type PaginationStrategy struct {
	Opts *fetch.Options
	// MaxPages caps the walk; zero means DefaultMaxPages.
	MaxPages int
	// PageDelay is slept between page fetches.
	PageDelay time.Duration
}

// Name implements Strategy.
func (s *PaginationStrategy) Name() Method { return MethodHTMLPagination }

// Attempt implements Strategy. Pages are walked from page 1 until a
// page yields no new job entries or MaxPages is reached. Results are
// aggregated across pages into one de-duplicated ordered sequence.
func (s *PaginationStrategy) Attempt(ctx context.Context, site Site) Outcome {
	platform := fetch.DetectPlatform(site.URL)
	pattern := fetch.JobDetailPattern(platform)
	listingURL := site.Root() + "/" + fetch.ListingPath(platform)

	maxPages := s.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var jobURLs []string
	seen := make(map[string]bool)
	pageSize := 0
	offset := 0

	for page := 1; page <= maxPages; page++ {
		pageURL := listingURL
		if offset > 0 {
			pageURL = fmt.Sprintf("%s?listFilterMode=1&jobRecordsPerPage=%d&jobOffset=%d", listingURL, pageSize, offset)
		}

		slog.Debug("fetching listing page", "company", site.Company, "page", page, "url", pageURL)

		result, failed := fetchStep(ctx, site, pageURL, s.Opts)
		if failed != nil {
			return *failed
		}

		entries, err := extractJobLinks(result.Body, pageURL, pattern)
		if err != nil {
			return Failed(site, failure.KindParseError, "failed to parse listing page: "+err.Error(), intPtr(result.StatusCode))
		}

		added := 0
		for _, entry := range entries {
			id := fetch.ExtractJobID(entry)
			if !seen[id] {
				seen[id] = true
				jobURLs = append(jobURLs, entry)
				added++
			}
		}

		slog.Debug("listing page parsed", "company", site.Company, "page", page, "entries", len(entries), "new", added)

		// A page with no new entries is the end of the listing.
		if added == 0 {
			break
		}

		if pageSize == 0 {
			pageSize = len(entries)
			if pageSize == 0 {
				pageSize = defaultPageSize
			}
		}
		offset += pageSize

		if s.PageDelay > 0 && page < maxPages {
			select {
			case <-ctx.Done():
				return Failed(site, failure.ClassifyError(ctx.Err()), ctx.Err().Error(), nil)
			case <-time.After(s.PageDelay):
			}
		}
	}

	return Success(site, MethodHTMLPagination, jobURLs)
}

// extractJobLinks pulls anchors whose href matches the job-detail
// pattern, resolving relative URLs against the page URL. Anchor order
// is document order.
func extractJobLinks(html, pageURL string, pattern interface{ MatchString(string) bool }) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || !pattern.MatchString(href) {
			return
		}

		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})

	return links, nil
}
