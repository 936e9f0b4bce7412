package discovery

import (
	"context"
	"encoding/xml"
	"log/slog"
	"strings"

	"github.com/jonathan/job-harvester/internal/failure"
	"github.com/jonathan/job-harvester/internal/fetch"
)

// SitemapStrategy extracts job-detail URLs from <root>/sitemap.xml.
// It is the fastest path and the most complete one: Avature sitemaps
// include recently closed postings, so downstream consumers must
// tolerate stale entries.
type SitemapStrategy struct {
	Opts *fetch.Options
}

// urlSet is the subset of the sitemap protocol we consume.
type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	Locs    []string `xml:"url>loc"`
}

// Name implements Strategy.
func (s *SitemapStrategy) Name() Method { return MethodSitemap }

// Attempt implements Strategy.
func (s *SitemapStrategy) Attempt(ctx context.Context, site Site) Outcome {
	sitemapURL := site.Root() + "/sitemap.xml"
	slog.Debug("fetching sitemap", "company", site.Company, "url", sitemapURL)

	result, failed := fetchStep(ctx, site, sitemapURL, s.Opts)
	if failed != nil {
		return *failed
	}

	var set urlSet
	if err := xml.Unmarshal([]byte(result.Body), &set); err != nil {
		return Failed(site, failure.KindParseError, "malformed sitemap XML: "+err.Error(), intPtr(result.StatusCode))
	}

	pattern := fetch.JobDetailPattern(fetch.DetectPlatform(site.URL))

	jobURLs := make([]string, 0, len(set.Locs))
	for _, loc := range set.Locs {
		loc = strings.TrimSpace(loc)
		if loc != "" && pattern.MatchString(loc) {
			jobURLs = append(jobURLs, loc)
		}
	}

	jobURLs = dedupeByJobID(jobURLs)
	slog.Debug("sitemap parsed", "company", site.Company, "job_urls", len(jobURLs))

	// An empty sitemap is a valid result, not a failure; the
	// orchestrator decides whether to keep looking.
	return Success(site, MethodSitemap, jobURLs)
}
