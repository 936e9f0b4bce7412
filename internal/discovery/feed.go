package discovery

import (
	"context"
	"encoding/xml"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jonathan/job-harvester/internal/failure"
	"github.com/jonathan/job-harvester/internal/fetch"
)

// FeedStrategy extracts job-detail URLs from a site's RSS feed. Feeds
// carry only the most recently published postings (Avature caps them
// at 20 items), so this is a secondary source used when the sitemap
// is unavailable.
type FeedStrategy struct {
	Opts *fetch.Options
}

// rssDoc is the subset of RSS 2.0 we consume.
type rssDoc struct {
	XMLName xml.Name `xml:"rss"`
	Links   []string `xml:"channel>item>link"`
}

// Name implements Strategy.
func (s *FeedStrategy) Name() Method { return MethodFeed }

// Attempt implements Strategy. Candidate feed paths are probed in
// order; a 404 moves on to the next candidate, any other failure is
// terminal for the strategy.
func (s *FeedStrategy) Attempt(ctx context.Context, site Site) Outcome {
	platform := fetch.DetectPlatform(site.URL)
	pattern := fetch.JobDetailPattern(platform)

	sawNonFeed := false
	for _, path := range fetch.FeedPaths(platform) {
		feedURL := site.Root() + "/" + path
		slog.Debug("probing feed", "company", site.Company, "url", feedURL)

		result, failed := fetchStep(ctx, site, feedURL, s.Opts)
		if failed != nil {
			if failed.Failure != nil && failed.Failure.Kind == failure.KindNotFound {
				continue
			}
			return *failed
		}

		if !strings.Contains(strings.ToLower(result.ContentType), "xml") {
			// The path answered, but with a regular page, not a feed.
			slog.Debug("feed candidate returned non-feed content",
				"company", site.Company, "content_type", result.ContentType)
			sawNonFeed = true
			continue
		}

		var doc rssDoc
		if err := xml.Unmarshal([]byte(result.Body), &doc); err != nil {
			return Failed(site, failure.KindParseError, "malformed feed XML: "+err.Error(), intPtr(result.StatusCode))
		}

		jobURLs := make([]string, 0, len(doc.Links))
		for _, link := range doc.Links {
			link = strings.TrimSpace(link)
			if link != "" && pattern.MatchString(link) {
				jobURLs = append(jobURLs, link)
			}
		}

		jobURLs = dedupeByJobID(jobURLs)
		slog.Debug("feed parsed", "company", site.Company, "job_urls", len(jobURLs))
		return Success(site, MethodFeed, jobURLs)
	}

	if sawNonFeed {
		// Don't report the 200 the splash page answered with; the real
		// condition is that no feed exists at any candidate path.
		return Failed(site, failure.KindNotFound, "no syndication feed advertised", nil)
	}
	return Failed(site, failure.KindNotFound, "no syndication feed advertised", intPtr(http.StatusNotFound))
}
