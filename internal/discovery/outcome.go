// Package discovery enumerates job-posting URLs from ATS career sites.
// It provides the discovery strategies (sitemap, feed, HTML pagination)
// and the orchestrator that runs them across many sites concurrently.
package discovery

import (
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/job-harvester/internal/failure"
)

// Method identifies which strategy produced a set of job URLs.
type Method string

const (
	// MethodSitemap extracted URLs from <root>/sitemap.xml
	MethodSitemap Method = "sitemap"
	// MethodFeed extracted URLs from a syndication feed
	MethodFeed Method = "feed"
	// MethodHTMLPagination extracted URLs from paginated listing pages
	MethodHTMLPagination Method = "html_pagination"
)

// Site is one career site to discover: a company name and the career
// root URL. Identity is the normalized root URL.
type Site struct {
	Company string `json:"company"`
	URL     string `json:"career_url"`
}

// Key returns the normalized identity of the site: lowercased
// scheme and host, trailing slash stripped.
func (s Site) Key() string {
	parsed, err := url.Parse(s.URL)
	if err != nil || parsed.Host == "" {
		return strings.TrimRight(s.URL, "/")
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/")
}

// Root returns the site URL without a trailing slash, for joining
// well-known paths like sitemap.xml.
func (s Site) Root() string {
	return strings.TrimRight(s.URL, "/")
}

// FailureInfo describes a classified discovery failure.
type FailureInfo struct {
	Kind       failure.Kind
	Message    string
	HTTPStatus *int
}

// Outcome is the result of one discovery attempt for one Site. Exactly
// one of the three arms is set: a Success (Method + JobURLs), a
// Failure, or a RateLimit signal.
type Outcome struct {
	Site         Site
	Method       Method
	JobURLs      []string
	DiscoveredAt time.Time
	Failure      *FailureInfo
	RateLimit    *failure.RateLimitSignal
}

// IsSuccess reports whether the outcome carries discovered URLs
// (possibly zero of them).
func (o Outcome) IsSuccess() bool {
	return o.Failure == nil && o.RateLimit == nil
}

// IsRateLimited reports whether the outcome is a throttling signal.
func (o Outcome) IsRateLimited() bool {
	return o.RateLimit != nil
}

// Success builds a successful outcome.
func Success(site Site, method Method, jobURLs []string) Outcome {
	return Outcome{
		Site:         site,
		Method:       method,
		JobURLs:      jobURLs,
		DiscoveredAt: time.Now().UTC(),
	}
}

// Failed builds a classified failure outcome. httpStatus may be nil
// when the failure happened before any response arrived.
func Failed(site Site, kind failure.Kind, message string, httpStatus *int) Outcome {
	return Outcome{
		Site:         site,
		DiscoveredAt: time.Now().UTC(),
		Failure: &FailureInfo{
			Kind:       kind,
			Message:    message,
			HTTPStatus: httpStatus,
		},
	}
}

// RateLimited builds a throttled outcome from a detector signal.
func RateLimited(site Site, signal *failure.RateLimitSignal) Outcome {
	return Outcome{
		Site:         site,
		DiscoveredAt: time.Now().UTC(),
		RateLimit:    signal,
	}
}

// intPtr is a small helper for optional HTTP statuses.
func intPtr(v int) *int { return &v }
