// Package fetch - platform.go provides ATS platform detection and
// platform-specific URL patterns used by the discovery strategies.
package fetch

import (
	"net/url"
	"regexp"
	"strings"
)

// Platform represents a known applicant tracking system.
type Platform string

const (
	// PlatformAvature is the Avature ATS (tenant subdomains on avature.net)
	PlatformAvature Platform = "avature"
	// PlatformGreenhouse is the Greenhouse ATS
	PlatformGreenhouse Platform = "greenhouse"
	// PlatformLever is the Lever ATS
	PlatformLever Platform = "lever"
	// PlatformWorkday is the Workday ATS
	PlatformWorkday Platform = "workday"
	// PlatformUnknown is an unrecognized platform
	PlatformUnknown Platform = "unknown"
)

var (
	avatureDetailPattern    = regexp.MustCompile(`/(JobDetail|FolderDetail|PipelineDetail)/`)
	greenhouseDetailPattern = regexp.MustCompile(`/jobs/\d+`)
	leverDetailPattern      = regexp.MustCompile(`/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	workdayDetailPattern    = regexp.MustCompile(`/job/[^/]+/`)
	genericDetailPattern    = regexp.MustCompile(`(?i)/(JobDetail|FolderDetail|PipelineDetail)/|/jobs?/[A-Za-z0-9-]+|jobId=\d+`)
)

// DetectPlatform identifies the ATS platform from a career-site URL.
func DetectPlatform(urlStr string) Platform {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return PlatformUnknown
	}

	host := strings.ToLower(parsed.Host)

	// Exact suffix match; "avature.net.evil.com" must not pass.
	if host == "avature.net" || strings.HasSuffix(host, ".avature.net") {
		return PlatformAvature
	}

	if strings.Contains(host, "greenhouse.io") {
		return PlatformGreenhouse
	}

	if strings.Contains(host, "lever.co") {
		return PlatformLever
	}

	if strings.Contains(host, "workday.com") ||
		strings.Contains(host, "myworkdayjobs.com") {
		return PlatformWorkday
	}

	return PlatformUnknown
}

// JobDetailPattern returns the URL pattern that marks a job-detail
// page on the given platform.
func JobDetailPattern(platform Platform) *regexp.Regexp {
	switch platform {
	case PlatformAvature:
		return avatureDetailPattern
	case PlatformGreenhouse:
		return greenhouseDetailPattern
	case PlatformLever:
		return leverDetailPattern
	case PlatformWorkday:
		return workdayDetailPattern
	default:
		return genericDetailPattern
	}
}

// ListingPath returns the paginated search path for a platform,
// relative to the career-site root.
func ListingPath(platform Platform) string {
	switch platform {
	case PlatformAvature:
		return "SearchJobs/"
	case PlatformGreenhouse:
		return "jobs"
	default:
		return "SearchJobs/"
	}
}

// FeedPaths returns candidate syndication feed paths for a platform,
// relative to the career-site root, in probe order.
func FeedPaths(platform Platform) []string {
	switch platform {
	case PlatformAvature:
		return []string{"SearchJobs/feed/", "feed/"}
	default:
		return []string{"feed/", "rss/"}
	}
}

// ExtractCompanyFromURL infers a company name from an ATS tenant URL,
// e.g. "bloomberg" from "bloomberg.avature.net". Falls back to the
// first hostname label.
func ExtractCompanyFromURL(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Hostname() == "" {
		return "unknown"
	}

	labels := strings.Split(strings.ToLower(parsed.Hostname()), ".")
	for i, label := range labels {
		if (label == "avature" || label == "greenhouse" || label == "lever" || label == "myworkdayjobs") && i > 0 {
			return labels[i-1]
		}
	}

	return labels[0]
}

// ExtractJobID returns the trailing path segment of a job-detail URL
// with any query string removed. Duplicate postings share a job ID
// even when the URLs differ in locale or query parameters.
func ExtractJobID(jobURL string) string {
	base := jobURL
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimRight(base, "/")
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		return base[i+1:]
	}
	return base
}
