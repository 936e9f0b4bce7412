// Package scraper extracts structured job details from individual
// job-detail pages discovered by the URL pipeline.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/job-harvester/internal/failure"
	"github.com/jonathan/job-harvester/internal/fetch"
)

// JobDetail is the structured record extracted from one posting page.
type JobDetail struct {
	URL            string    `json:"url"`
	JobID          string    `json:"job_id"`
	Company        string    `json:"company"`
	Title          string    `json:"title"`
	Location       string    `json:"location"`
	Description    string    `json:"description,omitempty"`
	DatePosted     string    `json:"date_posted,omitempty"`
	Department     string    `json:"department,omitempty"`
	EmploymentType string    `json:"employment_type,omitempty"`
	ScrapedAt      time.Time `json:"scraped_at"`
}

// JobFailure records one posting page that could not be scraped.
type JobFailure struct {
	URL          string       `json:"url"`
	JobID        string       `json:"job_id"`
	Company      string       `json:"company"`
	Kind         failure.Kind `json:"error_type"`
	Message      string       `json:"error_message"`
	HTTPStatus   *int         `json:"http_status"`
	Timestamp    time.Time    `json:"timestamp"`
	cooldownHint time.Duration
}

// CooldownHint returns the server-provided retry delay, when the page
// was rate limited and sent one.
func (f JobFailure) CooldownHint() time.Duration {
	return f.cooldownHint
}

// BatchResult aggregates one company's detail-scrape batch.
type BatchResult struct {
	Details  []JobDetail
	Failures []JobFailure
	// Remaining holds job URLs never attempted because the batch halted
	// on a rate-limit signal.
	Remaining   []string
	RateLimited bool
}

// Scraper fetches and parses job-detail pages one at a time, pausing
// between requests.
type Scraper struct {
	Opts *fetch.Options
	// Delay is slept between successive detail fetches.
	Delay time.Duration
}

// New builds a scraper with the given per-request timeout and
// inter-request delay. Zero values select the fetch defaults.
func New(timeout, delay time.Duration) *Scraper {
	opts := fetch.DefaultOptions()
	if timeout > 0 {
		opts.Timeout = timeout
	}
	if delay <= 0 {
		delay = time.Second
	}
	return &Scraper{Opts: opts, Delay: delay}
}

// closedPhrases mark postings that exist but no longer accept
// applications. They are permanent: retrying never reopens a filled
// position.
var closedPhrases = []string{
	"position has been filled",
	"no longer accepting applications",
	"this job posting has expired",
}

// JobDetail scrapes one posting page. Exactly one of the returns is
// non-nil.
func (s *Scraper) JobDetail(ctx context.Context, company, jobURL string) (*JobDetail, *JobFailure) {
	jobID := fetch.ExtractJobID(jobURL)
	now := time.Now().UTC()

	fail := func(kind failure.Kind, message string, httpStatus *int) *JobFailure {
		return &JobFailure{
			URL: jobURL, JobID: jobID, Company: company,
			Kind: kind, Message: message, HTTPStatus: httpStatus,
			Timestamp: now,
		}
	}

	result, err := fetch.URL(ctx, jobURL, s.Opts)
	if err != nil {
		return nil, fail(failure.ClassifyError(err), err.Error(), nil)
	}

	if signal := failure.DetectRateLimit(result.StatusCode, result.Header, result.Body); signal != nil {
		f := fail(failure.KindRateLimited,
			fmt.Sprintf("rate limited (HTTP %d)", result.StatusCode), &result.StatusCode)
		if signal.FromHeader {
			f.cooldownHint = signal.Cooldown
		}
		return nil, f
	}

	if !result.OK() {
		kind := failure.ClassifyStatus(result.StatusCode)
		return nil, fail(kind, fmt.Sprintf("HTTP %d", result.StatusCode), &result.StatusCode)
	}

	lower := strings.ToLower(result.Body)
	for _, phrase := range closedPhrases {
		if strings.Contains(lower, phrase) {
			return nil, fail(failure.KindNotFound,
				"posting closed: "+phrase, &result.StatusCode)
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.Body))
	if err != nil {
		return nil, fail(failure.KindParseError, "failed to parse page: "+err.Error(), &result.StatusCode)
	}

	title := extractTitle(doc)
	if title == "" {
		return nil, fail(failure.KindParseError,
			"could not extract job title from page", &result.StatusCode)
	}

	meta := extractMetadata(doc)
	return &JobDetail{
		URL:            jobURL,
		JobID:          jobID,
		Company:        company,
		Title:          title,
		Location:       extractLocation(doc),
		Description:    extractDescription(doc),
		DatePosted:     meta["date_posted"],
		Department:     meta["department"],
		EmploymentType: meta["employment_type"],
		ScrapedAt:      now,
	}, nil
}

// JobDetails scrapes a company's job URLs sequentially with the
// configured delay. The batch halts on the first rate-limit failure;
// URLs never attempted are reported in Remaining.
func (s *Scraper) JobDetails(ctx context.Context, company string, jobURLs []string) BatchResult {
	var result BatchResult

	for i, jobURL := range jobURLs {
		if i > 0 {
			select {
			case <-ctx.Done():
				result.Remaining = append(result.Remaining, jobURLs[i:]...)
				return result
			case <-time.After(s.Delay):
			}
		}

		detail, jobFail := s.JobDetail(ctx, company, jobURL)
		if jobFail != nil {
			result.Failures = append(result.Failures, *jobFail)
			if jobFail.Kind == failure.KindRateLimited {
				slog.Warn("rate limit hit during detail scrape",
					"company", company, "scraped", len(result.Details))
				result.RateLimited = true
				result.Remaining = append(result.Remaining, jobURLs[i+1:]...)
				return result
			}
			continue
		}

		slog.Debug("job detail scraped", "company", company, "job_id", detail.JobID, "title", detail.Title)
		result.Details = append(result.Details, *detail)
	}

	return result
}

// titleSelectors in probe order. The banner and field-value variants
// cover the common Avature tenant themes; plain headings are the
// fallback.
var titleSelectors = []string{
	"h2.banner__text__title",
	"div.article__content__view__field__value--font .article__content__view__field__value",
	"h1.title",
	"h1",
	"h2",
}

func extractTitle(doc *goquery.Document) string {
	for _, selector := range titleSelectors {
		title := strings.TrimSpace(doc.Find(selector).First().Text())
		if len(title) > 2 {
			return title
		}
	}
	return ""
}

var workLocationPattern = regexp.MustCompile(`(?i)Work Location[:\s]*([^\n]+)`)

func extractLocation(doc *goquery.Document) string {
	// Structured label/value fields first.
	location := fieldValue(doc, "location", "work location", "office location")

	if location == "" {
		for _, selector := range []string{"span.list-item-location", "span.location", "div.location", "p.location"} {
			location = strings.TrimSpace(doc.Find(selector).First().Text())
			if location != "" {
				break
			}
		}
	}

	if location == "" {
		if m := workLocationPattern.FindStringSubmatch(doc.Text()); m != nil {
			location = strings.TrimSpace(m[1])
		}
	}

	if location == "" {
		return "Not specified"
	}
	return location
}

var descriptionSelectors = []string{
	"div.article__content__view__field.field--rich-text",
	"div.main__content",
	"div.article__body",
	"div.job-description",
	"div.description",
}

var collapseBlankLines = regexp.MustCompile(`\n{3,}`)

func extractDescription(doc *goquery.Document) string {
	for _, selector := range descriptionSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}

		clone := sel.Clone()
		clone.Find("nav, header, footer").Remove()
		clone.Find("a, button").Each(func(_ int, el *goquery.Selection) {
			cls, _ := el.Attr("class")
			if strings.Contains(cls, "button") || isChromeText(el.Text()) {
				el.Remove()
			}
		})

		text := strings.TrimSpace(clone.Text())
		text = collapseBlankLines.ReplaceAllString(text, "\n\n")
		if len(text) > 50 {
			return text
		}
	}
	return ""
}

var chromeTextPattern = regexp.MustCompile(`(?i)Apply\s*Now|Back\s*to|Log\s*In|Save\s*this\s*Job`)

// isChromeText reports whether link text is page chrome rather than
// posting content.
func isChromeText(text string) bool {
	return chromeTextPattern.MatchString(strings.TrimSpace(text))
}

func extractMetadata(doc *goquery.Document) map[string]string {
	return map[string]string{
		"date_posted":     fieldValue(doc, "posted date", "date posted"),
		"employment_type": fieldValue(doc, "employment type", "job type"),
		"department":      fieldValue(doc, "department", "team"),
	}
}

// fieldValue scans the structured label/value field blocks for a label
// containing any of the given keywords and returns its value.
func fieldValue(doc *goquery.Document, keywords ...string) string {
	var value string
	doc.Find("div.article__content__view__field").EachWithBreak(func(_ int, field *goquery.Selection) bool {
		label := strings.ToLower(strings.TrimSpace(field.Find("div.article__content__view__field__label").Text()))
		if label == "" {
			return true
		}
		for _, keyword := range keywords {
			if strings.Contains(label, keyword) {
				value = strings.TrimSpace(field.Find("div.article__content__view__field__value").Text())
				return false
			}
		}
		return true
	})
	return value
}
