package observability

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/job-harvester/internal/discovery"
	"github.com/jonathan/job-harvester/internal/failure"
	"github.com/jonathan/job-harvester/internal/output"
	"github.com/jonathan/job-harvester/internal/retryq"
)

func TestPrintRunSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	start := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	stats := output.NewRunStats(3, start)
	site := discovery.Site{Company: "Acme", URL: "https://acme.avature.net/careers"}
	stats.RecordSuccess(discovery.Success(site, discovery.MethodSitemap, []string{"u1", "u2"}))
	stats.RecordFailure(discovery.Failed(site, failure.KindNotFound, "HTTP 404", nil))
	stats.RecordRetry()
	stats.FinishedAt = start.Add(time.Minute)

	p.PrintRunSummary(stats)

	out := buf.String()
	assert.Contains(t, out, "HARVEST RUN SUMMARY")
	assert.Contains(t, out, "Succeeded: 1")
	assert.Contains(t, out, "Failed:    1")
	assert.Contains(t, out, "sitemap: 1")
	assert.Contains(t, out, "not_found: 1")
}

func TestPrintRunSummary_RateLimitedTitle(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	stats := output.NewRunStats(1, time.Now())
	stats.RateLimited = true
	p.PrintRunSummary(stats)

	assert.Contains(t, buf.String(), "halted: rate limited")
}

func TestPrintRunSummary_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintRunSummary(nil)
	assert.Empty(t, buf.String())
}

func TestPrintOutcome_Success(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	site := discovery.Site{Company: "Acme", URL: "https://acme.avature.net/careers"}
	urls := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7"}
	p.PrintOutcome(discovery.Success(site, discovery.MethodFeed, urls))

	out := buf.String()
	assert.Contains(t, out, "Found:    7 job URLs")
	assert.Contains(t, out, "... and 2 more")
}

func TestPrintOutcome_Failure(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	site := discovery.Site{Company: "Acme", URL: "https://acme.avature.net/careers"}
	status := 403
	p.PrintOutcome(discovery.Failed(site, failure.KindAccessForbidden, "HTTP 403", &status))

	out := buf.String()
	assert.Contains(t, out, "access_forbidden")
	assert.Contains(t, out, "HTTP:     403")
}

func TestPrintRetryQueue(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	q := retryq.NewQueue(3, 0)
	q.Enqueue(discovery.Site{Company: "Acme", URL: "https://acme.avature.net/careers"},
		failure.KindTimeout, "timed out", nil, 0, now)

	p.PrintRetryQueue(q.Snapshot(), now)

	out := buf.String()
	assert.Contains(t, out, "RETRY QUEUE")
	assert.Contains(t, out, "Acme (timeout, attempt 1)")
	assert.Contains(t, out, "due in 5m0s")
}

func TestPrintRetryQueue_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintRetryQueue(nil, time.Now())
	assert.Contains(t, buf.String(), "RETRY QUEUE EMPTY")
}
