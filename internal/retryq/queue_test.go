package retryq

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-harvester/internal/discovery"
	"github.com/jonathan/job-harvester/internal/failure"
)

var testSite = discovery.Site{Company: "Acme", URL: "https://acme.avature.net/careers"}

func TestEnqueue_NewRecord(t *testing.T) {
	q := NewQueue(3, 0)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	rec, exhausted := q.Enqueue(testSite, failure.KindTimeout, "request timed out", nil, 0, now)

	assert.False(t, exhausted)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, failure.KindTimeout, rec.Kind)
	assert.Equal(t, now.Add(5*time.Minute), rec.NextEligible)
	assert.Equal(t, 1, q.Len())
}

func TestEnqueue_OneRecordPerSite(t *testing.T) {
	q := NewQueue(5, 0)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	q.Enqueue(testSite, failure.KindTimeout, "timed out", nil, 0, now)
	// Same site with different URL casing and trailing slash.
	alias := discovery.Site{Company: "Acme", URL: "HTTPS://ACME.avature.net/careers/"}
	rec, _ := q.Enqueue(alias, failure.KindServerError, "HTTP 502", intPtr(502), 0, now.Add(time.Minute))

	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, failure.KindServerError, rec.Kind)
}

func TestEnqueue_NextEligibleStrictlyIncreases(t *testing.T) {
	q := NewQueue(10, 0)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	var prev time.Time
	for attempt := 1; attempt <= 7; attempt++ {
		// Re-arm with the same wall clock every time: the schedule must
		// still move forward.
		rec, exhausted := q.Enqueue(testSite, failure.KindConnectionError, "refused", nil, 0, now)
		require.False(t, exhausted)
		assert.True(t, rec.NextEligible.After(prev),
			"attempt %d: %v not after %v", attempt, rec.NextEligible, prev)
		prev = rec.NextEligible
	}
}

func TestEnqueue_ExhaustsAfterMaxAttempts(t *testing.T) {
	q := NewQueue(3, 0)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, exhausted := q.Enqueue(testSite, failure.KindTimeout, "timed out", nil, 0, now.Add(time.Duration(i)*time.Hour))
		require.False(t, exhausted, "attempt %d", i+1)
	}

	rec, exhausted := q.Enqueue(testSite, failure.KindTimeout, "timed out", nil, 0, now.Add(4*time.Hour))
	assert.True(t, exhausted)
	assert.Equal(t, failure.KindRetriesExhausted, rec.Kind)
	assert.Equal(t, 4, rec.Attempts)
	assert.Equal(t, 0, q.Len(), "exhausted record must leave the queue")
}

func TestEnqueue_RateLimitedCooldown(t *testing.T) {
	q := NewQueue(3, 0)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	rec, _ := q.Enqueue(testSite, failure.KindRateLimited, "HTTP 429", intPtr(429), 0, now)
	assert.Equal(t, now.Add(failure.DefaultRateLimitCooldown), rec.NextEligible)

	other := discovery.Site{Company: "Globex", URL: "https://globex.avature.net/jobs"}
	rec, _ = q.Enqueue(other, failure.KindRateLimited, "HTTP 429", intPtr(429), 90*time.Second, now)
	assert.Equal(t, now.Add(90*time.Second), rec.NextEligible)
}

func TestEnqueue_ConfiguredCooldown(t *testing.T) {
	q := NewQueue(3, 60*time.Minute)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	// No Retry-After hint: the queue's configured cooldown applies.
	rec, _ := q.Enqueue(testSite, failure.KindRateLimited, "HTTP 429", intPtr(429), 0, now)
	assert.Equal(t, now.Add(60*time.Minute), rec.NextEligible)

	// A server hint still wins over the configured value.
	other := discovery.Site{Company: "Globex", URL: "https://globex.avature.net/jobs"}
	rec, _ = q.Enqueue(other, failure.KindRateLimited, "HTTP 429", intPtr(429), 5*time.Minute, now)
	assert.Equal(t, now.Add(5*time.Minute), rec.NextEligible)

	// Non-rate-limit kinds stay on the exponential schedule.
	third := discovery.Site{Company: "Initech", URL: "https://initech.avature.net/jobs"}
	rec, _ = q.Enqueue(third, failure.KindTimeout, "timed out", nil, 0, now)
	assert.Equal(t, now.Add(5*time.Minute), rec.NextEligible)
}

func TestDue_OrderingAndEligibility(t *testing.T) {
	q := NewQueue(5, 0)
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	early := discovery.Site{Company: "Early", URL: "https://early.avature.net/careers"}
	late := discovery.Site{Company: "Late", URL: "https://late.avature.net/careers"}
	tied := discovery.Site{Company: "Tied", URL: "https://tied.avature.net/careers"}

	// early and tied share the same next-eligible instant; early was
	// enqueued first.
	q.Enqueue(early, failure.KindTimeout, "timed out", nil, 0, base)
	q.Enqueue(late, failure.KindServerError, "HTTP 500", intPtr(500), 0, base.Add(time.Minute))
	q.Enqueue(tied, failure.KindTimeout, "timed out", nil, 0, base)

	due := q.Due(base.Add(5 * time.Minute))
	require.Len(t, due, 2)
	assert.Equal(t, "Early", due[0].Company)
	assert.Equal(t, "Tied", due[1].Company)

	due = q.Due(base.Add(10 * time.Minute))
	require.Len(t, due, 3)
	assert.Equal(t, "Late", due[2].Company)

	assert.Empty(t, q.Due(base), "nothing due before its next-eligible time")
}

func TestRemove(t *testing.T) {
	q := NewQueue(3, 0)
	now := time.Now().UTC()

	q.Enqueue(testSite, failure.KindTimeout, "timed out", nil, 0, now)
	require.Equal(t, 1, q.Len())

	q.Remove(testSite)
	assert.Equal(t, 0, q.Len())

	// Removing an absent site is a no-op.
	q.Remove(testSite)
	assert.Equal(t, 0, q.Len())
}

func TestSnapshot_EnqueueOrder(t *testing.T) {
	q := NewQueue(3, 0)
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		site := discovery.Site{
			Company: fmt.Sprintf("Company%d", i),
			URL:     fmt.Sprintf("https://c%d.avature.net/careers", i),
		}
		q.Enqueue(site, failure.KindTimeout, "timed out", nil, 0, now)
	}

	snap := q.Snapshot()
	require.Len(t, snap, 4)
	for i, rec := range snap {
		assert.Equal(t, fmt.Sprintf("Company%d", i), rec.Company)
	}
}

func intPtr(v int) *int { return &v }
