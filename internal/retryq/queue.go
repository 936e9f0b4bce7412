package retryq

import (
	"sort"
	"sync"
	"time"

	"github.com/jonathan/job-harvester/internal/discovery"
	"github.com/jonathan/job-harvester/internal/failure"
)

// Record is one site awaiting a future retry. JSON tags define the
// retry-file line format consumed by the downstream detail scraper.
type Record struct {
	CareerURL  string       `json:"career_url"`
	Company    string       `json:"company"`
	Kind       failure.Kind `json:"error_type"`
	Message    string       `json:"error_message"`
	HTTPStatus *int         `json:"http_status"`
	Attempts   int          `json:"attempts"`
	// EnqueuedAt is the timestamp of the original failure.
	EnqueuedAt time.Time `json:"timestamp"`
	// NextEligible is when the record becomes due.
	NextEligible time.Time `json:"next_retry_at"`

	// seq preserves original enqueue order for Due ties.
	seq int
}

// Site reconstructs the work item for re-dispatch.
func (r Record) Site() discovery.Site {
	return discovery.Site{Company: r.Company, URL: r.CareerURL}
}

// Queue holds at most one active Record per site and schedules when
// each becomes eligible again. Safe for concurrent use.
type Queue struct {
	mu          sync.Mutex
	records     map[string]*Record
	maxAttempts int
	cooldown    time.Duration
	nextSeq     int
}

// NewQueue builds an empty queue. maxAttempts <= 0 selects
// DefaultMaxAttempts; cooldown <= 0 selects the default rate-limit
// cooldown. The cooldown applies to rate-limited records whose server
// gave no Retry-After hint.
func NewQueue(maxAttempts int, cooldown time.Duration) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if cooldown <= 0 {
		cooldown = failure.DefaultRateLimitCooldown
	}
	return &Queue{
		records:     make(map[string]*Record),
		maxAttempts: maxAttempts,
		cooldown:    cooldown,
	}
}

// Enqueue creates or re-arms the record for a site after a retryable
// failure. The attempt count increments and the next-eligible time is
// recomputed on the backoff schedule, strictly after the previous one.
// When the attempt count exceeds the queue's budget the record is
// removed and returned with Kind retries_exhausted and exhausted=true:
// the caller must emit it as a permanent failure.
func (q *Queue) Enqueue(site discovery.Site, kind failure.Kind, message string, httpStatus *int, cooldownHint time.Duration, now time.Time) (Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := site.Key()
	rec, exists := q.records[key]
	if !exists {
		rec = &Record{
			CareerURL:  site.URL,
			Company:    site.Company,
			EnqueuedAt: now.UTC(),
			seq:        q.nextSeq,
		}
		q.nextSeq++
		q.records[key] = rec
	}

	rec.Attempts++
	rec.Kind = kind
	rec.Message = message
	rec.HTTPStatus = httpStatus

	if rec.Attempts > q.maxAttempts {
		delete(q.records, key)
		out := *rec
		out.Kind = failure.KindRetriesExhausted
		return out, true
	}

	if kind == failure.KindRateLimited && cooldownHint <= 0 {
		cooldownHint = q.cooldown
	}

	next := now.UTC().Add(Delay(kind, rec.Attempts, cooldownHint))
	if !next.After(rec.NextEligible) {
		// Backoff must be monotonic even against clock oddities.
		next = rec.NextEligible.Add(Delay(kind, rec.Attempts, cooldownHint))
	}
	rec.NextEligible = next

	return *rec, false
}

// Due returns records eligible at the given time, earliest first; ties
// are broken by original enqueue order.
func (q *Queue) Due(now time.Time) []Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	due := make([]Record, 0)
	for _, rec := range q.records {
		if !rec.NextEligible.After(now) {
			due = append(due, *rec)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].NextEligible.Equal(due[j].NextEligible) {
			return due[i].seq < due[j].seq
		}
		return due[i].NextEligible.Before(due[j].NextEligible)
	})

	return due
}

// Remove drops a site's record, called on terminal success or a
// permanent classification. Removing an absent site is a no-op.
func (q *Queue) Remove(site discovery.Site) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.records, site.Key())
}

// Len returns the number of pending records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Snapshot returns all pending records in enqueue order.
func (q *Queue) Snapshot() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	records := make([]Record, 0, len(q.records))
	for _, rec := range q.records {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })
	return records
}
