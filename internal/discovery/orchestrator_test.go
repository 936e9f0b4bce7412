package discovery

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-harvester/internal/failure"
)

// stubStrategy returns canned outcomes and records invocations.
type stubStrategy struct {
	name Method

	mu      sync.Mutex
	calls   int
	outcome func(site Site) Outcome
}

func (s *stubStrategy) Name() Method { return s.name }

func (s *stubStrategy) Attempt(_ context.Context, site Site) Outcome {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.outcome(site)
}

func (s *stubStrategy) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func succeeding(name Method, urls ...string) *stubStrategy {
	return &stubStrategy{name: name, outcome: func(site Site) Outcome {
		return Success(site, name, urls)
	}}
}

func failing(name Method, kind failure.Kind) *stubStrategy {
	return &stubStrategy{name: name, outcome: func(site Site) Outcome {
		return Failed(site, kind, "stub failure", nil)
	}}
}

func rateLimiting(name Method) *stubStrategy {
	return &stubStrategy{name: name, outcome: func(site Site) Outcome {
		return RateLimited(site, &failure.RateLimitSignal{
			Status:   http.StatusTooManyRequests,
			Cooldown: failure.DefaultRateLimitCooldown,
		})
	}}
}

func fastOptions() Options {
	return Options{Workers: 2, RequestDelay: time.Millisecond}
}

var orchSite = Site{Company: "Acme", URL: "https://acme.avature.net/careers"}

func TestDiscover_FirstSuccessWins(t *testing.T) {
	first := succeeding(MethodSitemap, "u1")
	second := succeeding(MethodFeed, "u2")

	o := NewOrchestratorWithStrategies(fastOptions(), first, second)
	outcome := o.Discover(context.Background(), orchSite)

	require.True(t, outcome.IsSuccess())
	assert.Equal(t, MethodSitemap, outcome.Method)
	assert.Equal(t, 1, first.Calls())
	assert.Equal(t, 0, second.Calls(), "later strategies must not run after a hit")
}

func TestDiscover_FallsThroughFailures(t *testing.T) {
	first := failing(MethodSitemap, failure.KindNotFound)
	second := failing(MethodFeed, failure.KindNotFound)
	third := succeeding(MethodHTMLPagination, "u1", "u2")

	o := NewOrchestratorWithStrategies(fastOptions(), first, second, third)
	outcome := o.Discover(context.Background(), orchSite)

	require.True(t, outcome.IsSuccess())
	assert.Equal(t, MethodHTMLPagination, outcome.Method)
	assert.Len(t, outcome.JobURLs, 2)
}

func TestDiscover_AllFail_LastFailureReported(t *testing.T) {
	first := failing(MethodSitemap, failure.KindNotFound)
	second := failing(MethodFeed, failure.KindServerError)

	o := NewOrchestratorWithStrategies(fastOptions(), first, second)
	outcome := o.Discover(context.Background(), orchSite)

	require.NotNil(t, outcome.Failure)
	assert.Equal(t, failure.KindServerError, outcome.Failure.Kind)
}

func TestDiscover_RateLimitAbortsChain(t *testing.T) {
	first := rateLimiting(MethodSitemap)
	second := succeeding(MethodFeed, "u1")

	o := NewOrchestratorWithStrategies(fastOptions(), first, second)
	outcome := o.Discover(context.Background(), orchSite)

	// The signal must surface as rate_limited, never be masked by a
	// later fallback.
	require.True(t, outcome.IsRateLimited())
	assert.Equal(t, 0, second.Calls())
}

func TestDiscover_EmptySuccessFallsThrough(t *testing.T) {
	first := succeeding(MethodSitemap) // valid but empty
	second := succeeding(MethodFeed, "u1")

	o := NewOrchestratorWithStrategies(fastOptions(), first, second)
	outcome := o.Discover(context.Background(), orchSite)

	require.True(t, outcome.IsSuccess())
	assert.Equal(t, MethodFeed, outcome.Method)
	assert.Equal(t, 1, first.Calls())
}

func TestDiscover_AllEmpty_DefaultIsSuccess(t *testing.T) {
	first := succeeding(MethodSitemap)
	second := succeeding(MethodFeed)

	o := NewOrchestratorWithStrategies(fastOptions(), first, second)
	outcome := o.Discover(context.Background(), orchSite)

	require.True(t, outcome.IsSuccess())
	assert.Empty(t, outcome.JobURLs)
	assert.Equal(t, MethodSitemap, outcome.Method, "first empty success is reported")
}

func TestDiscover_AllEmpty_EmptyIsFailure(t *testing.T) {
	opts := fastOptions()
	opts.EmptyIsFailure = true

	o := NewOrchestratorWithStrategies(opts, succeeding(MethodSitemap), succeeding(MethodFeed))
	outcome := o.Discover(context.Background(), orchSite)

	require.NotNil(t, outcome.Failure)
	assert.Equal(t, failure.KindParseError, outcome.Failure.Kind)
}

func TestDiscover_EmptySuccessPreferredOverLaterFailure(t *testing.T) {
	first := succeeding(MethodSitemap) // empty
	second := failing(MethodFeed, failure.KindServerError)

	o := NewOrchestratorWithStrategies(fastOptions(), first, second)
	outcome := o.Discover(context.Background(), orchSite)

	// A confirmed empty listing beats a failed probe.
	require.True(t, outcome.IsSuccess())
	assert.Empty(t, outcome.JobURLs)
}

func TestDiscoverAll_CollectsOutcomes(t *testing.T) {
	o := NewOrchestratorWithStrategies(fastOptions(), succeeding(MethodSitemap, "u1"))

	sites := []Site{
		{Company: "A", URL: "https://a.avature.net/careers"},
		{Company: "B", URL: "https://b.avature.net/careers"},
		{Company: "C", URL: "https://c.avature.net/careers"},
	}
	result := o.DiscoverAll(context.Background(), sites)

	assert.Len(t, result.Outcomes, 3)
	assert.Empty(t, result.Remaining)
	assert.False(t, result.RateLimited)
	assert.Equal(t, 3, o.Dispatched())
}

func TestDiscoverAll_DelayBetweenSites(t *testing.T) {
	const delay = 40 * time.Millisecond

	var mu sync.Mutex
	var attempts []time.Time
	stub := &stubStrategy{name: MethodSitemap, outcome: func(site Site) Outcome {
		mu.Lock()
		attempts = append(attempts, time.Now())
		mu.Unlock()
		return Success(site, MethodSitemap, []string{"u1"})
	}}

	o := NewOrchestratorWithStrategies(Options{Workers: 1, RequestDelay: delay}, stub)
	sites := []Site{
		{Company: "A", URL: "https://a.avature.net/careers"},
		{Company: "B", URL: "https://b.avature.net/careers"},
	}
	result := o.DiscoverAll(context.Background(), sites)

	require.Len(t, result.Outcomes, 2)
	require.Len(t, attempts, 2)
	// The worker slot pauses at the site boundary: the second site's
	// first request must not fire immediately after the first finishes.
	assert.GreaterOrEqual(t, attempts[1].Sub(attempts[0]), delay)
}

func TestDiscoverAll_FreezesDispatchOnRateLimit(t *testing.T) {
	opts := Options{Workers: 1, RequestDelay: time.Millisecond}
	o := NewOrchestratorWithStrategies(opts, rateLimiting(MethodSitemap))

	sites := []Site{
		{Company: "A", URL: "https://a.avature.net/careers"},
		{Company: "B", URL: "https://b.avature.net/careers"},
		{Company: "C", URL: "https://c.avature.net/careers"},
	}
	result := o.DiscoverAll(context.Background(), sites)

	assert.True(t, result.RateLimited)
	require.Len(t, result.Outcomes, 1, "only the first site is attempted with one worker")
	assert.True(t, result.Outcomes[0].IsRateLimited())
	// Undispatched sites are reported so the caller can park them for
	// retry instead of losing them.
	assert.Len(t, result.Remaining, 2)
	assert.Equal(t, 1, o.Dispatched())
}

func TestDiscoverAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOrchestratorWithStrategies(fastOptions(), succeeding(MethodSitemap, "u1"))
	sites := []Site{{Company: "A", URL: "https://a.avature.net/careers"}}

	result := o.DiscoverAll(ctx, sites)
	assert.Len(t, result.Remaining, 1, "nothing dispatched on a dead context")
}

func TestSiteKey_Normalization(t *testing.T) {
	a := Site{URL: "https://acme.avature.net/careers"}
	b := Site{URL: "HTTPS://ACME.avature.net/careers/"}
	c := Site{URL: "https://acme.avature.net/careers#open"}

	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), c.Key())

	other := Site{URL: "https://acme.avature.net/jobs"}
	assert.NotEqual(t, a.Key(), other.Key())
}
