package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jonathan/job-harvester/internal/failure"
	"github.com/jonathan/job-harvester/internal/fetch"
)

const (
	// DefaultWorkers is the default size of the discovery worker pool.
	DefaultWorkers = 3
	// DefaultRequestDelay is the minimum delay between successive
	// outbound requests per worker.
	DefaultRequestDelay = 1 * time.Second
)

// Options configures an Orchestrator.
type Options struct {
	// Workers bounds how many sites are discovered concurrently.
	Workers int
	// RequestDelay is the per-worker delay between outbound requests.
	RequestDelay time.Duration
	// Timeout is the per-request timeout applied to every fetch.
	Timeout time.Duration
	// MaxPages caps the HTML pagination walk.
	MaxPages int
	// EmptyIsFailure treats a discovery chain that ends with zero URLs
	// and no error as a parse_error instead of an empty Success.
	EmptyIsFailure bool
}

// Orchestrator runs the strategy chain per site and fans discovery out
// over a bounded worker pool. The first rate-limit signal observed
// anywhere freezes dispatch: workers finish their in-flight site but
// no new sites are started.
type Orchestrator struct {
	strategies     []Strategy
	workers        int
	requestDelay   time.Duration
	emptyIsFailure bool

	mu         sync.Mutex
	stopped    bool
	dispatched int
}

// RunResult aggregates a DiscoverAll run.
type RunResult struct {
	Outcomes []Outcome
	// Remaining holds sites that were never dispatched because the
	// stop flag was raised; the caller re-queues them so the work is
	// not lost.
	Remaining []Site
	// RateLimited is true when the run halted on a throttling signal.
	RateLimited bool
}

// NewOrchestrator builds an orchestrator with the standard strategy
// chain: sitemap, then feed, then HTML pagination.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.RequestDelay <= 0 {
		opts.RequestDelay = DefaultRequestDelay
	}

	fetchOpts := fetch.DefaultOptions()
	if opts.Timeout > 0 {
		fetchOpts.Timeout = opts.Timeout
	}

	return &Orchestrator{
		strategies: []Strategy{
			&SitemapStrategy{Opts: fetchOpts},
			&FeedStrategy{Opts: fetchOpts},
			&PaginationStrategy{Opts: fetchOpts, MaxPages: opts.MaxPages, PageDelay: opts.RequestDelay},
		},
		workers:        opts.Workers,
		requestDelay:   opts.RequestDelay,
		emptyIsFailure: opts.EmptyIsFailure,
	}
}

// NewOrchestratorWithStrategies builds an orchestrator over an explicit
// strategy chain, in the order given. Used by tests and callers that
// need to reorder or stub strategies.
func NewOrchestratorWithStrategies(opts Options, strategies ...Strategy) *Orchestrator {
	o := NewOrchestrator(opts)
	o.strategies = strategies
	return o
}

// Discover runs the strategy chain for one site. Strategies run
// strictly sequentially; each is a fallback contingent on the previous
// one failing. A RateLimited outcome aborts the chain immediately and
// propagates: the limiting may be at the network level, and retrying
// through another code path would only retrigger it.
func (o *Orchestrator) Discover(ctx context.Context, site Site) Outcome {
	var emptySuccess *Outcome
	var lastFailure *Outcome

	for i, strategy := range o.strategies {
		if i > 0 {
			select {
			case <-ctx.Done():
				return Failed(site, failure.ClassifyError(ctx.Err()), ctx.Err().Error(), nil)
			case <-time.After(o.requestDelay):
			}
		}

		outcome := strategy.Attempt(ctx, site)

		if outcome.IsRateLimited() {
			slog.Warn("rate limit detected",
				"company", site.Company,
				"strategy", string(strategy.Name()),
				"status", outcome.RateLimit.Status)
			return outcome
		}

		if outcome.IsSuccess() {
			if len(outcome.JobURLs) > 0 {
				slog.Info("discovery succeeded",
					"company", site.Company,
					"method", string(outcome.Method),
					"job_urls", len(outcome.JobURLs))
				return outcome
			}
			// Empty but valid; keep looking, decide at end of chain.
			if emptySuccess == nil {
				emptySuccess = &outcome
			}
			continue
		}

		slog.Debug("strategy failed",
			"company", site.Company,
			"strategy", string(strategy.Name()),
			"kind", string(outcome.Failure.Kind),
			"message", outcome.Failure.Message)
		lastFailure = &outcome
	}

	if emptySuccess != nil {
		if o.emptyIsFailure {
			return Failed(site, failure.KindParseError,
				"discovery produced no job URLs on any strategy", nil)
		}
		return *emptySuccess
	}

	if lastFailure != nil {
		return *lastFailure
	}

	return Failed(site, failure.KindUnexpectedError, "no discovery strategies configured", nil)
}

// DiscoverAll runs discovery for each site inside the bounded worker
// pool. Dispatch stops at the first rate-limit signal; sites never
// dispatched are reported in RunResult.Remaining.
func (o *Orchestrator) DiscoverAll(ctx context.Context, sites []Site) RunResult {
	sem := semaphore.NewWeighted(int64(o.workers))
	var wg sync.WaitGroup

	var result RunResult
	var resultMu sync.Mutex

	for i, site := range sites {
		if o.stopRequested() {
			result.Remaining = append(result.Remaining, sites[i:]...)
			break
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			result.Remaining = append(result.Remaining, sites[i:]...)
			break
		}

		// The flag may have been raised while waiting for a slot.
		if o.stopRequested() {
			sem.Release(1)
			result.Remaining = append(result.Remaining, sites[i:]...)
			break
		}

		o.mu.Lock()
		o.dispatched++
		o.mu.Unlock()

		wg.Add(1)
		go func(site Site) {
			defer wg.Done()
			defer sem.Release(1)

			outcome := o.Discover(ctx, site)

			resultMu.Lock()
			result.Outcomes = append(result.Outcomes, outcome)
			resultMu.Unlock()

			if outcome.IsRateLimited() {
				o.requestStop()
				return
			}

			// Hold the slot through the inter-request delay so the next
			// site's first fetch keeps the per-worker pacing.
			select {
			case <-ctx.Done():
			case <-time.After(o.requestDelay):
			}
		}(site)
	}

	wg.Wait()

	result.RateLimited = o.stopRequested()
	return result
}

// Dispatched returns how many sites were handed to workers.
func (o *Orchestrator) Dispatched() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dispatched
}

func (o *Orchestrator) stopRequested() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopped
}

func (o *Orchestrator) requestStop() {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()
}
