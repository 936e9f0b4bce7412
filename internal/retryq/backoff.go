// Package retryq provides the durable retry queue for failed discovery
// and extraction work: exponential backoff scheduling, attempt
// accounting, and the JSON Lines retry-file format shared with the
// downstream detail scraper.
package retryq

import (
	"time"

	"github.com/jonathan/job-harvester/internal/failure"
)

// backoffSteps anchors the exponential schedule: 5, 10, 20, 40, 80
// minutes. Attempts beyond the last step reuse it.
var backoffSteps = []time.Duration{
	5 * time.Minute,
	10 * time.Minute,
	20 * time.Minute,
	40 * time.Minute,
	80 * time.Minute,
}

// DefaultMaxAttempts is the retry budget before a record converts to a
// permanent retries_exhausted failure.
const DefaultMaxAttempts = 3

// Backoff returns the wait before retry attempt n (1-based). It is a
// pure function so the schedule is independently testable.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(backoffSteps) {
		attempt = len(backoffSteps)
	}
	return backoffSteps[attempt-1]
}

// Delay returns the wait before the next retry for the given failure
// kind. Rate-limited work uses the fixed cooldown instead of the
// exponential schedule; a positive hint (from Retry-After) overrides
// the default cooldown.
func Delay(kind failure.Kind, attempt int, cooldownHint time.Duration) time.Duration {
	if kind == failure.KindRateLimited {
		if cooldownHint > 0 {
			return cooldownHint
		}
		return failure.DefaultRateLimitCooldown
	}
	return Backoff(attempt)
}
