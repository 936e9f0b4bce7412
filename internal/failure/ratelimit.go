package failure

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRateLimitCooldown is the recommended wait when the server
// gives no Retry-After hint.
const DefaultRateLimitCooldown = 30 * time.Minute

// rateLimitPhrases are body fragments that mark a 403 as throttling
// rather than a genuine access denial.
var rateLimitPhrases = []string{
	"too many requests",
	"rate limit",
}

// RateLimitSignal describes a detected throttling response.
type RateLimitSignal struct {
	Status   int
	Cooldown time.Duration
	// FromHeader is true when the cooldown came from a Retry-After
	// header rather than the fixed default.
	FromHeader bool
}

// DetectRateLimit inspects a response and reports whether it signals
// throttling. It is pure classification; the caller decides how to act.
// Rules, in order:
//  1. Status 429 (or 406, the Avature variant) is a definite signal.
//  2. Status 403 whose body contains a known rate-limit phrase.
//  3. A parseable Retry-After header, or X-RateLimit-Remaining of 0.
func DetectRateLimit(status int, header http.Header, body string) *RateLimitSignal {
	cooldown, fromHeader := retryAfter(header)

	if status == http.StatusTooManyRequests || status == http.StatusNotAcceptable {
		return &RateLimitSignal{Status: status, Cooldown: cooldown, FromHeader: fromHeader}
	}

	if status == http.StatusForbidden {
		lower := strings.ToLower(body)
		for _, phrase := range rateLimitPhrases {
			if strings.Contains(lower, phrase) {
				return &RateLimitSignal{Status: status, Cooldown: cooldown, FromHeader: fromHeader}
			}
		}
	}

	// The header rule applies regardless of status: a 403 without the
	// phrases but carrying Retry-After is still throttling.
	if fromHeader || header.Get("X-RateLimit-Remaining") == "0" {
		return &RateLimitSignal{Status: status, Cooldown: cooldown, FromHeader: fromHeader}
	}

	return nil
}

// retryAfter parses a Retry-After header as delta-seconds or an HTTP
// date. Returns the default cooldown when absent or unparseable.
func retryAfter(header http.Header) (time.Duration, bool) {
	raw := header.Get("Retry-After")
	if raw == "" {
		return DefaultRateLimitCooldown, false
	}

	if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}

	if at, err := http.ParseTime(raw); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait, true
		}
		return 0, true
	}

	return DefaultRateLimitCooldown, false
}
