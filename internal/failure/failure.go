// Package failure provides the closed failure taxonomy shared by the
// discovery pipeline and the job-detail scraper, plus deterministic
// classification of HTTP statuses and transport errors into it.
package failure

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
)

// Kind is a closed classification of a fetch or parse failure.
type Kind string

const (
	// KindTimeout is a request that exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindConnectionError is a network-level failure before any response.
	KindConnectionError Kind = "connection_error"
	// KindParseError is a malformed or unusable response body.
	KindParseError Kind = "parse_error"
	// KindNotFound is an HTTP 404 (resource removed or never existed).
	KindNotFound Kind = "not_found"
	// KindAccessForbidden is an HTTP 403 without rate-limit phrasing.
	KindAccessForbidden Kind = "access_forbidden"
	// KindRateLimited is server-side throttling (429, 406, or 403 with
	// rate-limit phrasing).
	KindRateLimited Kind = "rate_limited"
	// KindServerError is an HTTP 5xx.
	KindServerError Kind = "server_error"
	// KindUnexpectedError is the default arm for unrecognized conditions.
	KindUnexpectedError Kind = "unexpected_error"
	// KindRetriesExhausted marks a record that used up its retry budget.
	KindRetriesExhausted Kind = "retries_exhausted"
)

// Retryable reports whether a later attempt can plausibly succeed.
// Unrecognized kinds default to retryable: retrying is safer than
// silently dropping work.
func (k Kind) Retryable() bool {
	switch k {
	case KindNotFound, KindAccessForbidden, KindParseError, KindRetriesExhausted:
		return false
	default:
		return true
	}
}

// ClassifyStatus maps an HTTP status code to a failure kind.
// 406 is grouped with 429: Avature tenants answer 406 when throttling.
func ClassifyStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusForbidden:
		return KindAccessForbidden
	case status == http.StatusTooManyRequests || status == http.StatusNotAcceptable:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	default:
		return KindUnexpectedError
	}
}

// ClassifyError maps a transport or parse error to a failure kind.
func ClassifyError(err error) Kind {
	if err == nil {
		return KindUnexpectedError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return KindTimeout
		}
		return KindConnectionError
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnectionError
	}

	return KindUnexpectedError
}
