package failure

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusNotFound, KindNotFound},
		{http.StatusForbidden, KindAccessForbidden},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusNotAcceptable, KindRateLimited},
		{http.StatusInternalServerError, KindServerError},
		{http.StatusBadGateway, KindServerError},
		{http.StatusServiceUnavailable, KindServerError},
		{http.StatusGatewayTimeout, KindServerError},
		{http.StatusTeapot, KindUnexpectedError},
		{http.StatusBadRequest, KindUnexpectedError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyStatus(tt.status), "status %d", tt.status)
	}
}

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "i/o timeout" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

func TestClassifyError_Timeout(t *testing.T) {
	assert.Equal(t, KindTimeout, ClassifyError(context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, ClassifyError(fakeTimeoutError{}))
	assert.Equal(t, KindTimeout, ClassifyError(&url.Error{Op: "Get", URL: "http://x", Err: fakeTimeoutError{}}))
}

func TestClassifyError_Connection(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	assert.Equal(t, KindConnectionError, ClassifyError(opErr))
	assert.Equal(t, KindConnectionError, ClassifyError(&url.Error{Op: "Get", URL: "http://x", Err: opErr}))
}

func TestClassifyError_Unknown(t *testing.T) {
	assert.Equal(t, KindUnexpectedError, ClassifyError(errors.New("something odd")))
	assert.Equal(t, KindUnexpectedError, ClassifyError(nil))
}

func TestKindRetryable(t *testing.T) {
	retryable := []Kind{KindTimeout, KindConnectionError, KindRateLimited, KindServerError, KindUnexpectedError}
	for _, k := range retryable {
		assert.True(t, k.Retryable(), "%s should be retryable", k)
	}

	permanent := []Kind{KindNotFound, KindAccessForbidden, KindParseError, KindRetriesExhausted}
	for _, k := range permanent {
		assert.False(t, k.Retryable(), "%s should be permanent", k)
	}
}

func TestDetectRateLimit_Status429(t *testing.T) {
	sig := DetectRateLimit(http.StatusTooManyRequests, http.Header{}, "")
	assert.NotNil(t, sig)
	assert.Equal(t, http.StatusTooManyRequests, sig.Status)
	assert.Equal(t, DefaultRateLimitCooldown, sig.Cooldown)
	assert.False(t, sig.FromHeader)
}

func TestDetectRateLimit_Status406(t *testing.T) {
	sig := DetectRateLimit(http.StatusNotAcceptable, http.Header{}, "")
	assert.NotNil(t, sig)
}

func TestDetectRateLimit_403WithPhrase(t *testing.T) {
	sig := DetectRateLimit(http.StatusForbidden, http.Header{}, "<html>Too Many Requests from your network</html>")
	assert.NotNil(t, sig)

	sig = DetectRateLimit(http.StatusForbidden, http.Header{}, "<html>You hit our rate limit</html>")
	assert.NotNil(t, sig)
}

func TestDetectRateLimit_403WithoutPhrase(t *testing.T) {
	sig := DetectRateLimit(http.StatusForbidden, http.Header{}, "<html>Access denied</html>")
	assert.Nil(t, sig)
}

func TestDetectRateLimit_403WithRetryAfter(t *testing.T) {
	// The body gives no hint, but Retry-After marks the 403 as
	// throttling, not a genuine access denial.
	header := http.Header{}
	header.Set("Retry-After", "60")

	sig := DetectRateLimit(http.StatusForbidden, header, "<html>Access denied</html>")
	require.NotNil(t, sig)
	assert.Equal(t, http.StatusForbidden, sig.Status)
	assert.Equal(t, time.Minute, sig.Cooldown)
	assert.True(t, sig.FromHeader)
}

func TestDetectRateLimit_RetryAfterSeconds(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "120")

	sig := DetectRateLimit(http.StatusOK, header, "")
	assert.NotNil(t, sig)
	assert.Equal(t, 2*time.Minute, sig.Cooldown)
	assert.True(t, sig.FromHeader)
}

func TestDetectRateLimit_RemainingZero(t *testing.T) {
	header := http.Header{}
	header.Set("X-RateLimit-Remaining", "0")

	sig := DetectRateLimit(http.StatusOK, header, "")
	assert.NotNil(t, sig)
	assert.Equal(t, DefaultRateLimitCooldown, sig.Cooldown)
}

func TestDetectRateLimit_CleanResponse(t *testing.T) {
	header := http.Header{}
	header.Set("X-RateLimit-Remaining", "57")

	assert.Nil(t, DetectRateLimit(http.StatusOK, header, "<html>jobs</html>"))
}
