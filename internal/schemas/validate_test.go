package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRetryRecord_Valid(t *testing.T) {
	line := `{
		"career_url": "https://acme.avature.net/careers",
		"company": "Acme",
		"error_type": "timeout",
		"error_message": "request timed out after 15s",
		"http_status": null,
		"attempts": 1,
		"timestamp": "2026-08-20T14:03:00Z",
		"next_retry_at": "2026-08-20T14:08:00Z"
	}`

	assert.NoError(t, ValidateRetryRecord(line))
}

func TestValidateRetryRecord_ValidWithStatus(t *testing.T) {
	line := `{
		"career_url": "https://acme.avature.net/careers",
		"company": "Acme",
		"error_type": "server_error",
		"error_message": "HTTP 503",
		"http_status": 503,
		"attempts": 2,
		"timestamp": "2026-08-20T14:03:00Z",
		"next_retry_at": "2026-08-20T14:13:00Z"
	}`

	assert.NoError(t, ValidateRetryRecord(line))
}

func TestValidateRetryRecord_MissingFields(t *testing.T) {
	line := `{"career_url": "https://acme.avature.net/careers"}`

	err := ValidateRetryRecord(line)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.NotEmpty(t, verr.Errors)
}

func TestValidateRetryRecord_UnknownErrorType(t *testing.T) {
	line := `{
		"career_url": "https://acme.avature.net/careers",
		"company": "Acme",
		"error_type": "flaky",
		"error_message": "something",
		"attempts": 1,
		"timestamp": "2026-08-20T14:03:00Z",
		"next_retry_at": "2026-08-20T14:08:00Z"
	}`

	var verr *ValidationError
	require.True(t, errors.As(ValidateRetryRecord(line), &verr))
}

func TestValidateRetryRecord_NonHTTPURL(t *testing.T) {
	line := `{
		"career_url": "ftp://acme.example.com/careers",
		"company": "Acme",
		"error_type": "timeout",
		"error_message": "request timed out",
		"attempts": 1,
		"timestamp": "2026-08-20T14:03:00Z",
		"next_retry_at": "2026-08-20T14:08:00Z"
	}`

	assert.Error(t, ValidateRetryRecord(line))
}

func TestValidateJSONString_MalformedSchema(t *testing.T) {
	err := ValidateJSONString("{not json", "{}")
	require.Error(t, err)

	var lerr *SchemaLoadError
	assert.True(t, errors.As(err, &lerr))
}
