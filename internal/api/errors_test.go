package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClassifyStatus_Mapping tests the status-to-kind taxonomy
func TestClassifyStatus_Mapping(t *testing.T) {
	tests := []struct {
		status    int
		kind      ErrorKind
		retryable bool
	}{
		{400, KindInvalidRequest, false},
		{401, KindAuthentication, false},
		{403, KindAuthorization, false},
		{404, KindNotFound, false},
		{429, KindRateLimit, true},
		{500, KindExchangeServer, true},
		{502, KindExchangeServer, true},
		{503, KindExchangeServer, true},
	}

	for _, tt := range tests {
		err := ClassifyStatus(tt.status, nil, http.Header{})
		assert.Equal(t, tt.kind, err.Kind, "status %d", tt.status)
		assert.Equal(t, tt.retryable, err.Retryable(), "status %d", tt.status)
		assert.Equal(t, tt.status, err.StatusCode)
	}
}

// TestClassifyStatus_PayloadMessage tests message extraction from the body
func TestClassifyStatus_PayloadMessage(t *testing.T) {
	payload := map[string]interface{}{"message": "order size too small"}

	err := ClassifyStatus(400, payload, http.Header{})
	assert.Contains(t, err.Message, "order size too small")
}

// TestClassifyStatus_DomainCodes tests the 400 refinement from payload codes
func TestClassifyStatus_DomainCodes(t *testing.T) {
	tests := []struct {
		payload   map[string]interface{}
		kind      ErrorKind
		retryable bool
	}{
		{map[string]interface{}{"code": "INSUFFICIENT_FUNDS"}, KindInsufficientFunds, true},
		{map[string]interface{}{"message": "insufficient funds for order"}, KindInsufficientFunds, true},
		{map[string]interface{}{"code": "INVALID_SYMBOL"}, KindSymbol, false},
		{map[string]interface{}{"code": "INVALID_ORDER"}, KindOrder, false},
	}

	for _, tt := range tests {
		err := ClassifyStatus(400, tt.payload, http.Header{})
		assert.Equal(t, tt.kind, err.Kind)
		assert.Equal(t, tt.retryable, err.Retryable())
	}
}

// TestClassifyStatus_RetryAfter tests Retry-After extraction on 429
func TestClassifyStatus_RetryAfter(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "5")

	err := ClassifyStatus(429, nil, header)
	assert.Equal(t, KindRateLimit, err.Kind)
	assert.Equal(t, 5*time.Second, err.RetryAfter)
}

// TestClassifyStatus_MalformedRetryAfter tests that bad headers fall back to zero
func TestClassifyStatus_MalformedRetryAfter(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "soon")

	err := ClassifyStatus(429, nil, header)
	assert.Equal(t, time.Duration(0), err.RetryAfter)
}

// TestClassifyTransport_Timeout tests timeout detection
func TestClassifyTransport_Timeout(t *testing.T) {
	err := ClassifyTransport(&url.Error{
		Op:  "Get",
		URL: "https://example.com",
		Err: &timeoutError{},
	})

	assert.Equal(t, KindTimeout, err.Kind)
	assert.True(t, err.Retryable())
}

// TestClassifyTransport_Connection tests connect failure detection
func TestClassifyTransport_Connection(t *testing.T) {
	err := ClassifyTransport(&url.Error{
		Op:  "Get",
		URL: "https://example.com",
		Err: errors.New("connection refused"),
	})

	assert.Equal(t, KindConnection, err.Kind)
	assert.True(t, err.Retryable())
}

// TestClassifyTransport_Unknown tests that unknown faults default to retryable
func TestClassifyTransport_Unknown(t *testing.T) {
	err := ClassifyTransport(fmt.Errorf("something odd"))

	assert.Equal(t, KindUnclassified, err.Kind)
	assert.True(t, err.Retryable())
}

// TestRetryDelay_ExponentialBackoff tests the capped exponential schedule
func TestRetryDelay_ExponentialBackoff(t *testing.T) {
	serverErr := NewError(KindExchangeServer, "boom")

	tests := []struct {
		attempt int
		delay   time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.delay, RetryDelay(serverErr, tt.attempt, time.Second), "attempt %d", tt.attempt)
	}
}

// TestRetryDelay_Monotonic tests that delays never decrease with attempts
func TestRetryDelay_Monotonic(t *testing.T) {
	serverErr := NewError(KindExchangeServer, "boom")

	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		delay := RetryDelay(serverErr, attempt, time.Second)
		assert.GreaterOrEqual(t, delay, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, 30*time.Second)
		prev = delay
	}
}

// TestRetryDelay_HonorsRetryAfter tests that the server hint beats backoff
func TestRetryDelay_HonorsRetryAfter(t *testing.T) {
	rateErr := &Error{Kind: KindRateLimit, RetryAfter: 5 * time.Second}

	assert.Equal(t, 5*time.Second, RetryDelay(rateErr, 1, time.Second))
	assert.Equal(t, 5*time.Second, RetryDelay(rateErr, 4, time.Second))
}

// TestRetryDelay_RateLimitWithoutHint tests the backoff fallback on 429
func TestRetryDelay_RateLimitWithoutHint(t *testing.T) {
	rateErr := &Error{Kind: KindRateLimit}

	assert.Equal(t, 2*time.Second, RetryDelay(rateErr, 2, time.Second))
}

// TestIsRetryable_Predicates tests the error helper predicates
func TestIsRetryable_Predicates(t *testing.T) {
	assert.True(t, IsRetryable(NewError(KindConnection, "x")))
	assert.False(t, IsRetryable(NewError(KindAuthentication, "x")))
	assert.True(t, IsRetryable(errors.New("plain error")))

	assert.True(t, IsRateLimit(&Error{Kind: KindRateLimit}))
	assert.False(t, IsRateLimit(NewError(KindTimeout, "x")))

	assert.True(t, IsAuthentication(NewError(KindAuthentication, "x")))
	assert.True(t, IsNotFound(NewError(KindNotFound, "x")))
}

// TestError_Unwrap tests error chain compatibility
func TestError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &Error{Kind: KindConnection, Message: "outer", Err: inner}

	assert.ErrorIs(t, err, inner)

	var apiErr *Error
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &apiErr))
	assert.Equal(t, KindConnection, apiErr.Kind)
}

// timeoutError implements net.Error for tests
type timeoutError struct{}

func (timeoutError) Error() string   { return "timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
