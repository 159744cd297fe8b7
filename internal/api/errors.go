package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a failed request into the retry taxonomy.
type ErrorKind string

const (
	KindConnection        ErrorKind = "CONNECTION"
	KindTimeout           ErrorKind = "TIMEOUT"
	KindRateLimit         ErrorKind = "RATE_LIMIT"
	KindAuthentication    ErrorKind = "AUTHENTICATION"
	KindAuthorization     ErrorKind = "AUTHORIZATION"
	KindInvalidRequest    ErrorKind = "INVALID_REQUEST"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindExchangeServer    ErrorKind = "EXCHANGE_SERVER"
	KindInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	KindOrder             ErrorKind = "ORDER"
	KindSymbol            ErrorKind = "SYMBOL"
	KindUnclassified      ErrorKind = "UNCLASSIFIED"
)

// Error is the typed outcome of a failed brokerage request. Callers never
// see raw transport errors or HTTP status handling; they match on Kind.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration // server-provided retry hint, zero when absent
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("api error [%s]: %s (status %d)", e.Kind, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("api error [%s]: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the request that produced this error may be
// safely reissued. Insufficient funds is treated as possibly transient,
// and unknown errors default to retryable.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindConnection, KindTimeout, KindRateLimit, KindExchangeServer,
		KindInsufficientFunds, KindUnclassified:
		return true
	case KindAuthentication, KindAuthorization, KindInvalidRequest,
		KindNotFound, KindOrder, KindSymbol:
		return false
	default:
		return true
	}
}

// NewError creates an error with the given kind and message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// IsRetryable reports whether err is a retryable api error. Non-api errors
// are considered retryable so that unexpected faults don't stall the client.
func IsRetryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

// IsRateLimit reports whether err represents an HTTP 429.
func IsRateLimit(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindRateLimit
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindAuthentication
}

// IsNotFound reports whether err is a missing-resource failure.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindNotFound
}

// ClassifyStatus maps a non-2xx HTTP response to a typed error. The message
// is taken from the response payload when it carries one.
func ClassifyStatus(status int, payload map[string]interface{}, header http.Header) *Error {
	message := payloadMessage(payload, fmt.Sprintf("HTTP %d", status))

	switch {
	case status == http.StatusBadRequest:
		if kind := payloadKind(payload, message); kind != "" {
			return &Error{Kind: kind, StatusCode: status, Message: message}
		}
		return &Error{Kind: KindInvalidRequest, StatusCode: status, Message: message}
	case status == http.StatusUnauthorized:
		return &Error{Kind: KindAuthentication, StatusCode: status, Message: message}
	case status == http.StatusForbidden:
		return &Error{Kind: KindAuthorization, StatusCode: status, Message: message}
	case status == http.StatusNotFound:
		return &Error{Kind: KindNotFound, StatusCode: status, Message: message}
	case status == http.StatusTooManyRequests:
		return &Error{
			Kind:       KindRateLimit,
			StatusCode: status,
			RetryAfter: parseRetryAfter(header),
			Message:    message,
		}
	case status >= 500 && status < 600:
		return &Error{Kind: KindExchangeServer, StatusCode: status, Message: "server error: " + message}
	default:
		return &Error{Kind: KindUnclassified, StatusCode: status, Message: message}
	}
}

// ClassifyTransport maps a transport-level fault (DNS, connect, timeout)
// to a typed error.
func ClassifyTransport(err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timeout: " + err.Error(), Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return &Error{Kind: KindTimeout, Message: "request timeout: " + err.Error(), Err: err}
		}
		return &Error{Kind: KindConnection, Message: "connection error: " + err.Error(), Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindConnection, Message: "connection error: " + err.Error(), Err: err}
	}

	return &Error{Kind: KindUnclassified, Message: err.Error(), Err: err}
}

// Domain error codes some brokerages return inside a 400 payload.
const (
	codeInsufficientFunds = "INSUFFICIENT_FUNDS"
	codeInvalidSymbol     = "INVALID_SYMBOL"
	codeInvalidOrder      = "INVALID_ORDER"
)

// payloadKind inspects a response payload for domain-specific error codes
// that refine the status-based classification.
func payloadKind(payload map[string]interface{}, message string) ErrorKind {
	code, _ := payload["code"].(string)
	lower := strings.ToLower(message)

	switch {
	case code == codeInsufficientFunds || strings.Contains(lower, "insufficient funds"):
		return KindInsufficientFunds
	case code == codeInvalidSymbol || (strings.Contains(lower, "symbol") && strings.Contains(lower, "not found")):
		return KindSymbol
	case code == codeInvalidOrder || (strings.Contains(lower, "order") && strings.Contains(lower, "invalid")):
		return KindOrder
	}
	return ""
}

func payloadMessage(payload map[string]interface{}, fallback string) string {
	for _, key := range []string{"message", "error", "msg"} {
		if msg, ok := payload[key].(string); ok && msg != "" {
			return msg
		}
	}
	return fallback
}

// parseRetryAfter reads an integer-seconds Retry-After header. Malformed
// or absent values yield zero, which callers treat as "use backoff".
func parseRetryAfter(header http.Header) time.Duration {
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// RetryDelay computes the sleep before the next attempt. A server-provided
// Retry-After is honored verbatim; otherwise exponential backoff from base,
// capped at maxBackoff. attempt is 1-based.
func RetryDelay(err error, attempt int, base time.Duration) time.Duration {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Kind == KindRateLimit && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}

	if !IsRetryable(err) {
		return 0
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// maxBackoff caps exponential retry delays.
const maxBackoff = 30 * time.Second
