package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ducminhle1904/crypto-trading-core/internal/monitoring"
	"github.com/ducminhle1904/crypto-trading-core/internal/ratelimit"
)

// TransportResponse is the raw result of one transport call.
type TransportResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
}

// Transport performs a single HTTP exchange. Implementations fail only for
// true transport-layer faults (DNS, connect refusal, timeout); any HTTP
// status is a successful transport call.
type Transport interface {
	Do(ctx context.Context, method, url string, header http.Header, body []byte) (*TransportResponse, error)
}

// Signer adds authentication headers to an outgoing request.
type Signer interface {
	Sign(method, url string, body []byte) (http.Header, error)
}

// HTTPTransport implements Transport over net/http with a per-request
// timeout independent of the caller's retry budget.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport with the given per-request timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Do(ctx context.Context, method, url string, header http.Header, body []byte) (*TransportResponse, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &TransportResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Elapsed:    time.Since(start),
	}, nil
}

// Response is a successful (2xx) request outcome.
type Response struct {
	Status  int
	Header  http.Header
	Data    interface{} // decoded body when the content type is JSON
	Text    string      // raw body otherwise
	Raw     []byte
	Elapsed time.Duration
	Waited  time.Duration // time spent waiting for rate limit tokens
}

// JSONMap returns the decoded body as an object, or nil when the body was
// not a JSON object.
func (r *Response) JSONMap() map[string]interface{} {
	m, _ := r.Data.(map[string]interface{})
	return m
}

// Executor issues rate-limited, retried requests against the brokerage API.
// It owns all retry and backoff decisions: callers receive either a 2xx
// Response or a classified *Error, never a raw transport fault.
type Executor struct {
	transport   Transport
	limiter     *ratelimit.Limiter
	signer      Signer
	maxRetries  int
	baseBackoff time.Duration
	headers     http.Header
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithSigner attaches a request signer applied to every request.
func WithSigner(s Signer) ExecutorOption {
	return func(e *Executor) { e.signer = s }
}

// WithMaxRetries overrides the retry budget (default 3).
func WithMaxRetries(n int) ExecutorOption {
	return func(e *Executor) { e.maxRetries = n }
}

// WithBaseBackoff overrides the first retry delay (default 1s).
func WithBaseBackoff(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.baseBackoff = d }
}

// WithHeader adds a default header sent with every request.
func WithHeader(key, value string) ExecutorOption {
	return func(e *Executor) { e.headers.Set(key, value) }
}

// NewExecutor creates an executor. A nil transport or limiter is a
// programming error and rejected up front.
func NewExecutor(transport Transport, limiter *ratelimit.Limiter, opts ...ExecutorOption) (*Executor, error) {
	if transport == nil {
		return nil, fmt.Errorf("executor requires a transport")
	}
	if limiter == nil {
		return nil, fmt.Errorf("executor requires a rate limiter")
	}

	e := &Executor{
		transport:   transport,
		limiter:     limiter,
		maxRetries:  3,
		baseBackoff: time.Second,
		headers:     http.Header{},
	}
	e.headers.Set("Content-Type", "application/json")
	e.headers.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute performs one logical request against the named rate limit bucket.
// It waits for tokens, performs the call, classifies failures and retries
// retryable ones with capped exponential backoff. HTTP 429 honors the
// server's Retry-After when present.
func (e *Executor) Execute(ctx context.Context, method, url string, body []byte, bucket string) (*Response, error) {
	cost := ratelimit.CostForRequest(method, url)

	var waited time.Duration
	var lastErr *Error

	for attempt := 1; attempt <= e.maxRetries+1; attempt++ {
		wait, err := e.limiter.Wait(ctx, bucket, cost)
		waited += wait
		if err != nil {
			return nil, &Error{Kind: KindConnection, Message: "request cancelled: " + err.Error(), Err: err}
		}
		if wait > 0 {
			monitoring.ObserveRateLimitWait(bucket, wait.Seconds())
			log.Printf("rate limited %s before %s %s", wait, method, url)
		}

		resp, aerr := e.doAttempt(ctx, method, url, body)
		if aerr == nil {
			resp.Waited = waited
			monitoring.RecordRequest(bucket, "success")
			return resp, nil
		}

		lastErr = aerr
		if attempt > e.maxRetries || !aerr.Retryable() {
			break
		}

		delay := RetryDelay(aerr, attempt, e.baseBackoff)
		monitoring.RecordRetry(string(aerr.Kind))
		log.Printf("request failed, retrying in %s: %v (attempt %d/%d)", delay, aerr, attempt, e.maxRetries)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &Error{Kind: KindConnection, Message: "retry cancelled: " + ctx.Err().Error(), Err: ctx.Err()}
		case <-timer.C:
		}
	}

	monitoring.RecordRequest(bucket, string(lastErr.Kind))
	return nil, lastErr
}

// doAttempt performs a single transport call and classifies the outcome.
func (e *Executor) doAttempt(ctx context.Context, method, url string, body []byte) (*Response, *Error) {
	header, err := e.requestHeaders(method, url, body)
	if err != nil {
		return nil, &Error{
			Kind:    KindAuthentication,
			Message: "failed to sign request: " + err.Error(),
			Err:     err,
		}
	}

	resp, err := e.transport.Do(ctx, method, url, header, body)
	if err != nil {
		return nil, ClassifyTransport(err)
	}

	if resp.StatusCode >= 400 {
		var payload map[string]interface{}
		_ = json.Unmarshal(resp.Body, &payload)
		return nil, ClassifyStatus(resp.StatusCode, payload, resp.Header)
	}

	out := &Response{
		Status:  resp.StatusCode,
		Header:  resp.Header,
		Raw:     resp.Body,
		Elapsed: resp.Elapsed,
	}

	if isJSON(resp.Header.Get("Content-Type")) {
		if err := json.Unmarshal(resp.Body, &out.Data); err != nil {
			return nil, &Error{
				Kind:       KindUnclassified,
				StatusCode: resp.StatusCode,
				Message:    "failed to parse response body: " + err.Error(),
				Err:        err,
			}
		}
	} else {
		out.Text = string(resp.Body)
	}

	return out, nil
}

func (e *Executor) requestHeaders(method, url string, body []byte) (http.Header, error) {
	header := http.Header{}
	for key, values := range e.headers {
		for _, value := range values {
			header.Add(key, value)
		}
	}

	if e.signer != nil {
		signed, err := e.signer.Sign(method, url, body)
		if err != nil {
			return nil, err
		}
		for key, values := range signed {
			for _, value := range values {
				header.Set(key, value)
			}
		}
	}
	return header, nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
