// Package httpclient provides a retrying HTTP client shared by the LLM
// providers and the search engines. Retries follow a per-status strategy:
// rate limits wait out the Retry-After hint, transient server errors get a
// couple of quick retries, everything else fails fast with a classified
// error.
package httpclient

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	ConservativeRetry
	SmartRetry
)

// RateLimitInfo carries whatever the server told us about when to come back.
type RateLimitInfo struct {
	RetryAfter time.Duration
	ResetTime  int64
}

type RateLimitHeaderParser func(http.Header) RateLimitInfo

type RetryStrategyFunc func(statusCode int) RetryStrategy

type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	headerParser RateLimitHeaderParser
	strategyFunc RetryStrategyFunc
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func WithHeaderParser(parser RateLimitHeaderParser) Option {
	return func(c *Client) {
		c.headerParser = parser
	}
}

func WithRetryStrategy(strategyFunc RetryStrategyFunc) Option {
	return func(c *Client) {
		c.strategyFunc = strategyFunc
	}
}

func New(opts ...Option) *Client {
	client := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		maxRetries:   5,
		baseDelay:    2 * time.Second,
		headerParser: ParseRetryHeaders,
		strategyFunc: DefaultRetryStrategy,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// ParseRetryHeaders reads the standard Retry-After header plus the
// x-ratelimit-reset variants some providers use.
func ParseRetryHeaders(header http.Header) RateLimitInfo {
	var info RateLimitInfo
	if v := header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.ParseFloat(v, 64); err == nil {
			info.RetryAfter = time.Duration(seconds * float64(time.Second))
		} else if at, err := http.ParseTime(v); err == nil {
			info.RetryAfter = time.Until(at)
		}
	}
	if v := header.Get("X-Ratelimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			info.ResetTime = unix
		}
	}
	return info
}

// Do executes the request, retrying per the configured strategy. On final
// failure the returned error is a *StatusError classified by KindOf, so
// callers can switch on the failure kind without inspecting status codes.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, strategy, retryInfo, err := c.attemptRequest(req)
		if err == nil {
			return resp, nil
		}
		if strategy == NoRetry {
			return resp, err
		}

		delay := c.calculateDelay(strategy, attempt, retryInfo)
		if attempt >= c.maxRetries || delay <= 0 {
			if se, ok := err.(*StatusError); ok {
				se.Message = fmt.Sprintf("max retries (%d) exceeded", c.maxRetries)
				se.RetryAfter = delay
			}
			return resp, err
		}

		if resp != nil {
			drainAndClose(resp)
		}
		slog.DebugContext(ctx, "retrying request",
			"url", req.URL.String(),
			"status", statusOf(resp),
			"delay", delay,
			"attempt", attempt+1)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, &StatusError{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("max retries exceeded after %d attempts", c.maxRetries),
	}
}

func (c *Client) attemptRequest(req *http.Request) (*http.Response, RetryStrategy, RateLimitInfo, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, NoRetry, RateLimitInfo{}, err
		}
		// Connection-level failures are worth a couple of retries.
		return nil, ConservativeRetry, RateLimitInfo{}, &StatusError{
			Kind:    KindTransient,
			Message: err.Error(),
			Err:     err,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, NoRetry, RateLimitInfo{}, nil
	}

	var retryInfo RateLimitInfo
	if c.headerParser != nil {
		retryInfo = c.headerParser(resp.Header)
	}

	strategy := c.strategyFunc(resp.StatusCode)
	statusErr := &StatusError{
		Kind:       KindOf(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
		RetryAfter: retryInfo.RetryAfter,
	}
	return resp, strategy, retryInfo, statusErr
}

func (c *Client) calculateDelay(strategy RetryStrategy, attempt int, retryInfo RateLimitInfo) time.Duration {
	switch strategy {
	case SmartRetry:
		if retryInfo.RetryAfter > 0 {
			return retryInfo.RetryAfter
		}
		if retryInfo.ResetTime > 0 {
			if delay := time.Until(time.Unix(retryInfo.ResetTime, 0)); delay > 0 {
				return delay
			}
		}
		exponentialDelay := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		jitter := time.Duration(rand.Float64() * 0.25 * float64(exponentialDelay))
		return exponentialDelay + jitter

	case ConservativeRetry:
		if attempt >= 2 {
			return 0
		}
		return time.Duration(2+attempt) * time.Second

	default:
		return 0
	}
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func drainAndClose(resp *http.Response) {
	if resp.Body != nil {
		resp.Body.Close()
	}
}
