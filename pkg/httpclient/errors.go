package httpclient

import (
	"fmt"
	"time"
)

// Kind classifies a failed request by how the caller should react.
type Kind int

const (
	// KindUnknown covers failures with no better classification.
	KindUnknown Kind = iota
	// KindRateLimit means the server asked us to slow down (429).
	KindRateLimit
	// KindTransient covers 5xx responses and dropped connections; the
	// request may succeed if repeated.
	KindTransient
	// KindTimeout means the request or its retry budget timed out.
	KindTimeout
	// KindBadRequest means the request itself is malformed (4xx other
	// than auth); retrying is pointless.
	KindBadRequest
	// KindAuth means credentials were rejected (401/403).
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	case KindBadRequest:
		return "bad_request"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Retryable reports whether a request failing with this kind is worth
// repeating.
func (k Kind) Retryable() bool {
	return k == KindRateLimit || k == KindTransient || k == KindTimeout
}

// StatusError is a non-2xx response after the client has exhausted whatever
// retries the status allowed.
type StatusError struct {
	Kind       Kind
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *StatusError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("HTTP %d (%s): %s (retry after %v)", e.StatusCode, e.Kind, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("HTTP %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// KindOf classifies an HTTP status code.
func KindOf(statusCode int) Kind {
	switch {
	case statusCode == 429:
		return KindRateLimit
	case statusCode == 401 || statusCode == 403:
		return KindAuth
	case statusCode == 408 || statusCode == 504:
		return KindTimeout
	case statusCode >= 500:
		return KindTransient
	case statusCode >= 400:
		return KindBadRequest
	default:
		return KindUnknown
	}
}
