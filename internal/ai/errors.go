package ai

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited means the upstream asked us to slow down (HTTP 429) or a
	// local limiter refused the call.
	ErrRateLimited = errors.New("ai rate limit exceeded")
	// ErrCreditsExhausted means the upstream account is out of credits (HTTP 402).
	ErrCreditsExhausted = errors.New("ai credits exhausted")
	// ErrUnavailable covers transport failures, 5xx responses and an open
	// circuit breaker.
	ErrUnavailable = errors.New("ai provider unavailable")
	// ErrMalformedResponse means the upstream answered 200 with an unusable body.
	ErrMalformedResponse = errors.New("ai response malformed")
	// ErrNoProviders means nothing is registered with the router.
	ErrNoProviders = errors.New("no ai providers configured")
)

// StatusError is a non-200 answer from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, body)
}

// Unwrap maps well-known statuses onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode == http.StatusPaymentRequired:
		return ErrCreditsExhausted
	case e.StatusCode >= 500:
		return ErrUnavailable
	}
	return nil
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable reports whether err is worth retrying against the same provider.
func IsRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return errors.Is(err, ErrUnavailable)
}

func statusError(provider string, code int, body []byte) error {
	return &StatusError{Provider: provider, StatusCode: code, Body: string(body)}
}

func transportError(provider string, err error) error {
	return fmt.Errorf("%s request: %w: %w", provider, ErrUnavailable, err)
}
