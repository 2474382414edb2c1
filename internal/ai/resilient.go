package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
)

// ResilientConfig tunes the resilience wrapper around a provider.
type ResilientConfig struct {
	// MaxAttempts per call, including the first (default: 2).
	MaxAttempts int
	// InitialDelay between attempts (default: 500ms).
	InitialDelay time.Duration
	// MaxConcurrent calls in flight (default: 8).
	MaxConcurrent int
	// FailuresToTrip opens the breaker after this many consecutive failures (default: 3).
	FailuresToTrip int
	// OpenTimeout is how long the breaker stays open (default: 30s).
	OpenTimeout time.Duration
}

// DefaultResilientConfig returns the defaults used by the server.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		MaxAttempts:    2,
		InitialDelay:   500 * time.Millisecond,
		MaxConcurrent:  8,
		FailuresToTrip: 3,
		OpenTimeout:    30 * time.Second,
	}
}

func (c ResilientConfig) withDefaults() ResilientConfig {
	d := DefaultResilientConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.FailuresToTrip <= 0 {
		c.FailuresToTrip = d.FailuresToTrip
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	return c
}

// ResilientProvider wraps a provider with a circuit breaker, retries on
// retryable upstream errors and a concurrency limit.
type ResilientProvider struct {
	provider       Provider
	name           string
	circuitBreaker circuitbreaker.CircuitBreaker[CompletionResponse]
	retrier        retry.Retry[CompletionResponse]
	bulkhead       bulkhead.Bulkhead[CompletionResponse]
}

// NewResilientProvider wraps provider. name is used in logs.
func NewResilientProvider(name string, provider Provider, cfg ResilientConfig) *ResilientProvider {
	cfg = cfg.withDefaults()
	rp := &ResilientProvider{provider: provider, name: name}

	failuresToTrip := uint32(cfg.FailuresToTrip)
	rp.circuitBreaker = circuitbreaker.New[CompletionResponse](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    cfg.OpenTimeout,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failuresToTrip
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			slog.Warn("AI circuit breaker state change",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	rp.retrier = retry.New[CompletionResponse](retry.Config{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      10 * cfg.InitialDelay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   IsRetryable,
	})

	rp.bulkhead = bulkhead.New[CompletionResponse](bulkhead.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		MaxQueue:      cfg.MaxConcurrent * 2,
		QueueTimeout:  10 * time.Second,
	})

	return rp
}

func (p *ResilientProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var reached atomic.Bool
	operation := func(ctx context.Context) (CompletionResponse, error) {
		return p.bulkhead.Execute(ctx, func(ctx context.Context) (CompletionResponse, error) {
			reached.Store(true)
			return p.provider.Complete(ctx, req)
		})
	}

	resp, err := p.circuitBreaker.Execute(ctx, func(ctx context.Context) (CompletionResponse, error) {
		return p.retrier.Do(ctx, operation)
	})
	if err != nil && !reached.Load() && ctx.Err() == nil {
		// Refused by the breaker or the bulkhead before reaching upstream.
		return CompletionResponse{}, fmt.Errorf("%s: %w: %w", p.name, ErrUnavailable, err)
	}
	return resp, err
}

func (p *ResilientProvider) Models() []ModelInfo {
	return p.provider.Models()
}

func (p *ResilientProvider) HealthCheck(ctx context.Context) error {
	return p.provider.HealthCheck(ctx)
}
