package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/p-n-ai/studyflow/internal/progression"
)

// Messages surfaced to learners for the upstream conditions they can act on.
const (
	MsgRateLimited      = "Rate limit exceeded. Please try again in a moment."
	MsgCreditsExhausted = "AI credits exhausted. Please try again later."
	MsgBudgetExceeded   = "Daily generation budget used up. Please try again tomorrow."
)

// UpstreamError is a failed generation with a message fit for learners.
type UpstreamError struct {
	Op      string
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() []error {
	return []error{progression.ErrUpstreamGeneration, e.Err}
}

// Upstream wraps a failed generation. fallback is the message used when the
// learner cannot do anything about the cause.
func Upstream(op string, err error, fallback string) error {
	msg := fallback
	switch {
	case errors.Is(err, ErrRateLimited):
		msg = MsgRateLimited
	case errors.Is(err, ErrCreditsExhausted):
		msg = MsgCreditsExhausted
	case errors.Is(err, ErrBudgetExceeded):
		msg = MsgBudgetExceeded
	}
	return &UpstreamError{Op: op, Message: msg, Err: err}
}

// Guard meters completions per learner: a per-minute rate limit and the daily
// token budget. Both are optional.
type Guard struct {
	budget  BudgetChecker
	limiter ratelimit.RateLimiter
}

// NewGuard creates a Guard. A nil budget or a zero perMinute disables that
// check.
func NewGuard(budget BudgetChecker, perMinute int) *Guard {
	g := &Guard{budget: budget}
	if perMinute > 0 {
		g.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     perMinute,
			Burst:    perMinute,
			Interval: time.Minute,
		})
	}
	return g
}

// Admit returns ErrRateLimited or ErrBudgetExceeded when the learner may not
// call the provider now. A budget store that cannot be read does not block.
func (g *Guard) Admit(ctx context.Context, userID string) error {
	if g.limiter != nil && !g.limiter.Allow(ctx, userID) {
		return ErrRateLimited
	}
	if g.budget != nil {
		ok, err := g.budget.Check(ctx, userID)
		if err != nil {
			slog.Warn("AI budget check failed", "user_id", userID, "error", err)
		} else if !ok {
			return ErrBudgetExceeded
		}
	}
	return nil
}

// Record charges the tokens of resp to the learner.
func (g *Guard) Record(ctx context.Context, userID string, resp CompletionResponse) {
	if g.budget == nil {
		return
	}
	if err := g.budget.Record(ctx, userID, resp.TotalTokens()); err != nil {
		slog.Warn("AI budget record failed", "user_id", userID, "error", err)
	}
}

// Close releases the rate limiter.
func (g *Guard) Close() error {
	if g.limiter != nil {
		return g.limiter.Close()
	}
	return nil
}
