package progression

import (
	"context"
	"errors"
)

// Sentinel errors shared by every layer that touches learner progress.
// Callers wrap them with fmt.Errorf("...: %w", ...) and classify with KindOf.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyCompleted   = errors.New("topic already completed")
	ErrTransient          = errors.New("transient backend failure")
	ErrUpstreamGeneration = errors.New("upstream generation failure")
	ErrValidation         = errors.New("validation failed")
)

// Kind is the failure category surfaced to the presentation layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyCompleted
	KindTransient
	KindUpstreamGeneration
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyCompleted:
		return "already_completed"
	case KindTransient:
		return "transient_backend_failure"
	case KindUpstreamGeneration:
		return "upstream_generation_failure"
	case KindValidation:
		return "validation_failure"
	default:
		return "unknown"
	}
}

// KindOf classifies err. A context deadline is treated as transient.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrAlreadyCompleted):
		return KindAlreadyCompleted
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUpstreamGeneration):
		return KindUpstreamGeneration
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether a read that failed with err may be retried as is.
// Writes must go through their idempotency check before any retry.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
