package progression_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/p-n-ai/studyflow/internal/progression"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want progression.Kind
	}{
		{nil, progression.KindUnknown},
		{errors.New("boom"), progression.KindUnknown},
		{fmt.Errorf("get topic: %w", progression.ErrNotFound), progression.KindNotFound},
		{fmt.Errorf("complete: %w", progression.ErrAlreadyCompleted), progression.KindAlreadyCompleted},
		{fmt.Errorf("query: %w", progression.ErrTransient), progression.KindTransient},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), progression.KindTransient},
		{fmt.Errorf("generate: %w", progression.ErrUpstreamGeneration), progression.KindUpstreamGeneration},
		{fmt.Errorf("create: %w", progression.ErrValidation), progression.KindValidation},
	}
	for _, tt := range tests {
		if got := progression.KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !progression.IsRetryable(fmt.Errorf("x: %w", progression.ErrTransient)) {
		t.Error("transient errors should be retryable")
	}
	if progression.IsRetryable(progression.ErrNotFound) {
		t.Error("not found should not be retryable")
	}
}
