package ai_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/p-n-ai/studyflow/internal/ai"
)

func fastConfig() ai.ResilientConfig {
	return ai.ResilientConfig{
		MaxAttempts:    2,
		InitialDelay:   time.Millisecond,
		MaxConcurrent:  2,
		FailuresToTrip: 2,
		OpenTimeout:    time.Minute,
	}
}

func TestResilientProvider_PassesThrough(t *testing.T) {
	mock := ai.NewMockProvider("ok")
	rp := ai.NewResilientProvider("mock", mock, fastConfig())

	resp, err := rp.Complete(context.Background(), ai.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "ok" || mock.Calls() != 1 {
		t.Errorf("Content = %q after %d calls", resp.Content, mock.Calls())
	}
	if len(rp.Models()) == 0 {
		t.Error("Models() should delegate")
	}
}

func TestResilientProvider_RetriesUnavailable(t *testing.T) {
	mock := &ai.MockProvider{Err: fmt.Errorf("upstream: %w", ai.ErrUnavailable)}
	rp := ai.NewResilientProvider("mock", mock, fastConfig())

	_, err := rp.Complete(context.Background(), ai.CompletionRequest{})
	if !errors.Is(err, ai.ErrUnavailable) {
		t.Fatalf("Complete() error = %v, want ErrUnavailable", err)
	}
	if mock.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2 attempts", mock.Calls())
	}
}

func TestResilientProvider_DoesNotRetryMalformed(t *testing.T) {
	mock := &ai.MockProvider{Err: fmt.Errorf("upstream: %w", ai.ErrMalformedResponse)}
	rp := ai.NewResilientProvider("mock", mock, fastConfig())

	_, err := rp.Complete(context.Background(), ai.CompletionRequest{})
	if !errors.Is(err, ai.ErrMalformedResponse) {
		t.Fatalf("Complete() error = %v, want ErrMalformedResponse", err)
	}
	if mock.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", mock.Calls())
	}
}

func TestResilientProvider_BreakerOpens(t *testing.T) {
	mock := &ai.MockProvider{Err: errors.New("boom")}
	rp := ai.NewResilientProvider("mock", mock, fastConfig())

	for i := 0; i < 2; i++ {
		rp.Complete(context.Background(), ai.CompletionRequest{})
	}
	calls := mock.Calls()

	_, err := rp.Complete(context.Background(), ai.CompletionRequest{})
	if !errors.Is(err, ai.ErrUnavailable) {
		t.Fatalf("Complete() with open breaker error = %v, want ErrUnavailable", err)
	}
	if mock.Calls() != calls {
		t.Errorf("open breaker still reached the provider")
	}
}
