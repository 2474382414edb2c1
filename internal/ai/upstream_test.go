package ai_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/studyflow/internal/ai"
	"github.com/p-n-ai/studyflow/internal/progression"
)

func TestUpstream_Messages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"429", &ai.StatusError{Provider: "openai", StatusCode: 429}, ai.MsgRateLimited},
		{"402", &ai.StatusError{Provider: "openai", StatusCode: 402}, ai.MsgCreditsExhausted},
		{"budget", ai.ErrBudgetExceeded, ai.MsgBudgetExceeded},
		{"500", &ai.StatusError{Provider: "openai", StatusCode: 500}, "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ai.Upstream("generate notes", tt.err, "fallback")
			if !errors.Is(err, progression.ErrUpstreamGeneration) || !errors.Is(err, tt.err) {
				t.Fatalf("error = %v, want both the kind and the cause", err)
			}
			var ue *ai.UpstreamError
			if !errors.As(err, &ue) || ue.Message != tt.want {
				t.Errorf("Message = %q, want %q", ue.Message, tt.want)
			}
		})
	}
}

func TestGuard(t *testing.T) {
	ctx := context.Background()
	budget := ai.NewInMemoryBudget(100)
	g := ai.NewGuard(budget, 2)
	defer g.Close()

	for i := 0; i < 2; i++ {
		if err := g.Admit(ctx, "u1"); err != nil {
			t.Fatalf("Admit() #%d error = %v", i+1, err)
		}
	}
	if err := g.Admit(ctx, "u1"); !errors.Is(err, ai.ErrRateLimited) {
		t.Errorf("third Admit() error = %v, want ErrRateLimited", err)
	}

	g.Record(ctx, "u2", ai.CompletionResponse{InputTokens: 60, OutputTokens: 40})
	if err := g.Admit(ctx, "u2"); !errors.Is(err, ai.ErrBudgetExceeded) {
		t.Errorf("Admit() after spending the budget error = %v, want ErrBudgetExceeded", err)
	}
}

func TestGuard_Disabled(t *testing.T) {
	g := ai.NewGuard(nil, 0)
	for i := 0; i < 10; i++ {
		if err := g.Admit(context.Background(), "u1"); err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
	}
	g.Record(context.Background(), "u1", ai.CompletionResponse{InputTokens: 1})
	if err := g.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
