package ai_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/p-n-ai/studyflow/internal/ai"
)

func TestRouter_SingleProvider(t *testing.T) {
	router := ai.NewRouter()
	mock := ai.NewMockProvider("Hello!")
	router.Register("gateway", mock)

	resp, err := router.Complete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})

	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hello!")
	}
}

func TestRouter_Fallback(t *testing.T) {
	router := ai.NewRouter()

	failing := &ai.MockProvider{Err: fmt.Errorf("gateway: %w", ai.ErrUnavailable)}
	fallback := ai.NewMockProvider("Fallback response")

	router.Register("gateway", failing)
	router.Register("anthropic", fallback)

	resp, err := router.Complete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})

	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Fallback response" {
		t.Errorf("Content = %q, want %q", resp.Content, "Fallback response")
	}
}

func TestRouter_NoFallbackOnMalformed(t *testing.T) {
	router := ai.NewRouter()

	malformed := &ai.MockProvider{Err: fmt.Errorf("gateway: %w", ai.ErrMalformedResponse)}
	second := ai.NewMockProvider("unused")
	router.Register("gateway", malformed)
	router.Register("anthropic", second)

	_, err := router.Complete(context.Background(), ai.CompletionRequest{})
	if !errors.Is(err, ai.ErrMalformedResponse) {
		t.Fatalf("Complete() error = %v, want ErrMalformedResponse", err)
	}
	if second.Calls() != 0 {
		t.Errorf("second provider called %d times", second.Calls())
	}
}

func TestRouter_AllProvidersFail(t *testing.T) {
	router := ai.NewRouter()

	router.Register("gateway", &ai.MockProvider{Err: errors.New("fail 1")})
	router.Register("anthropic", &ai.MockProvider{Err: fmt.Errorf("fail 2: %w", ai.ErrRateLimited)})

	_, err := router.Complete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})

	if err == nil {
		t.Fatal("Complete() should return error when all providers fail")
	}
	if !errors.Is(err, ai.ErrRateLimited) {
		t.Errorf("error = %v, should carry the last provider's cause", err)
	}
}

func TestRouter_NoProviders(t *testing.T) {
	router := ai.NewRouter()

	_, err := router.Complete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})

	if !errors.Is(err, ai.ErrNoProviders) {
		t.Fatalf("Complete() error = %v, want ErrNoProviders", err)
	}
}

func TestRouter_HasProvider(t *testing.T) {
	router := ai.NewRouter()
	if router.HasProvider() {
		t.Error("HasProvider() should be false with no providers")
	}

	router.Register("mock", ai.NewMockProvider("ok"))
	if !router.HasProvider() {
		t.Error("HasProvider() should be true after Register")
	}
}

func TestRouter_FallbackOrder(t *testing.T) {
	router := ai.NewRouter()

	// First registered should be tried first.
	router.Register("first", ai.NewMockProvider("first"))
	router.Register("second", ai.NewMockProvider("second"))
	router.Register("first", ai.NewMockProvider("first again"))

	resp, err := router.Complete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})

	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "first again" {
		t.Errorf("Content = %q, want %q (first registered should be tried first)", resp.Content, "first again")
	}
	if got := router.Names(); len(got) != 2 || got[0] != "first" {
		t.Errorf("Names() = %v", got)
	}
}

func TestRouter_IsProvider(t *testing.T) {
	r := ai.NewRouter()
	r.Register("broken", &ai.MockProvider{Err: errors.New("down")})
	r.Register("ok", ai.NewMockProvider("hi"))

	var p ai.Provider = r
	if len(p.Models()) != 2 {
		t.Errorf("Models() = %d entries, want 2", len(p.Models()))
	}
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() with one healthy provider = %v", err)
	}

	down := ai.NewRouter()
	down.Register("broken", &ai.MockProvider{Err: errors.New("down")})
	if err := down.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail when every provider is down")
	}
}
