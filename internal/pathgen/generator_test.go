package pathgen_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/p-n-ai/studyflow/internal/ai"
	"github.com/p-n-ai/studyflow/internal/learning"
	"github.com/p-n-ai/studyflow/internal/pathgen"
	"github.com/p-n-ai/studyflow/internal/progression"
)

const validReply = `{
  "topics": [
    {"name": "Variables", "description": "Names for values.", "difficulty": "easy", "estimated_time": 20, "xp_reward": 50},
    {"name": "Loops", "description": "Repeating work.", "difficulty": "medium", "estimated_time": 30, "xp_reward": 100},
    {"name": "Closures", "description": "Functions that capture state.", "difficulty": "hard", "estimated_time": 45, "xp_reward": 150}
  ]
}`

func TestGenerate_Valid(t *testing.T) {
	mock := ai.NewMockProvider(validReply)
	g := pathgen.New(pathgen.Config{Provider: mock})
	defer g.Close()

	topics, err := g.Generate(context.Background(), "u1", pathgen.Request{
		Subject:      "Go basics",
		Level:        learning.LevelIntermediate,
		SyllabusText: "loops, closures",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(topics) != 3 {
		t.Fatalf("len(topics) = %d, want 3", len(topics))
	}
	if topics[2].Name != "Closures" || topics[2].Difficulty != learning.DifficultyHard || topics[2].XPReward != 150 {
		t.Errorf("topics[2] = %+v", topics[2])
	}

	req := mock.LastRequest
	if req == nil {
		t.Fatal("provider was not called")
	}
	if req.Temperature != 0.7 || req.MaxTokens != 2000 || !req.JSONMode {
		t.Errorf("request params = %v/%d/%v", req.Temperature, req.MaxTokens, req.JSONMode)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", req.Messages)
	}
	user := req.Messages[1].Content
	for _, want := range []string{"Go basics", "intermediate", "loops, closures"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func TestGenerate_StripsFences(t *testing.T) {
	for _, fence := range []string{"```json\n%s\n```", "```\n%s\n```", "  %s  "} {
		g := pathgen.New(pathgen.Config{Provider: ai.NewMockProvider(fmt.Sprintf(fence, validReply))})
		topics, err := g.Generate(context.Background(), "u1", pathgen.Request{Subject: "Go"})
		if err != nil {
			t.Errorf("fence %q: error = %v", fence, err)
			continue
		}
		if len(topics) != 3 {
			t.Errorf("fence %q: len(topics) = %d", fence, len(topics))
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"not json", "Here is your path!"},
		{"no topics", `{"path": []}`},
		{"topics not array", `{"topics": "Variables"}`},
		{"empty topics", `{"topics": []}`},
		{"missing field", `{"topics": [{"name": "A", "description": "", "difficulty": "easy", "estimated_time": 10}]}`},
		{"bad difficulty", `{"topics": [{"name": "A", "description": "", "difficulty": "extreme", "estimated_time": 10, "xp_reward": 50}]}`},
		{"string reward", `{"topics": [{"name": "A", "description": "", "difficulty": "easy", "estimated_time": 10, "xp_reward": "50"}]}`},
		{"zero reward", `{"topics": [{"name": "A", "description": "", "difficulty": "easy", "estimated_time": 10, "xp_reward": 0}]}`},
		{"blank name", `{"topics": [{"name": "  ", "description": "", "difficulty": "easy", "estimated_time": 10, "xp_reward": 50}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topics, err := pathgen.Parse(tt.content)
			if !errors.Is(err, progression.ErrUpstreamGeneration) {
				t.Fatalf("Parse() error = %v, want ErrUpstreamGeneration", err)
			}
			if topics != nil {
				t.Errorf("Parse() returned partial topics: %+v", topics)
			}
		})
	}
}

func TestGenerate_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"rate limited", &ai.StatusError{Provider: "openai", StatusCode: 429}, ai.MsgRateLimited},
		{"credits", &ai.StatusError{Provider: "openai", StatusCode: 402}, ai.MsgCreditsExhausted},
		{"server", &ai.StatusError{Provider: "openai", StatusCode: 500}, "Failed to generate learning path."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := pathgen.New(pathgen.Config{Provider: &ai.MockProvider{Err: tt.err}})
			_, err := g.Generate(context.Background(), "u1", pathgen.Request{Subject: "Go"})
			if !errors.Is(err, progression.ErrUpstreamGeneration) {
				t.Fatalf("error = %v, want ErrUpstreamGeneration", err)
			}
			var ue *ai.UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("error %T is not *UpstreamError", err)
			}
			if ue.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", ue.Message, tt.wantMsg)
			}
		})
	}
}

func TestGenerate_InvalidRequest(t *testing.T) {
	mock := ai.NewMockProvider(validReply)
	g := pathgen.New(pathgen.Config{Provider: mock})

	for _, req := range []pathgen.Request{
		{Subject: "   "},
		{Subject: "Go", Level: "expert"},
		{Subject: strings.Repeat("x", 201)},
	} {
		_, err := g.Generate(context.Background(), "u1", req)
		if !errors.Is(err, progression.ErrValidation) {
			t.Errorf("Generate(%+v) error = %v, want ErrValidation", req, err)
		}
	}
	if mock.Calls() != 0 {
		t.Errorf("provider called %d times for invalid requests", mock.Calls())
	}
}

func TestGenerate_Budget(t *testing.T) {
	ctx := context.Background()
	mock := ai.NewMockProvider(validReply)
	budget := ai.NewInMemoryBudget(1)
	g := pathgen.New(pathgen.Config{Provider: mock, Budget: budget})

	if _, err := g.Generate(ctx, "u1", pathgen.Request{Subject: "Go"}); err != nil {
		t.Fatalf("first Generate() error = %v", err)
	}
	used, _, _ := budget.Usage(ctx, "u1")
	if used == 0 {
		t.Error("token usage was not recorded")
	}

	_, err := g.Generate(ctx, "u1", pathgen.Request{Subject: "Go"})
	if !errors.Is(err, ai.ErrBudgetExceeded) {
		t.Fatalf("second Generate() error = %v, want ErrBudgetExceeded", err)
	}
	if mock.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", mock.Calls())
	}

	if _, err := g.Generate(ctx, "u2", pathgen.Request{Subject: "Go"}); err != nil {
		t.Errorf("other learner Generate() error = %v", err)
	}
}

func TestGenerate_PerLearnerRateLimit(t *testing.T) {
	ctx := context.Background()
	g := pathgen.New(pathgen.Config{Provider: ai.NewMockProvider(validReply), PerMinute: 1})
	defer g.Close()

	if _, err := g.Generate(ctx, "u1", pathgen.Request{Subject: "Go"}); err != nil {
		t.Fatalf("first Generate() error = %v", err)
	}
	_, err := g.Generate(ctx, "u1", pathgen.Request{Subject: "Go"})
	if !errors.Is(err, ai.ErrRateLimited) || !errors.Is(err, progression.ErrUpstreamGeneration) {
		t.Fatalf("second Generate() error = %v, want rate limited upstream failure", err)
	}
	if _, err := g.Generate(ctx, "u2", pathgen.Request{Subject: "Go"}); err != nil {
		t.Errorf("other learner Generate() error = %v", err)
	}
}
