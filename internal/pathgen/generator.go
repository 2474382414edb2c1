// Package pathgen asks an AI provider for a learning path and turns the
// untrusted reply into validated topic drafts.
package pathgen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/studyflow/internal/ai"
	"github.com/p-n-ai/studyflow/internal/learning"
	"github.com/p-n-ai/studyflow/internal/progression"
)

const (
	temperature = 0.7
	maxTokens   = 2000

	maxSubjectLen  = 200
	maxSyllabusLen = 10_000
)

const (
	op            = "generate learning path"
	failedMessage = "Failed to generate learning path."
)

// Request describes the path to generate.
type Request struct {
	Subject      string                 `json:"subject"`
	Level        learning.LearningLevel `json:"level"`
	SyllabusText string                 `json:"syllabus_text"`
}

// Config wires a Generator.
type Config struct {
	Provider ai.Provider
	Model    string
	// Budget limits daily tokens per learner. Nil means unlimited.
	Budget ai.BudgetChecker
	// PerMinute caps generations per learner per minute. Zero disables it.
	PerMinute int
}

// Generator produces topic drafts. It never persists anything.
type Generator struct {
	provider ai.Provider
	model    string
	guard    *ai.Guard
}

// New creates a Generator.
func New(cfg Config) *Generator {
	return &Generator{
		provider: cfg.Provider,
		model:    cfg.Model,
		guard:    ai.NewGuard(cfg.Budget, cfg.PerMinute),
	}
}

// Close releases the rate limiter.
func (g *Generator) Close() error {
	return g.guard.Close()
}

// Generate returns the validated topics for req, in order. Every failure past
// input validation wraps progression.ErrUpstreamGeneration.
func (g *Generator) Generate(ctx context.Context, userID string, req Request) ([]learning.NewTopic, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}

	if err := g.guard.Admit(ctx, userID); err != nil {
		return nil, ai.Upstream(op, err, failedMessage)
	}

	resp, err := g.provider.Complete(ctx, ai.CompletionRequest{
		Model: g.model,
		Messages: []ai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(req)},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		slog.Error("learning path generation failed", "user_id", userID, "error", err)
		return nil, ai.Upstream(op, err, failedMessage)
	}
	g.guard.Record(ctx, userID, resp)

	topics, err := Parse(resp.Content)
	if err != nil {
		slog.Warn("discarding AI learning path", "user_id", userID, "provider", resp.Provider, "error", err)
		return nil, err
	}

	slog.Info("learning path generated",
		"user_id", userID,
		"provider", resp.Provider,
		"topics", len(topics),
		"tokens", resp.TotalTokens(),
	)
	return topics, nil
}

// Parse validates an AI reply and converts it into topic drafts. It is all or
// nothing: one bad topic rejects the whole path.
func Parse(content string) ([]learning.NewTopic, error) {
	raw := []byte(stripFences(content))
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty AI response", progression.ErrUpstreamGeneration)
	}
	if err := validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", progression.ErrUpstreamGeneration, err)
	}

	var payload struct {
		Topics []learning.NewTopic `json:"topics"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode topics: %w", progression.ErrUpstreamGeneration, err)
	}

	topics := make([]learning.NewTopic, len(payload.Topics))
	for i, t := range payload.Topics {
		nt, err := t.Normalize()
		if err != nil {
			return nil, fmt.Errorf("%w: topic %d: %w", progression.ErrUpstreamGeneration, i+1, err)
		}
		topics[i] = nt
	}
	return topics, nil
}

func (r Request) normalize() (Request, error) {
	r.Subject = strings.TrimSpace(r.Subject)
	r.SyllabusText = strings.TrimSpace(r.SyllabusText)
	if r.Level == "" {
		r.Level = learning.LevelBeginner
	}

	switch {
	case r.Subject == "":
		return Request{}, fmt.Errorf("%w: subject is required", progression.ErrValidation)
	case len([]rune(r.Subject)) > maxSubjectLen:
		return Request{}, fmt.Errorf("%w: subject is longer than %d characters", progression.ErrValidation, maxSubjectLen)
	case len([]rune(r.SyllabusText)) > maxSyllabusLen:
		return Request{}, fmt.Errorf("%w: syllabus is longer than %d characters", progression.ErrValidation, maxSyllabusLen)
	case !r.Level.Valid():
		return Request{}, fmt.Errorf("%w: unknown learning level %q", progression.ErrValidation, r.Level)
	}
	return r, nil
}
