// Package agent is the per-topic AI tutor: generated study notes and a
// persisted tutor conversation.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/studyflow/internal/ai"
	"github.com/p-n-ai/studyflow/internal/learning"
	"github.com/p-n-ai/studyflow/internal/progression"
)

const (
	defaultCompactThreshold      = 20
	defaultCompactTokenThreshold = 20000 // ~20k tokens triggers compaction
	defaultKeepRecent            = 6

	temperature      = 0.7
	notesMaxTokens   = 1500
	chatMaxTokens    = 1024
	summaryMaxTokens = 256
	maxMessageLen    = 4000

	notesFailed = "Failed to generate notes. Please try again."
	chatFailed  = "Chat failed. Please try again."
)

// TopicSource reads a learner's own topics and courses.
type TopicSource interface {
	GetTopic(ctx context.Context, userID, topicID string) (learning.Topic, error)
	GetCourse(ctx context.Context, userID, courseID string) (learning.Course, error)
}

// EngineConfig holds dependencies for the tutor engine.
type EngineConfig struct {
	Provider ai.Provider
	Topics   TopicSource
	Store    ConversationStore
	Model    string
	// Budget limits daily tokens per learner. Nil means unlimited.
	Budget ai.BudgetChecker
	// PerMinute caps notes and chat calls per learner. Zero disables it.
	PerMinute             int
	CompactThreshold      int // messages before compaction triggers (default 20)
	CompactTokenThreshold int // estimated tokens before compaction triggers (default 20000)
	KeepRecent            int // recent messages to keep after compaction (default 6)
}

// Engine answers notes and chat requests about one topic at a time.
type Engine struct {
	provider              ai.Provider
	topics                TopicSource
	store                 ConversationStore
	model                 string
	guard                 *ai.Guard
	compactThreshold      int
	compactTokenThreshold int
	keepRecent            int
}

// NewEngine creates a new tutor engine.
func NewEngine(cfg EngineConfig) *Engine {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	threshold := cfg.CompactThreshold
	if threshold == 0 {
		threshold = defaultCompactThreshold
	}
	tokenThreshold := cfg.CompactTokenThreshold
	if tokenThreshold == 0 {
		tokenThreshold = defaultCompactTokenThreshold
	}
	keepRecent := cfg.KeepRecent
	if keepRecent == 0 {
		keepRecent = defaultKeepRecent
	}
	return &Engine{
		provider:              cfg.Provider,
		topics:                cfg.Topics,
		store:                 store,
		model:                 cfg.Model,
		guard:                 ai.NewGuard(cfg.Budget, cfg.PerMinute),
		compactThreshold:      threshold,
		compactTokenThreshold: tokenThreshold,
		keepRecent:            keepRecent,
	}
}

// Close releases the rate limiter.
func (e *Engine) Close() error {
	return e.guard.Close()
}

// Notes are generated study notes for a topic. They are not stored.
type Notes struct {
	TopicID string `json:"topic_id"`
	Notes   string `json:"notes"`
}

// Notes generates study notes for one of the learner's topics.
func (e *Engine) Notes(ctx context.Context, userID, topicID string) (Notes, error) {
	tc, err := e.topicContext(ctx, userID, topicID)
	if err != nil {
		return Notes{}, err
	}
	if err := e.guard.Admit(ctx, userID); err != nil {
		return Notes{}, ai.Upstream("generate notes", err, notesFailed)
	}

	resp, err := e.provider.Complete(ctx, ai.CompletionRequest{
		Model: e.model,
		Messages: []ai.Message{
			{Role: "system", Content: notesSystemPrompt},
			{Role: "user", Content: notesUserPrompt(tc)},
		},
		Temperature: temperature,
		MaxTokens:   notesMaxTokens,
	})
	if err != nil {
		slog.Error("notes generation failed", "user_id", userID, "topic_id", topicID, "error", err)
		return Notes{}, ai.Upstream("generate notes", err, notesFailed)
	}
	e.guard.Record(ctx, userID, resp)

	notes := strings.TrimSpace(resp.Content)
	if notes == "" {
		return Notes{}, ai.Upstream("generate notes", fmt.Errorf("%w: empty notes", ai.ErrMalformedResponse), notesFailed)
	}

	slog.Info("notes generated", "user_id", userID, "topic_id", topicID, "tokens", resp.TotalTokens())
	return Notes{TopicID: topicID, Notes: notes}, nil
}

// Reply is the tutor's answer to one learner message.
type Reply struct {
	ConversationID string `json:"conversation_id"`
	TopicID        string `json:"topic_id"`
	Response       string `json:"response"`
}

// Chat sends a learner message to the tutor of a topic. The exchange is
// stored only when the tutor answered, so a failed call leaves no trace.
func (e *Engine) Chat(ctx context.Context, userID, topicID, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	switch {
	case message == "":
		return Reply{}, fmt.Errorf("%w: message is required", progression.ErrValidation)
	case len([]rune(message)) > maxMessageLen:
		return Reply{}, fmt.Errorf("%w: message is longer than %d characters", progression.ErrValidation, maxMessageLen)
	}

	tc, err := e.topicContext(ctx, userID, topicID)
	if err != nil {
		return Reply{}, err
	}
	if err := e.guard.Admit(ctx, userID); err != nil {
		return Reply{}, ai.Upstream("tutor chat", err, chatFailed)
	}

	conv, err := e.store.StartConversation(ctx, userID, topicID)
	if err != nil {
		return Reply{}, fmt.Errorf("start conversation: %w", err)
	}

	// Compact if needed (summarize older messages).
	e.maybeCompact(ctx, userID, &conv)

	messages := []ai.Message{{Role: "system", Content: chatSystem(tc)}}
	messages = append(messages, buildContextMessages(conv)...)
	messages = append(messages, ai.Message{Role: RoleUser, Content: message})

	resp, err := e.provider.Complete(ctx, ai.CompletionRequest{
		Model:       e.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		slog.Error("tutor chat failed", "user_id", userID, "topic_id", topicID, "error", err)
		return Reply{}, ai.Upstream("tutor chat", err, chatFailed)
	}
	e.guard.Record(ctx, userID, resp)

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return Reply{}, ai.Upstream("tutor chat", fmt.Errorf("%w: empty reply", ai.ErrMalformedResponse), chatFailed)
	}

	if err := e.store.AddMessages(ctx, conv.ID,
		StoredMessage{Role: RoleUser, Content: message},
		StoredMessage{
			Role:         RoleAssistant,
			Content:      answer,
			Model:        resp.Model,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		},
	); err != nil {
		return Reply{}, fmt.Errorf("save messages: %w", err)
	}

	slog.Info("tutor replied",
		"user_id", userID,
		"topic_id", topicID,
		"conversation_id", conv.ID,
		"tokens", resp.TotalTokens(),
	)
	return Reply{ConversationID: conv.ID, TopicID: topicID, Response: answer}, nil
}

// History returns the active conversation about a topic. A topic nobody has
// talked about yet gives an empty conversation.
func (e *Engine) History(ctx context.Context, userID, topicID string) (Conversation, error) {
	if _, err := e.topics.GetTopic(ctx, userID, topicID); err != nil {
		return Conversation{}, fmt.Errorf("get topic: %w", err)
	}
	conv, err := e.store.ActiveConversation(ctx, userID, topicID)
	if errors.Is(err, progression.ErrNotFound) {
		return Conversation{UserID: userID, TopicID: topicID, Messages: []StoredMessage{}}, nil
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// Reset ends the active conversation so the next message starts a new one.
func (e *Engine) Reset(ctx context.Context, userID, topicID string) error {
	if _, err := e.topics.GetTopic(ctx, userID, topicID); err != nil {
		return fmt.Errorf("get topic: %w", err)
	}
	if err := e.store.EndConversation(ctx, userID, topicID); err != nil {
		return fmt.Errorf("end conversation: %w", err)
	}
	return nil
}

// topicContext loads the topic through its owner, so someone else's topic is
// reported as not found.
func (e *Engine) topicContext(ctx context.Context, userID, topicID string) (topicContext, error) {
	topic, err := e.topics.GetTopic(ctx, userID, topicID)
	if err != nil {
		return topicContext{}, fmt.Errorf("get topic: %w", err)
	}
	course, err := e.topics.GetCourse(ctx, userID, topic.CourseID)
	if err != nil {
		return topicContext{}, fmt.Errorf("get course: %w", err)
	}
	level := course.LearningLevel
	if level == "" {
		level = learning.LevelBeginner
	}
	return topicContext{
		Topic:       topic.Name,
		Description: topic.Description,
		Course:      course.Title,
		Level:       string(level),
	}, nil
}

// buildContextMessages returns the conversation messages for the AI prompt.
// If a summary exists, it prepends it and only includes messages after compaction point.
func buildContextMessages(conv Conversation) []ai.Message {
	var messages []ai.Message
	recent := conv.Messages
	if conv.Summary != "" {
		messages = append(messages,
			ai.Message{Role: RoleUser, Content: "Previous conversation summary:\n" + conv.Summary},
			ai.Message{Role: RoleAssistant, Content: "Understood, I'll continue based on our previous conversation."},
		)
		recent = conv.Messages[min(conv.CompactedAt, len(conv.Messages)):]
	}
	for _, m := range recent {
		messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
	}
	return messages
}

// estimateTokens gives a rough token count for messages (1 token ≈ 4 chars).
func estimateTokens(messages []StoredMessage) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total
}

// maybeCompact summarizes older messages once the uncompacted part of the
// conversation is too long. Failures only cost context, so they are logged.
func (e *Engine) maybeCompact(ctx context.Context, userID string, conv *Conversation) {
	if conv.CompactedAt > len(conv.Messages) {
		conv.CompactedAt = len(conv.Messages)
	}
	uncompacted := conv.Messages[conv.CompactedAt:]
	if len(uncompacted) <= e.compactThreshold && estimateTokens(uncompacted) <= e.compactTokenThreshold {
		return
	}

	// Summarize everything except the most recent messages.
	compactUpTo := len(conv.Messages) - e.keepRecent
	if compactUpTo <= conv.CompactedAt {
		return
	}

	var content strings.Builder
	if conv.Summary != "" {
		content.WriteString("Previous summary:\n")
		content.WriteString(conv.Summary)
		content.WriteString("\n\nNew messages to incorporate:\n")
	}
	for _, m := range conv.Messages[conv.CompactedAt:compactUpTo] {
		role := "Learner"
		if m.Role == RoleAssistant {
			role = "Tutor"
		}
		fmt.Fprintf(&content, "%s: %s\n", role, m.Content)
	}

	resp, err := e.provider.Complete(ctx, ai.CompletionRequest{
		Model: e.model,
		Messages: []ai.Message{
			{Role: "system", Content: summaryPrompt},
			{Role: RoleUser, Content: content.String()},
		},
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		slog.Warn("compaction failed, continuing without summary", "conversation_id", conv.ID, "error", err)
		return
	}
	e.guard.Record(ctx, userID, resp)

	if err := e.store.SetSummary(ctx, conv.ID, resp.Content, compactUpTo); err != nil {
		slog.Warn("failed to save summary", "conversation_id", conv.ID, "error", err)
		return
	}
	conv.Summary = resp.Content
	conv.CompactedAt = compactUpTo

	slog.Info("conversation compacted",
		"conversation_id", conv.ID,
		"compacted_messages", compactUpTo,
		"remaining_messages", len(conv.Messages)-compactUpTo,
	)
}
