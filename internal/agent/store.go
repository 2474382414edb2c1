package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/studyflow/internal/progression"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StoredMessage represents a single message in a conversation.
type StoredMessage struct {
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Conversation is a learner's tutor session about one topic.
type Conversation struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	TopicID     string          `json:"topic_id"`
	Messages    []StoredMessage `json:"messages"`
	Summary     string          `json:"summary,omitempty"`
	CompactedAt int             `json:"compacted_at,omitempty"` // number of messages included in Summary
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
}

// ConversationStore persists conversations and their message history. A
// learner has at most one active conversation per topic.
type ConversationStore interface {
	// ActiveConversation returns ErrNotFound when the learner has no open
	// conversation about the topic.
	ActiveConversation(ctx context.Context, userID, topicID string) (Conversation, error)
	// StartConversation returns the active conversation, opening one if needed.
	StartConversation(ctx context.Context, userID, topicID string) (Conversation, error)
	// AddMessages appends messages atomically, in order.
	AddMessages(ctx context.Context, conversationID string, msgs ...StoredMessage) error
	SetSummary(ctx context.Context, conversationID, summary string, compactedAt int) error
	// EndConversation closes the active conversation. Ending nothing is not an
	// error.
	EndConversation(ctx context.Context, userID, topicID string) error
}

// MemoryStore is an in-memory implementation of ConversationStore.
type MemoryStore struct {
	conversations map[string]*Conversation
	mu            sync.RWMutex
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
	}
}

func (s *MemoryStore) ActiveConversation(_ context.Context, userID, topicID string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if conv := s.activeLocked(userID, topicID); conv != nil {
		return copyConversation(conv), nil
	}
	return Conversation{}, fmt.Errorf("conversation for topic %s: %w", topicID, progression.ErrNotFound)
}

func (s *MemoryStore) StartConversation(_ context.Context, userID, topicID string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv := s.activeLocked(userID, topicID); conv != nil {
		return copyConversation(conv), nil
	}
	conv := &Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		TopicID:   topicID,
		Messages:  []StoredMessage{},
		StartedAt: time.Now().UTC(),
	}
	s.conversations[conv.ID] = conv
	return copyConversation(conv), nil
}

func (s *MemoryStore) AddMessages(_ context.Context, conversationID string, msgs ...StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, progression.ErrNotFound)
	}
	for _, msg := range msgs {
		if err := msg.validate(); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	for _, msg := range msgs {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return nil
}

func (s *MemoryStore) SetSummary(_ context.Context, conversationID, summary string, compactedAt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, progression.ErrNotFound)
	}
	conv.Summary = summary
	conv.CompactedAt = compactedAt
	return nil
}

func (s *MemoryStore) EndConversation(_ context.Context, userID, topicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv := s.activeLocked(userID, topicID); conv != nil {
		now := time.Now().UTC()
		conv.EndedAt = &now
	}
	return nil
}

func (s *MemoryStore) activeLocked(userID, topicID string) *Conversation {
	for _, conv := range s.conversations {
		if conv.UserID == userID && conv.TopicID == topicID && conv.EndedAt == nil {
			return conv
		}
	}
	return nil
}

func copyConversation(c *Conversation) Conversation {
	out := *c
	out.Messages = append([]StoredMessage{}, c.Messages...)
	return out
}

func (m StoredMessage) validate() error {
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return fmt.Errorf("%w: unknown message role %q", progression.ErrValidation, m.Role)
	}
	if m.Content == "" {
		return fmt.Errorf("%w: message content is required", progression.ErrValidation)
	}
	return nil
}
