// Package events carries progression events out of the learning service:
// to the audit log, to other server replicas and to connected clients.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	TypeTopicCompleted = "topic.completed"
	TypeXPAwarded      = "xp.awarded"
	TypeLevelUp        = "level.up"
	TypeStreakUpdated  = "streak.updated"
)

// Event is an outbound notification about one learner's progress.
type Event struct {
	Type      string         `json:"type"`
	UserID    string         `json:"user_id"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (e Event) validate() error {
	if e.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if e.UserID == "" {
		return fmt.Errorf("event user_id is required")
	}
	return nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error {
	return nil
}

// Memory keeps events in memory for tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{events: []Event{}}
}

func (m *Memory) Publish(_ context.Context, event Event) error {
	if err := event.validate(); err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event{}, m.events...)
}

// OfType returns the published events with the given type.
func (m *Memory) OfType(eventType string) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Recent returns userID's latest events, newest first.
func (m *Memory) Recent(_ context.Context, userID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	all := m.Events()
	var out []Event
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if all[i].UserID == userID {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Log is an event sink that can be read back.
type Log interface {
	Publisher
	Recent(ctx context.Context, userID string, limit int) ([]Event, error)
}

// Fanout publishes to every sink. A failing sink does not stop the others;
// the joined error is returned.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			slog.Warn("event sink failed", "type", event.Type, "user_id", event.UserID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
