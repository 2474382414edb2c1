package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBudgetExceeded is returned when a learner has used up the daily token budget.
var ErrBudgetExceeded = errors.New("daily AI token budget exceeded")

// BudgetChecker checks and records per-learner token usage for the current day.
type BudgetChecker interface {
	// Check returns true if the learner has budget remaining today.
	Check(ctx context.Context, userID string) (bool, error)
	// Record adds tokens to the learner's usage for today.
	Record(ctx context.Context, userID string, tokens int) error
	// Usage returns today's usage and the budget. A zero budget means unlimited.
	Usage(ctx context.Context, userID string) (used int64, budget int64, err error)
}

// InMemoryBudget is a single-process budget tracker for development and tests.
type InMemoryBudget struct {
	mu        sync.RWMutex
	daily     int64
	overrides map[string]int64
	usage     map[string]int64 // day:user -> tokens used
	day       string           // UTC day the usage map holds
	now       func() time.Time
}

// NewInMemoryBudget creates a tracker allowing daily tokens per learner.
// A daily value of 0 means unlimited.
func NewInMemoryBudget(daily int64) *InMemoryBudget {
	return &InMemoryBudget{
		daily:     daily,
		overrides: make(map[string]int64),
		usage:     make(map[string]int64),
		now:       time.Now,
	}
}

// SetBudget overrides the daily budget for one learner.
func (b *InMemoryBudget) SetBudget(userID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[userID] = tokens
}

func (b *InMemoryBudget) budgetFor(userID string) int64 {
	if v, ok := b.overrides[userID]; ok {
		return v
	}
	return b.daily
}

func (b *InMemoryBudget) Check(_ context.Context, userID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	budget := b.budgetFor(userID)
	if budget <= 0 {
		return true, nil
	}
	return b.usage[budgetKey(b.now(), userID)] < budget, nil
}

func (b *InMemoryBudget) Record(_ context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	// Counters from earlier days can never be read again.
	if day := budgetDay(now); day != b.day {
		clear(b.usage)
		b.day = day
	}
	b.usage[budgetKey(now, userID)] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(_ context.Context, userID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[budgetKey(b.now(), userID)], b.budgetFor(userID), nil
}

// RedisBudget tracks usage in redis so every replica shares the same counters.
// Each day gets its own key which expires after two days.
type RedisBudget struct {
	client *redis.Client
	prefix string
	daily  int64
	now    func() time.Time
}

// NewRedisBudget creates a shared tracker. prefix namespaces the keys.
func NewRedisBudget(client *redis.Client, prefix string, daily int64) *RedisBudget {
	return &RedisBudget{client: client, prefix: prefix, daily: daily, now: time.Now}
}

func (b *RedisBudget) key(userID string) string {
	return b.prefix + ":ai-budget:" + budgetKey(b.now(), userID)
}

func (b *RedisBudget) Check(ctx context.Context, userID string) (bool, error) {
	if b.daily <= 0 {
		return true, nil
	}
	used, _, err := b.Usage(ctx, userID)
	if err != nil {
		return false, err
	}
	return used < b.daily, nil
}

func (b *RedisBudget) Record(ctx context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	key := b.key(userID)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.IncrBy(ctx, key, int64(tokens))
		pipe.Expire(ctx, key, 48*time.Hour)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record token usage: %w", err)
	}
	return nil
}

func (b *RedisBudget) Usage(ctx context.Context, userID string) (int64, int64, error) {
	used, err := b.client.Get(ctx, b.key(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, b.daily, nil
	}
	if err != nil {
		return 0, b.daily, fmt.Errorf("read token usage: %w", err)
	}
	return used, b.daily, nil
}

func budgetKey(now time.Time, userID string) string {
	return budgetDay(now) + ":" + userID
}

func budgetDay(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}
