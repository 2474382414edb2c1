// Package leaderboard ranks learners by total XP. It is a projection of the
// profiles table: every XP award updates it and it can be rebuilt at any time.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/studyflow/internal/progression"
)

// Entry is one ranked learner. Rank starts at 1.
type Entry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	XP     int64  `json:"xp"`
	Level  int    `json:"level"`
}

// Board is a leaderboard backend.
type Board interface {
	RecordScore(ctx context.Context, userID string, xp int64) error
	Top(ctx context.Context, limit int) ([]Entry, error)
	Rank(ctx context.Context, userID string) (Entry, error)
	Rebuild(ctx context.Context, scores map[string]int64) error
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ClampLimit bounds a requested page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// RedisBoard keeps the ranking in a sorted set.
type RedisBoard struct {
	client *redis.Client
	key    string
}

func NewRedisBoard(client *redis.Client, key string) *RedisBoard {
	return &RedisBoard{client: client, key: key}
}

// RecordScore sets the learner's score. Scores only move up, so a late write
// carrying an older total is ignored.
func (b *RedisBoard) RecordScore(ctx context.Context, userID string, xp int64) error {
	if b == nil || b.client == nil {
		return fmt.Errorf("redis leaderboard not initialized")
	}
	err := b.client.ZAddArgs(ctx, b.key, redis.ZAddArgs{
		GT:      true,
		Members: []redis.Z{{Score: float64(xp), Member: userID}},
	}).Err()
	if err != nil {
		return fmt.Errorf("record score: %w", err)
	}
	return nil
}

func (b *RedisBoard) Top(ctx context.Context, limit int) ([]Entry, error) {
	if b == nil || b.client == nil {
		return nil, fmt.Errorf("redis leaderboard not initialized")
	}
	limit = ClampLimit(limit)

	zs, err := b.client.ZRevRangeWithScores(ctx, b.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	out := make([]Entry, 0, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, newEntry(i+1, member, int64(z.Score)))
	}
	return out, nil
}

func (b *RedisBoard) Rank(ctx context.Context, userID string) (Entry, error) {
	if b == nil || b.client == nil {
		return Entry{}, fmt.Errorf("redis leaderboard not initialized")
	}

	pipe := b.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, b.key, userID)
	scoreCmd := pipe.ZScore(ctx, b.key, userID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, fmt.Errorf("read rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, fmt.Errorf("leaderboard entry %s: %w", userID, progression.ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read rank: %w", err)
	}
	score, err := scoreCmd.Result()
	if err != nil {
		return Entry{}, fmt.Errorf("read score: %w", err)
	}
	return newEntry(int(rank)+1, userID, int64(score)), nil
}

// Rebuild replaces the whole ranking atomically.
func (b *RedisBoard) Rebuild(ctx context.Context, scores map[string]int64) error {
	if b == nil || b.client == nil {
		return fmt.Errorf("redis leaderboard not initialized")
	}
	if len(scores) == 0 {
		if err := b.client.Del(ctx, b.key).Err(); err != nil {
			return fmt.Errorf("clear leaderboard: %w", err)
		}
		return nil
	}

	tmp := b.key + ":rebuild"
	members := make([]redis.Z, 0, len(scores))
	for userID, xp := range scores {
		members = append(members, redis.Z{Score: float64(xp), Member: userID})
	}
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tmp)
		pipe.ZAdd(ctx, tmp, members...)
		pipe.Rename(ctx, tmp, b.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}
	return nil
}

// MemoryBoard is an in-memory Board. Ties are broken the way a sorted set
// does it in reverse order: by member, descending.
type MemoryBoard struct {
	mu     sync.RWMutex
	scores map[string]int64
}

func NewMemoryBoard() *MemoryBoard {
	return &MemoryBoard{scores: map[string]int64{}}
}

func (b *MemoryBoard) RecordScore(_ context.Context, userID string, xp int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.scores[userID]; !ok || xp > cur {
		b.scores[userID] = xp
	}
	return nil
}

func (b *MemoryBoard) Top(_ context.Context, limit int) ([]Entry, error) {
	ranked := b.ranked()
	limit = ClampLimit(limit)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (b *MemoryBoard) Rank(_ context.Context, userID string) (Entry, error) {
	for _, e := range b.ranked() {
		if e.UserID == userID {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("leaderboard entry %s: %w", userID, progression.ErrNotFound)
}

func (b *MemoryBoard) Rebuild(_ context.Context, scores map[string]int64) error {
	next := make(map[string]int64, len(scores))
	for k, v := range scores {
		next[k] = v
	}
	b.mu.Lock()
	b.scores = next
	b.mu.Unlock()
	return nil
}

func (b *MemoryBoard) ranked() []Entry {
	b.mu.RLock()
	out := make([]Entry, 0, len(b.scores))
	for userID, xp := range b.scores {
		out = append(out, Entry{UserID: userID, XP: xp})
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].XP != out[j].XP {
			return out[i].XP > out[j].XP
		}
		return out[i].UserID > out[j].UserID
	})
	for i := range out {
		out[i] = newEntry(i+1, out[i].UserID, out[i].XP)
	}
	return out
}

func newEntry(rank int, userID string, xp int64) Entry {
	return Entry{Rank: rank, UserID: userID, XP: xp, Level: progression.LevelFor(xp)}
}
