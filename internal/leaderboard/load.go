package leaderboard

import (
	"context"
	"fmt"

	"github.com/p-n-ai/studyflow/internal/learning"
)

// ProfileLister lists every stored learner profile.
type ProfileLister interface {
	ListProfiles(ctx context.Context) ([]learning.Profile, error)
}

// Load replaces the board with the XP of every stored profile and returns how
// many learners it ranked. Learners without XP are left off.
func Load(ctx context.Context, profiles ProfileLister, board Board) (int, error) {
	list, err := profiles.ListProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list profiles: %w", err)
	}
	scores := make(map[string]int64, len(list))
	for _, p := range list {
		if p.XP > 0 {
			scores[p.UserID] = p.XP
		}
	}
	if err := board.Rebuild(ctx, scores); err != nil {
		return 0, fmt.Errorf("rebuild leaderboard: %w", err)
	}
	return len(scores), nil
}
