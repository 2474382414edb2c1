package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/studyflow/internal/leaderboard"
	"github.com/p-n-ai/studyflow/internal/learning"
	"github.com/p-n-ai/studyflow/internal/platform/cache"
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Manage the XP leaderboard",
}

var leaderboardRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the leaderboard from stored profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, db, cfg, err := openStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		c, err := cache.New(ctx, cfg.Cache.URL, cfg.Cache.Prefix)
		if err != nil {
			return fmt.Errorf("connect cache: %w", err)
		}
		defer c.Close()

		board := leaderboard.NewRedisBoard(c.Client, c.Key("leaderboard"))
		return rebuildLeaderboard(ctx, cmd.OutOrStdout(), store, board)
	},
}

func init() {
	leaderboardCmd.AddCommand(leaderboardRebuildCmd)
}

// rebuildLeaderboard replaces the board with the XP of every profile.
func rebuildLeaderboard(ctx context.Context, w io.Writer, store learning.Store, board leaderboard.Board) error {
	n, err := leaderboard.Load(ctx, store, board)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "leaderboard rebuilt with %d learner(s)\n", n)
	return nil
}
