package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/studyflow/internal/learning"
	"github.com/p-n-ai/studyflow/internal/platform/config"
	"github.com/p-n-ai/studyflow/internal/platform/database"
)

var rootCmd = &cobra.Command{
	Use:           "studyctl",
	Short:         "StudyFlow administration",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL URL (overrides STUDYFLOW_DATABASE_URL)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(levelsCmd)
	rootCmd.AddCommand(repairLevelsCmd)
	rootCmd.AddCommand(leaderboardCmd)
}

// openDB connects using --database-url, falling back to the environment.
func openDB(ctx context.Context, cmd *cobra.Command) (*database.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if u, _ := cmd.Flags().GetString("database-url"); u != "" {
		cfg.Database.URL = u
	}
	db, err := database.New(ctx, cfg.Database.URL, database.PoolConfig{MaxConns: 4, MinConns: 1})
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return db, cfg, nil
}

func openStore(ctx context.Context, cmd *cobra.Command) (*learning.PostgresStore, *database.DB, *config.Config, error) {
	db, cfg, err := openDB(ctx, cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := learning.NewPostgresStore(db.Pool)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	store.SetTimeout(cfg.Progression.DBTimeout)
	return store, db, cfg, nil
}
