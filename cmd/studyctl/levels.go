package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/studyflow/internal/learning"
	"github.com/p-n-ai/studyflow/internal/progression"
)

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Print the XP threshold of each level",
	RunE: func(cmd *cobra.Command, args []string) error {
		max, _ := cmd.Flags().GetInt("max")
		if max < 1 || max > 10_000 {
			return fmt.Errorf("--max must be between 1 and 10000")
		}
		return printLevels(cmd.OutOrStdout(), max)
	},
}

var repairLevelsCmd = &cobra.Command{
	Use:   "repair-levels",
	Short: "Recompute stored levels from XP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, db, _, err := openStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		return repairLevels(ctx, cmd.OutOrStdout(), store)
	},
}

func init() {
	levelsCmd.Flags().Int("max", 20, "highest level to print")
}

func printLevels(w io.Writer, max int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "LEVEL\tXP\tBAND\t")
	for l := progression.MinLevel; l <= max; l++ {
		fmt.Fprintf(tw, "%d\t%d\t%d\t\n", l, progression.Threshold(l), progression.Threshold(l+1)-progression.Threshold(l))
	}
	return tw.Flush()
}

func repairLevels(ctx context.Context, w io.Writer, store learning.Store) error {
	n, err := store.RepairLevels(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "repaired %d profile(s)\n", n)
	return nil
}
