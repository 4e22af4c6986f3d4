/*
Copyright © 2025 Honoka Toda, Shinya Ishitobi

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"math"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/goatx/falsify/internal/store"
	"github.com/goatx/falsify/search"
)

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:   "runs [RUN_ID]",
	Short: "List stored falsification runs",
	Long: `List the runs stored in a SQLite run database, newest first. With a run
id, print the batch history of that run instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := cmd.Flags().GetString("db")
		if err != nil {
			return err
		}
		st, err := store.Open(cmd.Context(), db, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer tw.Flush()

		if len(args) == 1 {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("run id: %w", err)
			}
			if _, err := st.LoadRun(cmd.Context(), id); err != nil {
				return err
			}
			batches, err := st.Batches(cmd.Context(), id)
			if err != nil {
				return err
			}
			writeBatches(tw, batches)
			return nil
		}

		runs, err := st.ListRuns(cmd.Context())
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(tw, "ID\tCREATED\tFORMULA\tSTATUS\tSTOP\tEVALUATIONS\tBEST")
		for _, r := range runs {
			best := "-"
			if r.State.Best != nil {
				best = fmt.Sprintf("%g", r.State.Best.Objective)
			}
			stop := string(r.State.Stop)
			if stop == "" {
				stop = "-"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				r.ID, r.CreatedAt.Format(time.RFC3339), r.Formula, r.Status, stop, r.State.Evaluations, best)
		}
		return nil
	},
}

func writeBatches(tw *tabwriter.Writer, batches []search.Batch) {
	_, _ = fmt.Fprintln(tw, "#\tPHASE\tITERATION\tPOINTS\tMIN\tDURATION")
	for i, b := range batches {
		lowest := "-"
		if len(b.Objectives) > 0 {
			if k := floats.MinIdx(b.Objectives); !math.IsNaN(b.Objectives[k]) {
				lowest = fmt.Sprintf("%g", b.Objectives[k])
			}
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\n",
			i+1, b.Phase, b.Iteration, len(b.Points), lowest, b.Duration.Round(time.Millisecond))
	}
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().String("db", "", "SQLite run database")
	_ = runsCmd.MarkFlagRequired("db")
}
