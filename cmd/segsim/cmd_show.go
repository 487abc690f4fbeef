package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a recorded grid",
		Long: `Print one recorded iteration of a run as text: '.' is an empty cell and
'A', 'B', ... are agent types. The run ID may be abbreviated to any unique
prefix. Without --iteration the latest stored grid is shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iteration, _ := cmd.Flags().GetInt("iteration")

			db, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			run, err := db.GetRun(args[0])
			if err != nil {
				return err
			}
			g, snap, err := db.LoadSnapshot(run, iteration)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (seed %d), iteration %d: %.2f%% cells are happy\n",
				run.ID, run.Seed, snap.Iteration, snap.HappyPct)
			fmt.Fprint(out, g.String())

			if its, err := db.Iterations(run.ID); err == nil && len(its) > 1 {
				fmt.Fprintf(out, "Stored iterations: %v\n", its)
			}
			return nil
		},
	}

	cmd.Flags().Int("iteration", -1, "Iteration to show (default: latest)")
	cmd.Flags().String("db", defaultDBPath, "SQLite run history file")
	return cmd
}
