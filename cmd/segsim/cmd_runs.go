package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/SkyeWong/social-segregation-simulator/internal/config"
	"github.com/SkyeWong/social-segregation-simulator/internal/persistence"
)

const defaultDBPath = "segsim.db"

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			db, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tGRID\tCELLS\tTYPES\tTHRESHOLD\tREASON\tROUNDS\tHAPPY")
			for _, r := range runs {
				reason, rounds, happy := "running", "-", "-"
				if r.Reason.Valid {
					reason = r.Reason.String
				}
				if r.Rounds.Valid {
					rounds = humanize.Comma(r.Rounds.Int64)
				}
				if r.HappyPct.Valid {
					happy = fmt.Sprintf("%.2f%%", r.HappyPct.Float64)
				}
				fmt.Fprintf(w, "%s\t%s\t%dx%d\t%s\t%d\t%.2f\t%s\t%s\t%s\n",
					r.ID[:8],
					humanize.Time(r.Started()),
					r.Width, r.Height,
					humanize.Comma(int64(r.Width*r.Height)),
					r.NumColours,
					r.SameNeighbour,
					reason, rounds, happy,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	cmd.Flags().String("db", defaultDBPath, "SQLite run history file")
	return cmd
}

// openHistory opens the run history named by --db, falling back to the
// config file's database path when --db is not given.
func openHistory(cmd *cobra.Command) (*persistence.DB, error) {
	path, _ := cmd.Flags().GetString("db")
	if !cmd.Flags().Changed("db") {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		if cfg.Database.Path != "" {
			path = cfg.Database.Path
		}
	}
	return persistence.Open(path)
}
