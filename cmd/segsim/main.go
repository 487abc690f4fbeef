// Command segsim runs Schelling's model of residential segregation and saves
// each iteration as an image, plus an animated GIF of the whole run.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "segsim",
		Short: "Schelling segregation simulator",
		Long: `segsim simulates Schelling's model of segregation.

Agents of several types live on a grid. Each round, every agent with too
few neighbours of its own type moves to a random empty cell, until every
agent is happy or the iteration budget runs out.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("config", "", "YAML config file")

	rootCmd.AddCommand(
		newRunCmd(),
		newRunsCmd(),
		newShowCmd(),
		newVersionCmd(),
	)
	return rootCmd
}
