package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/SkyeWong/social-segregation-simulator/internal/config"
	"github.com/SkyeWong/social-segregation-simulator/internal/engine"
	"github.com/SkyeWong/social-segregation-simulator/internal/entropy"
	"github.com/SkyeWong/social-segregation-simulator/internal/grid"
	"github.com/SkyeWong/social-segregation-simulator/internal/logging"
	"github.com/SkyeWong/social-segregation-simulator/internal/persistence"
	"github.com/SkyeWong/social-segregation-simulator/internal/render"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation and save its frames",
		Long: `Run Schelling's model with the given parameters.

A PNG is written per iteration into --images-path (which is emptied first)
and the frames are assembled into res.gif in --gif-path. Set --db to keep a
history of runs that can be browsed with 'segsim runs' and 'segsim show'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(cmd)
			if err != nil {
				return err
			}
			slog.SetDefault(logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()))

			_, err = runSimulation(cfg, cmd.OutOrStdout(), stopOnSignal)
			return err
		},
	}

	def := config.Default()
	f := cmd.Flags()
	f.Int("width", def.Width, "Width of the grid")
	f.Int("height", def.Height, "Height of the grid")
	f.Int("agent-types", def.NumColours, "Number of agent types")
	f.Int("iterations", def.Iterations, "Number of rounds to run; -1 runs until every agent is happy")
	f.Float64("percent-empty", def.PercentEmpty, "Fraction of cells left empty, in (0, 1]")
	f.Float64("same-neighbour", def.SameNeighbour, "Fraction of same-type neighbours an agent needs to stay")
	f.Int64("seed", 0, "Random seed (default: a fresh random seed)")
	f.Int("max-rounds", def.MaxRounds, "Round cap when --iterations is -1")
	f.Int("workers", def.Workers, "Goroutines used to evaluate happiness (0 or 1: sequential)")
	f.String("images-path", def.Output.ImagesPath, "Folder to save the images in; emptied before the run")
	f.String("gif-path", "", "Folder to save res.gif in (default: --images-path)")
	f.Bool("no-gif", false, "Do not save the GIF")
	f.Bool("no-images", false, "Do not save a PNG per iteration")
	f.String("palette", def.Output.Palette, "Colour palette: GnBu, Greys, Viridis, Magma, Set1")
	f.Int("cell-size", def.Output.CellSize, "Pixels per cell side")
	f.Int("frame-delay", def.Output.FrameDelay, "GIF frame delay in 100ths of a second")
	f.String("db", "", "SQLite file to record the run in")
	f.Bool("record-all", false, "Record every iteration's grid, not only the first and last")

	return cmd
}

// loadRunConfig layers defaults, --config, environment and explicit flags,
// then validates the result.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	intFlags := map[string]*int{
		"width":       &cfg.Width,
		"height":      &cfg.Height,
		"agent-types": &cfg.NumColours,
		"iterations":  &cfg.Iterations,
		"max-rounds":  &cfg.MaxRounds,
		"workers":     &cfg.Workers,
		"cell-size":   &cfg.Output.CellSize,
		"frame-delay": &cfg.Output.FrameDelay,
	}
	for name, dst := range intFlags {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	if f.Changed("percent-empty") {
		cfg.PercentEmpty, _ = f.GetFloat64("percent-empty")
	}
	if f.Changed("same-neighbour") {
		cfg.SameNeighbour, _ = f.GetFloat64("same-neighbour")
	}
	if f.Changed("seed") {
		seed, _ := f.GetInt64("seed")
		cfg.Seed = &seed
	}

	stringFlags := map[string]*string{
		"images-path": &cfg.Output.ImagesPath,
		"gif-path":    &cfg.Output.GIFPath,
		"palette":     &cfg.Output.Palette,
		"db":          &cfg.Database.Path,
		"log-level":   &cfg.Logging.Level,
	}
	for name, dst := range stringFlags {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}

	boolFlags := map[string]*bool{
		"no-gif":     &cfg.Output.NoGIF,
		"no-images":  &cfg.Output.NoImages,
		"record-all": &cfg.Database.Snapshots,
	}
	for name, dst := range boolFlags {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runOutcome is what a finished run produced.
type runOutcome struct {
	Seed    int64
	Result  engine.Result
	RunID   string
	GIFPath string
	Frames  int
}

// runSimulation executes one run for a validated config. watch, if non-nil,
// is given the simulation before it starts and returns a cleanup func.
func runSimulation(cfg *config.Config, out io.Writer, watch func(*engine.Simulation) func()) (*runOutcome, error) {
	seed := entropy.Seed(cfg.Seed)
	outcome := &runOutcome{Seed: seed}

	g, err := grid.Initialize(grid.ParamsFrom(cfg), entropy.New(seed, entropy.StreamGrid))
	if err != nil {
		return nil, err
	}

	var sinks engine.MultiSink

	// ── Frames ────────────────────────────────────────────────────────
	var frames *render.Frames
	writePNG := !cfg.Output.NoImages
	writeGIF := !cfg.Output.NoGIF
	if writePNG || writeGIF {
		if writePNG {
			if err := render.PrepareDir(cfg.Output.ImagesPath); err != nil {
				return nil, err
			}
		}
		if writeGIF {
			if err := os.MkdirAll(cfg.GIFDir(), 0755); err != nil {
				return nil, fmt.Errorf("create gif dir: %w", err)
			}
		}
		frames, err = render.NewFrames(render.Options{
			Dir:        cfg.Output.ImagesPath,
			NumColours: cfg.NumColours,
			Palette:    cfg.Output.Palette,
			CellSize:   cfg.Output.CellSize,
			WritePNG:   writePNG,
			KeepFrames: writeGIF,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, frames)
	}

	// ── Run history ───────────────────────────────────────────────────
	var rec *persistence.Recorder
	if cfg.Database.Path != "" {
		db, err := persistence.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		rec, err = db.BeginRun(cfg, seed, cfg.Database.Snapshots)
		if err != nil {
			return nil, err
		}
		outcome.RunID = rec.RunID()
		sinks = append(sinks, rec)
	}

	sinks = append(sinks, engine.SinkFunc(func(iteration int, v grid.View, pct float64) {
		fmt.Fprintf(out, "Iteration %-4d done (%.2f%% cells are happy)\n", iteration, pct)
	}))

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(g, engine.OptionsFrom(cfg, sinks), entropy.New(seed, entropy.StreamRelocation))
	if err != nil {
		return nil, err
	}
	if watch != nil {
		defer watch(sim)()
	}

	slog.Info("starting run",
		"seed", seed,
		"cells", humanize.Comma(int64(g.Size())),
		"agent_types", cfg.NumColours,
	)
	res := sim.Run()
	outcome.Result = res

	if frames != nil {
		outcome.Frames = frames.Written()
		if err := frames.Err(); err != nil {
			return outcome, err
		}
		if writeGIF && frames.FrameCount() == 0 {
			slog.Warn("no frames rendered, skipping gif")
		} else if writeGIF {
			path, err := frames.WriteGIF(cfg.GIFDir(), cfg.Output.FrameDelay)
			if err != nil {
				return outcome, err
			}
			outcome.GIFPath = path
			slog.Info("gif saved", "path", path, "frames", frames.FrameCount())
		}
	}

	if rec != nil {
		if err := rec.Finish(res); err != nil {
			return outcome, err
		}
	}

	fmt.Fprintf(out, "All iterations are finished: %s after %d rounds (%.2f%% cells are happy, seed %d).\n",
		res.Reason, res.Rounds, res.Final.Percentage(), seed)
	if outcome.RunID != "" {
		fmt.Fprintf(out, "Run recorded as %s\n", outcome.RunID)
	}
	return outcome, nil
}

// stopOnSignal stops the simulation on SIGINT or SIGTERM.
func stopOnSignal(sim *engine.Simulation) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, stopping", "signal", sig)
			sim.Stop()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
