package engine

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/SkyeWong/social-segregation-simulator/internal/config"
	"github.com/SkyeWong/social-segregation-simulator/internal/grid"
)

// State is the loop's position in its state machine.
type State uint8

const (
	Running              State = iota
	ConvergedHappy             // Every agent happy; grid left as is
	MaxIterationsReached       // Iteration budget spent
	RoundCapReached            // Unbounded run hit MaxRounds without converging
	Stopped                    // Stop() or the Guard ended the run early
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case ConvergedHappy:
		return "ConvergedHappy"
	case MaxIterationsReached:
		return "MaxIterationsReached"
	case RoundCapReached:
		return "RoundCapReached"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Options configures a Simulation.
type Options struct {
	Threshold  float64 // Homophily threshold in [0, 1]
	Iterations int     // Round budget, or config.Unbounded
	MaxRounds  int     // Cap for Unbounded runs; 0 means DefaultMaxRounds
	Workers    int     // >1 evaluates in parallel
	Sink       SnapshotSink

	// Guard is consulted before each round; returning false stops the run.
	Guard func(round int) bool
}

// DefaultMaxRounds caps Unbounded runs when Options.MaxRounds is zero.
const DefaultMaxRounds = 10000

// OptionsFrom builds Options from a validated configuration.
func OptionsFrom(cfg *config.Config, sink SnapshotSink) Options {
	return Options{
		Threshold:  cfg.SameNeighbour,
		Iterations: cfg.Iterations,
		MaxRounds:  cfg.MaxRounds,
		Workers:    cfg.Workers,
		Sink:       sink,
	}
}

// Result is returned when the loop reaches a terminal state.
type Result struct {
	Grid   *grid.Grid
	Rounds int // Relocation rounds performed
	Reason State
	Final  HappinessReport // Evaluation of Grid as returned
}

// InvariantViolation is the panic value raised when the agent population
// changes during a run. It indicates a defect, never a runtime condition.
type InvariantViolation struct {
	Round int
	Cell  grid.Cell
	Want  int
	Got   int
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation after round %d: %v count %d, want %d", v.Round, v.Cell, v.Got, v.Want)
}

// Simulation holds the canonical grid and loop state for one run.
type Simulation struct {
	Grid  *grid.Grid
	Round int
	State State

	opts    Options
	rng     *rand.Rand
	initial map[grid.Cell]int
	stop    atomic.Bool
}

// NewSimulation takes ownership of g. rng drives relocation only.
func NewSimulation(g *grid.Grid, opts Options, rng *rand.Rand) (*Simulation, error) {
	if g == nil {
		return nil, fmt.Errorf("nil grid")
	}
	if rng == nil {
		return nil, fmt.Errorf("nil random source")
	}
	if math.IsNaN(opts.Threshold) || opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, config.Invalid("same_neighbour", opts.Threshold, "must be between 0 and 1")
	}
	if opts.Iterations == 0 || opts.Iterations < config.Unbounded {
		return nil, config.Invalid("iterations", opts.Iterations, "must be at least 1, or -1 to run until everyone is happy")
	}
	if opts.MaxRounds < 0 {
		return nil, config.Invalid("max_rounds", opts.MaxRounds, "must not be negative")
	}
	if opts.MaxRounds == 0 {
		opts.MaxRounds = DefaultMaxRounds
	}

	return &Simulation{
		Grid:    g,
		State:   Running,
		opts:    opts,
		rng:     rng,
		initial: g.Counts(),
	}, nil
}

// Stop asks the loop to end before its next round. Safe to call from any
// goroutine.
func (s *Simulation) Stop() {
	s.stop.Store(true)
}

// Run drives rounds until a terminal state and returns the outcome.
func (s *Simulation) Run() Result {
	slog.Info("simulation started",
		"width", s.Grid.Width(),
		"height", s.Grid.Height(),
		"agents", humanize.Comma(int64(s.Grid.Size()-s.initial[grid.Empty])),
		"empty", humanize.Comma(int64(s.initial[grid.Empty])),
		"threshold", s.opts.Threshold,
		"iterations", s.opts.Iterations,
	)

	var report HappinessReport
	for s.State == Running {
		if s.stop.Load() || (s.opts.Guard != nil && !s.opts.Guard(s.Round)) {
			s.State = Stopped
			report = s.evaluate()
			break
		}
		report = s.step()
	}

	slog.Info("simulation finished",
		"reason", s.State.String(),
		"rounds", s.Round,
		"happy_pct", fmt.Sprintf("%.2f", report.Percentage()),
	)

	return Result{
		Grid:   s.Grid,
		Rounds: s.Round,
		Reason: s.State,
		Final:  report,
	}
}

// step runs one round and returns the report describing s.Grid afterwards.
func (s *Simulation) step() HappinessReport {
	report := s.evaluate()
	pct := report.Percentage()

	if s.opts.Sink != nil {
		s.opts.Sink.Snapshot(s.Round, s.Grid, pct)
	}

	if report.Converged() {
		slog.Debug("iteration done", "iteration", s.Round, "happy_pct", fmt.Sprintf("%.2f", pct))
		s.State = ConvergedHappy
		return report
	}

	moved := Relocate(s.Grid, report.Unhappy, s.rng)
	s.checkInvariants()
	slog.Debug("iteration done",
		"iteration", s.Round,
		"happy_pct", fmt.Sprintf("%.2f", pct),
		"unhappy", len(report.Unhappy),
		"moved", moved,
	)
	s.Round++

	switch {
	case s.opts.Iterations != config.Unbounded && s.Round >= s.opts.Iterations:
		s.State = MaxIterationsReached
	case s.opts.Iterations == config.Unbounded && s.Round >= s.opts.MaxRounds:
		slog.Warn("round cap reached without convergence", "max_rounds", s.opts.MaxRounds)
		s.State = RoundCapReached
	default:
		return report
	}
	return s.evaluate()
}

func (s *Simulation) evaluate() HappinessReport {
	if s.opts.Workers > 1 {
		return EvaluateAllParallel(s.Grid, s.opts.Threshold, s.opts.Workers)
	}
	return EvaluateAll(s.Grid, s.opts.Threshold)
}

// checkInvariants panics with *InvariantViolation if any cell value's count
// drifted from the initial grid.
func (s *Simulation) checkInvariants() {
	now := s.Grid.Counts()
	for c, want := range s.initial {
		if got := now[c]; got != want {
			panic(&InvariantViolation{Round: s.Round, Cell: c, Want: want, Got: got})
		}
	}
	for c, got := range now {
		if _, ok := s.initial[c]; !ok {
			panic(&InvariantViolation{Round: s.Round, Cell: c, Want: 0, Got: got})
		}
	}
}
