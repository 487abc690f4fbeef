package engine

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/SkyeWong/social-segregation-simulator/internal/config"
	"github.com/SkyeWong/social-segregation-simulator/internal/grid"
)

type snapshot struct {
	iteration int
	cells     []byte
	pct       float64
	counts    map[grid.Cell]int
}

type recordingSink struct {
	snaps []snapshot
}

func (r *recordingSink) Snapshot(iteration int, v grid.View, pct float64) {
	r.snaps = append(r.snaps, snapshot{
		iteration: iteration,
		cells:     grid.Encode(v),
		pct:       pct,
		counts:    v.Counts(),
	})
}

func newSim(t *testing.T, g *grid.Grid, opts Options, seed int64) *Simulation {
	t.Helper()
	sim, err := NewSimulation(g, opts, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	return sim
}

func TestRun_ImmediateConvergence(t *testing.T) {
	sink := &recordingSink{}
	g := rows(t, []grid.Cell{A, E, A})
	sim := newSim(t, g, Options{Threshold: 0.5, Iterations: config.Unbounded, Sink: sink}, 1)

	res := sim.Run()

	if res.Reason != ConvergedHappy {
		t.Fatalf("Reason = %v, want ConvergedHappy", res.Reason)
	}
	if res.Rounds != 0 {
		t.Errorf("Rounds = %d, want 0", res.Rounds)
	}
	if res.Final.Happy != 2 || res.Final.Occupied != 2 {
		t.Errorf("Final = %+v, want 2/2 happy", res.Final)
	}
	if !res.Grid.Equal(rows(t, []grid.Cell{A, E, A})) {
		t.Errorf("converged grid must not move, got %q", res.Grid.String())
	}
	if len(sink.snaps) != 1 || sink.snaps[0].iteration != 0 || sink.snaps[0].pct != 100 {
		t.Errorf("expected one snapshot at iteration 0 with 100%%, got %+v", sink.snaps)
	}
}

func TestRun_IterationBudget(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		sink := &recordingSink{}
		g := randomGrid(t, 10, 10, 2, 0.1, 21)
		sim := newSim(t, g, Options{Threshold: 1, Iterations: n, Sink: sink}, 21)

		res := sim.Run()

		if res.Reason != MaxIterationsReached {
			t.Fatalf("n=%d: Reason = %v, want MaxIterationsReached", n, res.Reason)
		}
		if res.Rounds != n {
			t.Errorf("n=%d: Rounds = %d", n, res.Rounds)
		}
		if len(sink.snaps) != n {
			t.Errorf("n=%d: %d snapshots, want %d", n, len(sink.snaps), n)
		}
		for i, s := range sink.snaps {
			if s.iteration != i {
				t.Errorf("n=%d: snapshot %d has iteration %d", n, i, s.iteration)
			}
		}
	}
}

func TestRun_RoundCapForUnbounded(t *testing.T) {
	g := randomGrid(t, 10, 10, 2, 0.1, 8)
	sim := newSim(t, g, Options{Threshold: 1, Iterations: config.Unbounded, MaxRounds: 3}, 8)

	res := sim.Run()
	if res.Reason != RoundCapReached {
		t.Fatalf("Reason = %v, want RoundCapReached", res.Reason)
	}
	if res.Rounds != 3 {
		t.Errorf("Rounds = %d, want 3", res.Rounds)
	}
}

func TestRun_ConvergesAndFinalGridIsHappy(t *testing.T) {
	g := randomGrid(t, 20, 20, 2, 0.5, 33)
	sim := newSim(t, g, Options{Threshold: 0.3, Iterations: config.Unbounded, MaxRounds: 2000}, 33)

	res := sim.Run()
	if res.Reason != ConvergedHappy {
		t.Fatalf("Reason = %v after %d rounds, want ConvergedHappy", res.Reason, res.Rounds)
	}
	check := EvaluateAll(res.Grid, 0.3)
	if !check.Converged() {
		t.Errorf("returned grid has %d unhappy agents", len(check.Unhappy))
	}
}

func TestRun_ConservesPopulationEveryRound(t *testing.T) {
	sink := &recordingSink{}
	g := randomGrid(t, 25, 25, 4, 0.25, 5)
	initial := g.Counts()
	sim := newSim(t, g, Options{Threshold: 0.6, Iterations: 20, Sink: sink}, 5)

	res := sim.Run()

	for _, s := range sink.snaps {
		total := 0
		for _, n := range s.counts {
			total += n
		}
		if total != 25*25 {
			t.Errorf("iteration %d: %d cells, want %d", s.iteration, total, 25*25)
		}
		if !sameCounts(initial, s.counts) {
			t.Errorf("iteration %d: counts %v, want %v", s.iteration, s.counts, initial)
		}
	}
	if !sameCounts(initial, res.Grid.Counts()) {
		t.Errorf("final counts %v, want %v", res.Grid.Counts(), initial)
	}
}

func TestRun_Deterministic(t *testing.T) {
	run := func(workers int) (Result, *recordingSink) {
		sink := &recordingSink{}
		g := randomGrid(t, 30, 30, 3, 0.3, 77)
		sim := newSim(t, g, Options{Threshold: 0.5, Iterations: 40, Workers: workers, Sink: sink}, 78)
		return sim.Run(), sink
	}

	r1, s1 := run(0)
	r2, s2 := run(0)
	r3, s3 := run(4)

	for _, other := range []struct {
		name string
		res  Result
		sink *recordingSink
	}{{"repeat", r2, s2}, {"parallel", r3, s3}} {
		if r1.Rounds != other.res.Rounds || r1.Reason != other.res.Reason {
			t.Errorf("%s: ended %v after %d rounds, want %v after %d",
				other.name, other.res.Reason, other.res.Rounds, r1.Reason, r1.Rounds)
		}
		if !r1.Grid.Equal(other.res.Grid) {
			t.Errorf("%s: final grids differ", other.name)
		}
		if len(s1.snaps) != len(other.sink.snaps) {
			t.Fatalf("%s: %d snapshots, want %d", other.name, len(other.sink.snaps), len(s1.snaps))
		}
		for i := range s1.snaps {
			if !bytes.Equal(s1.snaps[i].cells, other.sink.snaps[i].cells) {
				t.Errorf("%s: snapshot %d differs", other.name, i)
			}
		}
	}
}

func TestRun_GuardStopsEarly(t *testing.T) {
	g := randomGrid(t, 10, 10, 2, 0.1, 3)
	sim := newSim(t, g, Options{
		Threshold:  1,
		Iterations: 50,
		Guard:      func(round int) bool { return round < 2 },
	}, 3)

	res := sim.Run()
	if res.Reason != Stopped {
		t.Fatalf("Reason = %v, want Stopped", res.Reason)
	}
	if res.Rounds != 2 {
		t.Errorf("Rounds = %d, want 2", res.Rounds)
	}
}

func TestRun_StopBeforeFirstRound(t *testing.T) {
	sink := &recordingSink{}
	g := randomGrid(t, 10, 10, 2, 0.1, 3)
	sim := newSim(t, g, Options{Threshold: 1, Iterations: 50, Sink: sink}, 3)

	sim.Stop()
	res := sim.Run()
	if res.Reason != Stopped || res.Rounds != 0 {
		t.Errorf("got %v after %d rounds, want Stopped after 0", res.Reason, res.Rounds)
	}
	if len(sink.snaps) != 0 {
		t.Errorf("sink called %d times after Stop", len(sink.snaps))
	}
}

func TestNewSimulation_RejectsBadOptions(t *testing.T) {
	g := rows(t, []grid.Cell{A, E})
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name string
		opts Options
	}{
		{"threshold above one", Options{Threshold: 1.5, Iterations: 1}},
		{"threshold negative", Options{Threshold: -0.1, Iterations: 1}},
		{"zero iterations", Options{Threshold: 0.5, Iterations: 0}},
		{"iterations below sentinel", Options{Threshold: 0.5, Iterations: -3}},
		{"negative max rounds", Options{Threshold: 0.5, Iterations: -1, MaxRounds: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSimulation(g, tt.opts, rng)
			if !errors.Is(err, config.ErrInvalid) {
				t.Errorf("expected config.ErrInvalid, got %v", err)
			}
		})
	}

	if _, err := NewSimulation(nil, Options{Threshold: 0.5, Iterations: 1}, rng); err == nil {
		t.Error("expected error for nil grid")
	}
	if _, err := NewSimulation(g, Options{Threshold: 0.5, Iterations: 1}, nil); err == nil {
		t.Error("expected error for nil rng")
	}
}

func TestCheckInvariants_PanicsOnDrift(t *testing.T) {
	sim := newSim(t, rows(t, []grid.Cell{A, E, B}), Options{Threshold: 0.5, Iterations: 1}, 1)
	sim.Grid = rows(t, []grid.Cell{A, A, B})

	defer func() {
		r := recover()
		v, ok := r.(*InvariantViolation)
		if !ok {
			t.Fatalf("expected *InvariantViolation panic, got %v", r)
		}
		if v.Error() == "" {
			t.Error("empty violation message")
		}
	}()
	sim.checkInvariants()
}

func TestOptionsFrom(t *testing.T) {
	cfg := config.Default()
	cfg.SameNeighbour = 0.7
	cfg.Iterations = 12
	cfg.Workers = 3

	opts := OptionsFrom(cfg, nil)
	if opts.Threshold != 0.7 || opts.Iterations != 12 || opts.Workers != 3 || opts.MaxRounds != cfg.MaxRounds {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestMultiSink(t *testing.T) {
	var calls []string
	m := MultiSink{
		SinkFunc(func(i int, v grid.View, pct float64) { calls = append(calls, "first") }),
		nil,
		SinkFunc(func(i int, v grid.View, pct float64) { calls = append(calls, "second") }),
	}
	m.Snapshot(0, grid.New(1, 1), 100)
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("calls = %v", calls)
	}
}

func TestStateString(t *testing.T) {
	if ConvergedHappy.String() != "ConvergedHappy" || MaxIterationsReached.String() != "MaxIterationsReached" {
		t.Error("unexpected state names")
	}
	if State(99).String() != "Unknown" {
		t.Error("unknown state should stringify as Unknown")
	}
}
