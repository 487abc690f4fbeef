package engine

import (
	"math/rand"
	"testing"

	"github.com/SkyeWong/social-segregation-simulator/internal/grid"
)

func sameCounts(a, b map[grid.Cell]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func TestRelocate_ConservesPopulation(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	g := randomGrid(t, 30, 30, 3, 0.2, 9)
	before := g.Counts()

	for round := 0; round < 10; round++ {
		r := EvaluateAll(g, 0.6)
		moved := Relocate(g, r.Unhappy, rng)
		if moved != len(r.Unhappy) {
			t.Errorf("round %d: moved %d of %d unhappy agents", round, moved, len(r.Unhappy))
		}
		if !sameCounts(before, g.Counts()) {
			t.Fatalf("round %d: counts changed from %v to %v", round, before, g.Counts())
		}
	}
}

// Moves within a round are sequential: the cell the first agent leaves is the
// only destination left for the second.
func TestRelocate_SequentialWithinRound(t *testing.T) {
	for seed := int64(0); seed < 10; seed++ {
		g := rows(t, []grid.Cell{A, B, E})
		unhappy := []grid.Coord{{X: 0, Y: 0}, {X: 1, Y: 0}}

		moved := Relocate(g, unhappy, rand.New(rand.NewSource(seed)))
		if moved != 2 {
			t.Fatalf("seed %d: moved %d, want 2", seed, moved)
		}
		want := rows(t, []grid.Cell{B, E, A})
		if !g.Equal(want) {
			t.Errorf("seed %d: got %q, want %q", seed, g.String(), want.String())
		}
	}
}

func TestRelocate_AgentNeverStaysInPlace(t *testing.T) {
	g := randomGrid(t, 15, 15, 2, 0.3, 4)
	r := EvaluateAll(g, 0.7)
	if len(r.Unhappy) == 0 {
		t.Fatal("expected unhappy agents in test grid")
	}
	before := g.Clone()
	Relocate(g, r.Unhappy[:1], rand.New(rand.NewSource(4)))

	src := r.Unhappy[0]
	if g.Get(src.X, src.Y) != grid.Empty {
		t.Errorf("source %v should be empty after a single move", src)
	}
	changed := 0
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			if g.Get(x, y) != before.Get(x, y) {
				changed++
			}
		}
	}
	if changed != 2 {
		t.Errorf("a single move should change exactly 2 cells, changed %d", changed)
	}
}

func TestRelocate_NoEmptyCellsIsNoop(t *testing.T) {
	g := rows(t, []grid.Cell{A, B}, []grid.Cell{B, A})
	before := g.Clone()
	unhappy := []grid.Coord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}

	if moved := Relocate(g, unhappy, rand.New(rand.NewSource(1))); moved != 0 {
		t.Errorf("moved %d agents on a full grid", moved)
	}
	if !g.Equal(before) {
		t.Error("full grid changed during relocation")
	}
}

func TestRelocate_NoUnhappy(t *testing.T) {
	g := rows(t, []grid.Cell{A, E, B})
	before := g.Clone()
	if moved := Relocate(g, nil, rand.New(rand.NewSource(1))); moved != 0 {
		t.Errorf("moved %d with no unhappy agents", moved)
	}
	if !g.Equal(before) {
		t.Error("grid changed with no unhappy agents")
	}
}

func TestRelocate_Deterministic(t *testing.T) {
	g1 := randomGrid(t, 20, 20, 2, 0.4, 11)
	g2 := g1.Clone()
	r := EvaluateAll(g1, 0.5)

	Relocate(g1, r.Unhappy, rand.New(rand.NewSource(5)))
	Relocate(g2, r.Unhappy, rand.New(rand.NewSource(5)))
	if !g1.Equal(g2) {
		t.Error("same seed produced different relocations")
	}
}
