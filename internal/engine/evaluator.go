// Package engine runs the segregation model: happiness evaluation, relocation
// of unhappy agents, and the round loop that ties them together.
package engine

import (
	"fmt"
	"sync"

	"github.com/SkyeWong/social-segregation-simulator/internal/grid"
)

// HappinessReport aggregates one round's evaluation.
type HappinessReport struct {
	Occupied int          `json:"occupied"`
	Happy    int          `json:"happy"`
	Unhappy  []grid.Coord `json:"-"` // Row-major discovery order
}

// Percentage returns the share of occupied cells that are happy, 0–100.
// A grid with no agents counts as fully happy.
func (r HappinessReport) Percentage() float64 {
	if r.Occupied == 0 {
		return 100
	}
	return float64(r.Happy) / float64(r.Occupied) * 100
}

// Converged is true when every occupied cell is happy.
func (r HappinessReport) Converged() bool {
	return r.Happy == r.Occupied
}

// IsHappy classifies the agent at (x, y) against the homophily threshold.
// Only occupied neighbours count toward the ratio; an agent with none is happy.
// A ratio exactly equal to the threshold is happy. Panics on an empty cell.
func IsHappy(v grid.View, x, y int, threshold float64) bool {
	self := v.Get(x, y)
	if self == grid.Empty {
		panic(fmt.Sprintf("engine: IsHappy called on empty cell (%d,%d)", x, y))
	}

	occupied, same := 0, 0
	for _, n := range v.Neighbors(x, y) {
		c := v.Get(n.X, n.Y)
		if c == grid.Empty {
			continue
		}
		occupied++
		if c == self {
			same++
		}
	}

	if occupied == 0 {
		return true
	}
	return float64(same)/float64(occupied) >= threshold
}

// EvaluateAll visits every occupied cell once in row-major order.
func EvaluateAll(v grid.View, threshold float64) HappinessReport {
	var r HappinessReport
	for c := range v.OccupiedCells() {
		r.Occupied++
		if IsHappy(v, c.X, c.Y, threshold) {
			r.Happy++
		} else {
			r.Unhappy = append(r.Unhappy, c)
		}
	}
	return r
}

// EvaluateAllParallel splits the rows across workers goroutines. Evaluation
// only reads the grid; partial results are merged back in row order so the
// report is identical to EvaluateAll.
func EvaluateAllParallel(v grid.View, threshold float64, workers int) HappinessReport {
	height := v.Height()
	if workers > height {
		workers = height
	}
	if workers <= 1 {
		return EvaluateAll(v, threshold)
	}

	parts := make([]HappinessReport, workers)
	rowsPer := (height + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * rowsPer
		end := min(start+rowsPer, height)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(part *HappinessReport, start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				for x := 0; x < v.Width(); x++ {
					if v.Get(x, y) == grid.Empty {
						continue
					}
					part.Occupied++
					if IsHappy(v, x, y, threshold) {
						part.Happy++
					} else {
						part.Unhappy = append(part.Unhappy, grid.Coord{X: x, Y: y})
					}
				}
			}
		}(&parts[w], start, end)
	}
	wg.Wait()

	var r HappinessReport
	for _, p := range parts {
		r.Occupied += p.Occupied
		r.Happy += p.Happy
		r.Unhappy = append(r.Unhappy, p.Unhappy...)
	}
	return r
}
