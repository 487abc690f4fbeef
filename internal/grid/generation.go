package grid

import (
	"math"
	"math/rand"

	"github.com/SkyeWong/social-segregation-simulator/internal/config"
)

// Params holds the grid generation parameters.
type Params struct {
	Width        int
	Height       int
	NumColours   int
	PercentEmpty float64
}

// ParamsFrom extracts grid parameters from a run configuration.
func ParamsFrom(cfg *config.Config) Params {
	return Params{
		Width:        cfg.Width,
		Height:       cfg.Height,
		NumColours:   cfg.NumColours,
		PercentEmpty: cfg.PercentEmpty,
	}
}

// EmptyCount returns the exact number of empty cells a grid is generated
// with: round(percentEmpty * width * height).
func EmptyCount(width, height int, percentEmpty float64) int {
	return config.EmptyCells(width, height, percentEmpty)
}

// Initialize creates a grid holding exactly EmptyCount empty cells, with agent
// types drawn uniformly for the rest, in a random permutation from rng.
func Initialize(p Params, rng *rand.Rand) (*Grid, error) {
	if p.Width <= 0 {
		return nil, config.Invalid("width", p.Width, "must be positive")
	}
	if p.Height <= 0 {
		return nil, config.Invalid("height", p.Height, "must be positive")
	}
	if p.NumColours < 1 || p.NumColours > config.MaxColours {
		return nil, config.Invalid("num_colours", p.NumColours, "must be between 1 and 127")
	}
	if math.IsNaN(p.PercentEmpty) || p.PercentEmpty < 0 || p.PercentEmpty > 1 {
		return nil, config.Invalid("percent_empty", p.PercentEmpty, "must be between 0 and 1")
	}

	g := New(p.Width, p.Height)
	numEmpty := EmptyCount(p.Width, p.Height, p.PercentEmpty)

	// The first numEmpty cells stay Empty, the rest get a type; the shuffle
	// then scatters this fixed multiset.
	for i := numEmpty; i < len(g.cells); i++ {
		g.cells[i] = Cell(rng.Intn(p.NumColours))
	}
	rng.Shuffle(len(g.cells), func(i, j int) {
		g.cells[i], g.cells[j] = g.cells[j], g.cells[i]
	})

	return g, nil
}
