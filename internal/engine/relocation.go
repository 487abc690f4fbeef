package engine

import (
	"math/rand"

	"github.com/SkyeWong/social-segregation-simulator/internal/grid"
)

// Relocate moves each unhappy agent, in the given order, to a uniformly random
// cell that is empty at that moment. Moves are applied one after another: a
// destination leaves the candidate pool as soon as it is taken and the cell an
// agent leaves joins the pool for the agents after it. With no empty cell the
// call is a no-op. Returns the number of agents moved.
func Relocate(g *grid.Grid, unhappy []grid.Coord, rng *rand.Rand) int {
	pool := g.EmptyCells()
	moved := 0

	for _, from := range unhappy {
		if len(pool) == 0 {
			break
		}
		if g.Get(from.X, from.Y) == grid.Empty {
			continue
		}

		i := rng.Intn(len(pool))
		to := pool[i]
		pool[i] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]

		g.Move(from, to)
		pool = append(pool, from)
		moved++
	}

	return moved
}
