package grid

import (
	"fmt"
	"iter"
	"strings"
)

// View is read-only access to a grid. The evaluator and snapshot sinks only
// ever see a View; mutation goes through *Grid.Move.
type View interface {
	Width() int
	Height() int
	Get(x, y int) Cell
	Neighbors(x, y int) []Coord
	OccupiedCells() iter.Seq[Coord]
	Counts() map[Cell]int
}

// Grid holds the complete cell state.
type Grid struct {
	width  int
	height int
	cells  []Cell
}

// New creates a width x height grid with every cell Empty.
func New(width, height int) *Grid {
	g := &Grid{
		width:  width,
		height: height,
		cells:  make([]Cell, width*height),
	}
	for i := range g.cells {
		g.cells[i] = Empty
	}
	return g
}

// FromRows builds a grid from rows of equal length. Used by tests and decoders.
func FromRows(rows [][]Cell) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("grid must have at least one row and column")
	}
	g := New(len(rows[0]), len(rows))
	for y, row := range rows {
		if len(row) != g.width {
			return nil, fmt.Errorf("row %d has %d cells, want %d", y, len(row), g.width)
		}
		copy(g.cells[y*g.width:], row)
	}
	return g, nil
}

// Width returns the number of columns.
func (g *Grid) Width() int {
	return g.width
}

// Height returns the number of rows.
func (g *Grid) Height() int {
	return g.height
}

// Size returns the total number of cells.
func (g *Grid) Size() int {
	return len(g.cells)
}

// InBounds returns true if the coordinate lies on the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.width && y < g.height
}

// Get returns the cell at (x, y). Out-of-bounds coordinates read as Empty.
func (g *Grid) Get(x, y int) Cell {
	if !g.InBounds(x, y) {
		return Empty
	}
	return g.cells[y*g.width+x]
}

// Neighbors returns the in-bounds Moore neighbours of (x, y), row-major.
// There is no wraparound.
func (g *Grid) Neighbors(x, y int) []Coord {
	result := make([]Coord, 0, len(MooreOffsets))
	for _, off := range MooreOffsets {
		nx, ny := x+off.X, y+off.Y
		if g.InBounds(nx, ny) {
			result = append(result, Coord{X: nx, Y: ny})
		}
	}
	return result
}

// OccupiedCells yields the coordinates of every occupied cell in row-major
// order. The sequence is lazy and can be ranged over repeatedly.
func (g *Grid) OccupiedCells() iter.Seq[Coord] {
	return func(yield func(Coord) bool) {
		for i, c := range g.cells {
			if c == Empty {
				continue
			}
			if !yield(Coord{X: i % g.width, Y: i / g.width}) {
				return
			}
		}
	}
}

// EmptyCells returns the coordinates of every empty cell in row-major order.
func (g *Grid) EmptyCells() []Coord {
	var result []Coord
	for i, c := range g.cells {
		if c == Empty {
			result = append(result, Coord{X: i % g.width, Y: i / g.width})
		}
	}
	return result
}

// Counts returns how many cells hold each value, Empty included.
func (g *Grid) Counts() map[Cell]int {
	counts := make(map[Cell]int)
	for _, c := range g.cells {
		counts[c]++
	}
	return counts
}

// Move relocates the agent at from into the empty cell to, leaving from Empty.
// It panics if from is empty or to is occupied.
func (g *Grid) Move(from, to Coord) {
	src := g.index(from)
	dst := g.index(to)
	if g.cells[src] == Empty {
		panic(fmt.Sprintf("grid: move from empty cell %v", from))
	}
	if g.cells[dst] != Empty {
		panic(fmt.Sprintf("grid: move into occupied cell %v", to))
	}
	g.cells[dst] = g.cells[src]
	g.cells[src] = Empty
}

// Clone returns an independent copy of the grid.
func (g *Grid) Clone() *Grid {
	cells := make([]Cell, len(g.cells))
	copy(cells, g.cells)
	return &Grid{width: g.width, height: g.height, cells: cells}
}

// Equal reports whether two grids have the same dimensions and cells.
func (g *Grid) Equal(other *Grid) bool {
	if g.width != other.width || g.height != other.height {
		return false
	}
	for i := range g.cells {
		if g.cells[i] != other.cells[i] {
			return false
		}
	}
	return true
}

// String renders the grid one row per line, see Cell.Rune.
func (g *Grid) String() string {
	return Format(g)
}

func (g *Grid) index(c Coord) int {
	if !g.InBounds(c.X, c.Y) {
		panic(fmt.Sprintf("grid: coordinate %v out of bounds (%dx%d)", c, g.width, g.height))
	}
	return c.Y*g.width + c.X
}

// Format renders any View one row per line.
func Format(v View) string {
	var b strings.Builder
	b.Grow((v.Width() + 1) * v.Height())
	for y := 0; y < v.Height(); y++ {
		for x := 0; x < v.Width(); x++ {
			b.WriteRune(v.Get(x, y).Rune())
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Encode packs a View into one byte per cell, row-major. Empty is 0 and agent
// type k is k+1.
func Encode(v View) []byte {
	out := make([]byte, 0, v.Width()*v.Height())
	for y := 0; y < v.Height(); y++ {
		for x := 0; x < v.Width(); x++ {
			out = append(out, byte(v.Get(x, y)+1))
		}
	}
	return out
}

// Decode is the inverse of Encode.
func Decode(width, height int, data []byte) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("have %d cells, want %d", len(data), width*height)
	}
	g := New(width, height)
	for i, b := range data {
		if b > 128 {
			return nil, fmt.Errorf("cell %d: value %d out of range", i, b)
		}
		g.cells[i] = Cell(int(b) - 1)
	}
	return g, nil
}
