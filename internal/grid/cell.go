// Package grid provides the rectangular cell grid agents live on.
// Coordinates are (x, y) with x the column and y the row; storage is row-major.
package grid

import "fmt"

// Cell holds either Empty or an agent type in [0, num_colours).
type Cell int8

// Empty marks an unoccupied cell.
const Empty Cell = -1

// Occupied returns true if an agent lives in the cell.
func (c Cell) Occupied() bool {
	return c != Empty
}

// Rune returns the single-character form used by String: '.' for empty,
// 'A', 'B', ... for agent types, '#' past 'Z'.
func (c Cell) Rune() rune {
	switch {
	case c == Empty:
		return '.'
	case c >= 0 && c < 26:
		return 'A' + rune(c)
	default:
		return '#'
	}
}

func (c Cell) String() string {
	if c == Empty {
		return "Empty"
	}
	return fmt.Sprintf("Agent(%d)", int(c))
}

// Coord is a position on the grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// MooreOffsets are the eight neighbour offsets, in row-major order.
var MooreOffsets = [8]Coord{
	{X: -1, Y: -1}, {X: 0, Y: -1}, {X: 1, Y: -1},
	{X: -1, Y: 0}, {X: 1, Y: 0},
	{X: -1, Y: 1}, {X: 0, Y: 1}, {X: 1, Y: 1},
}
