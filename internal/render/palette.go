// Package render turns grid snapshots into PNG frames and an animated GIF.
// It is a snapshot sink only; it never drives or mutates the simulation.
package render

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"strings"
)

// EmptyColour is used for unoccupied cells.
var EmptyColour = color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}

// DefaultPalette is used when a palette name is not recognised.
const DefaultPalette = "GnBu"

type scheme struct {
	stops       []color.RGBA
	qualitative bool // Colours are picked in order instead of interpolated
}

var schemes = map[string]scheme{
	"gnbu":    {stops: hexes("f7fcf0", "e0f3db", "ccebc5", "a8ddb5", "7bccc4", "4eb3d3", "2b8cbe", "0868ac", "084081")},
	"greys":   {stops: hexes("ffffff", "000000")},
	"viridis": {stops: hexes("440154", "3b528b", "21918c", "5ec962", "fde725")},
	"magma":   {stops: hexes("000004", "3b0f70", "8c2981", "de4968", "fe9f6d", "fcfdbf")},
	"set1":    {stops: hexes("e41a1c", "377eb8", "4daf4a", "984ea3", "ff7f00", "ffff33", "a65628", "f781bf", "999999"), qualitative: true},
}

// Palettes returns the names accepted by Colours.
func Palettes() []string {
	return []string{"GnBu", "Greys", "Viridis", "Magma", "Set1"}
}

// Known reports whether name is a recognised palette (case-insensitive).
func Known(name string) bool {
	_, ok := schemes[strings.ToLower(name)]
	return ok
}

// Colours returns the colour table for a grid with n agent types: index 0 is
// EmptyColour and index k+1 is agent type k. Unknown names use DefaultPalette.
// Sequential schemes place type k at (k+2)/(n+1) along the gradient so the
// lightest end is reserved for contrast with empty cells.
func Colours(name string, n int) color.Palette {
	s, ok := schemes[strings.ToLower(name)]
	if !ok {
		s = schemes[strings.ToLower(DefaultPalette)]
	}

	pal := make(color.Palette, 0, n+1)
	pal = append(pal, EmptyColour)
	for k := 0; k < n; k++ {
		if s.qualitative {
			pal = append(pal, s.stops[k%len(s.stops)])
			continue
		}
		pal = append(pal, gradient(s.stops, float64(k+2)/float64(n+1)))
	}
	return pal
}

// gradient linearly interpolates between evenly spaced stops, t in [0, 1].
func gradient(stops []color.RGBA, t float64) color.RGBA {
	if t <= 0 {
		return stops[0]
	}
	if t >= 1 {
		return stops[len(stops)-1]
	}
	pos := t * float64(len(stops)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, b := stops[i], stops[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*frac + 0.5)
	}
	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 0xff}
}

// hexes parses "rrggbb" literals. It panics on a malformed literal.
func hexes(codes ...string) []color.RGBA {
	out := make([]color.RGBA, len(codes))
	for i, c := range codes {
		b, err := hex.DecodeString(c)
		if err != nil || len(b) != 3 {
			panic(fmt.Sprintf("render: bad colour literal %q", c))
		}
		out[i] = color.RGBA{R: b[0], G: b[1], B: b[2], A: 0xff}
	}
	return out
}
