package display

import (
	"fmt"
	"image/color"
)

// RGB is one palette entry.
type RGB struct {
	R, G, B uint8
}

// RGBA implements color.Color.
func (c RGB) RGBA() (r, g, b, a uint32) {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}.RGBA()
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// PaletteName identifies one of the fixed hardware palettes.
type PaletteName string

const (
	PaletteBlack       PaletteName = "black"
	PaletteRed         PaletteName = "red"
	PaletteYellow      PaletteName = "yellow"
	PaletteSevenColour PaletteName = "7Colour"
	PaletteSpectra     PaletteName = "spectra"
)

// Palette is an ordered set of colors a panel can show. The position of a
// color is the index the driver writes for it, so order is part of the
// hardware contract.
type Palette struct {
	name   PaletteName
	colors []RGB
}

func newPalette(name PaletteName, colors ...RGB) Palette {
	seen := make(map[RGB]struct{}, len(colors))
	for _, c := range colors {
		if _, dup := seen[c]; dup {
			panic(fmt.Sprintf("display: palette %s repeats color %s", name, c))
		}
		seen[c] = struct{}{}
	}
	return Palette{name: name, colors: colors}
}

// NewPalette builds a palette outside the registry. It rejects empty
// palettes, more than 7 colors and duplicates.
func NewPalette(name PaletteName, colors ...RGB) (Palette, error) {
	if len(colors) == 0 {
		return Palette{}, fmt.Errorf("palette %q has no colors", name)
	}
	if len(colors) > MaxPaletteColors {
		return Palette{}, fmt.Errorf("palette %q has %d colors, max %d", name, len(colors), MaxPaletteColors)
	}
	seen := make(map[RGB]struct{}, len(colors))
	for _, c := range colors {
		if _, dup := seen[c]; dup {
			return Palette{}, fmt.Errorf("palette %q repeats color %s", name, c)
		}
		seen[c] = struct{}{}
	}
	return Palette{name: name, colors: append([]RGB(nil), colors...)}, nil
}

// MaxPaletteColors is the largest palette any supported panel has.
const MaxPaletteColors = 7

func (p Palette) Name() PaletteName { return p.name }

// Len returns the number of colors.
func (p Palette) Len() int { return len(p.colors) }

// At returns the color at hardware index i.
func (p Palette) At(i int) RGB { return p.colors[i] }

// Colors returns a copy of the ordered colors.
func (p Palette) Colors() []RGB {
	return append([]RGB(nil), p.colors...)
}

// Index returns the hardware index of c, or -1.
func (p Palette) Index(c RGB) int {
	for i, pc := range p.colors {
		if pc == c {
			return i
		}
	}
	return -1
}

// Contains reports whether c is one of the palette colors.
func (p Palette) Contains(c RGB) bool {
	return p.Index(c) >= 0
}

// ColorPalette converts to the standard library palette type, preserving
// order.
func (p Palette) ColorPalette() color.Palette {
	out := make(color.Palette, len(p.colors))
	for i, c := range p.colors {
		out[i] = color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
	}
	return out
}

var (
	white = RGB{255, 255, 255}
	black = RGB{0, 0, 0}
)

// Index order follows the Inky driver constants: pHAT panels use
// WHITE=0, BLACK=1, accent=2; the 7-colour Impression panels use
// BLACK, WHITE, GREEN, BLUE, RED, YELLOW, ORANGE.
var palettes = map[PaletteName]Palette{
	PaletteBlack:  newPalette(PaletteBlack, white, black),
	PaletteRed:    newPalette(PaletteRed, white, black, RGB{255, 0, 0}),
	PaletteYellow: newPalette(PaletteYellow, white, black, RGB{255, 255, 0}),
	PaletteSevenColour: newPalette(PaletteSevenColour,
		RGB{28, 24, 28},    // black
		RGB{255, 255, 255}, // white
		RGB{29, 173, 35},   // green
		RGB{30, 29, 174},   // blue
		RGB{205, 36, 37},   // red
		RGB{231, 222, 35},  // yellow
		RGB{216, 123, 36},  // orange
	),
	PaletteSpectra: newPalette(PaletteSpectra,
		black,
		white,
		RGB{255, 255, 0}, // yellow
		RGB{255, 0, 0},   // red
		RGB{0, 0, 255},   // blue
		RGB{0, 255, 0},   // green
	),
}

// PaletteByName looks up one of the fixed palettes.
func PaletteByName(name PaletteName) (Palette, bool) {
	p, ok := palettes[name]
	return p, ok
}
