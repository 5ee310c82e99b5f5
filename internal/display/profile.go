package display

import (
	"fmt"
	"sort"
)

// Variant identifies a physical display model.
type Variant string

const (
	PHAT104       Variant = "phat104"
	PHAT122       Variant = "phat122"
	Impression400 Variant = "impression400"
	Impression448 Variant = "impression448"
	Impression480 Variant = "impression480"
	Spectra480    Variant = "spectra480"
	Spectra1200   Variant = "spectra1200"
)

// Profile is the constant (resolution, palette) pair of a variant.
type Profile struct {
	Variant  Variant
	Name     string
	Width    int
	Height   int
	Palette  Palette
	Palettes []PaletteName
}

type profileSpec struct {
	name      string
	width     int
	height    int
	supported []PaletteName // first entry is the default
}

var profiles = map[Variant]profileSpec{
	PHAT104:       {"Inky pHAT", 212, 104, []PaletteName{PaletteRed, PaletteYellow, PaletteBlack}},
	PHAT122:       {"Inky pHAT (SSD1608)", 250, 122, []PaletteName{PaletteRed, PaletteYellow, PaletteBlack}},
	Impression400: {`Inky Impression 4"`, 640, 400, []PaletteName{PaletteSevenColour}},
	Impression448: {`Inky Impression 5.7"`, 600, 448, []PaletteName{PaletteSevenColour}},
	Impression480: {`Inky Impression 7.3"`, 800, 480, []PaletteName{PaletteSevenColour}},
	Spectra480:    {`Inky Impression 7.3" (2025)`, 800, 480, []PaletteName{PaletteSpectra}},
	Spectra1200:   {`Inky Impression 13.3"`, 1600, 1200, []PaletteName{PaletteSpectra}},
}

func (s profileSpec) profile(v Variant) Profile {
	return Profile{
		Variant:  v,
		Name:     s.name,
		Width:    s.width,
		Height:   s.height,
		Palette:  palettes[s.supported[0]],
		Palettes: append([]PaletteName(nil), s.supported...),
	}
}

// PaletteFor returns the default palette of v. The variant set is closed;
// an unknown variant is a programming error and panics.
func PaletteFor(v Variant) Palette {
	return ProfileFor(v).Palette
}

// ProfileFor returns the profile of v, panicking on an unknown variant.
func ProfileFor(v Variant) Profile {
	p, ok := Lookup(v)
	if !ok {
		panic(fmt.Sprintf("display: unknown variant %q", v))
	}
	return p
}

// Lookup is the non-panicking form of ProfileFor for untrusted input.
func Lookup(v Variant) (Profile, bool) {
	spec, ok := profiles[v]
	if !ok {
		return Profile{}, false
	}
	return spec.profile(v), true
}

// ParseVariant validates a variant identifier coming from a request or flag.
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if _, ok := profiles[v]; !ok {
		return "", fmt.Errorf("unknown display variant %q", s)
	}
	return v, nil
}

// Variants lists the known variants in a stable order.
func Variants() []Variant {
	out := make([]Variant, 0, len(profiles))
	for v := range profiles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Supports reports whether the panel can be driven with the named palette.
func (p Profile) Supports(name PaletteName) bool {
	for _, n := range p.Palettes {
		if n == name {
			return true
		}
	}
	return false
}

// WithPalette returns a copy of p using an alternative supported palette.
// An empty name keeps the default.
func (p Profile) WithPalette(name PaletteName) (Profile, error) {
	if name == "" {
		return p, nil
	}
	if !p.Supports(name) {
		return Profile{}, fmt.Errorf("display %s does not support palette %q", p.Variant, name)
	}
	p.Palette = palettes[name]
	p.Palettes = append([]PaletteName(nil), p.Palettes...)
	return p, nil
}

// Resolve parses a variant and optional palette name in one step.
func Resolve(variant, palette string) (Profile, error) {
	v, err := ParseVariant(variant)
	if err != nil {
		return Profile{}, err
	}
	return ProfileFor(v).WithPalette(PaletteName(palette))
}
