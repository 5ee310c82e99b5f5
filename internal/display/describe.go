package display

// PaletteDescription lists a palette's colors as hex strings in hardware
// order.
type PaletteDescription struct {
	Name   PaletteName `json:"name" yaml:"name"`
	Colors []string    `json:"colors" yaml:"colors"`
}

// Description is the serialisable form of a Profile.
type Description struct {
	ID             Variant              `json:"id" yaml:"id"`
	Name           string               `json:"name" yaml:"name"`
	Width          int                  `json:"width" yaml:"width"`
	Height         int                  `json:"height" yaml:"height"`
	DefaultPalette PaletteName          `json:"default_palette" yaml:"default_palette"`
	Palettes       []PaletteDescription `json:"palettes" yaml:"palettes"`
}

func (p Profile) Describe() Description {
	d := Description{
		ID:             p.Variant,
		Name:           p.Name,
		Width:          p.Width,
		Height:         p.Height,
		DefaultPalette: p.Palette.Name(),
	}
	for _, name := range p.Palettes {
		palette := palettes[name]
		colors := make([]string, 0, palette.Len())
		for _, c := range palette.colors {
			colors = append(colors, c.String())
		}
		d.Palettes = append(d.Palettes, PaletteDescription{Name: name, Colors: colors})
	}
	return d
}

// DescribeAll describes every variant in Variants order.
func DescribeAll() []Description {
	variants := Variants()
	out := make([]Description, 0, len(variants))
	for _, v := range variants {
		out = append(out, ProfileFor(v).Describe())
	}
	return out
}
