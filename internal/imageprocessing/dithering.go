package imageprocessing

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/makeworld-the-better-one/dither/v2"

	"github.com/rmitchellscott/inkprep/internal/display"
)

// Method selects the quantization algorithm.
type Method string

const (
	// MethodFloydSteinberg is the native, bit-exact error diffuser and the
	// default. The other methods are delegated to the dither library.
	MethodFloydSteinberg Method = "floyd-steinberg"
	MethodAtkinson       Method = "atkinson"
	MethodStucki         Method = "stucki"
	MethodSierra         Method = "sierra"
	MethodJarvis         Method = "jarvis-judice-ninke"
	MethodBayer          Method = "bayer"
)

var libraryMatrices = map[Method]dither.ErrorDiffusionMatrix{
	MethodAtkinson: dither.Atkinson,
	MethodStucki:   dither.Stucki,
	MethodSierra:   dither.Sierra,
	MethodJarvis:   dither.JarvisJudiceNinke,
}

// ParseMethod validates a method name. The empty string selects
// Floyd-Steinberg.
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	switch m {
	case "":
		return MethodFloydSteinberg, nil
	case MethodFloydSteinberg, MethodBayer:
		return m, nil
	}
	if _, ok := libraryMatrices[m]; ok {
		return m, nil
	}
	return "", fmt.Errorf("unknown dither method %q", s)
}

// Methods lists the supported methods, default first.
func Methods() []Method {
	out := []Method{MethodFloydSteinberg, MethodBayer}
	for m := range libraryMatrices {
		out = append(out, m)
	}
	sort.Slice(out[2:], func(i, j int) bool { return out[2+i] < out[2+j] })
	return out
}

// Error is accumulated in fixed point, 1/256 of a channel level per unit.
// Integer arithmetic keeps the output bit-identical across architectures.
const (
	fixedShift = 8
	fixedOne   = 1 << fixedShift
	fixedMax   = 255 << fixedShift
)

// Quantize maps every pixel of buf to a color of palette using
// Floyd-Steinberg error diffusion. The result contains only palette colors.
func Quantize(buf PixelBuffer, palette display.Palette) (PixelBuffer, error) {
	indices, err := QuantizeIndexed(buf, palette)
	if err != nil {
		return PixelBuffer{}, err
	}
	return FromIndices(indices, buf.Width, buf.Height, palette), nil
}

// QuantizeIndexed is Quantize returning hardware palette indices, one per
// pixel in row-major order.
func QuantizeIndexed(buf PixelBuffer, palette display.Palette) ([]uint8, error) {
	indices, _, err := floydSteinberg(buf, palette)
	return indices, err
}

// floydSteinberg runs a single row-major pass:
//
//  1. working color = source + diffused error, clamped to [0,255]
//  2. nearest palette color by squared RGB distance, lowest index on ties
//  3. error = working - chosen, spread 7/16 right, 3/16 below-left,
//     5/16 below, 1/16 below-right; shares falling outside the image are
//     dropped
//
// Only two rows of error are live at any time. The returned residual is the
// summed signed error per channel in fixed-point units.
func floydSteinberg(buf PixelBuffer, palette display.Palette) ([]uint8, [Channels]int64, error) {
	var residual [Channels]int64
	if palette.Len() == 0 {
		return nil, residual, fmt.Errorf("%w: palette %q is empty", ErrInvalidPalette, palette.Name())
	}
	if err := buf.Validate(); err != nil {
		return nil, residual, err
	}

	colors := make([][Channels]int32, palette.Len())
	for i := range colors {
		c := palette.At(i)
		colors[i] = [Channels]int32{int32(c.R) << fixedShift, int32(c.G) << fixedShift, int32(c.B) << fixedShift}
	}

	width, height := buf.Width, buf.Height
	indices := make([]uint8, width*height)
	cur := make([]int32, width*Channels)
	next := make([]int32, width*Channels)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := (y*width + x) * Channels
			e := x * Channels

			var working [Channels]int32
			for c := 0; c < Channels; c++ {
				v := int32(buf.Pix[p+c])<<fixedShift + cur[e+c]
				working[c] = min(max(v, 0), fixedMax)
			}

			best := nearest(working, colors)
			indices[y*width+x] = uint8(best)

			for c := 0; c < Channels; c++ {
				qe := working[c] - colors[best][c]
				if qe == 0 {
					continue
				}
				residual[c] += int64(qe)

				// Integer shares, remainder to the last so the split sums to qe
				right := qe * 7 / 16
				belowLeft := qe * 3 / 16
				below := qe * 5 / 16
				belowRight := qe - right - belowLeft - below

				if x+1 < width {
					cur[e+Channels+c] += right
				}
				if y+1 < height {
					if x > 0 {
						next[e-Channels+c] += belowLeft
					}
					next[e+c] += below
					if x+1 < width {
						next[e+Channels+c] += belowRight
					}
				}
			}
		}
		cur, next = next, cur
		clear(next)
	}

	return indices, residual, nil
}

// nearest returns the index of the palette color closest to working.
// Strict comparison keeps the lowest index on equal distances.
func nearest(working [Channels]int32, colors [][Channels]int32) int {
	best := 0
	bestDist := int64(-1)
	for i, pc := range colors {
		var d int64
		for c := 0; c < Channels; c++ {
			diff := int64(working[c] - pc[c])
			d += diff * diff
		}
		if bestDist < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// NearestIndex returns the palette index closest to c with the same
// tie-break as the ditherer.
func NearestIndex(c display.RGB, palette display.Palette) int {
	colors := make([][Channels]int32, palette.Len())
	for i := range colors {
		pc := palette.At(i)
		colors[i] = [Channels]int32{int32(pc.R), int32(pc.G), int32(pc.B)}
	}
	return nearest([Channels]int32{int32(c.R), int32(c.G), int32(c.B)}, colors)
}

// QuantizeWithMethod dispatches to the native ditherer or the dither
// library and returns palette indices.
func QuantizeWithMethod(buf PixelBuffer, palette display.Palette, method Method) ([]uint8, error) {
	if method == "" || method == MethodFloydSteinberg {
		return QuantizeIndexed(buf, palette)
	}
	if palette.Len() == 0 {
		return nil, fmt.Errorf("%w: palette %q is empty", ErrInvalidPalette, palette.Name())
	}
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	d := dither.NewDitherer(palette.ColorPalette())
	if d == nil {
		return nil, fmt.Errorf("%w: dither library rejected palette %q", ErrInvalidPalette, palette.Name())
	}
	if method == MethodBayer {
		d.Mapper = dither.Bayer(4, 4, 1.0)
	} else {
		matrix, ok := libraryMatrices[method]
		if !ok {
			return nil, fmt.Errorf("%w: unknown dither method %q", ErrInvalidPalette, method)
		}
		d.Matrix = matrix
	}
	paletted := d.DitherPaletted(buf.ToRGBA())
	return remapIndices(PalettedIndices(paletted), paletted.Palette, palette)
}

// remapIndices translates indices of a library palette back to hardware
// order, guarding against any reordering done by the library.
func remapIndices(pix []uint8, libPalette color.Palette, palette display.Palette) ([]uint8, error) {
	lookup := make([]uint8, len(libPalette))
	for i, c := range libPalette {
		r, g, b, _ := c.RGBA()
		idx := palette.Index(display.RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)})
		if idx < 0 {
			return nil, fmt.Errorf("%w: dither library produced off-palette color", ErrWorkerFailure)
		}
		lookup[i] = uint8(idx)
	}
	out := make([]uint8, len(pix))
	for i, v := range pix {
		out[i] = lookup[v]
	}
	return out, nil
}
