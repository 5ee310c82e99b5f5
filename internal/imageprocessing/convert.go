package imageprocessing

import (
	"image"

	"github.com/rmitchellscott/inkprep/internal/display"
)

// FromImage flattens any image into an RGB PixelBuffer. Transparent areas
// are composited onto white, the color of unpainted e-paper.
func FromImage(img image.Image) PixelBuffer {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	buf := PixelBuffer{Width: width, Height: height, Pix: make([]uint8, width*height*Channels)}

	// Fast path for the common decoded form
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < height; y++ {
			row := rgba.Pix[rgba.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			out := buf.Pix[y*width*Channels:]
			for x := 0; x < width; x++ {
				s := row[x*4 : x*4+4]
				under := 0xff - s[3]
				out[x*3] = s[0] + under
				out[x*3+1] = s[1] + under
				out[x*3+2] = s[2] + under
			}
		}
		return buf
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			// Premultiplied 16-bit: c + (1-a)*white
			r, g, b, a := img.At(x, y).RGBA()
			under := 0xffff - a
			buf.Pix[i] = uint8((r + under) >> 8)
			buf.Pix[i+1] = uint8((g + under) >> 8)
			buf.Pix[i+2] = uint8((b + under) >> 8)
			i += Channels
		}
	}
	return buf
}

// ToRGBA expands the buffer into an opaque *image.RGBA.
func (b PixelBuffer) ToRGBA() *image.RGBA {
	rgba := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	for i, j := 0, 0; i+2 < len(b.Pix); i, j = i+Channels, j+4 {
		rgba.Pix[j] = b.Pix[i]
		rgba.Pix[j+1] = b.Pix[i+1]
		rgba.Pix[j+2] = b.Pix[i+2]
		rgba.Pix[j+3] = 0xff
	}
	return rgba
}

// regionRGBA expands only region of the buffer into an opaque *image.RGBA
// whose bounds start at the origin.
func (b PixelBuffer) regionRGBA(region CropRegion) *image.RGBA {
	rgba := image.NewRGBA(image.Rect(0, 0, region.Width, region.Height))
	for y := 0; y < region.Height; y++ {
		i := b.offset(region.X, region.Y+y)
		j := y * rgba.Stride
		for x := 0; x < region.Width; x, i, j = x+1, i+Channels, j+4 {
			rgba.Pix[j] = b.Pix[i]
			rgba.Pix[j+1] = b.Pix[i+1]
			rgba.Pix[j+2] = b.Pix[i+2]
			rgba.Pix[j+3] = 0xff
		}
	}
	return rgba
}

// ToPaletted builds a paletted image from hardware palette indices.
func ToPaletted(indices []uint8, width, height int, palette display.Palette) *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, width, height), palette.ColorPalette())
	copy(img.Pix, indices)
	return img
}

// FromIndices expands palette indices back into RGB samples.
func FromIndices(indices []uint8, width, height int, palette display.Palette) PixelBuffer {
	buf := PixelBuffer{Width: width, Height: height, Pix: make([]uint8, width*height*Channels)}
	for i, idx := range indices {
		c := palette.At(int(idx))
		buf.Pix[i*3], buf.Pix[i*3+1], buf.Pix[i*3+2] = c.R, c.G, c.B
	}
	return buf
}

// PalettedIndices returns the index plane of p, compacted to a tight
// row-major slice.
func PalettedIndices(p *image.Paletted) []uint8 {
	b := p.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, 0, w*h)
	for y := 0; y < h; y++ {
		start := p.PixOffset(b.Min.X, b.Min.Y+y)
		out = append(out, p.Pix[start:start+w]...)
	}
	return out
}
