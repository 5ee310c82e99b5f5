package imageprocessing

import (
	"fmt"

	"github.com/rmitchellscott/inkprep/internal/display"
)

// Channels is the number of samples per pixel in a PixelBuffer.
const Channels = 3

// PixelBuffer is a dense row-major RGB raster. Stages of the pipeline take
// a buffer and return a new one; none of them write to their input.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewPixelBuffer allocates a zeroed (black) buffer.
func NewPixelBuffer(width, height int) (PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return PixelBuffer{}, fmt.Errorf("%w: %dx%d", ErrInvalidBuffer, width, height)
	}
	return PixelBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*Channels),
	}, nil
}

// Validate checks that the declared size matches the sample count.
func (b PixelBuffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: non-positive size %dx%d", ErrInvalidBuffer, b.Width, b.Height)
	}
	if want := b.Width * b.Height * Channels; len(b.Pix) != want {
		return fmt.Errorf("%w: %dx%d needs %d samples, have %d", ErrInvalidBuffer, b.Width, b.Height, want, len(b.Pix))
	}
	return nil
}

func (b PixelBuffer) offset(x, y int) int {
	return (y*b.Width + x) * Channels
}

// At returns the pixel at (x, y).
func (b PixelBuffer) At(x, y int) display.RGB {
	i := b.offset(x, y)
	return display.RGB{R: b.Pix[i], G: b.Pix[i+1], B: b.Pix[i+2]}
}

// Set writes the pixel at (x, y).
func (b PixelBuffer) Set(x, y int, c display.RGB) {
	i := b.offset(x, y)
	b.Pix[i], b.Pix[i+1], b.Pix[i+2] = c.R, c.G, c.B
}

// Fill sets every pixel to c.
func (b PixelBuffer) Fill(c display.RGB) {
	for i := 0; i+2 < len(b.Pix); i += Channels {
		b.Pix[i], b.Pix[i+1], b.Pix[i+2] = c.R, c.G, c.B
	}
}

// Clone returns a deep copy.
func (b PixelBuffer) Clone() PixelBuffer {
	return PixelBuffer{Width: b.Width, Height: b.Height, Pix: append([]uint8(nil), b.Pix...)}
}
