package imageprocessing

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/rmitchellscott/inkprep/internal/display"
)

// gradient builds a deterministic buffer touching every channel value.
func gradient(t *testing.T, width, height int) PixelBuffer {
	t.Helper()
	buf, err := NewPixelBuffer(width, height)
	if err != nil {
		t.Fatalf("NewPixelBuffer: %v", err)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			buf.Set(x, y, display.RGB{
				R: uint8(x * 255 / max(width-1, 1)),
				G: uint8(y * 255 / max(height-1, 1)),
				B: uint8((x*7 + y*13) % 256),
			})
		}
	}
	return buf
}

func solid(t *testing.T, width, height int, c display.RGB) PixelBuffer {
	t.Helper()
	buf, err := NewPixelBuffer(width, height)
	if err != nil {
		t.Fatalf("NewPixelBuffer: %v", err)
	}
	buf.Fill(c)
	return buf
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return out.Bytes()
}

func mustPalette(t *testing.T, name display.PaletteName) display.Palette {
	t.Helper()
	p, ok := display.PaletteByName(name)
	if !ok {
		t.Fatalf("palette %s not registered", name)
	}
	return p
}

func rgbOf(c color.Color) display.RGB {
	r, g, b, _ := c.RGBA()
	return display.RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
}
