package imageprocessing

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/rmitchellscott/inkprep/internal/display"
)

func sourcePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	return encodePNG(t, gradient(t, width, height).ToRGBA())
}

func TestPrepareProducesPanelReadyPNG(t *testing.T) {
	source := sourcePNG(t, 320, 200)

	for _, v := range []display.Variant{display.PHAT104, display.Impression400, display.Spectra480} {
		t.Run(string(v), func(t *testing.T) {
			profile := display.ProfileFor(v)
			out, err := Prepare(context.Background(), Request{Source: source, Profile: profile})
			if err != nil {
				t.Fatalf("Prepare: %v", err)
			}
			if out.Method != MethodFloydSteinberg {
				t.Errorf("method = %q, want default", out.Method)
			}

			img, err := png.Decode(bytes.NewReader(out.PNG))
			if err != nil {
				t.Fatalf("png.Decode: %v", err)
			}
			b := img.Bounds()
			if b.Dx() != profile.Width || b.Dy() != profile.Height {
				t.Fatalf("output %dx%d, want %dx%d", b.Dx(), b.Dy(), profile.Width, profile.Height)
			}
			for y := b.Min.Y; y < b.Max.Y; y++ {
				for x := b.Min.X; x < b.Max.X; x++ {
					if c := rgbOf(img.At(x, y)); !profile.Palette.Contains(c) {
						t.Fatalf("pixel (%d,%d) = %s is off-palette", x, y, c)
					}
				}
			}
		})
	}
}

func TestPrepareIsDeterministic(t *testing.T) {
	source := sourcePNG(t, 300, 180)
	region := CropRegion{X: 20, Y: 10, Width: 250, Height: 122}
	req := Request{Source: source, Region: &region, Profile: display.ProfileFor(display.PHAT122)}

	a, err := Prepare(context.Background(), req)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	b, err := Prepare(context.Background(), req)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !bytes.Equal(a.PNG, b.PNG) {
		t.Fatal("identical requests produced different PNG bytes")
	}
	if a.Hash() != b.Hash() {
		t.Fatal("identical outputs hashed differently")
	}
	if a.Region != region {
		t.Errorf("region = %+v, want %+v", a.Region, region)
	}
}

func TestPrepareFailures(t *testing.T) {
	source := sourcePNG(t, 120, 80)
	profile := display.ProfileFor(display.PHAT104)
	outside := CropRegion{X: 100, Y: 0, Width: 50, Height: 50}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		req  Request
		want error
	}{
		{"crop outside source", context.Background(), Request{Source: source, Region: &outside, Profile: profile}, ErrInvalidGeometry},
		{"truncated png header", context.Background(), Request{Source: source[:20], Profile: profile}, ErrTruncatedInput},
		{"png ends after IHDR", context.Background(), Request{Source: source[:33], Profile: profile}, ErrTruncatedInput},
		{"not an image", context.Background(), Request{Source: []byte("hello, display"), Profile: profile}, ErrUnrecognizedFormat},
		{"source too large", context.Background(), Request{Source: source, Profile: profile, MaxPixels: 100}, ErrWorkerFailure},
		{"profile without palette", context.Background(), Request{Source: source, Profile: display.Profile{Width: 10, Height: 10}}, ErrInvalidPalette},
		{"cancelled", cancelled, Request{Source: source, Profile: profile}, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Prepare(tt.ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPrepareFlattensTransparencyOntoWhite(t *testing.T) {
	transparent := image.NewNRGBA(image.Rect(0, 0, 50, 40))
	for i := 0; i < len(transparent.Pix); i += 4 {
		transparent.Pix[i] = 255 // red, but fully transparent
	}
	profile := display.ProfileFor(display.PHAT104)

	out, err := Prepare(context.Background(), Request{Source: encodePNG(t, transparent), Profile: profile})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	white := uint8(profile.Palette.Index(display.RGB{R: 255, G: 255, B: 255}))
	for i, idx := range out.Indices {
		if idx != white {
			t.Fatalf("pixel %d = index %d, want white", i, idx)
		}
	}
}

func TestFromImageCompositesAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 0})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255})

	buf := FromImage(img)
	if got := buf.At(0, 0); got != (display.RGB{R: 255, G: 255, B: 255}) {
		t.Errorf("transparent pixel = %s, want white", got)
	}
	if got := buf.At(1, 0); got != (display.RGB{}) {
		t.Errorf("opaque black pixel = %s, want black", got)
	}
}
