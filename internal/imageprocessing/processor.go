package imageprocessing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rmitchellscott/inkprep/internal/display"
	"github.com/rmitchellscott/inkprep/internal/logging"
)

// Request describes one preparation: encoded source bytes, the area to
// keep and the panel to prepare for. A nil Region selects the largest
// centered area with the panel's aspect ratio.
type Request struct {
	Source    []byte
	Region    *CropRegion
	Profile   display.Profile
	Method    Method
	MaxPixels int
}

// Output is a prepared image ready to be sent to a panel.
type Output struct {
	PNG     []byte
	Indices []uint8
	Width   int
	Height  int
	Profile display.Profile
	Method  Method
	Source  Dimensions
	Region  CropRegion
}

// Hash returns the hex SHA-256 of the encoded PNG. Preparation is
// deterministic, so equal hashes mean identical panel output.
func (o Output) Hash() string {
	sum := sha256.Sum256(o.PNG)
	return hex.EncodeToString(sum[:])
}

// Prepare runs decode, crop and resample, quantize and encode in sequence
// on the calling goroutine. ctx is checked between stages; a cancelled
// request returns ctx.Err() and no output.
func Prepare(ctx context.Context, req Request) (Output, error) {
	start := time.Now()
	profile := req.Profile
	if profile.Width <= 0 || profile.Height <= 0 {
		return Output{}, fmt.Errorf("%w: display %q has no resolution", ErrInvalidGeometry, profile.Variant)
	}
	if profile.Palette.Len() == 0 {
		return Output{}, fmt.Errorf("%w: display %q has no palette", ErrInvalidPalette, profile.Variant)
	}
	method := req.Method
	if method == "" {
		method = MethodFloydSteinberg
	}
	maxPixels := req.MaxPixels
	if maxPixels == 0 {
		maxPixels = DefaultMaxPixels
	}

	img, dims, err := Decode(req.Source, maxPixels)
	if err != nil {
		return Output{}, err
	}
	logging.DebugWithComponent(logging.ComponentPipeline, "Decoded source image",
		"format", dims.Format, "width", dims.Width, "height", dims.Height,
		"size", humanize.Bytes(uint64(len(req.Source))))
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	src := FromImage(img)
	region := CenteredCrop(src.Width, src.Height, profile.Width, profile.Height)
	if req.Region != nil {
		region = *req.Region
	}

	resized, err := CropAndResample(src, region, profile.Width, profile.Height)
	if err != nil {
		return Output{}, err
	}
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	indices, err := QuantizeWithMethod(resized, profile.Palette, method)
	if err != nil {
		return Output{}, err
	}
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	encoded, err := EncodeIndexedPNG(indices, profile.Width, profile.Height, profile.Palette)
	if err != nil {
		return Output{}, err
	}

	logging.DebugWithComponent(logging.ComponentPipeline, "Prepared image",
		"display", profile.Variant, "palette", profile.Palette.Name(), "method", method,
		"png_size", humanize.Bytes(uint64(len(encoded))), "elapsed", time.Since(start))

	return Output{
		PNG:     encoded,
		Indices: indices,
		Width:   profile.Width,
		Height:  profile.Height,
		Profile: profile,
		Method:  method,
		Source:  dims,
		Region:  region,
	}, nil
}
