package imageprocessing

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// CropRegion is a rectangle in source pixel coordinates.
type CropRegion struct {
	X      int `json:"x" validate:"gte=0"`
	Y      int `json:"y" validate:"gte=0"`
	Width  int `json:"width" validate:"gt=0"`
	Height int `json:"height" validate:"gt=0"`
}

// Rect converts the region to an image.Rectangle.
func (r CropRegion) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Within reports an ErrInvalidGeometry error unless the region is non-empty
// and lies fully inside a srcWidth x srcHeight image.
func (r CropRegion) Within(srcWidth, srcHeight int) error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: empty crop %dx%d", ErrInvalidGeometry, r.Width, r.Height)
	}
	if r.X < 0 || r.Y < 0 || r.X+r.Width > srcWidth || r.Y+r.Height > srcHeight {
		return fmt.Errorf("%w: crop (%d,%d %dx%d) outside %dx%d source",
			ErrInvalidGeometry, r.X, r.Y, r.Width, r.Height, srcWidth, srcHeight)
	}
	return nil
}

// CropAndResample extracts region from src and resamples it to exactly
// targetWidth x targetHeight. Out-of-bounds regions fail rather than clamp.
//
// Resampling uses the bilinear kernel from x/image/draw. When shrinking,
// the kernel's support widens with the scale factor, so every output pixel
// averages its whole source footprint. Identical inputs always give
// identical output bytes.
func CropAndResample(src PixelBuffer, region CropRegion, targetWidth, targetHeight int) (PixelBuffer, error) {
	if err := src.Validate(); err != nil {
		return PixelBuffer{}, err
	}
	if targetWidth <= 0 || targetHeight <= 0 {
		return PixelBuffer{}, fmt.Errorf("%w: target %dx%d", ErrInvalidGeometry, targetWidth, targetHeight)
	}
	if err := region.Within(src.Width, src.Height); err != nil {
		return PixelBuffer{}, err
	}

	// Pure crop, no interpolation needed
	if region.Width == targetWidth && region.Height == targetHeight {
		out := PixelBuffer{Width: targetWidth, Height: targetHeight, Pix: make([]uint8, targetWidth*targetHeight*Channels)}
		rowBytes := region.Width * Channels
		for y := 0; y < region.Height; y++ {
			from := src.offset(region.X, region.Y+y)
			copy(out.Pix[y*rowBytes:(y+1)*rowBytes], src.Pix[from:from+rowBytes])
		}
		return out, nil
	}

	source := src.regionRGBA(region)
	resized := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	xdraw.BiLinear.Scale(resized, resized.Bounds(), source, source.Bounds(), xdraw.Src, nil)

	return FromImage(resized), nil
}

// CenteredCrop returns the largest region with the target aspect ratio
// centered in a srcWidth x srcHeight image. Scaling that region to the
// target fills the panel completely, cropping the overflow evenly.
func CenteredCrop(srcWidth, srcHeight, targetWidth, targetHeight int) CropRegion {
	if srcWidth <= 0 || srcHeight <= 0 || targetWidth <= 0 || targetHeight <= 0 {
		return CropRegion{Width: srcWidth, Height: srcHeight}
	}

	width, height := srcWidth, srcHeight
	if srcWidth*targetHeight > srcHeight*targetWidth {
		// Source is wider than the panel: trim left and right
		width = srcHeight * targetWidth / targetHeight
	} else {
		height = srcWidth * targetHeight / targetWidth
	}
	width = max(width, 1)
	height = max(height, 1)

	return CropRegion{
		X:      (srcWidth - width) / 2,
		Y:      (srcHeight - height) / 2,
		Width:  width,
		Height: height,
	}
}
