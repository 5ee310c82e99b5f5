package imageprocessing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// DefaultMaxPixels bounds the decoded size of a source image. It covers a
// 48 megapixel camera frame with room to spare.
const DefaultMaxPixels = 64 << 20

// Decode reads an encoded image into memory. The header is inspected first
// so unsupported, truncated and oversized inputs fail before any pixel
// allocation. EXIF orientation is applied, so the returned bounds may be
// the header dimensions transposed.
func Decode(data []byte, maxPixels int) (image.Image, Dimensions, error) {
	dims, err := ReadDimensions(data)
	if err != nil {
		return nil, Dimensions{}, err
	}
	if maxPixels > 0 && int64(dims.Width)*int64(dims.Height) > int64(maxPixels) {
		return nil, dims, fmt.Errorf("%w: %dx%d source exceeds %d pixel limit", ErrWorkerFailure, dims.Width, dims.Height, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, dims, classifyDecodeError(dims.Format, err)
	}
	return img, dims, nil
}

func classifyDecodeError(format Format, err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s data ends early: %v", ErrTruncatedInput, format, err)
	}
	return fmt.Errorf("%w: %s decode failed: %v", ErrUnrecognizedFormat, format, err)
}
