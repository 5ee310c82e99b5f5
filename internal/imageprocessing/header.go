package imageprocessing

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Format names a recognised container.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
	FormatBMP  Format = "bmp"
)

// Dimensions holds the raster size stored in an image header.
type Dimensions struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format Format `json:"format"`
}

var (
	pngSignature  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegSignature = []byte{0xff, 0xd8, 0xff}
	gif87a        = []byte("GIF87a")
	gif89a        = []byte("GIF89a")
	bmpSignature  = []byte("BM")
	riffSignature = []byte("RIFF")
	webpSignature = []byte("WEBP")
)

// ReadDimensions extracts width and height from the header of an encoded
// image without decoding any pixel data. It fails with ErrTruncatedInput
// when the bytes end before the header does and ErrUnrecognizedFormat when
// no known signature matches.
func ReadDimensions(data []byte) (Dimensions, error) {
	format, err := sniff(data)
	if err != nil {
		return Dimensions{}, err
	}

	var d Dimensions
	switch format {
	case FormatPNG:
		d, err = pngDimensions(data)
	case FormatJPEG:
		d, err = jpegDimensions(data)
	case FormatGIF:
		d, err = gifDimensions(data)
	case FormatWebP:
		d, err = webpDimensions(data)
	case FormatBMP:
		d, err = bmpDimensions(data)
	}
	if err != nil {
		return Dimensions{}, err
	}
	if d.Width <= 0 || d.Height <= 0 {
		return Dimensions{}, fmt.Errorf("%w: %s header declares %dx%d", ErrUnrecognizedFormat, format, d.Width, d.Height)
	}
	d.Format = format
	return d, nil
}

// sniff identifies the container from its leading bytes. Input that is a
// proper prefix of a signature counts as truncated.
func sniff(data []byte) (Format, error) {
	candidates := []struct {
		format Format
		sig    []byte
		at     int
	}{
		{FormatPNG, pngSignature, 0},
		{FormatJPEG, jpegSignature, 0},
		{FormatGIF, gif89a, 0},
		{FormatGIF, gif87a, 0},
		{FormatBMP, bmpSignature, 0},
	}

	truncated := len(data) == 0
	for _, c := range candidates {
		switch prefixMatch(data, c.sig, c.at) {
		case matchFull:
			return c.format, nil
		case matchPartial:
			truncated = true
		}
	}

	// WebP: RIFF <size> WEBP
	switch prefixMatch(data, riffSignature, 0) {
	case matchFull:
		switch prefixMatch(data, webpSignature, 8) {
		case matchFull:
			return FormatWebP, nil
		case matchPartial:
			truncated = true
		}
	case matchPartial:
		truncated = true
	}

	if truncated {
		return "", fmt.Errorf("%w: %d bytes is too short to identify the format", ErrTruncatedInput, len(data))
	}
	return "", ErrUnrecognizedFormat
}

type match int

const (
	matchNone match = iota
	matchPartial
	matchFull
)

func prefixMatch(data, sig []byte, at int) match {
	if len(data) <= at {
		return matchPartial
	}
	avail := data[at:]
	if len(avail) >= len(sig) {
		if bytes.Equal(avail[:len(sig)], sig) {
			return matchFull
		}
		return matchNone
	}
	if bytes.Equal(avail, sig[:len(avail)]) {
		return matchPartial
	}
	return matchNone
}

func need(data []byte, n int, format Format) error {
	if len(data) < n {
		return fmt.Errorf("%w: %s header needs %d bytes, have %d", ErrTruncatedInput, format, n, len(data))
	}
	return nil
}

// pngDimensions reads the IHDR chunk that must directly follow the
// signature: width at bytes 16-19, height at 20-23, big-endian.
func pngDimensions(data []byte) (Dimensions, error) {
	if err := need(data, 24, FormatPNG); err != nil {
		return Dimensions{}, err
	}
	if string(data[12:16]) != "IHDR" {
		return Dimensions{}, fmt.Errorf("%w: png first chunk is %q, not IHDR", ErrUnrecognizedFormat, data[12:16])
	}
	return Dimensions{
		Width:  int(binary.BigEndian.Uint32(data[16:20])),
		Height: int(binary.BigEndian.Uint32(data[20:24])),
	}, nil
}

// gifDimensions reads the logical screen descriptor, little-endian.
func gifDimensions(data []byte) (Dimensions, error) {
	if err := need(data, 10, FormatGIF); err != nil {
		return Dimensions{}, err
	}
	return Dimensions{
		Width:  int(binary.LittleEndian.Uint16(data[6:8])),
		Height: int(binary.LittleEndian.Uint16(data[8:10])),
	}, nil
}

// bmpDimensions reads the DIB header following the 14-byte file header.
func bmpDimensions(data []byte) (Dimensions, error) {
	if err := need(data, 18, FormatBMP); err != nil {
		return Dimensions{}, err
	}
	dibSize := binary.LittleEndian.Uint32(data[14:18])
	if dibSize == 12 {
		// BITMAPCOREHEADER: 16-bit unsigned sizes
		if err := need(data, 22, FormatBMP); err != nil {
			return Dimensions{}, err
		}
		return Dimensions{
			Width:  int(binary.LittleEndian.Uint16(data[18:20])),
			Height: int(binary.LittleEndian.Uint16(data[20:22])),
		}, nil
	}
	if dibSize < 40 {
		return Dimensions{}, fmt.Errorf("%w: bmp DIB header size %d", ErrUnrecognizedFormat, dibSize)
	}
	if err := need(data, 26, FormatBMP); err != nil {
		return Dimensions{}, err
	}
	width := int(int32(binary.LittleEndian.Uint32(data[18:22])))
	height := int(int32(binary.LittleEndian.Uint32(data[22:26])))
	if height < 0 {
		// Top-down bitmap
		height = -height
	}
	return Dimensions{Width: width, Height: height}, nil
}

// webpDimensions handles the lossy, lossless and extended chunk layouts.
func webpDimensions(data []byte) (Dimensions, error) {
	if err := need(data, 16, FormatWebP); err != nil {
		return Dimensions{}, err
	}

	switch chunk := string(data[12:16]); chunk {
	case "VP8 ":
		// Frame header after the 3-byte start code, 14-bit sizes
		if err := need(data, 30, FormatWebP); err != nil {
			return Dimensions{}, err
		}
		return Dimensions{
			Width:  int(binary.LittleEndian.Uint16(data[26:28]) & 0x3fff),
			Height: int(binary.LittleEndian.Uint16(data[28:30]) & 0x3fff),
		}, nil
	case "VP8L":
		// 0x2f signature byte then two packed 14-bit sizes minus one
		if err := need(data, 25, FormatWebP); err != nil {
			return Dimensions{}, err
		}
		if data[20] != 0x2f {
			return Dimensions{}, fmt.Errorf("%w: bad VP8L signature 0x%02x", ErrUnrecognizedFormat, data[20])
		}
		bits := binary.LittleEndian.Uint32(data[21:25])
		return Dimensions{
			Width:  int(bits&0x3fff) + 1,
			Height: int((bits>>14)&0x3fff) + 1,
		}, nil
	case "VP8X":
		// 24-bit canvas sizes minus one
		if err := need(data, 30, FormatWebP); err != nil {
			return Dimensions{}, err
		}
		return Dimensions{
			Width:  int(uint32(data[24])|uint32(data[25])<<8|uint32(data[26])<<16) + 1,
			Height: int(uint32(data[27])|uint32(data[28])<<8|uint32(data[29])<<16) + 1,
		}, nil
	default:
		return Dimensions{}, fmt.Errorf("%w: unknown webp chunk %q", ErrUnrecognizedFormat, chunk)
	}
}

// jpegDimensions walks marker segments up to the first start-of-frame.
// JPEG has no fixed offset for the frame header, but only segment headers
// are read; entropy-coded data is never touched.
func jpegDimensions(data []byte) (Dimensions, error) {
	i := 2
	for {
		if err := need(data, i+2, FormatJPEG); err != nil {
			return Dimensions{}, err
		}
		if data[i] != 0xff {
			return Dimensions{}, fmt.Errorf("%w: expected jpeg marker at offset %d", ErrUnrecognizedFormat, i)
		}
		marker := data[i+1]
		switch {
		case marker == 0xff:
			// Fill byte
			i++
			continue
		case marker == 0x01 || (marker >= 0xd0 && marker <= 0xd7):
			// Standalone markers carry no length
			i += 2
			continue
		case marker == 0xd9 || marker == 0xda:
			return Dimensions{}, fmt.Errorf("%w: jpeg has no frame header before scan data", ErrUnrecognizedFormat)
		case isSOF(marker):
			if err := need(data, i+9, FormatJPEG); err != nil {
				return Dimensions{}, err
			}
			return Dimensions{
				Height: int(binary.BigEndian.Uint16(data[i+5 : i+7])),
				Width:  int(binary.BigEndian.Uint16(data[i+7 : i+9])),
			}, nil
		}

		if err := need(data, i+4, FormatJPEG); err != nil {
			return Dimensions{}, err
		}
		segLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if segLen < 2 {
			return Dimensions{}, fmt.Errorf("%w: jpeg segment length %d", ErrUnrecognizedFormat, segLen)
		}
		i += 2 + segLen
	}
}

// isSOF reports SOF0-SOF15, excluding DHT (C4), JPG (C8) and DAC (CC).
func isSOF(marker byte) bool {
	return marker >= 0xc0 && marker <= 0xcf && marker != 0xc4 && marker != 0xc8 && marker != 0xcc
}
