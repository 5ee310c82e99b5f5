package imageprocessing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/zlib"

	"github.com/rmitchellscott/inkprep/internal/display"
)

// BitDepthFor returns the smallest PNG bit depth that can index n colors.
func BitDepthFor(n int) int {
	switch {
	case n <= 2:
		return 1
	case n <= 4:
		return 2
	case n <= 16:
		return 4
	default:
		return 8
	}
}

// EncodeIndexedPNG encodes hardware palette indices as a color type 3 PNG.
// The PLTE chunk lists the palette in hardware order, so a pixel's stored
// value is exactly the index the display driver expects.
func EncodeIndexedPNG(indices []uint8, width, height int, palette display.Palette) ([]byte, error) {
	if width <= 0 || height <= 0 || len(indices) != width*height {
		return nil, fmt.Errorf("%w: %d indices for %dx%d", ErrInvalidBuffer, len(indices), width, height)
	}
	if palette.Len() == 0 {
		return nil, fmt.Errorf("%w: palette %q is empty", ErrInvalidPalette, palette.Name())
	}
	for i, idx := range indices {
		if int(idx) >= palette.Len() {
			return nil, fmt.Errorf("%w: pixel %d has index %d outside %d-color palette", ErrInvalidBuffer, i, idx, palette.Len())
		}
	}

	bitDepth := BitDepthFor(palette.Len())

	var buf bytes.Buffer
	buf.Write(pngSignature)

	writeChunk(&buf, "IHDR", func(data *bytes.Buffer) {
		binary.Write(data, binary.BigEndian, uint32(width))
		binary.Write(data, binary.BigEndian, uint32(height))
		data.WriteByte(uint8(bitDepth))
		data.WriteByte(3) // Color type: indexed
		data.WriteByte(0) // Compression method
		data.WriteByte(0) // Filter method
		data.WriteByte(0) // Interlace method
	})

	writeChunk(&buf, "PLTE", func(data *bytes.Buffer) {
		for _, c := range palette.Colors() {
			data.Write([]byte{c.R, c.G, c.B})
		}
	})

	compressed, err := zlibCompress(packIndices(indices, width, height, bitDepth))
	if err != nil {
		return nil, fmt.Errorf("failed to compress image data: %w", err)
	}
	writeChunk(&buf, "IDAT", func(data *bytes.Buffer) {
		data.Write(compressed)
	})

	writeChunk(&buf, "IEND", func(*bytes.Buffer) {})

	return buf.Bytes(), nil
}

// packIndices packs indices MSB-first at bitDepth bits per pixel, with a
// leading filter byte (None) on every row.
func packIndices(indices []uint8, width, height, bitDepth int) []byte {
	pixelsPerByte := 8 / bitDepth
	bytesPerRow := (width + pixelsPerByte - 1) / pixelsPerByte
	data := make([]byte, height*(bytesPerRow+1))

	for y := 0; y < height; y++ {
		rowStart := y * (bytesPerRow + 1)
		for x := 0; x < width; x++ {
			idx := indices[y*width+x]
			byteIndex := rowStart + 1 + x/pixelsPerByte
			bitOffset := (pixelsPerByte - 1 - x%pixelsPerByte) * bitDepth
			data[byteIndex] |= idx << bitOffset
		}
	}
	return data
}

// writeChunk writes length, type, data and CRC for one PNG chunk.
func writeChunk(buf *bytes.Buffer, chunkType string, dataWriter func(*bytes.Buffer)) {
	var chunkData bytes.Buffer
	dataWriter(&chunkData)
	data := chunkData.Bytes()

	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString(chunkType)
	buf.Write(data)

	crc := crc32.NewIEEE()
	crc.Write([]byte(chunkType))
	crc.Write(data)
	binary.Write(buf, binary.BigEndian, crc.Sum32())
}

func zlibCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zlib writer: %w", err)
	}
	return buf.Bytes(), nil
}
