package imageprocessing

import (
	"errors"
)

// Failure kinds of the preparation pipeline. Callers match them with
// errors.Is; every error returned by this package wraps exactly one.
var (
	ErrInvalidGeometry    = errors.New("invalid geometry")
	ErrInvalidPalette     = errors.New("invalid palette")
	ErrInvalidBuffer      = errors.New("invalid pixel buffer")
	ErrUnrecognizedFormat = errors.New("unrecognized image format")
	ErrTruncatedInput     = errors.New("truncated image data")
	ErrWorkerFailure      = errors.New("image worker failed")
)

// Kind is the stable, serialisable name of a failure kind.
type Kind string

const (
	KindNone               Kind = ""
	KindInvalidGeometry    Kind = "invalid_geometry"
	KindInvalidPalette     Kind = "invalid_palette"
	KindInvalidBuffer      Kind = "invalid_buffer"
	KindUnrecognizedFormat Kind = "unrecognized_format"
	KindTruncatedInput     Kind = "truncated_input"
	KindWorkerFailure      Kind = "worker_failure"
)

var kinds = []struct {
	err     error
	kind    Kind
	message string
}{
	{ErrInvalidGeometry, KindInvalidGeometry, "The selected crop is outside the image. Please re-select the area."},
	{ErrInvalidPalette, KindInvalidPalette, "The display palette is misconfigured."},
	{ErrInvalidBuffer, KindInvalidBuffer, "The image could not be processed."},
	{ErrUnrecognizedFormat, KindUnrecognizedFormat, "This image format is not supported. Try another image."},
	{ErrTruncatedInput, KindTruncatedInput, "The image appears to be incomplete. Try another image."},
	{ErrWorkerFailure, KindWorkerFailure, "Processing the image failed."},
}

// KindOf classifies err. Errors that wrap none of the sentinels are
// reported as worker failures so nothing unclassified crosses a boundary.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindWorkerFailure
}

// UserMessage returns a short message safe to show in the UI.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	kind := KindOf(err)
	for _, k := range kinds {
		if k.kind == kind {
			return k.message
		}
	}
	return "Processing the image failed."
}
