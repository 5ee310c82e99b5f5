package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/rmitchellscott/inkprep/internal/display"
	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
	"github.com/rmitchellscott/inkprep/internal/logging"
)

var errPayloadTooLarge = errors.New("image too large")

// DitherRequest is the body of the synchronous dither endpoint.
type DitherRequest struct {
	Image   string `json:"image" validate:"required"`
	Display string `json:"display" validate:"required"`
	Palette string `json:"palette"`
	Method  string `json:"method"`
}

// decodeImagePayload accepts plain base64 or a data URL.
func (h *Handler) decodeImagePayload(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.HasSuffix(payload[:comma], ";base64") {
			return nil, fmt.Errorf("image data URL must be base64 encoded")
		}
		payload = payload[comma+1:]
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > h.maxUploadBytes+2 {
		return nil, errPayloadTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("image is not valid base64")
		}
	}
	if int64(len(data)) > h.maxUploadBytes {
		return nil, errPayloadTooLarge
	}
	return data, nil
}

func (h *Handler) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"kind":     "too_large",
		"error":    "Image is too large",
		"max_size": humanize.Bytes(uint64(h.maxUploadBytes)),
	})
}

// resolveTarget turns the display, palette and method fields of a request
// into a profile and method, writing a 400 on failure.
func resolveTarget(c *gin.Context, variant, palette, method string) (display.Profile, imageprocessing.Method, bool) {
	profile, err := display.Resolve(variant, palette)
	if err != nil {
		badRequest(c, err.Error())
		return display.Profile{}, "", false
	}
	m, err := imageprocessing.ParseMethod(method)
	if err != nil {
		badRequest(c, err.Error())
		return display.Profile{}, "", false
	}
	return profile, m, true
}

// Dimensions reads the size of the raw image in the request body without
// decoding it.
func (h *Handler) Dimensions(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.tooLarge(c)
			return
		}
		badRequest(c, "Failed to read request body")
		return
	}

	dims, err := imageprocessing.ReadDimensions(data)
	if err != nil {
		pipelineError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, dims)
}

// Dither prepares an image synchronously with a centered crop and returns
// the panel PNG as base64.
func (h *Handler) Dither(c *gin.Context) {
	var req DitherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.tooLarge(c)
			return
		}
		badRequest(c, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		badRequest(c, validationErrorMessage(err))
		return
	}

	profile, method, ok := resolveTarget(c, req.Display, req.Palette, req.Method)
	if !ok {
		return
	}
	source, err := h.decodeImagePayload(req.Image)
	if errors.Is(err, errPayloadTooLarge) {
		h.tooLarge(c)
		return
	}
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	out, err := imageprocessing.Prepare(c.Request.Context(), imageprocessing.Request{
		Source:    source,
		Profile:   profile,
		Method:    method,
		MaxPixels: h.maxPixels,
	})
	if err != nil {
		if c.Request.Context().Err() != nil {
			logging.DebugWithComponent(logging.ComponentAPI, "Dither abandoned by client", "error", err)
			return
		}
		pipelineError(c, err, nil)
		return
	}

	logging.InfoWithComponent(logging.ComponentAPI, "Dithered image",
		"display", profile.Variant, "palette", profile.Palette.Name(), "method", method,
		"source", fmt.Sprintf("%dx%d %s", out.Source.Width, out.Source.Height, out.Source.Format))

	c.JSON(http.StatusOK, gin.H{
		"image":   base64.StdEncoding.EncodeToString(out.PNG),
		"width":   out.Width,
		"height":  out.Height,
		"display": profile.Variant,
		"palette": profile.Palette.Name(),
		"method":  method,
		"hash":    out.Hash(),
	})
}
