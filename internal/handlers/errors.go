package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
	"github.com/rmitchellscott/inkprep/internal/logging"
)

var validate = validator.New()

// statusForKind maps a pipeline failure to an HTTP status. Problems with
// the submitted image are 422; everything else is on our side.
func statusForKind(kind imageprocessing.Kind) int {
	switch kind {
	case imageprocessing.KindInvalidGeometry,
		imageprocessing.KindUnrecognizedFormat,
		imageprocessing.KindTruncatedInput:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// pipelineError writes the {kind, error} body for a failed preparation.
func pipelineError(c *gin.Context, err error, extra gin.H) {
	kind := imageprocessing.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithComponent(logging.ComponentAPI, "Image preparation failed", "kind", kind, "error", err, "path", c.FullPath())
	}
	body := gin.H{"kind": kind, "error": imageprocessing.UserMessage(err)}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"kind": "bad_request", "error": message})
}

// validationErrorMessage returns a user-friendly validation error message.
func validationErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, ve := range verrs {
			switch ve.Field() {
			case "Image":
				return "An image is required"
			case "Display":
				return "A display is required"
			case "X", "Y":
				return "Crop position must not be negative"
			case "Width", "Height":
				return "Crop size must be positive"
			}
		}
	}
	return "Invalid request"
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
