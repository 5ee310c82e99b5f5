package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rmitchellscott/inkprep/internal/display"
	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
)

// ListDisplays returns every supported panel with its palettes in hardware
// order, plus the available dither methods.
func (h *Handler) ListDisplays(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"displays": display.DescribeAll(),
		"methods":  imageprocessing.Methods(),
	})
}
