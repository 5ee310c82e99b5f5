package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/rmitchellscott/inkprep/internal/middleware"
)

// RegisterRoutes mounts the API under api. limiter guards the endpoints
// that run the pipeline; it may be nil.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup, limiter *middleware.IPRateLimiter) {
	limited := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		// base64 inflates the image by a third, plus room for the JSON
		chain := []gin.HandlerFunc{middleware.RequestSizeLimit(h.maxUploadBytes*4/3 + 64*1024)}
		if limiter != nil {
			chain = append(chain, limiter.RateLimit())
		}
		return append(chain, handler)
	}

	api.GET("/status", h.Status)
	api.GET("/displays", h.ListDisplays)
	api.GET("/feed", h.FeedStatus)

	utils := api.Group("/utils")
	{
		utils.POST("/dimensions", middleware.RequestSizeLimit(h.maxUploadBytes), h.Dimensions)
		utils.POST("/dither", limited(h.Dither)...)
	}

	sessions := api.Group("/sessions/:session")
	{
		sessions.POST("/jobs", limited(h.SubmitJob)...)
		sessions.DELETE("/jobs", h.CancelJob)
		sessions.GET("/result", h.GetResult)
		sessions.GET("/events", h.Events)
		sessions.DELETE("", h.DeleteSession)
	}

	images := api.Group("/images")
	{
		images.GET("", h.ListImages)
		images.GET("/stats", h.ImageStats)
		images.GET("/:id", h.GetImage)
		images.GET("/:id/png", h.GetImagePNG)
		images.DELETE("/:id", h.DeleteImage)
	}
}
