package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/rmitchellscott/inkprep/internal/config"
	"github.com/rmitchellscott/inkprep/internal/database"
	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
	"github.com/rmitchellscott/inkprep/internal/offload"
	"github.com/rmitchellscott/inkprep/internal/sse"
	"github.com/rmitchellscott/inkprep/internal/version"
)

// Handler serves the HTTP API.
type Handler struct {
	sessions       *offload.Sessions
	events         *sse.Service
	db             *gorm.DB
	images         *database.ImageService
	feedStates     *database.FeedStateService
	feedName       string
	maxUploadBytes int64
	maxPixels      int
}

// Deps are the collaborators of a Handler. FeedName may be empty when no
// feed is configured.
type Deps struct {
	Sessions       *offload.Sessions
	Events         *sse.Service
	DB             *gorm.DB
	Images         *database.ImageService
	FeedStates     *database.FeedStateService
	FeedName       string
	MaxUploadBytes int64
	MaxPixels      int
}

func New(d Deps) *Handler {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = config.DefaultMaxUploadBytes
	}
	if d.MaxPixels <= 0 {
		d.MaxPixels = imageprocessing.DefaultMaxPixels
	}
	return &Handler{
		sessions:       d.Sessions,
		events:         d.Events,
		db:             d.DB,
		images:         d.Images,
		feedStates:     d.FeedStates,
		feedName:       d.FeedName,
		maxUploadBytes: d.MaxUploadBytes,
		maxPixels:      d.MaxPixels,
	}
}

// Status reports the version, live session count and job counters.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":       version.Get(),
		"sessions":      h.sessions.Len(),
		"event_clients": h.events.GetClientCount(),
		"jobs":          h.sessions.Metrics(),
		"feed_enabled":  h.feedName != "",
	})
}
