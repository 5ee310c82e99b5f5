package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rmitchellscott/inkprep/internal/database"
	"github.com/rmitchellscott/inkprep/internal/logging"
	"github.com/rmitchellscott/inkprep/internal/utils"
)

type imageResponse struct {
	database.PreparedImage
	URL string `json:"url"`
}

func (h *Handler) describeImage(c *gin.Context, image database.PreparedImage) imageResponse {
	return imageResponse{
		PreparedImage: image,
		URL:           utils.AbsoluteURL(c.Request, "/api/images/"+image.ID.String()+"/png"),
	}
}

func imageIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid image ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) imageLookupFailed(c *gin.Context, id uuid.UUID, err error) {
	if errors.Is(err, database.ErrImageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"kind": "not_found", "error": "Image not found"})
		return
	}
	logging.ErrorWithComponent(logging.ComponentAPI, "Failed to load image", "image_id", id, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"kind": "storage", "error": "Failed to load image"})
}

// ListImages returns stored images newest first. Filters: display, source;
// paging: limit, offset.
func (h *Handler) ListImages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	images, total, err := h.images.List(c.Request.Context(), database.ListOptions{
		Variant: c.Query("display"),
		Source:  c.Query("source"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentAPI, "Failed to list images", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "storage", "error": "Failed to list images"})
		return
	}

	resp := make([]imageResponse, 0, len(images))
	for _, image := range images {
		resp = append(resp, h.describeImage(c, image))
	}
	c.JSON(http.StatusOK, gin.H{"images": resp, "total": total})
}

// GetImage returns the metadata of one image.
func (h *Handler) GetImage(c *gin.Context) {
	id, ok := imageIDParam(c)
	if !ok {
		return
	}
	image, err := h.images.Get(c.Request.Context(), id)
	if err != nil {
		h.imageLookupFailed(c, id, err)
		return
	}
	c.JSON(http.StatusOK, h.describeImage(c, *image))
}

// GetImagePNG serves the stored PNG. Stored images never change, so the
// content hash doubles as a strong ETag.
func (h *Handler) GetImagePNG(c *gin.Context) {
	id, ok := imageIDParam(c)
	if !ok {
		return
	}

	image, err := h.images.Get(c.Request.Context(), id)
	if err != nil {
		h.imageLookupFailed(c, id, err)
		return
	}
	etag := `"` + image.ContentHash + `"`
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}

	_, data, err := h.images.Data(c.Request.Context(), id)
	if err != nil {
		h.imageLookupFailed(c, id, err)
		return
	}
	c.Header("ETag", etag)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, "image/png", data)
}

// DeleteImage removes an image and its bytes.
func (h *Handler) DeleteImage(c *gin.Context) {
	id, ok := imageIDParam(c)
	if !ok {
		return
	}
	if err := h.images.Delete(c.Request.Context(), id); err != nil {
		h.imageLookupFailed(c, id, err)
		return
	}
	logging.InfoWithComponent(logging.ComponentAPI, "Deleted image", "image_id", id)
	c.JSON(http.StatusOK, gin.H{"message": "Image deleted"})
}

// ImageStats summarises the store.
func (h *Handler) ImageStats(c *gin.Context) {
	stats, err := database.GetImageStats(c.Request.Context(), h.db)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentAPI, "Failed to compute image stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "storage", "error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// FeedStatus reports the last poll of the configured feed.
func (h *Handler) FeedStatus(c *gin.Context) {
	if h.feedName == "" {
		c.JSON(http.StatusNotFound, gin.H{"kind": "not_found", "error": "No feed configured"})
		return
	}
	state, err := h.feedStates.Get(c.Request.Context(), h.feedName)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentAPI, "Failed to load feed state", "feed", h.feedName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "storage", "error": "Failed to load feed state"})
		return
	}
	c.JSON(http.StatusOK, state)
}
