package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rmitchellscott/inkprep/internal/config"
	"github.com/rmitchellscott/inkprep/internal/database"
	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
	"github.com/rmitchellscott/inkprep/internal/logging"
	"github.com/rmitchellscott/inkprep/internal/offload"
)

const (
	defaultResultWait = 30 * time.Second
	maxResultWait     = 2 * time.Minute
)

var sessionRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// JobRequest submits an image for background preparation. A missing crop
// selects the centered crop.
type JobRequest struct {
	Image   string                      `json:"image" validate:"required"`
	Crop    *imageprocessing.CropRegion `json:"crop" validate:"omitempty"`
	Display string                      `json:"display" validate:"required"`
	Palette string                      `json:"palette"`
	Method  string                      `json:"method"`
}

func sessionParam(c *gin.Context) (string, bool) {
	session := c.Param("session")
	if !sessionRegex.MatchString(session) {
		badRequest(c, "Session id may only contain letters, digits, '-' and '_'")
		return "", false
	}
	return session, true
}

// SubmitJob queues a preparation on the session's coordinator. Whatever
// the session was still working on is superseded.
func (h *Handler) SubmitJob(c *gin.Context) {
	session, ok := sessionParam(c)
	if !ok {
		return
	}

	var req JobRequest
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

	job := imageprocessing.Request{
		Source:    source,
		Region:    req.Crop,
		Profile:   profile,
		Method:    method,
		MaxPixels: h.maxPixels,
	}
	id, err := h.sessions.Get(session).Submit(job)
	if errors.Is(err, offload.ErrClosed) {
		// Evicted between Get and Submit; the next Get starts afresh.
		id, err = h.sessions.Get(session).Submit(job)
	}
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentAPI, "Failed to submit job", "session", session, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"kind": "unavailable", "error": "Session is shutting down"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": id, "session": session})
}

// CancelJob abandons the running job of a session.
func (h *Handler) CancelJob(c *gin.Context) {
	session, ok := sessionParam(c)
	if !ok {
		return
	}
	if coordinator, exists := h.sessions.Lookup(session); exists {
		coordinator.Cancel()
	}
	c.Status(http.StatusNoContent)
}

// DeleteSession closes a session and forgets it.
func (h *Handler) DeleteSession(c *gin.Context) {
	session, ok := sessionParam(c)
	if !ok {
		return
	}
	h.sessions.Remove(session)
	c.Status(http.StatusNoContent)
}

// GetResult long-polls the session's result slot. It answers 200 with the
// PNG, 204 when nothing arrived within wait and an error body when the job
// failed. With save=true a successful result is also stored.
func (h *Handler) GetResult(c *gin.Context) {
	session, ok := sessionParam(c)
	if !ok {
		return
	}

	wait := defaultResultWait
	if raw := c.Query("wait"); raw != "" {
		d, err := config.ParseDuration(raw)
		if err != nil || d < 0 {
			badRequest(c, "Invalid wait duration")
			return
		}
		wait = min(d, maxResultWait)
	}
	save, _ := strconv.ParseBool(c.DefaultQuery("save", "false"))

	coordinator, exists := h.sessions.Lookup(session)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"kind": "not_found", "error": "Unknown session"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()

	result, err := coordinator.Wait(ctx)
	switch {
	case errors.Is(err, offload.ErrClosed):
		c.JSON(http.StatusNotFound, gin.H{"kind": "not_found", "error": "Session closed"})
		return
	case isTimeout(err):
		c.Status(http.StatusNoContent)
		return
	case err != nil:
		// client went away
		return
	}

	c.Header("X-Job-ID", result.JobID.String())
	if result.Err != nil {
		pipelineError(c, result.Err, gin.H{"job_id": result.JobID})
		return
	}

	if save {
		image, created, err := h.images.Save(c.Request.Context(), result.Output, database.SaveOptions{Source: database.SourceUpload})
		if err != nil {
			logging.ErrorWithComponent(logging.ComponentAPI, "Failed to save prepared image", "session", session, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"kind": "storage", "error": "Failed to save image"})
			return
		}
		c.Header("X-Image-ID", image.ID.String())
		if created {
			c.Header("X-Image-Created", "true")
		}
	}

	c.Header("X-Content-Hash", result.Output.Hash())
	c.Data(http.StatusOK, "image/png", result.Output.PNG)
}

// Events streams job_completed and job_failed events for a session.
func (h *Handler) Events(c *gin.Context) {
	session, ok := sessionParam(c)
	if !ok {
		return
	}
	if err := h.events.Serve(c.Request.Context(), session, c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to establish event stream"})
	}
}
