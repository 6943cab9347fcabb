package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scoutline/scoutline-backend/internal/logger"
	pkgerrors "github.com/scoutline/scoutline-backend/internal/pkg/errors"
	"github.com/scoutline/scoutline-backend/internal/services"
	"github.com/scoutline/scoutline-backend/internal/types"
)

type ResearchHandler struct {
	svc    services.ResearchService
	jobs   services.JobStateService
	stream services.StreamPublisher
	log    *logger.Logger
}

func NewResearchHandler(svc services.ResearchService, jobs services.JobStateService, stream services.StreamPublisher, baseLog *logger.Logger) *ResearchHandler {
	return &ResearchHandler{
		svc:    svc,
		jobs:   jobs,
		stream: stream,
		log:    baseLog.With("handler", "ResearchHandler"),
	}
}

// Submit accepts a research request and returns immediately; the pipeline
// runs in the background.
func (h *ResearchHandler) Submit(c *gin.Context) {
	var req types.ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	job, err := h.svc.Submit(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrValidation) {
			RespondError(c, http.StatusBadRequest, "validation", err)
			return
		}
		h.log.Error("Submit failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "submit_failed", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"job_id":  job.ID.String(),
		"message": fmt.Sprintf("Research started. Connect to /research/%s/stream for updates.", job.ID),
	})
}

func (h *ResearchHandler) Get(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	job, err := h.jobs.GetStatus(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "not_found", pkgerrors.ErrJobNotFound)
		return
	}
	RespondOK(c, job)
}

// Pending reports whether the job is suspended and, if so, the interrupt
// payload the approval form renders.
func (h *ResearchHandler) Pending(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	job, err := h.jobs.GetStatus(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "not_found", pkgerrors.ErrJobNotFound)
		return
	}
	RespondOK(c, gin.H{
		"status":            job.Status,
		"interrupt":         job.InterruptPayload(),
		"awaiting_approval": job.Status == types.JobStatusAwaitingApproval,
	})
}

func (h *ResearchHandler) Approve(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	var req types.ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	job, err := h.svc.Approve(c.Request.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrJobNotFound):
			RespondError(c, http.StatusNotFound, "not_found", err)
		case errors.Is(err, pkgerrors.ErrNotAwaitingApproval):
			RespondError(c, http.StatusBadRequest, "not_awaiting_approval", err)
		default:
			h.log.Error("Approve failed", "job_id", id, "error", err)
			RespondError(c, http.StatusInternalServerError, "approve_failed", err)
		}
		return
	}
	RespondOK(c, gin.H{
		"status": job.Status,
		"job_id": job.ID.String(),
	})
}

// Stream is the SSE endpoint: historical events first, then live frames,
// with comment heartbeats keeping the connection open while idle.
func (h *ResearchHandler) Stream(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, flushable := w.(http.Flusher)
	if !flushable {
		RespondError(c, http.StatusInternalServerError, "streaming_unsupported", fmt.Errorf("response writer does not support flushing"))
		return
	}

	// Open the connection for the client before the first poll lands.
	_, _ = fmt.Fprint(w, ": heartbeat\n\n")
	flusher.Flush()

	frames := h.stream.Subscribe(c.Request.Context(), id)
	for frame := range frames {
		if frame.Heartbeat {
			_, _ = fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
			continue
		}
		raw, err := json.Marshal(frame.Data)
		if err != nil {
			h.log.Warn("Dropping unencodable frame", "job_id", id, "error", err)
			continue
		}
		_, _ = fmt.Fprintf(w, "data: %s\n\n", raw)
		flusher.Flush()
	}
}

func (h *ResearchHandler) jobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", fmt.Errorf("invalid job id: %w", err))
		return uuid.Nil, false
	}
	return id, true
}
