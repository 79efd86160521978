package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/research-assistant/pkg/archive"
	"github.com/mikeboe/research-assistant/pkg/database"
	"github.com/mikeboe/research-assistant/pkg/research"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

type researchRequest struct {
	Topic string `json:"topic"`
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/research/stream", h.streamResearch)

	api := r.Group("/api")
	{
		api.POST("/research", h.createRun)
		api.GET("/research", h.listRuns)
		api.GET("/research/:id", h.getRun)
		api.GET("/research/:id/logs", h.getRunLogs)
		api.GET("/notes/search", h.searchNotes)
	}
}

// streamResearch runs one workflow and forwards its progress as SSE frames.
// The run is cancelled when the client disconnects.
func (h *Handler) streamResearch(c *gin.Context) {
	var req researchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		writeError(c, research.ErrEmptyTopic)
		return
	}

	next, err := h.Service.Stream(c.Request.Context(), req.Topic)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for event, err := range next {
		data, mErr := json.Marshal(event)
		if mErr != nil {
			h.Service.Logger.Error("Failed to encode progress event", "error", mErr)
			return
		}
		_, _ = c.Writer.Write([]byte("data: "))
		_, _ = c.Writer.Write(data)
		_, _ = c.Writer.Write([]byte("\n\n"))
		c.Writer.Flush()

		if err != nil {
			h.Service.Logger.Warn("Research stream ended with error", "topic", req.Topic, "error", err)
			return
		}
	}
}

func (h *Handler) createRun(c *gin.Context) {
	var req researchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.Service.StartRun(c.Request.Context(), req.Topic)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

func (h *Handler) listRuns(c *gin.Context) {
	runs, err := h.Service.ListRuns(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *Handler) getRun(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	run, err := h.Service.GetRun(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) getRunLogs(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	logs, err := h.Service.GetRunLogs(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) searchNotes(c *gin.Context) {
	k, err := strconv.Atoi(c.DefaultQuery("k", "5"))
	if err != nil || k <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "k must be a positive integer"})
		return
	}
	filter := archive.Filter{
		RunID:        c.Query("run_id"),
		Topic:        c.Query("topic"),
		ExcludeRunID: c.Query("exclude_run_id"),
	}
	for _, raw := range c.QueryArray("task_id") {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "task_id must be a positive integer"})
			return
		}
		filter.TaskIDs = append(filter.TaskIDs, id)
	}
	hits, err := h.Service.SearchNotes(c.Request.Context(), c.Query("q"), k, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, hits)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNoStore), errors.Is(err, ErrNoArchive):
		status = http.StatusServiceUnavailable
	case errors.Is(err, database.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, research.ErrEmptyTopic), errors.Is(err, archive.ErrEmptyQuery):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
