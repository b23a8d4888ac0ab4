package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mkline/granary/internal/audit"
	"github.com/mkline/granary/internal/domain"
	"github.com/mkline/granary/internal/pipeline"
)

// StatusHandler exposes pipeline observability: health, counters, recent
// audit events, and the processed-file history.
type StatusHandler struct {
	loop     *pipeline.Loop
	auditLog *audit.Log
	history  HistoryLister
}

// HistoryLister lists recent processed-file ledger rows. Satisfied by
// repository.ProcessedFileRepository.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]domain.ProcessedFile, error)
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(loop *pipeline.Loop, auditLog *audit.Log, history HistoryLister) *StatusHandler {
	return &StatusHandler{loop: loop, auditLog: auditLog, history: history}
}

// Health returns the health status of the service.
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"run_id": h.loop.RunID(),
	})
}

// Stats returns the loop's counters.
func (h *StatusHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.loop.Snapshot())
}

// Events returns the buffered audit events, oldest first.
func (h *StatusHandler) Events(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"events": h.auditLog.Recent(),
	})
}

// History returns the most recent terminal artifact outcomes.
func (h *StatusHandler) History(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	rows, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": rows})
}
