package handler

import (
	"net/http"
	"strconv"

	reconcile "anoa.com/threadline/internal/modules/reconcile/service"
	"anoa.com/threadline/pkg/response"
	"github.com/gin-gonic/gin"
)

type ReconcileHandler struct {
	service   reconcile.ReconcileService
	scheduler *reconcile.Scheduler
	batchSize int
}

// NewReconcileHandler builds the handler; scheduler may be nil when the
// periodic sweep is disabled.
func NewReconcileHandler(service reconcile.ReconcileService, scheduler *reconcile.Scheduler, batchSize int) *ReconcileHandler {
	return &ReconcileHandler{service: service, scheduler: scheduler, batchSize: batchSize}
}

func targetID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("target_id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target_id"})
		return 0, false
	}
	return uint(id), true
}

// Diff reports stored and expected values for every counter that disagrees.
func (h *ReconcileHandler) Diff(c *gin.Context) {
	id, ok := targetID(c)
	if !ok {
		return
	}

	targetType := c.Param("target_type")
	diff, err := h.service.Diff(c.Request.Context(), targetType, id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	expected, err := h.service.ComputeExpectedCounts(c.Request.Context(), targetType, id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"target_type": targetType,
		"target_id":   id,
		"consistent":  len(diff) == 0,
		"diff":        diff,
		"expected":    expected,
	})
}

func (h *ReconcileHandler) Repair(c *gin.Context) {
	id, ok := targetID(c)
	if !ok {
		return
	}

	result, err := h.service.Repair(c.Request.Context(), c.Param("target_type"), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Sweep runs RepairAll synchronously. ?batch_size overrides the configured size.
func (h *ReconcileHandler) Sweep(c *gin.Context) {
	batchSize := h.batchSize
	if raw := c.Query("batch_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 10000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "batch_size must be between 1 and 10000"})
			return
		}
		batchSize = n
	}

	var summary *reconcile.SweepSummary
	var err error
	if h.scheduler != nil && c.Query("batch_size") == "" {
		summary, err = h.scheduler.RunNow(c.Request.Context())
	} else {
		summary, err = h.service.RepairAll(c.Request.Context(), batchSize)
	}
	if err != nil {
		// A cancelled sweep still reports what it finished.
		if summary != nil && summary.Interrupted {
			c.JSON(http.StatusPartialContent, summary)
			return
		}
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// LastSweep returns the most recent scheduled sweep summary.
func (h *ReconcileHandler) LastSweep(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusOK, gin.H{"scheduled": false, "last": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduled": true, "last": h.scheduler.LastSummary()})
}
