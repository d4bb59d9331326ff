package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"revq.app/revq/internal/diag"
)

// DiagnosticsHandler exposes the live diagnostic registry to operators.
type DiagnosticsHandler struct {
	tracer *diag.Tracer
}

func NewDiagnosticsHandler(tracer *diag.Tracer) *DiagnosticsHandler {
	return &DiagnosticsHandler{tracer: tracer}
}

// ListActive returns the jobs currently being processed with their trace so
// far. Finished jobs live in the store, not here.
func (h *DiagnosticsHandler) ListActive(c *gin.Context) {
	active := h.tracer.Active()

	type activeContext struct {
		CorrelationID string `json:"correlation_id"`
		Operation     string `json:"operation"`
		StartedAt     string `json:"started_at"`
		ElapsedMs     int64  `json:"elapsed_ms"`
		TraceCount    int    `json:"trace_count"`
		ErrorCount    int    `json:"error_count"`
	}

	out := make([]activeContext, 0, len(active))
	for _, dc := range active {
		out = append(out, activeContext{
			CorrelationID: dc.CorrelationID,
			Operation:     dc.Operation,
			StartedAt:     dc.StartTime.UTC().Format(time.RFC3339Nano),
			ElapsedMs:     dc.Elapsed().Milliseconds(),
			TraceCount:    len(dc.Traces),
			ErrorCount:    len(dc.Errors),
		})
	}

	c.JSON(http.StatusOK, gin.H{"active": out, "count": len(out)})
}
