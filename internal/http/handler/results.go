package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"revq.app/revq/internal/model"
	"revq.app/revq/internal/store"
)

// resultReader loads persisted results; *store.Store satisfies it.
type resultReader interface {
	GetAnalysisResult(ctx context.Context, jobID int64) (*model.AnalysisResult, error)
}

// ResultsHandler serves persisted analysis results by job id.
type ResultsHandler struct {
	results resultReader
}

func NewResultsHandler(results resultReader) *ResultsHandler {
	return &ResultsHandler{results: results}
}

func (h *ResultsHandler) Get(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("job_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	result, err := h.results.GetAnalysisResult(c.Request.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
		return
	}

	c.JSON(http.StatusOK, result)
}
