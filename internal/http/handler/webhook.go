// Package handler holds the gin HTTP handlers.
package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"revq.app/revq/internal/service"
)

// eventIntake is the synchronous intake pipeline; *service.Intake satisfies
// it.
type eventIntake interface {
	Handle(ctx context.Context, d service.Delivery) service.IntakeResult
}

// GitHubWebhookHandler terminates GitHub webhook deliveries.
type GitHubWebhookHandler struct {
	intake eventIntake
}

func NewGitHubWebhookHandler(intake eventIntake) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{intake: intake}
}

// HandleEvent maps the intake outcome onto the response contract: 400 for
// malformed deliveries, 401 for signature mismatches, 503 under
// backpressure, and 200/202 for everything accepted — including duplicates
// and ignorable events, which are acknowledged so the sender stops retrying.
func (h *GitHubWebhookHandler) HandleEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	result := h.intake.Handle(c.Request.Context(), service.Delivery{
		EventType:  c.GetHeader("X-GitHub-Event"),
		DeliveryID: c.GetHeader("X-GitHub-Delivery"),
		Signature:  c.GetHeader("X-Hub-Signature-256"),
		Body:       body,
		ReceivedAt: time.Now(),
	})

	switch result.Outcome {
	case service.OutcomeAccepted:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "job_id": result.JobID})
	case service.OutcomeDuplicate:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "duplicate delivery, ignored"})
	case service.OutcomeIgnored:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": result.Reason})
	case service.OutcomeUnauthorized:
		c.JSON(http.StatusUnauthorized, gin.H{"error": result.Reason})
	case service.OutcomeBusy:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": result.Reason})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": result.Reason})
	}
}
