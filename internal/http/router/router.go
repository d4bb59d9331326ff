// Package router wires handlers onto the gin engine.
package router

import (
	"github.com/gin-gonic/gin"

	"revq.app/revq/internal/http/handler"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Webhook     *handler.GitHubWebhookHandler
	Diagnostics *handler.DiagnosticsHandler
	Results     *handler.ResultsHandler
}

func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/hooks/github", h.Webhook.HandleEvent)
		v1.GET("/diagnostics/active", h.Diagnostics.ListActive)
		v1.GET("/results/:job_id", h.Results.Get)
	}
}
