// internal/app/router.go
package app

import (
	activityHandler "chargecast-service/internal/handlers/activity"
	reconcileHandler "chargecast-service/internal/handlers/reconcile"
	"chargecast-service/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	ActivityHandler  *activityHandler.ActivityHandler
	ReconcileHandler *reconcileHandler.ReconcileHandler
}

func SetupRouter(r *gin.Engine, relaySecret string, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Activity Lifecycle ====================
	activities := api.Group("/activities")
	activities.Use(middleware.SharedSecret(relaySecret))
	{
		activities.POST("/start", h.ActivityHandler.Start)
		activities.POST("/update", h.ActivityHandler.Update)
		activities.POST("/end", h.ActivityHandler.End)
	}

	// ==================== Scheduler Trigger ====================
	reconcile := api.Group("/reconcile")
	reconcile.Use(middleware.SharedSecret(relaySecret))
	{
		reconcile.GET("", h.ReconcileHandler.Trigger)
	}
}
