// internal/handlers/reconcile/reconcile_handler.go
package reconcile

import (
	"net/http"

	"chargecast-service/internal/pkg/response"
	"chargecast-service/internal/service/delivery"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReconcileHandler struct {
	reconciler *delivery.Reconciler
	logger     *zap.Logger
}

func NewReconcileHandler(reconciler *delivery.Reconciler, logger *zap.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// Trigger runs one reconcile cycle. Invoked by the external scheduler on
// a fixed interval; always returns the aggregate summary, never an error
// status for individual delivery failures.
func (h *ReconcileHandler) Trigger(c *gin.Context) {
	summary := h.reconciler.Run(c.Request.Context())
	response.Success(c, http.StatusOK, "reconcile complete", summary)
}
