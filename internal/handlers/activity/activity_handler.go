// internal/handlers/activity/activity_handler.go
package activity

import (
	"context"
	"net/http"
	"time"

	domain "chargecast-service/internal/domain/activity"
	"chargecast-service/internal/pkg/response"
	"chargecast-service/internal/repository/sessionstore"
	"chargecast-service/internal/service/provider"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ActivityHandler struct {
	store  sessionstore.Store
	prov   *provider.Client
	logger *zap.Logger
}

func NewActivityHandler(store sessionstore.Store, prov *provider.Client, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{
		store:  store,
		prov:   prov,
		logger: logger,
	}
}

// Start registers a session for a freshly created Live Activity.
func (h *ActivityHandler) Start(c *gin.Context) {
	var req domain.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}
	if err := req.State.Validate(); err != nil {
		response.ValidationError(c, "invalid state snapshot", err)
		return
	}

	session := &domain.Session{
		ActivityID:   req.ActivityID,
		SubscriberID: req.SubscriberID,
		PushToken:    req.PushToken,
		State:        req.State,
	}
	if err := h.store.Save(c.Request.Context(), session); err != nil {
		h.logger.Error("failed to store session", zap.String("activity_id", req.ActivityID), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to store session", err)
		return
	}

	h.logger.Info("activity session started",
		zap.String("activity_id", req.ActivityID),
		zap.Bool("has_push_token", req.PushToken != ""),
	)

	// Mirror the token onto the subscriber record so later sessions can
	// recover it. Best effort, off the request path.
	if req.SubscriberID != "" && req.PushToken != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			h.prov.TagSubscriber(ctx, req.SubscriberID, req.PushToken)
		}()
	}

	response.Success(c, http.StatusCreated, "session started", session)
}

// Update replaces the state snapshot of an existing session. Unknown
// sessions are a 404, never an implicit create: the push token is only
// captured at start time.
func (h *ActivityHandler) Update(c *gin.Context) {
	var req domain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}
	if err := req.State.Validate(); err != nil {
		response.ValidationError(c, "invalid state snapshot", err)
		return
	}

	ok, err := h.store.UpdateState(c.Request.Context(), req.ActivityID, req.State)
	if err != nil {
		h.logger.Error("failed to update session", zap.String("activity_id", req.ActivityID), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to update session", err)
		return
	}
	if !ok {
		response.NotFound(c, "unknown activity")
		return
	}

	response.Success(c, http.StatusOK, "session updated", nil)
}

// End dismisses the Live Activity and removes the session. Idempotent:
// ending an unknown activity still succeeds.
func (h *ActivityHandler) End(c *gin.Context) {
	var req domain.EndRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	session, err := h.store.Get(c.Request.Context(), req.ActivityID)
	if err != nil {
		h.logger.Error("failed to read session", zap.String("activity_id", req.ActivityID), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to read session", err)
		return
	}

	if session != nil {
		res := h.prov.Send(c.Request.Context(), provider.OpEnd, session.ActivityID, session.State, session.PushToken, session.SubscriberID)
		if !res.OK {
			// The session is still removed; a failed dismissal must
			// not keep it alive.
			h.logger.Warn("end push failed",
				zap.String("activity_id", req.ActivityID), zap.Error(res.Err))
		}
	}

	if err := h.store.Remove(c.Request.Context(), req.ActivityID); err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to remove session", err)
		return
	}

	response.Success(c, http.StatusOK, "session ended", nil)
}
