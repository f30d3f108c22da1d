// Package sessionstore is the single source of truth for which Live
// Activities are live and what state was last recorded for them.
package sessionstore

import (
	"context"
	"time"

	"chargecast-service/internal/domain/activity"
)

// Store is implemented by a process-local map for single-instance
// deployments and by Redis for anything multi-instance. All operations
// are individually atomic; records are replaced wholesale.
type Store interface {
	// Save creates or replaces a session and resets its LastUpdatedAt.
	Save(ctx context.Context, session *activity.Session) error

	// UpdateState replaces the state snapshot of an existing session.
	// It returns false without creating anything when the session is
	// unknown: a bare state update carries no push token, so
	// synthesizing a session from it would leave the direct channel
	// permanently unaddressable.
	UpdateState(ctx context.Context, activityID string, state activity.ChargeState) (bool, error)

	// SetPushToken records a recovered push token without touching
	// LastUpdatedAt, which only state writes may advance.
	SetPushToken(ctx context.Context, activityID, pushToken string) error

	// Get returns the session or nil when unknown.
	Get(ctx context.Context, activityID string) (*activity.Session, error)

	// Remove deletes a session. Removing an unknown ID is a no-op.
	Remove(ctx context.Context, activityID string) error

	// ListActive returns every session younger than staleAfter. Sessions
	// at or beyond the threshold are pruned during the scan; the count
	// of pruned sessions is returned alongside the survivors.
	ListActive(ctx context.Context, staleAfter time.Duration) ([]*activity.Session, int, error)
}
