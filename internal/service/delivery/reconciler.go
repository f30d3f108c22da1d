// internal/service/delivery/reconciler.go
package delivery

import (
	"context"
	"sync"
	"time"

	"chargecast-service/internal/domain/activity"
	apnspkg "chargecast-service/internal/pkg/apns"
	"chargecast-service/internal/repository/sessionstore"
	"chargecast-service/internal/service/provider"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DirectSender is the direct APNs channel as the reconciler sees it.
type DirectSender interface {
	Configured() bool
	SendUpdate(ctx context.Context, pushToken string, state activity.ChargeState) apnspkg.PushResult
}

// ProviderSender is the provider REST channel as the reconciler sees it.
type ProviderSender interface {
	Configured() bool
	Send(ctx context.Context, op provider.Operation, activityID string, state activity.ChargeState, pushToken, subscriberID string) provider.Result
	RecoverPushToken(ctx context.Context, subscriberID string) (string, error)
}

// Config tunes one reconcile cycle.
type Config struct {
	// StaleAfter is the age at which a session is pruned without a push
	// attempt. The origin stopped reporting; the activity is dead.
	StaleAfter time.Duration

	// MaxConcurrent bounds the per-session delivery fan-out.
	MaxConcurrent int64
}

// Summary is the aggregate outcome of one run, returned to the scheduler
// trigger as JSON.
type Summary struct {
	RunID        string    `json:"run_id"`
	DirectSent   int       `json:"direct_sent"`
	ProviderSent int       `json:"provider_sent"`
	Failed       int       `json:"failed"`
	Ended        int       `json:"ended"`
	Pruned       int       `json:"pruned"`
	Timestamp    time.Time `json:"timestamp"`
}

// Reconciler drives the periodic reconciliation: prune stale sessions,
// end stopped ones, push fresh state to the rest, preferring the direct
// channel and falling back to the provider.
type Reconciler struct {
	store  sessionstore.Store
	direct DirectSender
	prov   ProviderSender
	cfg    Config
	logger *zap.Logger
}

func NewReconciler(store sessionstore.Store, direct DirectSender, prov ProviderSender, cfg Config, logger *zap.Logger) *Reconciler {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Reconciler{
		store:  store,
		direct: direct,
		prov:   prov,
		cfg:    cfg,
		logger: logger,
	}
}

type outcome int

const (
	outcomeDirect outcome = iota
	outcomeProvider
	outcomeEnded
	outcomeFailed
)

// Run executes one bounded reconcile cycle. Sessions are processed
// independently and concurrently; no session's failure aborts the batch,
// and nothing escapes the run as an error. Overlapping runs are safe:
// every send carries a full snapshot and pruning is commutative.
func (r *Reconciler) Run(ctx context.Context) Summary {
	summary := Summary{
		RunID:     ulid.Make().String(),
		Timestamp: time.Now().UTC(),
	}

	sessions, pruned, err := r.store.ListActive(ctx, r.cfg.StaleAfter)
	summary.Pruned = pruned
	if err != nil {
		r.logger.Error("reconcile: failed to list sessions",
			zap.String("run_id", summary.RunID), zap.Error(err))
		return summary
	}

	sem := semaphore.NewWeighted(r.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, session := range sessions {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context gone; count the rest as failed retries for
			// the next cycle.
			mu.Lock()
			summary.Failed++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(sess *activity.Session) {
			defer wg.Done()
			defer sem.Release(1)

			result := r.deliver(ctx, sess)

			mu.Lock()
			defer mu.Unlock()
			switch result {
			case outcomeDirect:
				summary.DirectSent++
			case outcomeProvider:
				summary.ProviderSent++
			case outcomeEnded:
				summary.Ended++
			case outcomeFailed:
				summary.Failed++
			}
		}(session)
	}
	wg.Wait()

	r.logger.Info("reconcile cycle complete",
		zap.String("run_id", summary.RunID),
		zap.Int("direct_sent", summary.DirectSent),
		zap.Int("provider_sent", summary.ProviderSent),
		zap.Int("failed", summary.Failed),
		zap.Int("ended", summary.Ended),
		zap.Int("pruned", summary.Pruned),
	)
	return summary
}

// deliver runs the per-session state machine. It must not mutate
// LastUpdatedAt: only state writes from the origin advance it, otherwise
// a dead origin would look alive forever.
func (r *Reconciler) deliver(ctx context.Context, sess *activity.Session) (result outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("reconcile: panic in session delivery",
				zap.String("activity_id", sess.ActivityID), zap.Any("panic", rec))
			result = outcomeFailed
		}
	}()

	// Charging stopped is an implicit end signal. The session goes away
	// even if the end push fails; retrying an end forever would pin a
	// phantom session.
	if !sess.State.IsCharging {
		res := r.prov.Send(ctx, provider.OpEnd, sess.ActivityID, sess.State, sess.PushToken, sess.SubscriberID)
		if !res.OK {
			r.logger.Warn("reconcile: end push failed, removing session anyway",
				zap.String("activity_id", sess.ActivityID), zap.Error(res.Err))
		}
		if err := r.store.Remove(ctx, sess.ActivityID); err != nil {
			r.logger.Error("reconcile: failed to remove ended session",
				zap.String("activity_id", sess.ActivityID), zap.Error(err))
		}
		return outcomeEnded
	}

	pushToken := sess.PushToken
	if pushToken == "" && sess.SubscriberID != "" && r.prov.Configured() {
		recovered, err := r.prov.RecoverPushToken(ctx, sess.SubscriberID)
		if err == nil && recovered != "" {
			pushToken = recovered
			if err := r.store.SetPushToken(ctx, sess.ActivityID, recovered); err != nil {
				r.logger.Warn("reconcile: failed to persist recovered push token",
					zap.String("activity_id", sess.ActivityID), zap.Error(err))
			}
		}
	}

	if r.direct.Configured() && pushToken != "" {
		res := r.direct.SendUpdate(ctx, pushToken, sess.State)
		if res.Success {
			return outcomeDirect
		}
		r.logger.Warn("reconcile: direct push failed, falling back to provider",
			zap.String("activity_id", sess.ActivityID),
			zap.Int("status", res.StatusCode),
			zap.Error(res.Err))
	}

	if r.prov.Configured() {
		res := r.prov.Send(ctx, provider.OpUpdate, sess.ActivityID, sess.State, pushToken, sess.SubscriberID)
		if res.OK {
			return outcomeProvider
		}
	}

	// Session stays in the store untouched; next cycle retries.
	return outcomeFailed
}
