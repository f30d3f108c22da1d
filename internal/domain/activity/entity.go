package activity

import (
	"fmt"
	"time"

	xerrors "chargecast-service/internal/pkg/errors"
)

// ChargeState is the full telemetry snapshot shown on the Live Activity.
// It is always replaced wholesale, never patched field by field. The JSON
// keys mirror the widget's ContentState property names.
type ChargeState struct {
	ChargePercent int     `json:"chargePercent"`
	PowerWatts    float64 `json:"powerWatts"`
	MinutesToFull int     `json:"minutesToFull"`
	IsCharging    bool    `json:"isCharging"`
}

// Validate checks an inbound snapshot. A session must never hold a
// partially populated state.
func (s ChargeState) Validate() error {
	if s.ChargePercent < 0 || s.ChargePercent > 100 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("chargePercent %d out of range", s.ChargePercent))
	}
	if s.PowerWatts < 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "powerWatts must be non-negative")
	}
	return nil
}

// Normalized clamps the fields that may drift negative on the sender side
// (minutes-to-full estimates can undershoot) before the snapshot goes on
// the wire.
func (s ChargeState) Normalized() ChargeState {
	if s.MinutesToFull < 0 {
		s.MinutesToFull = 0
	}
	return s
}

// Session ties one externally created Live Activity to its last-known
// state and addressing information. Exactly one session exists per
// activity ID.
type Session struct {
	ActivityID    string      `json:"activity_id"`
	SubscriberID  string      `json:"subscriber_id,omitempty"`
	PushToken     string      `json:"push_token,omitempty"`
	State         ChargeState `json:"state"`
	LastUpdatedAt time.Time   `json:"last_updated_at"`
}

// Age reports how long ago the session last received a state write.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.LastUpdatedAt)
}
