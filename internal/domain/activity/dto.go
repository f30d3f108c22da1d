package activity

// StartRequest registers a new Live Activity session. The push token is
// captured here because a bare state update can never synthesize it later.
type StartRequest struct {
	ActivityID   string      `json:"activity_id" binding:"required"`
	PushToken    string      `json:"push_token"`
	SubscriberID string      `json:"subscriber_id"`
	State        ChargeState `json:"state"`
}

// UpdateRequest replaces the state snapshot of an existing session.
type UpdateRequest struct {
	ActivityID string      `json:"activity_id" binding:"required"`
	State      ChargeState `json:"state"`
}

// EndRequest terminates a session and dismisses the Live Activity.
type EndRequest struct {
	ActivityID string `json:"activity_id" binding:"required"`
}
