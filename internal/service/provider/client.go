// internal/service/provider/client.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"chargecast-service/internal/domain/activity"
	xerrors "chargecast-service/internal/pkg/errors"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.onesignal.com/api/v1"

	// Tag under which the mobile client mirrors the Live Activity push
	// token onto its provider subscriber record. Used to recover tokens
	// for sessions that started before the token was captured.
	pushTokenTag = "live_activity_push_token"

	// One error log per operation kind per window; a sustained provider
	// outage otherwise floods the logs every cycle.
	logWindow = 5 * time.Minute

	maxResponseBytes = 16 << 10
)

// Operation selects the lifecycle event carried by a provider request.
type Operation string

const (
	OpUpdate Operation = "update"
	OpEnd    Operation = "end"
)

// Result is the tagged outcome of one provider call: either OK with the
// parsed response body, or a failure with status and error.
type Result struct {
	OK     bool
	Status int
	Data   map[string]interface{}
	Err    error
}

// Config carries the provider REST credentials.
type Config struct {
	BaseURL string
	AppID   string
	APIKey  string
}

// Client talks to the notification provider's Live Activity REST API. It
// is the fallback delivery channel and the only channel that carries
// lifecycle end events.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger

	mu         sync.Mutex
	lastLogged map[string]time.Time
	nowFn      func() time.Time
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		cfg:        cfg,
		http:       &http.Client{Timeout: 20 * time.Second},
		logger:     logger,
		lastLogged: make(map[string]time.Time),
		nowFn:      time.Now,
	}
}

// Configured reports whether the provider channel has credentials.
func (c *Client) Configured() bool {
	return c.cfg.AppID != "" && c.cfg.APIKey != ""
}

// Send delivers one update or end event for the given activity. Updates
// without a push token are refused locally: the provider cannot route
// them, and the distinct error lets the reconciler count the degraded
// sessions separately.
func (c *Client) Send(ctx context.Context, op Operation, activityID string, state activity.ChargeState, pushToken, subscriberID string) Result {
	if !c.Configured() {
		return Result{Err: xerrors.Wrap(xerrors.ErrNotConfigured, "provider channel disabled")}
	}

	body := map[string]interface{}{
		"event":         string(op),
		"event_updates": state.Normalized(),
	}
	switch op {
	case OpUpdate:
		if pushToken == "" {
			c.logThrottled("missing_token", "provider update without push token",
				zap.String("activity_id", activityID))
			return Result{Err: xerrors.ErrMissingPushToken}
		}
		body["push_token"] = pushToken
		if subscriberID != "" {
			body["include_subscription_ids"] = []string{subscriberID}
		}
	case OpEnd:
		// A just-past dismissal date forces immediate dismissal
		// instead of letting the activity linger until its own
		// timeout.
		body["dismissal_date"] = c.nowFn().Add(-time.Second).Unix()
	}

	endpoint := fmt.Sprintf("%s/apps/%s/live_activities/%s/notifications",
		c.cfg.BaseURL, c.cfg.AppID, url.PathEscape(activityID))

	res := c.do(ctx, http.MethodPost, endpoint, body)
	if !res.OK {
		c.logThrottled(string(op), "provider push failed",
			zap.String("activity_id", activityID),
			zap.Int("status", res.Status),
			zap.Error(res.Err))
	}
	return res
}

// RecoverPushToken looks the push token up from the subscriber's
// provider-side tags. Best effort: an empty string with nil error means
// the subscriber simply has no token tagged.
func (c *Client) RecoverPushToken(ctx context.Context, subscriberID string) (string, error) {
	if !c.Configured() {
		return "", xerrors.Wrap(xerrors.ErrNotConfigured, "provider channel disabled")
	}

	endpoint := fmt.Sprintf("%s/players/%s?app_id=%s",
		c.cfg.BaseURL, url.PathEscape(subscriberID), url.QueryEscape(c.cfg.AppID))

	res := c.do(ctx, http.MethodGet, endpoint, nil)
	if !res.OK {
		return "", res.Err
	}

	tags, ok := res.Data["tags"].(map[string]interface{})
	if !ok {
		return "", nil
	}
	token, _ := tags[pushTokenTag].(string)
	return token, nil
}

// TagSubscriber mirrors the push token onto the subscriber record so it
// can be recovered later. Failures are logged and swallowed; tagging is
// an auxiliary step that must never affect the primary result.
func (c *Client) TagSubscriber(ctx context.Context, subscriberID, pushToken string) {
	if !c.Configured() || subscriberID == "" || pushToken == "" {
		return
	}

	endpoint := fmt.Sprintf("%s/players/%s", c.cfg.BaseURL, url.PathEscape(subscriberID))
	body := map[string]interface{}{
		"app_id": c.cfg.AppID,
		"tags":   map[string]string{pushTokenTag: pushToken},
	}

	if res := c.do(ctx, http.MethodPut, endpoint, body); !res.OK {
		c.logThrottled("tag", "failed to tag subscriber with push token",
			zap.String("subscriber_id", subscriberID),
			zap.Error(res.Err))
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body map[string]interface{}) Result {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Result{Err: xerrors.Wrap(xerrors.ErrInternal, err.Error())}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return Result{Err: xerrors.Wrap(xerrors.ErrTransport, err.Error())}
	}
	req.Header.Set("Authorization", "Basic "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Err: xerrors.Wrap(xerrors.ErrTransport, err.Error())}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	var data map[string]interface{}
	_ = json.Unmarshal(raw, &data)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			Status: resp.StatusCode,
			Data:   data,
			Err:    fmt.Errorf("%w: status %d: %s", xerrors.ErrProviderRejected, resp.StatusCode, string(raw)),
		}
	}
	return Result{OK: true, Status: resp.StatusCode, Data: data}
}

// logThrottled emits at most one error log per kind per logWindow.
func (c *Client) logThrottled(kind, msg string, fields ...zap.Field) {
	c.mu.Lock()
	now := c.nowFn()
	last, seen := c.lastLogged[kind]
	if seen && now.Sub(last) < logWindow {
		c.mu.Unlock()
		return
	}
	c.lastLogged[kind] = now
	c.mu.Unlock()

	c.logger.Error(msg, fields...)
}
