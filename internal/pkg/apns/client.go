// internal/pkg/apns/client.go
package apns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chargecast-service/internal/domain/activity"
	xerrors "chargecast-service/internal/pkg/errors"

	"golang.org/x/net/http2"
)

const (
	productionHost = "https://api.push.apple.com"
	sandboxHost    = "https://api.sandbox.push.apple.com"

	// APNs caps error bodies well below this; the limit only guards
	// against a misbehaving intermediary.
	maxResponseBytes = 4 << 10
)

// Config carries the direct-channel credentials. All four credential
// fields must be present for the channel to be usable.
type Config struct {
	KeyPEM  string
	KeyID   string
	TeamID  string
	Topic   string // app bundle ID
	Sandbox bool
}

func (c Config) complete() bool {
	return c.KeyPEM != "" && c.KeyID != "" && c.TeamID != "" && c.Topic != ""
}

// PushResult is the normalized outcome of one delivery attempt.
type PushResult struct {
	Success    bool
	DeliveryID string
	StatusCode int
	Err        error
}

// Client pushes Live Activity updates straight to the APNs HTTP/2
// gateway, bypassing the notification provider. One attempt per call;
// retry policy belongs to the reconciler.
type Client struct {
	topic  string
	host   string
	tokens *TokenSource
	http   *http.Client
}

// NewClient builds the direct-channel client. With incomplete or
// malformed credentials it still returns a usable client that reports
// Configured() == false, so the caller can run provider-only; the error
// describes why the channel is down.
func NewClient(cfg Config) (*Client, error) {
	host := productionHost
	if cfg.Sandbox {
		host = sandboxHost
	}

	c := &Client{
		topic: cfg.Topic,
		host:  host,
		http: &http.Client{
			Transport: &http2.Transport{},
			Timeout:   20 * time.Second,
		},
	}

	if !cfg.complete() {
		return c, nil
	}

	tokens, err := NewTokenSource(cfg.KeyPEM, cfg.KeyID, cfg.TeamID)
	if err != nil {
		return c, err
	}
	c.tokens = tokens
	return c, nil
}

// Configured reports whether the direct channel can be attempted at all.
func (c *Client) Configured() bool {
	return c.tokens != nil
}

type liveActivityPayload struct {
	APS apsEnvelope `json:"aps"`
}

type apsEnvelope struct {
	Timestamp    int64                `json:"timestamp"`
	Event        string               `json:"event"`
	ContentState activity.ChargeState `json:"content-state"`
}

// SendUpdate delivers one full state snapshot to the Live Activity
// addressed by pushToken. Transport and protocol failures come back as a
// structured result, never as a panic or propagated error.
func (c *Client) SendUpdate(ctx context.Context, pushToken string, state activity.ChargeState) PushResult {
	if !c.Configured() {
		return PushResult{Err: xerrors.Wrap(xerrors.ErrNotConfigured, "direct channel disabled")}
	}
	if pushToken == "" {
		return PushResult{Err: xerrors.ErrMissingPushToken}
	}

	bearer, err := c.tokens.Bearer()
	if err != nil {
		return PushResult{Err: err}
	}

	payload := liveActivityPayload{
		APS: apsEnvelope{
			Timestamp:    time.Now().Unix(),
			Event:        "update",
			ContentState: state.Normalized(),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return PushResult{Err: xerrors.Wrap(xerrors.ErrInternal, err.Error())}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/3/device/"+pushToken, bytes.NewReader(body))
	if err != nil {
		return PushResult{Err: xerrors.Wrap(xerrors.ErrTransport, err.Error())}
	}
	req.Header.Set("authorization", "bearer "+bearer)
	req.Header.Set("apns-topic", c.topic+".push-type.liveactivity")
	req.Header.Set("apns-push-type", "liveactivity")
	req.Header.Set("apns-priority", "10")
	req.Header.Set("content-type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return PushResult{Err: xerrors.Wrap(xerrors.ErrTransport, err.Error())}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode == http.StatusOK {
		return PushResult{
			Success:    true,
			DeliveryID: resp.Header.Get("apns-id"),
			StatusCode: resp.StatusCode,
		}
	}

	return PushResult{
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("%w: apns status %d: %s", xerrors.ErrProviderRejected, resp.StatusCode, string(respBody)),
	}
}
