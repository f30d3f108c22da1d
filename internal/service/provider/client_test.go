package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"chargecast-service/internal/domain/activity"
	xerrors "chargecast-service/internal/pkg/errors"

	"go.uber.org/zap"
)

func testState() activity.ChargeState {
	return activity.ChargeState{ChargePercent: 90, PowerWatts: 7.8, MinutesToFull: 14, IsCharging: true}
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(Config{
		BaseURL: server.URL,
		AppID:   "app-1",
		APIKey:  "rest-key",
	}, zap.NewNop())
}

func TestSendUpdate(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"id":"notif-1"}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	res := client.Send(context.Background(), OpUpdate, "A1", testState(), "tok-1", "sub-1")

	if !res.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	if res.Data["id"] != "notif-1" {
		t.Fatalf("response body not parsed: %v", res.Data)
	}

	if gotPath != "/apps/app-1/live_activities/A1/notifications" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Basic rest-key" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotBody["event"] != "update" {
		t.Fatalf("event = %v", gotBody["event"])
	}
	if gotBody["push_token"] != "tok-1" {
		t.Fatalf("push_token = %v", gotBody["push_token"])
	}
	if _, ok := gotBody["event_updates"].(map[string]interface{}); !ok {
		t.Fatalf("event_updates missing: %v", gotBody)
	}
	if _, ok := gotBody["dismissal_date"]; ok {
		t.Fatal("update must not carry a dismissal date")
	}
}

func TestSendEndCarriesDismissalDate(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	res := client.Send(context.Background(), OpEnd, "A1", testState(), "", "")

	if !res.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	if gotBody["event"] != "end" {
		t.Fatalf("event = %v", gotBody["event"])
	}
	if _, ok := gotBody["dismissal_date"]; !ok {
		t.Fatal("end must carry a dismissal date")
	}
}

func TestSendUpdateWithoutTokenRefusedLocally(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	client := newTestClient(server)
	res := client.Send(context.Background(), OpUpdate, "A1", testState(), "", "sub-1")

	if res.OK || !xerrors.Is(res.Err, xerrors.ErrMissingPushToken) {
		t.Fatalf("expected ErrMissingPushToken, got %+v", res)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("unroutable update still hit the provider")
	}
}

func TestSendRejectionNormalized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":["invalid activity"]}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	res := client.Send(context.Background(), OpUpdate, "A1", testState(), "tok-1", "")

	if res.OK {
		t.Fatal("rejection reported as OK")
	}
	if res.Status != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Status)
	}
	if !xerrors.Is(res.Err, xerrors.ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", res.Err)
	}
	if res.Data == nil {
		t.Fatal("rejection body was not parsed")
	}
}

func TestSendUnconfigured(t *testing.T) {
	client := NewClient(Config{}, zap.NewNop())
	if client.Configured() {
		t.Fatal("empty config reported as configured")
	}

	res := client.Send(context.Background(), OpUpdate, "A1", testState(), "tok-1", "")
	if res.OK || !xerrors.Is(res.Err, xerrors.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %+v", res)
	}
}

func TestRecoverPushToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/players/sub-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("app_id") != "app-1" {
			t.Errorf("app_id = %q", r.URL.Query().Get("app_id"))
		}
		_, _ = w.Write([]byte(`{"tags":{"live_activity_push_token":"tok-9"}}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	token, err := client.RecoverPushToken(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if token != "tok-9" {
		t.Fatalf("token = %q", token)
	}
}

func TestRecoverPushTokenNoTag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tags":{}}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	token, err := client.RecoverPushToken(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token, got %q", token)
	}
}

func TestErrorLoggingIsThrottled(t *testing.T) {
	client := NewClient(Config{AppID: "app-1", APIKey: "k"}, zap.NewNop())

	base := time.Now()
	client.nowFn = func() time.Time { return base }

	// Two failures in the same window collapse to one log entry; the
	// window map is what we can observe without a log sink.
	client.logThrottled("update", "boom")
	first := client.lastLogged["update"]
	client.logThrottled("update", "boom")
	if !client.lastLogged["update"].Equal(first) {
		t.Fatal("second failure inside the window refreshed the log timestamp")
	}

	client.nowFn = func() time.Time { return base.Add(logWindow + time.Second) }
	client.logThrottled("update", "boom")
	if client.lastLogged["update"].Equal(first) {
		t.Fatal("failure outside the window was still suppressed")
	}
}
