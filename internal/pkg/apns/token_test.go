package apns

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "chargecast-service/internal/pkg/errors"
)

func testKeyPEM(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	var buf bytes.Buffer
	if err := pem.Encode(&buf, &pem.Block{Type: "PRIVATE KEY", Bytes: der}); err != nil {
		t.Fatalf("encode pem: %v", err)
	}
	return buf.String()
}

func TestParsePrivateKeyAcceptsMangledForms(t *testing.T) {
	raw := testKeyPEM(t)

	cases := []struct {
		name string
		in   string
	}{
		{"raw pem", raw},
		{"base64 wrapped", base64.StdEncoding.EncodeToString([]byte(raw))},
		{"newlines flattened to spaces", strings.ReplaceAll(strings.TrimSpace(raw), "\n", " ")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParsePrivateKey(tc.in); err != nil {
				t.Fatalf("parse failed: %v", err)
			}
		})
	}
}

func TestParsePrivateKeyRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not a key", base64.StdEncoding.EncodeToString([]byte("still not a key"))} {
		if _, err := ParsePrivateKey(in); !xerrors.Is(err, xerrors.ErrNotConfigured) {
			t.Fatalf("input %q: expected ErrNotConfigured, got %v", in, err)
		}
	}
}

func TestNewTokenSourceRequiresIdentifiers(t *testing.T) {
	if _, err := NewTokenSource(testKeyPEM(t), "", "TEAM1"); !xerrors.Is(err, xerrors.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured for missing key ID, got %v", err)
	}
	if _, err := NewTokenSource(testKeyPEM(t), "KEY1", ""); !xerrors.Is(err, xerrors.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured for missing team ID, got %v", err)
	}
}

func TestBearerColdCacheSignsExactlyOnce(t *testing.T) {
	source, err := NewTokenSource(testKeyPEM(t), "KEY1", "TEAM1")
	if err != nil {
		t.Fatalf("new token source: %v", err)
	}

	var signs int32
	source.signFn = func() (string, time.Time, error) {
		atomic.AddInt32(&signs, 1)
		// Hold the flight open long enough for all callers to pile in.
		time.Sleep(50 * time.Millisecond)
		return "tok-1", time.Now().Add(tokenTTL), nil
	}

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = source.Bearer()
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&signs); got != 1 {
		t.Fatalf("expected exactly 1 signing operation, got %d", got)
	}
	for i := range tokens {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != "tok-1" {
			t.Fatalf("caller %d got %q, want shared token", i, tokens[i])
		}
	}
}

func TestBearerRefreshesInsideSafetyMargin(t *testing.T) {
	source, err := NewTokenSource(testKeyPEM(t), "KEY1", "TEAM1")
	if err != nil {
		t.Fatalf("new token source: %v", err)
	}

	now := time.Now()
	source.nowFn = func() time.Time { return now }

	first, err := source.Bearer()
	if err != nil {
		t.Fatalf("first bearer: %v", err)
	}
	if cached, _ := source.Bearer(); cached != first {
		t.Fatal("valid cached token was not reused")
	}

	// Step to within the refresh margin of expiry.
	now = now.Add(tokenTTL - refreshMargin + time.Second)
	second, err := source.Bearer()
	if err != nil {
		t.Fatalf("refresh bearer: %v", err)
	}
	if second == first {
		t.Fatal("token inside the safety margin was not refreshed")
	}
}

func TestBearerSharesFailureAcrossCallers(t *testing.T) {
	source, err := NewTokenSource(testKeyPEM(t), "KEY1", "TEAM1")
	if err != nil {
		t.Fatalf("new token source: %v", err)
	}

	source.signFn = func() (string, time.Time, error) {
		time.Sleep(20 * time.Millisecond)
		return "", time.Time{}, xerrors.ErrSigning
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = source.Bearer()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !xerrors.Is(err, xerrors.ErrSigning) {
			t.Fatalf("caller %d: expected ErrSigning, got %v", i, err)
		}
	}
}
