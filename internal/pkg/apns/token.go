// internal/pkg/apns/token.go
package apns

import (
	"crypto/ecdsa"
	"sync"
	"time"

	xerrors "chargecast-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	// APNs rejects provider tokens older than one hour.
	tokenTTL = 55 * time.Minute
	// Refresh ahead of expiry so an in-flight push never carries a token
	// that goes stale mid-request.
	refreshMargin = 5 * time.Minute
)

// TokenSource issues and caches the ES256 provider token used to
// authenticate against the APNs gateway. It performs no network I/O; its
// only side effect is the in-process cache.
type TokenSource struct {
	key    *ecdsa.PrivateKey
	keyID  string
	teamID string

	mu        sync.Mutex
	cached    string
	expiresAt time.Time

	group  singleflight.Group
	signFn func() (string, time.Time, error)
	nowFn  func() time.Time
}

// NewTokenSource parses the key material eagerly so that misconfiguration
// surfaces at construction, not on the first reconcile cycle.
func NewTokenSource(keyPEM, keyID, teamID string) (*TokenSource, error) {
	if keyID == "" || teamID == "" {
		return nil, xerrors.Wrap(xerrors.ErrNotConfigured, "key ID and team ID are required")
	}
	key, err := ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}

	s := &TokenSource{
		key:    key,
		keyID:  keyID,
		teamID: teamID,
		nowFn:  time.Now,
	}
	s.signFn = s.sign
	return s, nil
}

// Bearer returns a provider token valid for at least refreshMargin.
// Concurrent callers hitting a cold or expiring cache share a single
// signing operation; all of them receive its result or its failure.
func (s *TokenSource) Bearer() (string, error) {
	if tok, ok := s.cachedToken(); ok {
		return tok, nil
	}

	v, err, _ := s.group.Do("provider-token", func() (interface{}, error) {
		// A caller that lost the race may find the cache already
		// refreshed by the flight it joined late.
		if tok, ok := s.cachedToken(); ok {
			return tok, nil
		}

		tok, exp, err := s.signFn()
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.cached = tok
		s.expiresAt = exp
		s.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *TokenSource) cachedToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != "" && s.nowFn().Add(refreshMargin).Before(s.expiresAt) {
		return s.cached, true
	}
	return "", false
}

func (s *TokenSource) sign() (string, time.Time, error) {
	now := s.nowFn()

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": s.teamID,
		"iat": now.Unix(),
	})
	tok.Header["kid"] = s.keyID

	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, xerrors.Wrap(xerrors.ErrSigning, err.Error())
	}
	return signed, now.Add(tokenTTL), nil
}
