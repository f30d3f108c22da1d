package apns

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"

	xerrors "chargecast-service/internal/pkg/errors"
)

// ParsePrivateKey turns operator-supplied key material into an ECDSA key.
// The material may arrive as raw PEM, as base64-wrapped PEM (common when
// the key travels through an env var), or as PEM whose line breaks were
// flattened to spaces. Anything that does not yield an EC key fails with
// ErrNotConfigured.
func ParsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, xerrors.Wrap(xerrors.ErrNotConfigured, "empty private key material")
	}

	block, _ := pem.Decode([]byte(normalizePEM(raw)))
	if block == nil {
		return nil, xerrors.Wrap(xerrors.ErrNotConfigured, "key material is not valid PEM")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// .p8 files are PKCS8; fall back to SEC1 for keys exported
		// in EC form.
		key, err = x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.ErrNotConfigured, fmt.Sprintf("failed to parse private key: %v", err))
		}
	}

	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, xerrors.Wrap(xerrors.ErrNotConfigured, "private key is not ECDSA")
	}
	return ecKey, nil
}

// normalizePEM repairs the two mangling modes seen in deployed configs:
// the whole PEM base64-encoded once more, and newlines collapsed into
// spaces around the BEGIN/END delimiters.
func normalizePEM(raw string) string {
	s := strings.TrimSpace(raw)

	if !strings.Contains(s, "-----BEGIN") {
		if decoded, err := base64.StdEncoding.DecodeString(s); err == nil && strings.Contains(string(decoded), "-----BEGIN") {
			s = strings.TrimSpace(string(decoded))
		}
	}

	begin := strings.Index(s, "-----BEGIN")
	beginEnd := strings.Index(s, "KEY-----")
	end := strings.Index(s, "-----END")
	if begin < 0 || beginEnd < 0 || end < 0 || end <= beginEnd {
		return s
	}
	header := s[begin : beginEnd+len("KEY-----")]
	footer := strings.TrimSpace(s[end:])
	body := s[beginEnd+len("KEY-----") : end]

	// Rebuild with the base64 body stripped of whatever whitespace it
	// arrived with.
	return header + "\n" + strings.Join(strings.Fields(body), "\n") + "\n" + footer + "\n"
}
