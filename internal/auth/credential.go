// Package auth verifies the shared bearer secret and derives anonymous caller identities.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
)

// ErrSecretNotConfigured means the deployment has no shared secret. Callers must fail closed.
var ErrSecretNotConfigured = errors.New("auth secret is not configured")

type Guard struct {
	secret []byte
}

func NewGuard(secret string) *Guard {
	return &Guard{secret: []byte(secret)}
}

func (g *Guard) Configured() bool {
	return g != nil && len(g.secret) > 0
}

// VerifyCredential checks an Authorization header value of the form "Bearer <token>".
// Malformed or missing headers return false. A missing secret returns ErrSecretNotConfigured.
func (g *Guard) VerifyCredential(header string) (bool, error) {
	if !g.Configured() {
		return false, ErrSecretNotConfigured
	}
	token, ok := bearerToken(header)
	if !ok {
		return false, nil
	}
	return g.matches(token), nil
}

// matches compares fixed-size digests so timing depends on neither the mismatch position nor
// the presented length.
func (g *Guard) matches(token string) bool {
	want := sha256.Sum256(g.secret)
	got := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
