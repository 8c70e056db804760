package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const (
	// CSRFHeader carries the CSRF token on cookie-authenticated mutations.
	CSRFHeader = "X-CSRF-Token"
	// CSRFFormField is the form field name carrying the CSRF token.
	CSRFFormField = "csrf_token"
)

// CSRFManager issues and verifies CSRF tokens bound to a session token id.
type CSRFManager struct {
	secret []byte
}

// NewCSRFManager returns a CSRFManager using the provided secret key.
func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{secret: []byte(secret)}
}

// Token derives the CSRF token for the identity's session.
func (m *CSRFManager) Token(id *Identity) (string, error) {
	if id == nil || id.TokenID == "" {
		return "", errors.New("session missing")
	}
	return m.generateToken(id.TokenID), nil
}

// VerifyToken compares the supplied token with the one derived for the session.
func (m *CSRFManager) VerifyToken(ctx context.Context, id *Identity, token string) error {
	if id == nil || id.TokenID == "" {
		return ErrCSRFTokenMissing
	}
	if token == "" {
		return ErrCSRFTokenMissing
	}
	expected := m.generateToken(id.TokenID)
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

func (m *CSRFManager) generateToken(tokenID string) string {
	mac := hmac.New(sha256.New, m.secret)
	_, _ = mac.Write([]byte("csrf|"))
	_, _ = mac.Write([]byte(tokenID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
