// Package session issues the signed session token, tracks invalidation markers
// and serves the session check and refresh endpoints.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/masa-erp/masa/internal/rbac"
	"github.com/masa-erp/masa/internal/shared"
)

// Claims is the JWT payload of a session token.
type Claims struct {
	Role    string   `json:"role"`
	Branch  string   `json:"branch,omitempty"`
	Perms   []string `json:"perms"`
	PermsAt int64    `json:"perms_at"`
	jwt.RegisteredClaims
}

// CookieOptions controls how the token cookie is written.
type CookieOptions struct {
	Name   string
	Domain string
	Secure bool
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	cookie CookieOptions
	now    func() time.Time
}

// NewTokenManager creates a manager with the provided secret, issuer, and lifetime.
func NewTokenManager(secret, issuer string, ttl time.Duration, cookie CookieOptions) *TokenManager {
	if cookie.Name == "" {
		cookie.Name = "masa_session"
	}
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		cookie: cookie,
		now:    time.Now,
	}
}

// TTL returns the token lifetime.
func (t *TokenManager) TTL() time.Duration { return t.ttl }

// CookieName returns the name of the session cookie.
func (t *TokenManager) CookieName() string { return t.cookie.Name }

// Issue signs a token carrying the resolved access snapshot.
func (t *TokenManager) Issue(access rbac.Access) (string, *shared.Identity, error) {
	now := t.now()
	resolvedAt := access.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = now
	}
	codes := access.Permissions.Codes()
	claims := Claims{
		Role:    access.Role,
		Branch:  access.BranchID,
		Perms:   codes,
		PermsAt: resolvedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   strconv.FormatInt(access.UserID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, fmt.Errorf("session: sign token: %w", err)
	}
	return signed, claims.identity(access.UserID), nil
}

// Parse verifies a token and returns the identity it carries. Every failure
// wraps shared.ErrUnauthenticated.
func (t *TokenManager) Parse(raw string) (*shared.Identity, error) {
	if raw == "" {
		return nil, shared.ErrUnauthenticated
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrUnauthenticated, err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: bad subject %q", shared.ErrUnauthenticated, claims.Subject)
	}
	return claims.identity(userID), nil
}

func (c Claims) identity(userID int64) *shared.Identity {
	return &shared.Identity{
		UserID:        userID,
		Role:          c.Role,
		BranchID:      c.Branch,
		Permissions:   append([]string(nil), c.Perms...),
		PermissionsAt: time.UnixMilli(c.PermsAt),
		TokenID:       c.ID,
	}
}

// FromRequest reads the token from the session cookie, falling back to a
// bearer Authorization header for headless clients.
func (t *TokenManager) FromRequest(r *http.Request) (*shared.Identity, error) {
	if c, err := r.Cookie(t.cookie.Name); err == nil && c.Value != "" {
		return t.Parse(c.Value)
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if raw, ok := strings.CutPrefix(h, "Bearer "); ok {
			return t.Parse(strings.TrimSpace(raw))
		}
	}
	return nil, shared.ErrUnauthenticated
}

// WriteCookie stores the token in an HttpOnly cookie.
func (t *TokenManager) WriteCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     t.cookie.Name,
		Value:    token,
		Path:     "/",
		Domain:   t.cookie.Domain,
		MaxAge:   int(t.ttl.Seconds()),
		HttpOnly: true,
		Secure:   t.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (t *TokenManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     t.cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   t.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// IsExpired reports whether err came from an expired token.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
