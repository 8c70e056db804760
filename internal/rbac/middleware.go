package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/masa-erp/masa/internal/platform/httpx"
	"github.com/masa-erp/masa/internal/shared"
)

// Middleware wires live RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			p, ok := m.currentPrincipal(w, r)
			if !ok {
				return
			}
			var lastErr error
			for _, perm := range normalized {
				lastErr = m.Service.RequirePermission(r.Context(), p, perm)
				if lastErr == nil {
					next.ServeHTTP(w, r)
					return
				}
				if !errors.Is(lastErr, shared.ErrForbidden) || errors.Is(lastErr, shared.ErrStoreUnavailable) {
					break
				}
			}
			m.deny(w, r, lastErr)
		})
	}
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			p, ok := m.currentPrincipal(w, r)
			if !ok {
				return
			}
			for _, perm := range normalized {
				if err := m.Service.RequirePermission(r.Context(), p, perm); err != nil {
					m.deny(w, r, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentPrincipal(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	id := shared.IdentityFromContext(r.Context())
	if id == nil || id.UserID <= 0 {
		httpx.JSON(w, http.StatusUnauthorized, Result{Error: MsgUnauthenticated})
		return Principal{}, false
	}
	return PrincipalFromIdentity(id, CheckLive), true
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrUnauthenticated) {
		httpx.JSON(w, http.StatusUnauthorized, Result{Error: MsgUnauthenticated})
		return
	}
	if m.Logger != nil {
		m.Logger.Info("rbac denied request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusForbidden, Result{Error: MsgForbidden})
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = shared.NormalizePermission(p)
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
