package session

import (
	"log/slog"
	"net/http"

	"github.com/masa-erp/masa/internal/shared"
)

// Authenticate attaches the token identity to the request context when a
// valid token is present. Requests without one continue anonymously.
func (t *TokenManager) Authenticate(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := t.FromRequest(r)
			if err != nil {
				if logger != nil && !IsExpired(err) && hasToken(r, t.cookie.Name) {
					logger.Debug("session token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), id)))
		})
	}
}

func hasToken(r *http.Request, cookie string) bool {
	if c, err := r.Cookie(cookie); err == nil && c.Value != "" {
		return true
	}
	return r.Header.Get("Authorization") != ""
}
