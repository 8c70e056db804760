package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/masa-erp/masa/internal/gate"
	"github.com/masa-erp/masa/internal/observability"
	"github.com/masa-erp/masa/internal/platform/httpx"
	"github.com/masa-erp/masa/internal/session"
	"github.com/masa-erp/masa/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger      *slog.Logger
	Config      *Config
	Tokens      *session.TokenManager
	CSRFManager *shared.CSRFManager
	Metrics     *observability.Metrics
	Gate        *gate.Gate
	// RateCounter shares the global per-IP window across instances. Nil keeps
	// httprate's in-memory counter.
	RateCounter httprate.LimitCounter
}

// MiddlewareStack installs the Masa middleware chain. The gate runs last so
// it sees the cleaned path and the identity attached by the token middleware.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         cfg.Config == nil || !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	limit := 120
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimitGlobal > 0 {
			limit = cfg.Config.RateLimitGlobal
		}
	}
	rateOpts := []httprate.Option{httprate.WithKeyFuncs(httprate.KeyByIP)}
	if cfg.RateCounter != nil {
		rateOpts = append(rateOpts, httprate.WithLimitCounter(cfg.RateCounter))
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.CleanPath,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(limit, time.Minute, rateOpts...),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	if cfg.Tokens != nil {
		middlewares = append(middlewares, cfg.Tokens.Authenticate(logger))
		if cfg.CSRFManager != nil {
			middlewares = append(middlewares, CSRFMiddleware(cfg.Tokens.CookieName(), cfg.CSRFManager, logger))
		}
	}
	if cfg.Gate != nil {
		middlewares = append(middlewares, cfg.Gate.Middleware)
	}
	return middlewares
}

// CSRFMiddleware verifies the CSRF token of unsafe requests authenticated by
// the session cookie. Bearer clients and anonymous requests are not checked.
func CSRFMiddleware(cookieName string, csrf *shared.CSRFManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			id := shared.IdentityFromContext(r.Context())
			if id == nil {
				next.ServeHTTP(w, r)
				return
			}
			if c, err := r.Cookie(cookieName); err != nil || c.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
			token := r.Header.Get(shared.CSRFHeader)
			if token == "" {
				token = r.PostFormValue(shared.CSRFFormField)
			}
			if err := csrf.VerifyToken(r.Context(), id, token); err != nil {
				logger.Warn("csrf validation failed", slog.String("path", r.URL.Path), slog.Int64("user_id", id.UserID))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "csrf token invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
