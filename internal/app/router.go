package app

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	audithttp "github.com/masa-erp/masa/internal/audit/http"
	"github.com/masa-erp/masa/internal/auth"
	"github.com/masa-erp/masa/internal/gate"
	"github.com/masa-erp/masa/internal/observability"
	"github.com/masa-erp/masa/internal/platform/httpx"
	"github.com/masa-erp/masa/internal/rbac"
	"github.com/masa-erp/masa/internal/roles"
	"github.com/masa-erp/masa/internal/session"
	"github.com/masa-erp/masa/internal/shared"
	"github.com/masa-erp/masa/internal/users"
	"github.com/masa-erp/masa/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Tokens      *session.TokenManager
	CSRFManager *shared.CSRFManager
	Gate        *gate.Gate
	RateCounter httprate.LimitCounter
	Metrics     *observability.Metrics

	AuthHandler        *auth.Handler
	SessionHandler     *session.Handler
	PermissionsHandler *rbac.PermissionsHandler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with Masa defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		Tokens:      params.Tokens,
		CSRFManager: params.CSRFManager,
		Metrics:     params.Metrics,
		Gate:        params.Gate,
		RateCounter: params.RateCounter,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, protectedPrefix(params.Config), http.StatusSeeOther)
	})
	r.Get("/unauthorized", func(w http.ResponseWriter, r *http.Request) {
		httpx.NoCache(w)
		httpx.JSON(w, http.StatusForbidden, rbac.Result{Error: rbac.MsgForbidden})
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	r.Route("/api", func(r chi.Router) {
		if params.SessionHandler != nil {
			r.Route("/session", params.SessionHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	prefix := protectedPrefix(params.Config)
	r.Get(prefix, dashboardHandler(prefix))
	r.Get(prefix+"/*", dashboardHandler(prefix))

	return r
}

// DashboardView is the payload served for dashboard pages once the gate has
// let the request through. Page rendering belongs to the frontend.
type DashboardView struct {
	Section     string   `json:"section"`
	Path        string   `json:"path"`
	UserID      int64    `json:"userId"`
	Role        string   `json:"role"`
	Branch      string   `json:"branch,omitempty"`
	Permissions []string `json:"permissions"`
}

func dashboardHandler(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := shared.IdentityFromContext(r.Context())
		if id == nil {
			httpx.JSON(w, http.StatusUnauthorized, rbac.Result{Error: rbac.MsgUnauthenticated})
			return
		}
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
		section, _, _ := strings.Cut(rest, "/")
		httpx.NoCache(w)
		httpx.JSON(w, http.StatusOK, DashboardView{
			Section:     section,
			Path:        r.URL.Path,
			UserID:      id.UserID,
			Role:        id.Role,
			Branch:      id.BranchID,
			Permissions: id.Permissions,
		})
	}
}

func protectedPrefix(cfg *Config) string {
	if cfg == nil || cfg.ProtectedPrefix == "" {
		return gate.DefaultProtectedPrefix
	}
	return "/" + strings.Trim(cfg.ProtectedPrefix, "/")
}
