package gate

import (
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/masa-erp/masa/internal/shared"
)

// Decision is the terminal outcome of the edge check.
type Decision int

const (
	// Pass lets the request through.
	Pass Decision = iota
	// SignIn redirects to the sign-in page with a callback URL.
	SignIn
	// Unauthorized redirects to the unauthorized page.
	Unauthorized
)

func (d Decision) String() string {
	switch d {
	case SignIn:
		return "sign_in"
	case Unauthorized:
		return "unauthorized"
	default:
		return "pass"
	}
}

// Reasons attached to outcomes for logs and metrics.
const (
	ReasonUnguarded      = "unguarded"
	ReasonNoSession      = "no_session"
	ReasonBranchMissing  = "branch_missing"
	ReasonBranchMismatch = "branch_mismatch"
	ReasonAdministrator  = "administrator"
	ReasonGranted        = "granted"
	ReasonMissingPerm    = "missing_permission"
	ReasonUnmappedPath   = "unmapped_path"
)

// Outcome is a decision with its reason and, when a route matched, the code
// that was required.
type Outcome struct {
	Decision   Decision
	Reason     string
	Permission string
}

// Recorder receives edge decisions.
type Recorder interface {
	ObserveEdgeDecision(decision, reason string)
}

// Config sets the redirect targets.
type Config struct {
	SignInPath       string
	UnauthorizedPath string
	// BranchSegment is the path segment under the protected prefix that
	// introduces a branch identifier.
	BranchSegment string
}

// Gate is the edge authorization middleware.
type Gate struct {
	table   *RouteTable
	cfg     Config
	branch  *regexp.Regexp
	logger  *slog.Logger
	metrics Recorder
}

// New builds a Gate over a validated route table.
func New(table *RouteTable, cfg Config, logger *slog.Logger) *Gate {
	if cfg.SignInPath == "" {
		cfg.SignInPath = "/auth/login"
	}
	if cfg.UnauthorizedPath == "" {
		cfg.UnauthorizedPath = "/unauthorized"
	}
	if cfg.BranchSegment == "" {
		cfg.BranchSegment = "sucursales"
	}
	if logger == nil {
		logger = slog.Default()
	}
	branch := regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(table.ProtectedPrefix()) + `/` +
		regexp.QuoteMeta(strings.Trim(cfg.BranchSegment, "/")) + `/([^/]+)(?:/.*)?$`)
	return &Gate{table: table, cfg: cfg, branch: branch, logger: logger}
}

// WithMetrics attaches a decision recorder.
func (g *Gate) WithMetrics(m Recorder) *Gate {
	g.metrics = m
	return g
}

// Decide evaluates the request path against the identity, in order:
// unguarded, unauthenticated, branch scope, then role pattern.
func (g *Gate) Decide(path string, id *shared.Identity) Outcome {
	if !g.table.Protected(path) {
		return Outcome{Decision: Pass, Reason: ReasonUnguarded}
	}
	if id == nil || id.UserID <= 0 {
		return Outcome{Decision: SignIn, Reason: ReasonNoSession}
	}

	if id.Role == shared.RoleBranchManager {
		if m := g.branch.FindStringSubmatch(cleanPath(path)); m != nil {
			if id.BranchID == "" {
				return Outcome{Decision: Unauthorized, Reason: ReasonBranchMissing}
			}
			requested, err := url.PathUnescape(m[1])
			if err != nil || requested != id.BranchID {
				return Outcome{Decision: Unauthorized, Reason: ReasonBranchMismatch}
			}
		}
	}

	if id.Role == shared.RoleAdministrator {
		return Outcome{Decision: Pass, Reason: ReasonAdministrator}
	}
	route, ok := g.table.Match(path)
	if !ok {
		return Outcome{Decision: Unauthorized, Reason: ReasonUnmappedPath}
	}
	for _, code := range id.Permissions {
		if shared.NormalizePermission(code) == route.Permission {
			return Outcome{Decision: Pass, Reason: ReasonGranted, Permission: route.Permission}
		}
	}
	return Outcome{Decision: Unauthorized, Reason: ReasonMissingPerm, Permission: route.Permission}
}

// Middleware applies the decision to each request.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := shared.IdentityFromContext(r.Context())
		out := g.Decide(routingPath(r), id)
		if g.metrics != nil && out.Reason != ReasonUnguarded {
			g.metrics.ObserveEdgeDecision(out.Decision.String(), out.Reason)
		}
		switch out.Decision {
		case SignIn:
			target := g.cfg.SignInPath + "?callbackUrl=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)
		case Unauthorized:
			attrs := []any{slog.String("path", r.URL.Path), slog.String("reason", out.Reason)}
			if id != nil {
				attrs = append(attrs, slog.Int64("user_id", id.UserID), slog.String("role", id.Role))
			}
			if out.Permission != "" {
				attrs = append(attrs, slog.String("permission", out.Permission))
			}
			g.logger.Info("edge gate denied request", attrs...)
			http.Redirect(w, r, g.cfg.UnauthorizedPath, http.StatusSeeOther)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// routingPath is the path the router dispatches on: the escaped form when
// the request carries one.
func routingPath(r *http.Request) string {
	if r.URL.RawPath != "" {
		return r.URL.RawPath
	}
	return r.URL.Path
}
