package session

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/masa-erp/masa/internal/platform/httpx"
	"github.com/masa-erp/masa/internal/platform/ratelimit"
	"github.com/masa-erp/masa/internal/rbac"
	"github.com/masa-erp/masa/internal/shared"
)

// AccessResolver re-resolves a user's access for token refresh.
type AccessResolver interface {
	ResolveAccess(ctx context.Context, userID int64) (rbac.Access, error)
}

// CheckRecorder receives session check outcomes.
type CheckRecorder interface {
	ObserveSessionCheck(outcome string)
}

// CheckResponse is the body of the session check endpoint.
type CheckResponse struct {
	ShouldRefresh bool `json:"shouldRefresh"`
}

// RefreshResponse is the body returned after a successful refresh.
type RefreshResponse struct {
	Role        string   `json:"role"`
	Branch      string   `json:"branch,omitempty"`
	Permissions []string `json:"permissions"`
	PermsAt     int64    `json:"permsAt"`
	Token       string   `json:"token,omitempty"`
	CSRFToken   string   `json:"csrfToken,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Handler serves the session check and refresh endpoints.
type Handler struct {
	tokens   *TokenManager
	markers  *MarkerStore
	limiter  ratelimit.Limiter
	resolver AccessResolver
	logger   *slog.Logger
	metrics  CheckRecorder
	csrf     *shared.CSRFManager
}

// NewHandler wires the session endpoints.
func NewHandler(tokens *TokenManager, markers *MarkerStore, limiter ratelimit.Limiter, resolver AccessResolver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{tokens: tokens, markers: markers, limiter: limiter, resolver: resolver, logger: logger}
}

// WithMetrics attaches a check recorder.
func (h *Handler) WithMetrics(m CheckRecorder) *Handler {
	h.metrics = m
	return h
}

// WithCSRF makes refresh responses carry the CSRF token of the new session.
func (h *Handler) WithCSRF(m *shared.CSRFManager) *Handler {
	h.csrf = m
	return h
}

// MountRoutes registers session routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/check", h.check)
	r.Post("/refresh", h.refresh)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	httpx.NoCache(w)
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		h.observe("unauthenticated")
		httpx.JSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated"})
		return
	}

	if h.limiter != nil {
		decision, err := h.limiter.Allow(r.Context(), id.Subject())
		if err != nil {
			h.logger.Warn("session check rate limit unavailable", slog.Int64("user_id", id.UserID), slog.Any("error", err))
		} else {
			writeRateHeaders(w, decision)
			if !decision.Allowed {
				h.observe("rate_limited")
				w.Header().Set("Retry-After", strconv.Itoa(ceilSeconds(decision)))
				httpx.JSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limited"})
				return
			}
		}
	}

	marker, found, err := h.markers.Lookup(r.Context(), id.UserID)
	if err != nil {
		h.logger.Warn("session marker lookup failed", slog.Int64("user_id", id.UserID), slog.Any("error", err))
		h.observe("error")
		httpx.JSON(w, http.StatusOK, CheckResponse{ShouldRefresh: false})
		return
	}
	should := found && marker.Supersedes(id.PermissionsAt)
	if should {
		h.observe("refresh")
	} else {
		h.observe("current")
	}
	httpx.JSON(w, http.StatusOK, CheckResponse{ShouldRefresh: should})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	httpx.NoCache(w)
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		httpx.JSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated"})
		return
	}
	access, err := h.resolver.ResolveAccess(r.Context(), id.UserID)
	switch {
	case errors.Is(err, shared.ErrUserNotFound), errors.Is(err, shared.ErrUserInactive), errors.Is(err, shared.ErrRoleNotFound):
		h.logger.Info("session refresh rejected", slog.Int64("user_id", id.UserID), slog.Any("error", err))
		h.tokens.ClearCookie(w)
		httpx.JSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated"})
		return
	case err != nil:
		h.logger.Error("session refresh failed", slog.Int64("user_id", id.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	token, fresh, err := h.tokens.Issue(access)
	if err != nil {
		h.logger.Error("session reissue failed", slog.Int64("user_id", id.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.tokens.WriteCookie(w, token)
	resp := RefreshResponse{
		Role:        fresh.Role,
		Branch:      fresh.BranchID,
		Permissions: fresh.Permissions,
		PermsAt:     fresh.PermissionsAt.UnixMilli(),
	}
	// Bearer clients cannot read Set-Cookie through a jar-less transport.
	if r.Header.Get("Authorization") != "" {
		resp.Token = token
	}
	if h.csrf != nil {
		if csrfToken, err := h.csrf.Token(fresh); err == nil {
			resp.CSRFToken = csrfToken
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) observe(outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveSessionCheck(outcome)
	}
}

func writeRateHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(ceilSeconds(d)))
}

func ceilSeconds(d ratelimit.Decision) int {
	s := int(math.Ceil(d.ResetAfter.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
