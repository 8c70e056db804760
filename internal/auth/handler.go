package auth

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/masa-erp/masa/internal/platform/httpx"
	"github.com/masa-erp/masa/internal/rbac"
	"github.com/masa-erp/masa/internal/session"
	"github.com/masa-erp/masa/internal/shared"
)

const (
	defaultRedirect = "/dashboard"
	msgBadLogin     = "Correo o contraseña incorrectos"
)

// AccessResolver resolves the access snapshot written into the token.
type AccessResolver interface {
	ResolveAccess(ctx context.Context, userID int64) (rbac.Access, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	access      AccessResolver
	tokens      *session.TokenManager
	csrfManager *shared.CSRFManager
	validator   *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, access AccessResolver, tokens *session.TokenManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		access:      access,
		tokens:      tokens,
		csrfManager: csrf,
		validator:   validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	CallbackURL string `json:"callbackUrl"`
}

type loginInfo struct {
	Authenticated bool   `json:"authenticated"`
	CallbackURL   string `json:"callbackUrl"`
	CSRFToken     string `json:"csrfToken,omitempty"`
}

type loginError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	httpx.NoCache(w)
	info := loginInfo{CallbackURL: safeRedirect(r.URL.Query().Get("callbackUrl"))}
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		info.Authenticated = true
		if token, err := h.csrfManager.Token(id); err == nil {
			info.CSRFToken = token
		}
	}
	httpx.JSON(w, http.StatusOK, info)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	httpx.NoCache(w)
	form, err := decodeLogin(r)
	if err != nil {
		httpx.JSON(w, http.StatusBadRequest, loginError{Error: "solicitud inválida"})
		return
	}

	if err := h.validator.Struct(form); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
			}
		}
		httpx.JSON(w, http.StatusBadRequest, loginError{Error: msgBadLogin, Fields: fields})
		return
	}

	user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		httpx.JSON(w, http.StatusUnauthorized, loginError{Error: msgBadLogin})
		return
	}
	access, err := h.access.ResolveAccess(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, shared.ErrUserInactive) || errors.Is(err, shared.ErrUserNotFound) || errors.Is(err, shared.ErrRoleNotFound) {
			h.logger.Info("sign-in refused", slog.Int64("user_id", user.ID), slog.Any("error", err))
			httpx.JSON(w, http.StatusUnauthorized, loginError{Error: msgBadLogin})
			return
		}
		h.logger.Error("resolve access at sign-in", slog.Int64("user_id", user.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	raw, id, err := h.tokens.Issue(access)
	if err != nil {
		h.logger.Error("issue session token", slog.Int64("user_id", user.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.tokens.WriteCookie(w, raw)
	h.logger.Info("user signed in", slog.Int64("user_id", user.ID), slog.String("role", access.Role))

	redirect := safeRedirect(form.CallbackURL)
	if !wantsJSON(r) {
		http.Redirect(w, r, redirect, http.StatusSeeOther)
		return
	}
	csrfToken, _ := h.csrfManager.Token(id)
	httpx.JSON(w, http.StatusOK, LoginResponse{
		UserID:      user.ID,
		Name:        user.Name,
		Role:        id.Role,
		Branch:      id.BranchID,
		Permissions: id.Permissions,
		PermsAt:     id.PermissionsAt.UnixMilli(),
		CSRFToken:   csrfToken,
		Redirect:    redirect,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.tokens.ClearCookie(w)
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		h.logger.Info("user signed out", slog.Int64("user_id", id.UserID))
	}
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func decodeLogin(r *http.Request) (loginForm, error) {
	var form loginForm
	if jsonBody(r) {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			return form, err
		}
		return form, nil
	}
	if err := r.ParseForm(); err != nil {
		return form, err
	}
	form.Email = r.PostFormValue("email")
	form.Password = r.PostFormValue("password")
	form.CallbackURL = r.PostFormValue("callbackUrl")
	return form, nil
}

func jsonBody(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func wantsJSON(r *http.Request) bool {
	return jsonBody(r) || strings.Contains(r.Header.Get("Accept"), "application/json")
}

// safeRedirect keeps callbacks on this origin.
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return defaultRedirect
	}
	return target
}
