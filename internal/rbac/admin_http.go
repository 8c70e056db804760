package rbac

import (
	"errors"
	"net/http"

	"github.com/masa-erp/masa/internal/platform/httpx"
	"github.com/masa-erp/masa/internal/shared"
)

// MsgInvalidationFailed tells the admin the change was saved but open
// sessions keep their old permissions until they expire or sign in again.
const MsgInvalidationFailed = "Los cambios se guardaron, pero las sesiones activas no se pudieron actualizar"

// Actor returns the live principal of the request identity.
func Actor(r *http.Request) Principal {
	return PrincipalFromIdentity(shared.IdentityFromContext(r.Context()), CheckLive)
}

// RespondAdmin writes the outcome of an admin mutation as a Result.
func RespondAdmin(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, Result{Success: true})
	case errors.Is(err, ErrInvalidationFailed):
		httpx.JSON(w, http.StatusInternalServerError, Result{Error: MsgInvalidationFailed})
	case errors.Is(err, shared.ErrUnauthenticated):
		httpx.JSON(w, http.StatusUnauthorized, Result{Error: MsgUnauthenticated})
	case errors.Is(err, shared.ErrForbidden):
		httpx.JSON(w, http.StatusForbidden, Result{Error: MsgForbidden})
	default:
		httpx.RespondError(w, err)
	}
}
