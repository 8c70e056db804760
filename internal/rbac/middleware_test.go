package rbac_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masa-erp/masa/internal/rbac"
	"github.com/masa-erp/masa/internal/rbac/rbactest"
	"github.com/masa-erp/masa/internal/shared"
)

func serve(t *testing.T, mw func(http.Handler) http.Handler, id *shared.Identity) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/anything", nil)
	if id != nil {
		req = req.WithContext(shared.ContextWithIdentity(req.Context(), id))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, called
}

func decodeResult(t *testing.T, rr *httptest.ResponseRecorder) rbac.Result {
	t.Helper()
	var res rbac.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	return res
}

func TestMiddlewareRequireAny(t *testing.T) {
	store := rbactest.NewMemoryStore()
	roleID := store.AddRole("vendedor", shared.PermSalesView)
	userID := store.AddUser("ana@masa.test", roleID, "")
	m := rbac.Middleware{Service: rbac.NewService(store, quietLogger()), Logger: quietLogger()}

	rr, called := serve(t, m.RequireAny(shared.PermReportsView, shared.PermSalesView), &shared.Identity{UserID: userID})
	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr, called = serve(t, m.RequireAny(shared.PermReportsView), &shared.Identity{UserID: userID})
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, rbac.MsgForbidden, decodeResult(t, rr).Error)
}

func TestMiddlewareRequireAll(t *testing.T) {
	store := rbactest.NewMemoryStore()
	roleID := store.AddRole("vendedor", shared.PermSalesView, shared.PermSalesCreate)
	userID := store.AddUser("ana@masa.test", roleID, "")
	m := rbac.Middleware{Service: rbac.NewService(store, quietLogger())}

	_, called := serve(t, m.RequireAll(shared.PermSalesView, shared.PermSalesCreate), &shared.Identity{UserID: userID})
	assert.True(t, called)

	rr, called := serve(t, m.RequireAll(shared.PermSalesView, shared.PermSalesVoid), &shared.Identity{UserID: userID})
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMiddlewareUsesLiveStoreNotTokenSnapshot(t *testing.T) {
	store := rbactest.NewMemoryStore()
	roleID := store.AddRole("vendedor")
	userID := store.AddUser("ana@masa.test", roleID, "")
	m := rbac.Middleware{Service: rbac.NewService(store, quietLogger())}

	stale := &shared.Identity{UserID: userID, Role: "vendedor", Permissions: []string{shared.PermSalesVoid}}
	rr, called := serve(t, m.RequireAny(shared.PermSalesVoid), stale)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMiddlewareRejectsMissingIdentity(t *testing.T) {
	m := rbac.Middleware{Service: rbac.NewService(rbactest.NewMemoryStore(), quietLogger())}

	rr, called := serve(t, m.RequireAny(shared.PermSalesView), nil)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, rbac.MsgUnauthenticated, decodeResult(t, rr).Error)
}

func TestMiddlewareFailsClosedWhenStoreDown(t *testing.T) {
	store := rbactest.NewMemoryStore()
	roleID := store.AddRole("vendedor", shared.PermSalesView)
	userID := store.AddUser("ana@masa.test", roleID, "")
	store.Err = errors.New("timeout")
	m := rbac.Middleware{Service: rbac.NewService(store, quietLogger())}

	rr, called := serve(t, m.RequireAny(shared.PermSalesView, shared.PermReportsView), &shared.Identity{UserID: userID})
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestPermissionsHandlerGroupsByModule(t *testing.T) {
	store := rbactest.NewMemoryStore()
	roleID := store.AddRole("auditor", shared.PermPermissionsView)
	userID := store.AddUser("aud@masa.test", roleID, "")
	svc := rbac.NewService(store, quietLogger())
	h := rbac.NewPermissionsHandler(quietLogger(), svc, rbac.Middleware{Service: svc})

	r := chi.NewRouter()
	r.Route("/api/permissions", h.MountRoutes)

	req := httptest.NewRequest(http.MethodGet, "/api/permissions", nil)
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), &shared.Identity{UserID: userID}))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Modules []rbac.PermissionGroup `json:"modules"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	total := 0
	for i, g := range body.Modules {
		if i > 0 {
			assert.Less(t, body.Modules[i-1].Module, g.Module)
		}
		total += len(g.Permissions)
	}
	assert.Equal(t, len(shared.Registry()), total)
}
