package users_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masa-erp/masa/internal/rbac"
	"github.com/masa-erp/masa/internal/rbac/rbactest"
	"github.com/masa-erp/masa/internal/shared"
	"github.com/masa-erp/masa/internal/users"
)

type usersFixture struct {
	router      chi.Router
	store       *rbactest.MemoryStore
	invalidator *rbactest.RecordingInvalidator
	adminID     int64
	sellerID    int64
	managerRole int64
}

func newUsersFixture(t *testing.T) *usersFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := rbactest.NewMemoryStore()
	adminRole := store.AddRole(shared.RoleAdministrator)
	sellerRole := store.AddRole("vendedor", shared.PermSalesView)
	managerRole := store.AddRole(shared.RoleBranchManager, shared.PermSalesView, shared.PermInventoryView)
	adminID := store.AddUser("root@masa.test", adminRole, "")
	sellerID := store.AddUser("ana@masa.test", sellerRole, "B1")

	checker := rbac.NewService(store, logger)
	invalidator := &rbactest.RecordingInvalidator{}
	admin := rbac.NewAdminService(store, checker, invalidator, nil, logger)
	mw := rbac.Middleware{Service: checker, Logger: logger}

	r := chi.NewRouter()
	r.Route("/api/users", users.NewHandler(logger, users.NewService(store, admin), mw).MountRoutes)
	return &usersFixture{router: r, store: store, invalidator: invalidator, adminID: adminID, sellerID: sellerID, managerRole: managerRole}
}

func (f *usersFixture) do(t *testing.T, actor int64, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), &shared.Identity{UserID: actor}))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestListUsers(t *testing.T) {
	f := newUsersFixture(t)

	rr := f.do(t, f.adminID, http.MethodGet, "/api/users/", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		Users []users.User `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Users, 2)
	assert.Equal(t, shared.RoleAdministrator, body.Users[0].Role)
	assert.Equal(t, "B1", body.Users[1].BranchID)

	rr = f.do(t, f.sellerID, http.MethodGet, "/api/users/", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGetUser(t *testing.T) {
	f := newUsersFixture(t)

	rr := f.do(t, f.adminID, http.MethodGet, "/api/users/9999", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, f.adminID, http.MethodGet, "/api/users/abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAssignRoleMarksSession(t *testing.T) {
	f := newUsersFixture(t)

	rr := f.do(t, f.adminID, http.MethodPut, "/api/users/"+itoa(f.sellerID)+"/role", `{"roleId":`+itoa(f.managerRole)+`}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []int64{f.sellerID}, f.invalidator.Invalidated())

	user, err := f.store.FindUser(t.Context(), f.sellerID)
	require.NoError(t, err)
	assert.Equal(t, shared.RoleBranchManager, user.RoleName)

	rr = f.do(t, f.sellerID, http.MethodPut, "/api/users/"+itoa(f.adminID)+"/role", `{"roleId":`+itoa(f.managerRole)+`}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Len(t, f.invalidator.Calls, 1)
}

func TestUserPermissionEndpoints(t *testing.T) {
	f := newUsersFixture(t)
	base := "/api/users/" + itoa(f.sellerID) + "/permissions"

	rr := f.do(t, f.adminID, http.MethodPost, base, `{"permission":"REPORTES.VER"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	user, err := f.store.FindUser(t.Context(), f.sellerID)
	require.NoError(t, err)
	assert.Equal(t, []string{shared.PermReportsView}, user.Permissions)

	rr = f.do(t, f.adminID, http.MethodPut, base, `{"permissions":["ventas.crear","ventas.anular"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	user, err = f.store.FindUser(t.Context(), f.sellerID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{shared.PermSalesCreate, shared.PermSalesVoid}, user.Permissions)

	rr = f.do(t, f.adminID, http.MethodDelete, base+"/ventas.anular", "")
	require.Equal(t, http.StatusOK, rr.Code)
	user, err = f.store.FindUser(t.Context(), f.sellerID)
	require.NoError(t, err)
	assert.Equal(t, []string{shared.PermSalesCreate}, user.Permissions)

	rr = f.do(t, f.adminID, http.MethodPut, base, `{"permissions":["ventas.regalar"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, []int64{f.sellerID, f.sellerID, f.sellerID}, f.invalidator.Invalidated())
}

func TestUserMutationReportsFailedInvalidation(t *testing.T) {
	f := newUsersFixture(t)
	f.invalidator.Err = errors.New("redis down")

	rr := f.do(t, f.adminID, http.MethodPost, "/api/users/"+itoa(f.sellerID)+"/permissions", `{"permission":"reportes.ver"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var res rbac.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.False(t, res.Success)
	assert.Equal(t, rbac.MsgInvalidationFailed, res.Error)

	user, err := f.store.FindUser(t.Context(), f.sellerID)
	require.NoError(t, err)
	assert.Equal(t, []string{shared.PermReportsView}, user.Permissions)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
