package roles_test

import (
	"context"
	"encoding/json"
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
	"github.com/masa-erp/masa/internal/roles"
	"github.com/masa-erp/masa/internal/shared"
)

type fanoutStub struct {
	roles []int64
}

func (f *fanoutStub) EnqueueRoleInvalidation(_ context.Context, roleID int64) error {
	f.roles = append(f.roles, roleID)
	return nil
}

type rolesFixture struct {
	router      chi.Router
	store       *rbactest.MemoryStore
	invalidator *rbactest.RecordingInvalidator
	adminID     int64
	sellerRole  int64
	sellers     []int64
}

func newRolesFixture(t *testing.T, fanout rbac.RoleFanout) *rolesFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := rbactest.NewMemoryStore()
	adminRole := store.AddRole(shared.RoleAdministrator)
	sellerRole := store.AddRole("vendedor", shared.PermSalesView)
	adminID := store.AddUser("root@masa.test", adminRole, "")
	sellers := []int64{
		store.AddUser("ana@masa.test", sellerRole, "B1"),
		store.AddUser("luis@masa.test", sellerRole, "B2"),
	}

	checker := rbac.NewService(store, logger)
	invalidator := &rbactest.RecordingInvalidator{}
	admin := rbac.NewAdminService(store, checker, invalidator, nil, logger)
	if fanout != nil {
		admin.WithFanout(fanout)
	}

	r := chi.NewRouter()
	r.Route("/api/roles", roles.NewHandler(logger, roles.NewService(store, admin), rbac.Middleware{Service: checker, Logger: logger}).MountRoutes)
	return &rolesFixture{router: r, store: store, invalidator: invalidator, adminID: adminID, sellerRole: sellerRole, sellers: sellers}
}

func (f *rolesFixture) do(t *testing.T, actor int64, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), &shared.Identity{UserID: actor}))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestListAndGetRoles(t *testing.T) {
	f := newRolesFixture(t, nil)

	rr := f.do(t, f.adminID, http.MethodGet, "/api/roles/", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		Roles []roles.Role `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Roles, 2)
	assert.True(t, body.Roles[0].Administrator)
	assert.Equal(t, 2, body.Roles[1].Members)

	rr = f.do(t, f.adminID, http.MethodGet, "/api/roles/"+strconv.FormatInt(f.sellerRole, 10), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var role roles.Role
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &role))
	assert.Equal(t, []string{shared.PermSalesView}, role.Permissions)

	rr = f.do(t, f.adminID, http.MethodGet, "/api/roles/4242", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, f.sellers[0], http.MethodGet, "/api/roles/", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSetRolePermissionsMarksEveryHolder(t *testing.T) {
	f := newRolesFixture(t, nil)
	target := "/api/roles/" + strconv.FormatInt(f.sellerRole, 10) + "/permissions"

	rr := f.do(t, f.adminID, http.MethodPut, target, `{"permissions":["ventas.ver","ventas.crear"]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.ElementsMatch(t, f.sellers, f.invalidator.Invalidated())

	grants, err := f.store.FindRole(t.Context(), f.sellerRole)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{shared.PermSalesView, shared.PermSalesCreate}, grants.Permissions)

	rr = f.do(t, f.sellers[0], http.MethodPut, target, `{"permissions":["usuarios.ver"]}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSetRolePermissionsUsesFanout(t *testing.T) {
	fanout := &fanoutStub{}
	f := newRolesFixture(t, fanout)

	rr := f.do(t, f.adminID, http.MethodPut, "/api/roles/"+strconv.FormatInt(f.sellerRole, 10)+"/permissions", `{"permissions":[]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []int64{f.sellerRole}, fanout.roles)
	assert.Empty(t, f.invalidator.Calls)
}

func TestRefreshRoleSessions(t *testing.T) {
	f := newRolesFixture(t, nil)

	rr := f.do(t, f.adminID, http.MethodPost, "/api/roles/"+strconv.FormatInt(f.sellerRole, 10)+"/refresh", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.ElementsMatch(t, f.sellers, f.invalidator.Invalidated())

	rr = f.do(t, f.adminID, http.MethodPost, "/api/roles/4242/refresh", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
