package gate

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masa-erp/masa/internal/shared"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	table, err := NewRouteTable(DefaultProtectedPrefix, DefaultRoutes())
	require.NoError(t, err)
	return New(table, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDefaultRoutesAreValid(t *testing.T) {
	require.NoError(t, Validate(DefaultProtectedPrefix, DefaultRoutes()))
}

func TestValidateRejectsBadDeclarations(t *testing.T) {
	err := Validate("/dashboard", []Route{
		{Prefix: "/dashboard/hornos", Permission: "hornos.ver"},
		{Prefix: "/reportes", Permission: shared.PermReportsView},
		{Prefix: "/dashboard/ventas", Permission: shared.PermSalesView},
		{Prefix: "/dashboard/ventas/", Permission: shared.PermSalesCreate},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRoute)
	assert.Contains(t, err.Error(), "unknown permission")
	assert.Contains(t, err.Error(), "outside")
	assert.Contains(t, err.Error(), "duplicate")

	_, err = NewRouteTable("/", nil)
	assert.ErrorIs(t, err, ErrInvalidRoute)
}

func TestMatchPrefersMostSpecificRoute(t *testing.T) {
	table, err := NewRouteTable(DefaultProtectedPrefix, DefaultRoutes())
	require.NoError(t, err)

	cases := map[string]string{
		"/dashboard":                        shared.PermDashboardView,
		"/dashboard/":                       shared.PermDashboardView,
		"/dashboard/ventas":                 shared.PermSalesView,
		"/dashboard/ventas/2024/detalle":    shared.PermSalesView,
		"/dashboard/ventas/nueva":           shared.PermSalesCreate,
		"/dashboard/usuarios/17/permisos":   shared.PermUsersPermissions,
		"/dashboard/usuarios/17":            shared.PermUsersView,
		"/dashboard/envios/9/recibir":       shared.PermShipmentsReceive,
		"/dashboard/inventario/ajustes/new": shared.PermInventoryAdjust,
		"/Dashboard/Reportes":               shared.PermReportsView,
	}
	for path, want := range cases {
		route, ok := table.Match(path)
		require.True(t, ok, path)
		assert.Equal(t, want, route.Permission, path)
	}

	for _, path := range []string{"/dashboard/ventasx", "/dashboard/configuracion", "/dashboard/nomina/exportar"} {
		_, ok := table.Match(path)
		assert.False(t, ok, path)
	}
}

func TestDecideOrder(t *testing.T) {
	g := newTestGate(t)
	seller := &shared.Identity{UserID: 3, Role: "vendedor", Permissions: []string{shared.PermDashboardView, shared.PermSalesView}}

	assert.Equal(t, Outcome{Decision: Pass, Reason: ReasonUnguarded}, g.Decide("/auth/login", nil))
	assert.Equal(t, Outcome{Decision: Pass, Reason: ReasonUnguarded}, g.Decide("/dashboardx", nil))
	assert.Equal(t, SignIn, g.Decide("/dashboard/ventas", nil).Decision)

	assert.Equal(t, Pass, g.Decide("/dashboard/ventas", seller).Decision)
	out := g.Decide("/dashboard/ventas/nueva", seller)
	assert.Equal(t, Unauthorized, out.Decision)
	assert.Equal(t, ReasonMissingPerm, out.Reason)
	assert.Equal(t, shared.PermSalesCreate, out.Permission)
}

func TestAdministratorPassesEveryProtectedPath(t *testing.T) {
	g := newTestGate(t)
	admin := &shared.Identity{UserID: 1, Role: shared.RoleAdministrator}
	for _, path := range []string{"/dashboard", "/dashboard/roles/4/editar", "/dashboard/nada/que/ver"} {
		assert.Equal(t, Pass, g.Decide(path, admin).Decision, path)
	}
}

func TestUnmappedProtectedPathFailsClosed(t *testing.T) {
	table, err := NewRouteTable("/dashboard", []Route{{Prefix: "/dashboard/ventas", Permission: shared.PermSalesView}})
	require.NoError(t, err)
	g := New(table, Config{}, nil)
	id := &shared.Identity{UserID: 2, Role: "vendedor", Permissions: []string{shared.PermSalesView}}

	out := g.Decide("/dashboard/secreto", id)
	assert.Equal(t, Unauthorized, out.Decision)
	assert.Equal(t, ReasonUnmappedPath, out.Reason)
}

func TestDefaultRoutesRefuseUndeclaredSections(t *testing.T) {
	g := newTestGate(t)
	courier := &shared.Identity{UserID: 8, Role: "repartidor", Permissions: []string{shared.PermDashboardView}}

	assert.Equal(t, Pass, g.Decide("/dashboard", courier).Decision)
	assert.Equal(t, Pass, g.Decide("/dashboard/", courier).Decision)
	for _, path := range []string{"/dashboard/configuracion", "/dashboard/auditoria", "/dashboard/nomina/exportar"} {
		out := g.Decide(path, courier)
		assert.Equal(t, Unauthorized, out.Decision, path)
		assert.Equal(t, ReasonUnmappedPath, out.Reason, path)
	}
}

func TestBranchScoping(t *testing.T) {
	g := newTestGate(t)
	manager := &shared.Identity{
		UserID:      5,
		Role:        shared.RoleBranchManager,
		BranchID:    "B1",
		Permissions: []string{shared.PermBranchesView},
	}

	out := g.Decide("/dashboard/sucursales/B2", manager)
	assert.Equal(t, Unauthorized, out.Decision)
	assert.Equal(t, ReasonBranchMismatch, out.Reason)

	out = g.Decide("/dashboard/sucursales/B2/inventario", manager)
	assert.Equal(t, ReasonBranchMismatch, out.Reason)

	assert.Equal(t, Pass, g.Decide("/dashboard/sucursales/B1", manager).Decision)

	// Own branch is not blocked by scoping but still needs the route permission.
	out = g.Decide("/dashboard/sucursales/B1/editar", manager)
	assert.Equal(t, Unauthorized, out.Decision)
	assert.Equal(t, ReasonMissingPerm, out.Reason)

	unaffiliated := *manager
	unaffiliated.BranchID = ""
	out = g.Decide("/dashboard/sucursales/B1", &unaffiliated)
	assert.Equal(t, ReasonBranchMissing, out.Reason)

	// Other roles are not branch scoped.
	viewer := &shared.Identity{UserID: 6, Role: "supervisor", BranchID: "B1", Permissions: []string{shared.PermBranchesView}}
	assert.Equal(t, Pass, g.Decide("/dashboard/sucursales/B2", viewer).Decision)
}

type decisions struct{ seen []string }

func (d *decisions) ObserveEdgeDecision(decision, reason string) {
	d.seen = append(d.seen, decision+":"+reason)
}

func TestMiddlewareRedirects(t *testing.T) {
	rec := &decisions{}
	g := newTestGate(t).WithMetrics(rec)
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard/ventas?dia=hoy", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/login", loc.Path)
	assert.Equal(t, "/dashboard/ventas?dia=hoy", loc.Query().Get("callbackUrl"))

	id := &shared.Identity{UserID: 3, Role: "vendedor", Permissions: []string{shared.PermSalesView}}
	req = httptest.NewRequest(http.MethodGet, "/dashboard/reportes", nil)
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), id))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/unauthorized", rr.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/dashboard/ventas", nil)
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), id))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)

	assert.Equal(t, []string{"sign_in:no_session", "unauthorized:missing_permission", "pass:granted"}, rec.seen)
}

func TestDecideResolvesDotSegments(t *testing.T) {
	g := newTestGate(t)
	seller := &shared.Identity{UserID: 3, Role: "vendedor", Permissions: []string{shared.PermSalesView}}

	out := g.Decide("/dashboard/ventas/../usuarios", seller)
	assert.Equal(t, Unauthorized, out.Decision)
	assert.Equal(t, shared.PermUsersView, out.Permission)

	assert.Equal(t, SignIn, g.Decide("/public/../dashboard/ventas", nil).Decision)
	assert.Equal(t, Pass, g.Decide("//dashboard//ventas/", seller).Decision)
}
