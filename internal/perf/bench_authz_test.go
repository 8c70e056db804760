package perf

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/masa-erp/masa/internal/gate"
	"github.com/masa-erp/masa/internal/rbac"
	"github.com/masa-erp/masa/internal/rbac/rbactest"
	"github.com/masa-erp/masa/internal/session"
	"github.com/masa-erp/masa/internal/shared"
)

var benchPaths = []string{
	"/dashboard",
	"/dashboard/ventas",
	"/dashboard/ventas/nueva",
	"/dashboard/inventario/ajustes",
	"/dashboard/usuarios/15/permisos",
	"/dashboard/sucursales/B1/editar",
	"/dashboard/ventas/../usuarios",
	"/dashboard/desconocido",
}

func newGate(tb testing.TB) *gate.Gate {
	tb.Helper()
	table, err := gate.NewRouteTable(gate.DefaultProtectedPrefix, gate.DefaultRoutes())
	if err != nil {
		tb.Fatalf("route table: %v", err)
	}
	return gate.New(table, gate.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sellerIdentity() *shared.Identity {
	return &shared.Identity{
		UserID:        7,
		Role:          "vendedor",
		BranchID:      "B1",
		Permissions:   []string{shared.PermDashboardView, shared.PermSalesView, shared.PermSalesCreate},
		PermissionsAt: time.Now(),
	}
}

// Route decisions run on every dashboard request and must stay well below
// network noise.
func TestGateDecisionLatencyBudget(t *testing.T) {
	g := newGate(t)
	id := sellerIdentity()

	samples := make([]time.Duration, 0, 2000)
	for i := 0; i < 2000; i++ {
		path := benchPaths[i%len(benchPaths)]
		start := time.Now()
		_ = g.Decide(path, id)
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 5*time.Millisecond {
		t.Fatalf("gate decision regression: p95=%s", p95)
	}
}

func BenchmarkGateDecide(b *testing.B) {
	g := newGate(b)
	id := sellerIdentity()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = g.Decide(benchPaths[i%len(benchPaths)], id)
	}
}

func BenchmarkSnapshotCheck(b *testing.B) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := rbac.NewService(rbactest.NewMemoryStore(), logger)
	p := rbac.PrincipalFromIdentity(sellerIdentity(), rbac.CheckSnapshot)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.HasPermission(ctx, p, shared.PermInventoryView); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLiveCheck(b *testing.B) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := rbactest.NewMemoryStore()
	role := store.AddRole("vendedor", shared.PermDashboardView, shared.PermSalesView)
	user := store.AddUser("ana@masa.test", role, "B1", shared.PermInventoryView)
	svc := rbac.NewService(store, logger)
	p := rbac.Principal{UserID: user, Mode: rbac.CheckLive}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := svc.RequirePermission(ctx, p, shared.PermInventoryView); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMarkerLookup(b *testing.B) {
	mr := miniredis.RunT(b)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b.Cleanup(func() { _ = client.Close() })
	markers := session.NewMarkerStore(client, time.Minute)
	ctx := context.Background()
	if err := markers.MarkMany(ctx, []int64{1, 2, 3}); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := markers.Lookup(ctx, int64(i%6)+1); err != nil {
			b.Fatal(err)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
