package gate

import "github.com/masa-erp/masa/internal/shared"

// DefaultProtectedPrefix is the path subtree guarded by the edge gate.
const DefaultProtectedPrefix = "/dashboard"

// DefaultRoutes maps every dashboard section to the permission that opens it.
// Paths under the protected prefix with no entry here are refused.
func DefaultRoutes() []Route {
	return []Route{
		{Prefix: "/dashboard", Permission: shared.PermDashboardView, Exact: true},

		{Prefix: "/dashboard/usuarios", Permission: shared.PermUsersView},
		{Prefix: "/dashboard/usuarios/nuevo", Permission: shared.PermUsersCreate},
		{Prefix: "/dashboard/usuarios/{id}/editar", Permission: shared.PermUsersEdit},
		{Prefix: "/dashboard/usuarios/{id}/permisos", Permission: shared.PermUsersPermissions},
		{Prefix: "/dashboard/roles", Permission: shared.PermRolesView},
		{Prefix: "/dashboard/roles/{id}/editar", Permission: shared.PermRolesEdit},
		{Prefix: "/dashboard/permisos", Permission: shared.PermPermissionsView},

		{Prefix: "/dashboard/sucursales", Permission: shared.PermBranchesView},
		{Prefix: "/dashboard/sucursales/nueva", Permission: shared.PermBranchesCreate},
		{Prefix: "/dashboard/sucursales/{id}/editar", Permission: shared.PermBranchesEdit},

		{Prefix: "/dashboard/productos", Permission: shared.PermProductsView},
		{Prefix: "/dashboard/productos/nuevo", Permission: shared.PermProductsCreate},
		{Prefix: "/dashboard/productos/{id}/editar", Permission: shared.PermProductsEdit},
		{Prefix: "/dashboard/inventario", Permission: shared.PermInventoryView},
		{Prefix: "/dashboard/inventario/nuevo", Permission: shared.PermInventoryCreate},
		{Prefix: "/dashboard/inventario/ajustes", Permission: shared.PermInventoryAdjust},
		{Prefix: "/dashboard/produccion", Permission: shared.PermProductionView},
		{Prefix: "/dashboard/produccion/nueva", Permission: shared.PermProductionCreate},

		{Prefix: "/dashboard/ventas", Permission: shared.PermSalesView},
		{Prefix: "/dashboard/ventas/nueva", Permission: shared.PermSalesCreate},
		{Prefix: "/dashboard/envios", Permission: shared.PermShipmentsView},
		{Prefix: "/dashboard/envios/nuevo", Permission: shared.PermShipmentsCreate},
		{Prefix: "/dashboard/envios/{id}/recibir", Permission: shared.PermShipmentsReceive},
		{Prefix: "/dashboard/reportes", Permission: shared.PermReportsView},
		{Prefix: "/dashboard/reportes/exportar", Permission: shared.PermReportsExport},
	}
}
