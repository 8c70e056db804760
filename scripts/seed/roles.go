package main

import "github.com/masa-erp/masa/internal/shared"

type roleSeed struct {
	Name        string
	Description string
	Permissions []string
}

// defaultRoles are the roles a fresh installation starts with. The
// administrator holds no links because it bypasses every check.
func defaultRoles() []roleSeed {
	return []roleSeed{
		{Name: shared.RoleAdministrator, Description: "Acceso total"},
		{
			Name:        shared.RoleBranchManager,
			Description: "Opera su propia sucursal",
			Permissions: []string{
				shared.PermDashboardView,
				shared.PermBranchesView,
				shared.PermProductsView,
				shared.PermInventoryView, shared.PermInventoryCreate, shared.PermInventoryEdit, shared.PermInventoryAdjust,
				shared.PermProductionView, shared.PermProductionCreate, shared.PermProductionEdit,
				shared.PermSalesView, shared.PermSalesCreate, shared.PermSalesVoid,
				shared.PermShipmentsView, shared.PermShipmentsCreate, shared.PermShipmentsReceive,
				shared.PermReportsView,
			},
		},
		{
			Name:        "vendedor",
			Description: "Punto de venta",
			Permissions: []string{shared.PermDashboardView, shared.PermProductsView, shared.PermSalesView, shared.PermSalesCreate},
		},
		{
			Name:        "panadero",
			Description: "Producción",
			Permissions: []string{shared.PermDashboardView, shared.PermProductsView, shared.PermInventoryView, shared.PermProductionView, shared.PermProductionCreate},
		},
		{
			Name:        "repartidor",
			Description: "Envíos entre sucursales",
			Permissions: []string{shared.PermDashboardView, shared.PermShipmentsView, shared.PermShipmentsReceive},
		},
	}
}
