package shared

// Catalog, stock and production permissions.
const (
	PermProductsView   = "productos.ver"
	PermProductsCreate = "productos.crear"
	PermProductsEdit   = "productos.editar"
	PermProductsDelete = "productos.eliminar"

	PermInventoryView   = "inventario.ver"
	PermInventoryCreate = "inventario.crear"
	PermInventoryEdit   = "inventario.editar"
	PermInventoryAdjust = "inventario.ajustar"

	PermProductionView   = "produccion.ver"
	PermProductionCreate = "produccion.crear"
	PermProductionEdit   = "produccion.editar"
)

// InventoryScopes lists catalog, stock and production permissions.
func InventoryScopes() []string {
	return []string{
		PermProductsView,
		PermProductsCreate,
		PermProductsEdit,
		PermProductsDelete,
		PermInventoryView,
		PermInventoryCreate,
		PermInventoryEdit,
		PermInventoryAdjust,
		PermProductionView,
		PermProductionCreate,
		PermProductionEdit,
	}
}
