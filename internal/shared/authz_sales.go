package shared

// Sales, shipment and reporting permissions.
const (
	PermSalesView   = "ventas.ver"
	PermSalesCreate = "ventas.crear"
	PermSalesVoid   = "ventas.anular"

	PermShipmentsView    = "envios.ver"
	PermShipmentsCreate  = "envios.crear"
	PermShipmentsReceive = "envios.recibir"

	PermReportsView   = "reportes.ver"
	PermReportsExport = "reportes.exportar"
)

// SalesScopes lists sales, shipment and reporting permissions.
func SalesScopes() []string {
	return []string{
		PermSalesView,
		PermSalesCreate,
		PermSalesVoid,
		PermShipmentsView,
		PermShipmentsCreate,
		PermShipmentsReceive,
		PermReportsView,
		PermReportsExport,
	}
}
