package shared

// Role names with special meaning in authorization.
const (
	// RoleAdministrator implicitly holds every permission.
	RoleAdministrator = "administrador"
	// RoleBranchManager is restricted to resources of its own branch.
	RoleBranchManager = "encargado_sucursal"
)

// Core platform permissions.
const (
	PermDashboardView = "dashboard.ver"

	PermUsersView        = "usuarios.ver"
	PermUsersCreate      = "usuarios.crear"
	PermUsersEdit        = "usuarios.editar"
	PermUsersPermissions = "usuarios.permisos"

	PermRolesView = "roles.ver"
	PermRolesEdit = "roles.editar"

	PermPermissionsView = "permisos.ver"

	PermBranchesView   = "sucursales.ver"
	PermBranchesCreate = "sucursales.crear"
	PermBranchesEdit   = "sucursales.editar"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermDashboardView,
		PermUsersView,
		PermUsersCreate,
		PermUsersEdit,
		PermUsersPermissions,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermBranchesView,
		PermBranchesCreate,
		PermBranchesEdit,
	}
}
