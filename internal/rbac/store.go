package rbac

import (
	"context"

	"github.com/masa-erp/masa/internal/shared"
)

// RoleGrants is a role with its linked permission codes.
type RoleGrants struct {
	ID          int64
	Name        string
	Permissions []string
}

// Store is the query contract consumed from the relational permission store.
// Lookups return shared.ErrUserNotFound / shared.ErrRoleNotFound for missing rows.
type Store interface {
	FindUser(ctx context.Context, userID int64) (UserAccess, error)
	FindRole(ctx context.Context, roleID int64) (RoleGrants, error)
	FindRoleByName(ctx context.Context, name string) (RoleGrants, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListRoles(ctx context.Context) ([]Role, error)
	ListUsers(ctx context.Context) ([]UserAccess, error)
	ListUserIDsByRole(ctx context.Context, roleID int64) ([]int64, error)

	AssignRole(ctx context.Context, userID, roleID int64) error
	SetRolePermissions(ctx context.Context, roleID int64, codes []string) error
	AddUserPermission(ctx context.Context, userID int64, code string) error
	RemoveUserPermission(ctx context.Context, userID int64, code string) error
	SetUserPermissions(ctx context.Context, userID int64, codes []string) error
	EnsurePermission(ctx context.Context, def shared.PermissionDef) (Permission, error)
}
