package users

import "github.com/masa-erp/masa/internal/rbac"

// User is the admin view of an account and its access.
type User struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	RoleID      int64    `json:"roleId"`
	Role        string   `json:"role"`
	BranchID    string   `json:"branchId,omitempty"`
	Active      bool     `json:"active"`
	Permissions []string `json:"permissions"`
}

func fromAccess(a rbac.UserAccess) User {
	perms := rbac.NewPermissionSet(a.Permissions...).Codes()
	return User{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		RoleID:      a.RoleID,
		Role:        a.RoleName,
		BranchID:    a.BranchID,
		Active:      a.Active,
		Permissions: perms,
	}
}

type assignRoleRequest struct {
	RoleID int64 `json:"roleId" validate:"required,gt=0"`
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"dive,required"`
}

type grantPermissionRequest struct {
	Permission string `json:"permission" validate:"required"`
}
