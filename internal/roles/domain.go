package roles

import (
	"time"

	"github.com/masa-erp/masa/internal/rbac"
)

// Role is the admin view of a role.
type Role struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Administrator bool      `json:"administrator"`
	Permissions   []string  `json:"permissions"`
	Members       int       `json:"members"`
	UpdatedAt     time.Time `json:"updatedAt,omitzero"`
}

func fromRole(r rbac.Role) Role {
	return Role{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		Administrator: r.IsAdministrator(),
		Permissions:   rbac.NewPermissionSet(r.Permissions...).Codes(),
		UpdatedAt:     r.UpdatedAt,
	}
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"dive,required"`
}
