package roles

import (
	"context"
	"fmt"

	"github.com/masa-erp/masa/internal/rbac"
)

// Catalog reads roles and their holders.
type Catalog interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	FindRole(ctx context.Context, roleID int64) (rbac.RoleGrants, error)
	ListUserIDsByRole(ctx context.Context, roleID int64) ([]int64, error)
}

// Mutator applies role changes on behalf of an admin.
type Mutator interface {
	SetRolePermissions(ctx context.Context, actor rbac.Principal, roleID int64, codes []string) error
	InvalidateRole(ctx context.Context, roleID int64) error
}

// Service handles role administration.
type Service struct {
	catalog Catalog
	admin   Mutator
}

// NewService builds Service instance.
func NewService(catalog Catalog, admin Mutator) *Service {
	return &Service{catalog: catalog, admin: admin}
}

// ListRoles returns all roles with their member counts.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.catalog.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	out := make([]Role, 0, len(rows))
	for _, row := range rows {
		role := fromRole(row)
		if role.Members, err = s.members(ctx, row.ID); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

// GetRole returns one role.
func (s *Service) GetRole(ctx context.Context, roleID int64) (Role, error) {
	grants, err := s.catalog.FindRole(ctx, roleID)
	if err != nil {
		return Role{}, fmt.Errorf("roles: get %d: %w", roleID, err)
	}
	role := fromRole(rbac.Role{ID: grants.ID, Name: grants.Name, Permissions: grants.Permissions})
	if role.Members, err = s.members(ctx, roleID); err != nil {
		return Role{}, err
	}
	return role, nil
}

// SetPermissions replaces the permission links of a role.
func (s *Service) SetPermissions(ctx context.Context, actor rbac.Principal, roleID int64, codes []string) error {
	return s.admin.SetRolePermissions(ctx, actor, roleID, codes)
}

// RefreshSessions marks every active holder of the role for refresh.
func (s *Service) RefreshSessions(ctx context.Context, roleID int64) error {
	if _, err := s.catalog.FindRole(ctx, roleID); err != nil {
		return fmt.Errorf("roles: refresh %d: %w", roleID, err)
	}
	return s.admin.InvalidateRole(ctx, roleID)
}

func (s *Service) members(ctx context.Context, roleID int64) (int, error) {
	ids, err := s.catalog.ListUserIDsByRole(ctx, roleID)
	if err != nil {
		return 0, fmt.Errorf("roles: members of %d: %w", roleID, err)
	}
	return len(ids), nil
}
