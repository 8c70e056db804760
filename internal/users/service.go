package users

import (
	"context"
	"fmt"

	"github.com/masa-erp/masa/internal/rbac"
)

// Directory lists the access projection of user accounts.
type Directory interface {
	ListUsers(ctx context.Context) ([]rbac.UserAccess, error)
	FindUser(ctx context.Context, userID int64) (rbac.UserAccess, error)
}

// Mutator applies permission changes on behalf of an admin.
type Mutator interface {
	AssignRole(ctx context.Context, actor rbac.Principal, userID, roleID int64) error
	GrantUserPermission(ctx context.Context, actor rbac.Principal, userID int64, code string) error
	RevokeUserPermission(ctx context.Context, actor rbac.Principal, userID int64, code string) error
	SetUserPermissions(ctx context.Context, actor rbac.Principal, userID int64, codes []string) error
}

// Service handles user administration.
type Service struct {
	directory Directory
	admin     Mutator
}

// NewService builds Service instance.
func NewService(directory Directory, admin Mutator) *Service {
	return &Service{directory: directory, admin: admin}
}

// ListUsers returns all users ordered by id.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.directory.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	out := make([]User, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromAccess(row))
	}
	return out, nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, userID int64) (User, error) {
	row, err := s.directory.FindUser(ctx, userID)
	if err != nil {
		return User{}, fmt.Errorf("users: get %d: %w", userID, err)
	}
	return fromAccess(row), nil
}

// AssignRole moves a user to another role.
func (s *Service) AssignRole(ctx context.Context, actor rbac.Principal, userID, roleID int64) error {
	return s.admin.AssignRole(ctx, actor, userID, roleID)
}

// SetPermissions replaces the individual permissions of a user.
func (s *Service) SetPermissions(ctx context.Context, actor rbac.Principal, userID int64, codes []string) error {
	return s.admin.SetUserPermissions(ctx, actor, userID, codes)
}

// GrantPermission adds one individual permission.
func (s *Service) GrantPermission(ctx context.Context, actor rbac.Principal, userID int64, code string) error {
	return s.admin.GrantUserPermission(ctx, actor, userID, code)
}

// RevokePermission removes one individual permission.
func (s *Service) RevokePermission(ctx context.Context, actor rbac.Principal, userID int64, code string) error {
	return s.admin.RevokeUserPermission(ctx, actor, userID, code)
}
