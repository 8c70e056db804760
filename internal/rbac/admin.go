package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/masa-erp/masa/internal/shared"
)

// ErrInvalidationFailed reports a committed change whose session markers
// could not be written. Affected sessions keep their snapshot until expiry.
var ErrInvalidationFailed = errors.New("rbac: session invalidation failed")

// Invalidator marks sessions of the given users as stale.
type Invalidator interface {
	InvalidateUsers(ctx context.Context, userIDs []int64) error
}

// RoleFanout defers marking every holder of a role to a background worker.
type RoleFanout interface {
	EnqueueRoleInvalidation(ctx context.Context, roleID int64) error
}

// AdminService performs permission mutations and signals affected sessions.
type AdminService struct {
	store       Store
	checker     *Service
	invalidator Invalidator
	fanout      RoleFanout
	audit       shared.AuditRecorder
	logger      *slog.Logger
}

// NewAdminService wires the admin mutation service.
func NewAdminService(store Store, checker *Service, invalidator Invalidator, audit shared.AuditRecorder, logger *slog.Logger) *AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{store: store, checker: checker, invalidator: invalidator, audit: audit, logger: logger}
}

// WithFanout enables asynchronous role-wide invalidation.
func (s *AdminService) WithFanout(f RoleFanout) *AdminService {
	s.fanout = f
	return s
}

// AssignRole moves a user to another role.
func (s *AdminService) AssignRole(ctx context.Context, actor Principal, userID, roleID int64) error {
	if err := s.checker.RequirePermission(ctx, actor.Live(), shared.PermUsersEdit); err != nil {
		return err
	}
	if err := s.store.AssignRole(ctx, userID, roleID); err != nil {
		return fmt.Errorf("rbac: assign role: %w", err)
	}
	s.record(ctx, actor, shared.AuditRoleAssigned, "user", userID, map[string]any{"role_id": roleID})
	return s.markUsers(ctx, []int64{userID})
}

// SetRolePermissions replaces the permission links of a role.
func (s *AdminService) SetRolePermissions(ctx context.Context, actor Principal, roleID int64, codes []string) error {
	if err := s.checker.RequirePermission(ctx, actor.Live(), shared.PermRolesEdit); err != nil {
		return err
	}
	normalized, err := validateCodes(codes)
	if err != nil {
		return err
	}
	if err := s.store.SetRolePermissions(ctx, roleID, normalized); err != nil {
		return fmt.Errorf("rbac: set role permissions: %w", err)
	}
	s.record(ctx, actor, shared.AuditRolePermissionsSet, "role", roleID, map[string]any{"permissions": normalized})
	return s.markRole(ctx, roleID)
}

// GrantUserPermission adds an individual permission to a user.
func (s *AdminService) GrantUserPermission(ctx context.Context, actor Principal, userID int64, code string) error {
	if err := s.checker.RequirePermission(ctx, actor.Live(), shared.PermUsersPermissions); err != nil {
		return err
	}
	normalized, err := validateCodes([]string{code})
	if err != nil {
		return err
	}
	if err := s.store.AddUserPermission(ctx, userID, normalized[0]); err != nil {
		return fmt.Errorf("rbac: grant permission: %w", err)
	}
	s.record(ctx, actor, shared.AuditUserPermissionGrant, "user", userID, map[string]any{"permission": normalized[0]})
	return s.markUsers(ctx, []int64{userID})
}

// RevokeUserPermission removes an individual permission from a user.
func (s *AdminService) RevokeUserPermission(ctx context.Context, actor Principal, userID int64, code string) error {
	if err := s.checker.RequirePermission(ctx, actor.Live(), shared.PermUsersPermissions); err != nil {
		return err
	}
	normalized, err := validateCodes([]string{code})
	if err != nil {
		return err
	}
	if err := s.store.RemoveUserPermission(ctx, userID, normalized[0]); err != nil {
		return fmt.Errorf("rbac: revoke permission: %w", err)
	}
	s.record(ctx, actor, shared.AuditUserPermissionRevoke, "user", userID, map[string]any{"permission": normalized[0]})
	return s.markUsers(ctx, []int64{userID})
}

// SetUserPermissions replaces the individual permissions of a user.
func (s *AdminService) SetUserPermissions(ctx context.Context, actor Principal, userID int64, codes []string) error {
	if err := s.checker.RequirePermission(ctx, actor.Live(), shared.PermUsersPermissions); err != nil {
		return err
	}
	normalized, err := validateCodes(codes)
	if err != nil {
		return err
	}
	if err := s.store.SetUserPermissions(ctx, userID, normalized); err != nil {
		return fmt.Errorf("rbac: set user permissions: %w", err)
	}
	s.record(ctx, actor, shared.AuditUserPermissionsSet, "user", userID, map[string]any{"permissions": normalized})
	return s.markUsers(ctx, []int64{userID})
}

// InvalidateRole marks the session of every active holder of a role.
func (s *AdminService) InvalidateRole(ctx context.Context, roleID int64) error {
	ids, err := s.store.ListUserIDsByRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("rbac: list role holders: %w", err)
	}
	return s.markUsers(ctx, ids)
}

func (s *AdminService) markRole(ctx context.Context, roleID int64) error {
	if s.fanout != nil {
		err := s.fanout.EnqueueRoleInvalidation(ctx, roleID)
		if err == nil {
			return nil
		}
		s.logger.Warn("enqueue role invalidation failed, marking inline",
			slog.Int64("role_id", roleID), slog.Any("error", err))
	}
	return s.InvalidateRole(ctx, roleID)
}

func (s *AdminService) markUsers(ctx context.Context, ids []int64) error {
	if len(ids) == 0 || s.invalidator == nil {
		return nil
	}
	if err := s.invalidator.InvalidateUsers(ctx, ids); err != nil {
		s.logger.Error("mark sessions for refresh failed",
			slog.Int("users", len(ids)), slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrInvalidationFailed, err)
	}
	return nil
}

func (s *AdminService) record(ctx context.Context, actor Principal, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func validateCodes(codes []string) ([]string, error) {
	set := NewPermissionSet()
	for _, c := range codes {
		n := shared.NormalizePermission(c)
		if !shared.IsKnownPermission(n) {
			return nil, fmt.Errorf("rbac: %q: %w", c, shared.ErrUnknownPermission)
		}
		set.Add(n)
	}
	return set.Codes(), nil
}
