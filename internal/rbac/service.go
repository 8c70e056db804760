package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/masa-erp/masa/internal/shared"
)

// Messages returned to server actions on denial.
const (
	MsgUnauthenticated = "Tu sesión expiró, vuelve a iniciar sesión"
	MsgForbidden       = "No tienes permiso para realizar esta acción"
)

// DecisionRecorder receives exact-check outcomes for instrumentation.
type DecisionRecorder interface {
	ObserveCheck(mode, outcome string)
}

// Service resolves effective permissions and answers permission checks.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics DecisionRecorder
	now     func() time.Time
}

// NewService constructs a Service backed by the provided store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// WithMetrics attaches a decision recorder.
func (s *Service) WithMetrics(m DecisionRecorder) *Service {
	s.metrics = m
	return s
}

// ResolveEffectivePermissions returns the union of the user's role permissions
// and individually granted permissions.
func (s *Service) ResolveEffectivePermissions(ctx context.Context, userID int64) (PermissionSet, error) {
	access, err := s.ResolveAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	return access.Permissions, nil
}

// ResolveAccess loads role, branch and effective permissions for a user.
// ResolvedAt is taken before the first read so a change committed while the
// reads are in flight is never stamped as already included.
func (s *Service) ResolveAccess(ctx context.Context, userID int64) (Access, error) {
	resolvedAt := s.now()
	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return Access{}, storeError("find user", err)
	}
	if !user.Active {
		return Access{}, fmt.Errorf("rbac: resolve user %d: %w", userID, shared.ErrUserInactive)
	}
	role, err := s.store.FindRole(ctx, user.RoleID)
	if err != nil {
		return Access{}, storeError("find role", err)
	}
	set := NewPermissionSet(role.Permissions...)
	set.Add(user.Permissions...)
	return Access{
		UserID:      user.ID,
		Role:        role.Name,
		BranchID:    user.BranchID,
		Permissions: set,
		ResolvedAt:  resolvedAt,
	}, nil
}

// EffectivePermissions returns deduplicated permission codes for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	set, err := s.ResolveEffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return set.Codes(), nil
}

// HasPermission reports whether the principal holds code. The administrator
// role always returns true. Snapshot principals are answered from their cached
// codes; live principals are re-resolved from the store.
func (s *Service) HasPermission(ctx context.Context, p Principal, code string) (bool, error) {
	if !p.Authenticated() {
		return false, shared.ErrUnauthenticated
	}
	code = shared.NormalizePermission(code)
	if !shared.IsKnownPermission(code) {
		return false, fmt.Errorf("rbac: %q: %w", code, shared.ErrUnknownPermission)
	}
	if p.Mode == CheckSnapshot {
		if p.Role == shared.RoleAdministrator {
			return true, nil
		}
		return p.Permissions.Has(code), nil
	}
	access, err := s.ResolveAccess(ctx, p.UserID)
	if err != nil {
		return false, err
	}
	if access.Role == shared.RoleAdministrator {
		return true, nil
	}
	return access.Permissions.Has(code), nil
}

// RequirePermission returns nil when the principal holds code. Every failure,
// including store outages and dangling users or roles, is reported as
// shared.ErrForbidden (or shared.ErrUnauthenticated) wrapping the cause.
func (s *Service) RequirePermission(ctx context.Context, p Principal, code string) error {
	ok, err := s.HasPermission(ctx, p, code)
	switch {
	case errors.Is(err, shared.ErrUnauthenticated):
		s.observe(p.Mode, "unauthenticated")
		return shared.ErrUnauthenticated
	case err != nil:
		if errors.Is(err, shared.ErrStoreUnavailable) {
			s.logger.Error("rbac exact check failed closed",
				slog.Int64("user_id", p.UserID),
				slog.String("permission", code),
				slog.Any("error", err))
			s.observe(p.Mode, "error")
		} else {
			s.logger.Warn("rbac exact check denied",
				slog.Int64("user_id", p.UserID),
				slog.String("permission", code),
				slog.Any("error", err))
			s.observe(p.Mode, "denied")
		}
		return fmt.Errorf("%w: %w", shared.ErrForbidden, err)
	case !ok:
		s.observe(p.Mode, "denied")
		return fmt.Errorf("rbac: %s lacks %s: %w", p.describe(), code, shared.ErrForbidden)
	}
	s.observe(p.Mode, "allowed")
	return nil
}

// Check runs RequirePermission and converts the outcome into a Result that is
// safe to hand back to a client.
func (s *Service) Check(ctx context.Context, p Principal, code string) Result {
	err := s.RequirePermission(ctx, p, code)
	switch {
	case err == nil:
		return Result{Success: true}
	case errors.Is(err, shared.ErrUnauthenticated):
		return Result{Error: MsgUnauthenticated}
	default:
		return Result{Error: MsgForbidden}
	}
}

// ListPermissions returns the stored permissions ordered by module and code.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, storeError("list permissions", err)
	}
	return perms, nil
}

func (s *Service) observe(mode CheckMode, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveCheck(mode.String(), outcome)
	}
}

func (p Principal) describe() string {
	return fmt.Sprintf("user %d (%s)", p.UserID, p.Role)
}

// storeError keeps not-found sentinels and tags everything else as a store outage.
func storeError(op string, err error) error {
	if errors.Is(err, shared.ErrUserNotFound) || errors.Is(err, shared.ErrRoleNotFound) || errors.Is(err, shared.ErrStoreUnavailable) {
		return fmt.Errorf("rbac: %s: %w", op, err)
	}
	return fmt.Errorf("rbac: %s: %w: %w", op, shared.ErrStoreUnavailable, err)
}

// Guard runs a live exact check for the identity carried by ctx. Handlers call
// it before touching business data.
func (s *Service) Guard(ctx context.Context, code string) Result {
	return s.Check(ctx, PrincipalFromIdentity(shared.IdentityFromContext(ctx), CheckLive), code)
}
