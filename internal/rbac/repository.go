package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/masa-erp/masa/internal/platform/db"
	"github.com/masa-erp/masa/internal/shared"
)

// DB is the subset of *pgxpool.Pool used by PGStore.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db DB
}

// NewPGStore constructs a PostgreSQL backed store.
func NewPGStore(pool DB) *PGStore {
	return &PGStore{db: pool}
}

const pgForeignKeyViolation = "23503"

// FindUser returns a user with its role and individual grants.
func (s *PGStore) FindUser(ctx context.Context, userID int64) (UserAccess, error) {
	var u UserAccess
	var branch *string
	err := s.db.QueryRow(ctx, `
SELECT u.id, u.email, u.name, u.role_id, r.name, u.branch_id, u.is_active,
       COALESCE(array_agg(p.code ORDER BY p.code) FILTER (WHERE p.code IS NOT NULL), '{}')
FROM users u
JOIN roles r ON r.id = u.role_id
LEFT JOIN user_permissions up ON up.user_id = u.id
LEFT JOIN permissions p ON p.id = up.permission_id
WHERE u.id = $1
GROUP BY u.id, r.name`, userID).Scan(&u.ID, &u.Email, &u.Name, &u.RoleID, &u.RoleName, &branch, &u.Active, &u.Permissions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAccess{}, shared.ErrUserNotFound
		}
		return UserAccess{}, err
	}
	if branch != nil {
		u.BranchID = *branch
	}
	return u, nil
}

// FindRole returns a role and its permission codes by id.
func (s *PGStore) FindRole(ctx context.Context, roleID int64) (RoleGrants, error) {
	return s.findRole(ctx, `r.id = $1`, roleID)
}

// FindRoleByName returns a role and its permission codes by name.
func (s *PGStore) FindRoleByName(ctx context.Context, name string) (RoleGrants, error) {
	return s.findRole(ctx, `r.name = $1`, name)
}

func (s *PGStore) findRole(ctx context.Context, where string, arg any) (RoleGrants, error) {
	var g RoleGrants
	err := s.db.QueryRow(ctx, `
SELECT r.id, r.name,
       COALESCE(array_agg(p.code ORDER BY p.code) FILTER (WHERE p.code IS NOT NULL), '{}')
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE `+where+`
GROUP BY r.id`, arg).Scan(&g.ID, &g.Name, &g.Permissions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleGrants{}, shared.ErrRoleNotFound
		}
		return RoleGrants{}, err
	}
	return g, nil
}

// ListPermissions returns every permission in the catalog.
func (s *PGStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.Query(ctx, `SELECT id, code, module, label FROM permissions ORDER BY module, code`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Permission, error) {
		var p Permission
		err := row.Scan(&p.ID, &p.Code, &p.Module, &p.Label)
		return p, err
	})
}

// ListRoles returns all roles.
func (s *PGStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.Query(ctx, `
SELECT r.id, r.name, r.description, r.created_at, r.updated_at,
       COALESCE(array_agg(p.code ORDER BY p.code) FILTER (WHERE p.code IS NOT NULL), '{}')
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
GROUP BY r.id
ORDER BY r.id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Role, error) {
		var r Role
		err := row.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt, &r.Permissions)
		return r, err
	})
}

// ListUsers returns all users with their grants.
func (s *PGStore) ListUsers(ctx context.Context) ([]UserAccess, error) {
	rows, err := s.db.Query(ctx, `
SELECT u.id, u.email, u.name, u.role_id, r.name, COALESCE(u.branch_id, ''), u.is_active,
       COALESCE(array_agg(p.code ORDER BY p.code) FILTER (WHERE p.code IS NOT NULL), '{}')
FROM users u
JOIN roles r ON r.id = u.role_id
LEFT JOIN user_permissions up ON up.user_id = u.id
LEFT JOIN permissions p ON p.id = up.permission_id
GROUP BY u.id, r.name
ORDER BY u.id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (UserAccess, error) {
		var u UserAccess
		err := row.Scan(&u.ID, &u.Email, &u.Name, &u.RoleID, &u.RoleName, &u.BranchID, &u.Active, &u.Permissions)
		return u, err
	})
}

// ListUserIDsByRole returns the ids of users holding a role.
func (s *PGStore) ListUserIDsByRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM users WHERE role_id = $1 AND is_active ORDER BY id`, roleID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// AssignRole sets the role of a user.
func (s *PGStore) AssignRole(ctx context.Context, userID, roleID int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET role_id = $2, updated_at = NOW() WHERE id = $1`, userID, roleID)
	if err != nil {
		return mapFKError(err, shared.ErrRoleNotFound)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// SetRolePermissions replaces the permission set of a role.
func (s *PGStore) SetRolePermissions(ctx context.Context, roleID int64, codes []string) error {
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shared.ErrRoleNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		if len(codes) == 0 {
			return nil
		}
		tag, err := tx.Exec(ctx, `
INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, p.id FROM permissions p WHERE p.code = ANY($2)`, roleID, codes)
		if err != nil {
			return err
		}
		if int(tag.RowsAffected()) != len(codes) {
			return fmt.Errorf("rbac: set role permissions: %w", shared.ErrUnknownPermission)
		}
		_, err = tx.Exec(ctx, `UPDATE roles SET updated_at = NOW() WHERE id = $1`, roleID)
		return err
	})
}

// AddUserPermission grants a single permission to a user.
func (s *PGStore) AddUserPermission(ctx context.Context, userID int64, code string) error {
	tag, err := s.db.Exec(ctx, `
INSERT INTO user_permissions (user_id, permission_id)
SELECT $1, p.id FROM permissions p WHERE p.code = $2
ON CONFLICT DO NOTHING`, userID, code)
	if err != nil {
		return mapFKError(err, shared.ErrUserNotFound)
	}
	if tag.RowsAffected() == 0 {
		var known bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE code = $1)`, code).Scan(&known); err != nil {
			return err
		}
		if !known {
			return fmt.Errorf("rbac: grant %q: %w", code, shared.ErrUnknownPermission)
		}
	}
	return nil
}

// RemoveUserPermission revokes an individual grant from a user.
func (s *PGStore) RemoveUserPermission(ctx context.Context, userID int64, code string) error {
	_, err := s.db.Exec(ctx, `
DELETE FROM user_permissions up
USING permissions p
WHERE up.permission_id = p.id AND up.user_id = $1 AND p.code = $2`, userID, code)
	return err
}

// SetUserPermissions replaces the individual grants of a user.
func (s *PGStore) SetUserPermissions(ctx context.Context, userID int64, codes []string) error {
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shared.ErrUserNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1`, userID); err != nil {
			return err
		}
		if len(codes) == 0 {
			return nil
		}
		tag, err := tx.Exec(ctx, `
INSERT INTO user_permissions (user_id, permission_id)
SELECT $1, p.id FROM permissions p WHERE p.code = ANY($2)`, userID, codes)
		if err != nil {
			return err
		}
		if int(tag.RowsAffected()) != len(codes) {
			return fmt.Errorf("rbac: set user permissions: %w", shared.ErrUnknownPermission)
		}
		return nil
	})
}

// EnsurePermission upserts a catalog entry and returns it with its id.
func (s *PGStore) EnsurePermission(ctx context.Context, def shared.PermissionDef) (Permission, error) {
	p := Permission{Code: def.Code, Module: def.Module, Label: def.Label}
	err := s.db.QueryRow(ctx, `
INSERT INTO permissions (code, module, label)
VALUES ($1, $2, $3)
ON CONFLICT (code) DO UPDATE SET module = EXCLUDED.module, label = EXCLUDED.label
RETURNING id`, def.Code, def.Module, def.Label).Scan(&p.ID)
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

func mapFKError(err error, target error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return target
	}
	return err
}

var _ Store = (*PGStore)(nil)
