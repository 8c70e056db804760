// Package rbactest provides an in-memory rbac.Store for tests.
package rbactest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/masa-erp/masa/internal/rbac"
	"github.com/masa-erp/masa/internal/shared"
)

// MemoryStore is a goroutine-safe rbac.Store. Set Err to simulate an outage.
type MemoryStore struct {
	mu     sync.Mutex
	users  map[int64]*rbac.UserAccess
	roles  map[int64]*rbac.Role
	perms  map[string]rbac.Permission
	nextID int64

	Err error
}

// NewMemoryStore returns a store pre-populated with the permission registry.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		users: make(map[int64]*rbac.UserAccess),
		roles: make(map[int64]*rbac.Role),
		perms: make(map[string]rbac.Permission),
	}
	for _, def := range shared.Registry() {
		_, _ = s.EnsurePermission(context.Background(), def)
	}
	return s
}

// AddRole creates a role with the given codes and returns its id.
func (s *MemoryStore) AddRole(name string, codes ...string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := time.Now()
	s.roles[s.nextID] = &rbac.Role{ID: s.nextID, Name: name, Permissions: append([]string(nil), codes...), CreatedAt: now, UpdatedAt: now}
	return s.nextID
}

// AddUser creates an active user and returns its id.
func (s *MemoryStore) AddUser(email string, roleID int64, branchID string, codes ...string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.users[s.nextID] = &rbac.UserAccess{
		ID:          s.nextID,
		Email:       email,
		Name:        email,
		RoleID:      roleID,
		BranchID:    branchID,
		Active:      true,
		Permissions: append([]string(nil), codes...),
	}
	return s.nextID
}

// Deactivate marks a user inactive.
func (s *MemoryStore) Deactivate(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.Active = false
	}
}

// DeleteRole removes a role, leaving users pointing at it dangling.
func (s *MemoryStore) DeleteRole(roleID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, roleID)
}

func (s *MemoryStore) FindUser(_ context.Context, userID int64) (rbac.UserAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return rbac.UserAccess{}, s.Err
	}
	u, ok := s.users[userID]
	if !ok {
		return rbac.UserAccess{}, shared.ErrUserNotFound
	}
	out := *u
	out.Permissions = append([]string(nil), u.Permissions...)
	if r, ok := s.roles[u.RoleID]; ok {
		out.RoleName = r.Name
	}
	return out, nil
}

func (s *MemoryStore) FindRole(_ context.Context, roleID int64) (rbac.RoleGrants, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return rbac.RoleGrants{}, s.Err
	}
	r, ok := s.roles[roleID]
	if !ok {
		return rbac.RoleGrants{}, shared.ErrRoleNotFound
	}
	return rbac.RoleGrants{ID: r.ID, Name: r.Name, Permissions: append([]string(nil), r.Permissions...)}, nil
}

func (s *MemoryStore) FindRoleByName(_ context.Context, name string) (rbac.RoleGrants, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return rbac.RoleGrants{}, s.Err
	}
	for _, r := range s.roles {
		if r.Name == name {
			return rbac.RoleGrants{ID: r.ID, Name: r.Name, Permissions: append([]string(nil), r.Permissions...)}, nil
		}
	}
	return rbac.RoleGrants{}, shared.ErrRoleNotFound
}

func (s *MemoryStore) ListPermissions(_ context.Context) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]rbac.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (s *MemoryStore) ListRoles(_ context.Context) ([]rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]rbac.Role, 0, len(s.roles))
	for _, r := range s.roles {
		cp := *r
		cp.Permissions = append([]string(nil), r.Permissions...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]rbac.UserAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]rbac.UserAccess, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		cp.Permissions = append([]string(nil), u.Permissions...)
		if r, ok := s.roles[u.RoleID]; ok {
			cp.RoleName = r.Name
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListUserIDsByRole(_ context.Context, roleID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var ids []int64
	for _, u := range s.users {
		if u.RoleID == roleID && u.Active {
			ids = append(ids, u.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) AssignRole(_ context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u, ok := s.users[userID]
	if !ok {
		return shared.ErrUserNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return shared.ErrRoleNotFound
	}
	u.RoleID = roleID
	return nil
}

func (s *MemoryStore) SetRolePermissions(_ context.Context, roleID int64, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	r, ok := s.roles[roleID]
	if !ok {
		return shared.ErrRoleNotFound
	}
	if err := s.checkCodes(codes); err != nil {
		return err
	}
	r.Permissions = append([]string(nil), codes...)
	r.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AddUserPermission(_ context.Context, userID int64, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u, ok := s.users[userID]
	if !ok {
		return shared.ErrUserNotFound
	}
	if err := s.checkCodes([]string{code}); err != nil {
		return err
	}
	for _, c := range u.Permissions {
		if c == code {
			return nil
		}
	}
	u.Permissions = append(u.Permissions, code)
	return nil
}

func (s *MemoryStore) RemoveUserPermission(_ context.Context, userID int64, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	kept := u.Permissions[:0]
	for _, c := range u.Permissions {
		if c != code {
			kept = append(kept, c)
		}
	}
	u.Permissions = kept
	return nil
}

func (s *MemoryStore) SetUserPermissions(_ context.Context, userID int64, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u, ok := s.users[userID]
	if !ok {
		return shared.ErrUserNotFound
	}
	if err := s.checkCodes(codes); err != nil {
		return err
	}
	u.Permissions = append([]string(nil), codes...)
	return nil
}

func (s *MemoryStore) EnsurePermission(_ context.Context, def shared.PermissionDef) (rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return rbac.Permission{}, s.Err
	}
	if p, ok := s.perms[def.Code]; ok {
		p.Module, p.Label = def.Module, def.Label
		s.perms[def.Code] = p
		return p, nil
	}
	s.nextID++
	p := rbac.Permission{ID: s.nextID, Code: def.Code, Module: def.Module, Label: def.Label}
	s.perms[def.Code] = p
	return p, nil
}

func (s *MemoryStore) checkCodes(codes []string) error {
	for _, c := range codes {
		if _, ok := s.perms[c]; !ok {
			return shared.ErrUnknownPermission
		}
	}
	return nil
}

// RecordingInvalidator captures invalidated user ids.
type RecordingInvalidator struct {
	mu    sync.Mutex
	Calls [][]int64
	Err   error
}

// InvalidateUsers records the ids.
func (r *RecordingInvalidator) InvalidateUsers(_ context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, append([]int64(nil), ids...))
	return r.Err
}

// Invalidated returns every id recorded so far.
func (r *RecordingInvalidator) Invalidated() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for _, c := range r.Calls {
		out = append(out, c...)
	}
	return out
}

var _ rbac.Store = (*MemoryStore)(nil)
var _ rbac.Invalidator = (*RecordingInvalidator)(nil)
