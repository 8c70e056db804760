package rbac

import (
	"sort"
	"time"

	"github.com/masa-erp/masa/internal/shared"
)

// Role represents a named bundle of permission codes.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsAdministrator reports whether the role bypasses permission checks.
func (r Role) IsAdministrator() bool {
	return r.Name == shared.RoleAdministrator
}

// Permission represents an atomic capability as stored.
type Permission struct {
	ID     int64
	Code   string
	Module string
	Label  string
}

// UserAccess is the access-relevant projection of a user row.
type UserAccess struct {
	ID          int64
	Email       string
	Name        string
	RoleID      int64
	RoleName    string
	BranchID    string
	Active      bool
	Permissions []string
}

// PermissionSet is a deduplicated set of permission codes.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from codes, normalizing each one.
func NewPermissionSet(codes ...string) PermissionSet {
	set := make(PermissionSet, len(codes))
	set.Add(codes...)
	return set
}

// Add inserts codes into the set.
func (s PermissionSet) Add(codes ...string) {
	for _, c := range codes {
		c = shared.NormalizePermission(c)
		if c == "" {
			continue
		}
		s[c] = struct{}{}
	}
}

// Has reports set membership.
func (s PermissionSet) Has(code string) bool {
	_, ok := s[shared.NormalizePermission(code)]
	return ok
}

// Codes returns the set as a sorted slice.
func (s PermissionSet) Codes() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// CheckMode selects the source of truth for a permission check.
type CheckMode int

const (
	// CheckSnapshot trusts the permission codes cached in the session token.
	// Used for navigation and UI decisions.
	CheckSnapshot CheckMode = iota
	// CheckLive re-resolves permissions from the store. Used for mutations.
	CheckLive
)

func (m CheckMode) String() string {
	if m == CheckLive {
		return "live"
	}
	return "snapshot"
}

// Principal describes the authenticated actor of a check.
type Principal struct {
	UserID      int64
	Role        string
	BranchID    string
	Permissions PermissionSet
	Mode        CheckMode
}

// PrincipalFromIdentity converts a token identity into a principal.
func PrincipalFromIdentity(id *shared.Identity, mode CheckMode) Principal {
	if id == nil {
		return Principal{Mode: mode}
	}
	return Principal{
		UserID:      id.UserID,
		Role:        id.Role,
		BranchID:    id.BranchID,
		Permissions: NewPermissionSet(id.Permissions...),
		Mode:        mode,
	}
}

// Live returns a copy of the principal that forces a store lookup.
func (p Principal) Live() Principal {
	p.Mode = CheckLive
	return p
}

// Authenticated reports whether the principal refers to a user.
func (p Principal) Authenticated() bool {
	return p.UserID > 0
}

// Access is the resolved state written into a session token.
type Access struct {
	UserID      int64
	Role        string
	BranchID    string
	Permissions PermissionSet
	ResolvedAt  time.Time
}

// Result is the structured outcome returned to server actions.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
