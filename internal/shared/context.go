package shared

import (
	"context"
	"strconv"
	"time"
)

// Identity is the snapshot carried by a session token.
type Identity struct {
	UserID        int64
	Role          string
	BranchID      string
	Permissions   []string
	PermissionsAt time.Time
	TokenID       string
}

// Subject renders the user id the way it is stored in token claims.
func (i Identity) Subject() string {
	return strconv.FormatInt(i.UserID, 10)
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
