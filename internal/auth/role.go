package auth

import (
	"context"
	"strings"
)

// Role is the actor role reported by the auth collaborator's "who am I"
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleLandlord Role = "landlord"
	RoleAgent    Role = "agent"
	RoleTenant   Role = "tenant"
)

// ParseRole normalizes a role string. Unknown roles are returned as-is with ok=false.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleLandlord, RoleAgent, RoleTenant:
		return r, true
	}
	return r, false
}

// Identity is the signed-in user as returned by GET /api/auth/me
type Identity struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Role  Role   `json:"role"`
}

type ctxKey string

const ctxIdentity ctxKey = "identity"

// WithIdentity stores the identity in a context
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

// IdentityFrom extracts the identity stored by WithIdentity
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxIdentity).(Identity)
	return id, ok
}
