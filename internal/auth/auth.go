// Package auth carries the caller's principal through a context and checks
// role claims. The role claim is trusted as supplied by the calling layer.
package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/cleared-dev/ledger/internal/model"
)

// Role is a principal's role claim.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleAdvisor Role = "ADVISOR"
)

// ParseRole normalizes a role claim; unknown claims yield "".
func ParseRole(s string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleAdvisor:
		return RoleAdvisor
	}
	return ""
}

// Principal is an authenticated caller.
type Principal struct {
	ID   string
	Role Role
}

type contextKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal carried by ctx, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok && p.ID != ""
}

// Require returns an AuthorizationError unless ctx carries a principal
// holding one of roles. With no roles, any authenticated principal passes.
func Require(ctx context.Context, action string, roles ...Role) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, model.AuthorizationError{Action: action}
	}
	if len(roles) > 0 && !slices.Contains(roles, p.Role) {
		return p, model.AuthorizationError{PrincipalID: p.ID, Role: string(p.Role), Action: action}
	}
	return p, nil
}

// RequireOwner returns an AuthorizationError unless p is an ADMIN or owner
// is p itself.
func RequireOwner(p Principal, owner, action string) error {
	if p.Role == RoleAdmin || (owner != "" && owner == p.ID) {
		return nil
	}
	return model.AuthorizationError{PrincipalID: p.ID, Role: string(p.Role), Action: action}
}

// RequireAdmin is Require restricted to ADMIN.
func RequireAdmin(ctx context.Context, action string) (Principal, error) {
	return Require(ctx, action, RoleAdmin)
}
