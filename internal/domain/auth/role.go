// Package auth models caller identity: roles, principals and API keys.
package auth

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// Role is the caller's role as supplied by the authentication layer.
type Role string

const (
	RoleUser        Role = "user"
	RolePremiumUser Role = "premium_user"
	RoleAdmin       Role = "admin"
)

var (
	// ErrInvalidRole is returned for roles outside the known set.
	ErrInvalidRole = errors.New("invalid role")
	// ErrUnauthorized is returned when an API key cannot be resolved.
	ErrUnauthorized = errors.New("unauthorized")
)

// ParseRole accepts role names case-insensitively, with or without the
// ROLE_ prefix.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "role_"))
	if err := r.Validate(); err != nil {
		return "", errors.Wrapf(err, "%q", s)
	}
	return r, nil
}

// Validate reports ErrInvalidRole for unknown roles.
func (r Role) Validate() error {
	switch r {
	case RoleUser, RolePremiumUser, RoleAdmin:
		return nil
	default:
		return ErrInvalidRole
	}
}

// Principal identifies the caller of an operation.
type Principal struct {
	UserID string
	Role   Role
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
