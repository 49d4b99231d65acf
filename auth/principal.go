// Package auth implements stateless bearer-token authentication: the token
// codec, the principal resolver, and password hashing for accounts.
package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when a token fails signature or structural checks.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired is returned when a token is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalidState is returned when a token is requested for a principal without a role.
	ErrInvalidState = errors.New("principal has no role assigned")
	// ErrUnknownPrincipal is returned when a verified identity no longer exists.
	ErrUnknownPrincipal = errors.New("unknown principal")
)

// Role is the single role carried by a principal.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole converts a role claim or stored value into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Principal is an authenticated caller. It is resolved once per request
// from persisted user state and is never persisted itself.
type Principal struct {
	ID       int64  `json:"id"`
	Identity string `json:"email"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the principal holds the ADMIN role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
