package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Directory looks up persisted principals by identity. It returns
// ErrUnknownPrincipal when the identity does not exist.
type Directory interface {
	FindPrincipal(ctx context.Context, identity string) (Principal, error)
}

// Resolver maps a verified token subject to a Principal.
type Resolver struct {
	dir Directory
}

// NewResolver returns a Resolver backed by dir.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve looks subject up on every call. A cryptographically valid token
// whose account has since been removed fails with ErrUnknownPrincipal.
func (r *Resolver) Resolve(ctx context.Context, subject string) (Principal, error) {
	p, err := r.dir.FindPrincipal(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrUnknownPrincipal) {
			return Principal{}, err
		}
		return Principal{}, fmt.Errorf("resolve principal: %w", err)
	}
	if !p.Role.Valid() {
		return Principal{}, fmt.Errorf("%w: %s has no valid role", ErrUnknownPrincipal, subject)
	}
	return p, nil
}

// Authenticator runs the authentication phase of a request: verify the
// bearer token, then resolve its subject.
type Authenticator struct {
	Codec    *Codec
	Resolver *Resolver
}

// Authenticate verifies token and resolves the principal it names.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := a.Codec.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	return a.Resolver.Resolve(ctx, claims.Subject)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
