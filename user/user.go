// Package user manages accounts: registration, login, role changes and the
// principal directory used by authentication.
package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/GoCodeAlone/tms/auth"
)

var (
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering an email already in use.
	ErrEmailTaken = errors.New("email already exists")
	// ErrInvalidCredentials is returned for a failed login.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidInput is returned for a blank or malformed email or password.
	ErrInvalidInput = errors.New("invalid account data")
)

// User is a persisted account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Principal returns the authentication view of u.
func (u *User) Principal() auth.Principal {
	return auth.Principal{ID: u.ID, Identity: u.Email, Role: u.Role}
}

// Store persists accounts.
type Store interface {
	// Create persists u and sets its ID and CreatedAt. Returns
	// ErrEmailTaken when the email exists.
	Create(ctx context.Context, u *User) error

	// FindByEmail returns the account with the given normalized email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Get returns the account with the given id.
	Get(ctx context.Context, id int64) (*User, error)

	// List returns every account ordered by id.
	List(ctx context.Context) ([]*User, error)

	// SetRole changes an account's role.
	SetRole(ctx context.Context, id int64, role auth.Role) error
}

// NormalizeEmail trims and lower-cases an email so lookups are
// case-insensitive. A Caser is stateful, so one is built per call.
func NormalizeEmail(email string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(email))
}
