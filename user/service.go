package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/GoCodeAlone/tms/auth"
)

// Service implements account operations.
type Service struct {
	store  Store
	hasher *auth.PasswordHasher
	codec  *auth.Codec
	logger *slog.Logger
}

// NewService returns a Service that issues tokens with codec.
func NewService(store Store, hasher *auth.PasswordHasher, codec *auth.Codec, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, hasher: hasher, codec: codec, logger: logger}
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: %q is not a valid email address", ErrInvalidInput, email)
	}
	return nil
}

// Register creates a USER account and returns a token for it.
func (s *Service) Register(ctx context.Context, email, password string) (string, error) {
	email = NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return "", err
	}
	u, err := s.create(ctx, email, password, auth.RoleUser)
	if err != nil {
		return "", err
	}
	s.logger.Info("user registered", slog.Int64("user_id", u.ID))
	return s.codec.Issue(u.Email, u.Role)
}

func (s *Service) create(ctx context.Context, email, password string, role auth.Role) (*User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{Email: email, PasswordHash: hash, Role: role}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks the password and returns a fresh token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = NormalizeEmail(email)
	u, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		s.logger.Warn("login failed", slog.Int64("user_id", u.ID))
		return "", ErrInvalidCredentials
	}
	return s.codec.Issue(u.Email, u.Role)
}

// List returns every account.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.store.List(ctx)
}

// SetRole changes the role of account id and returns the updated account.
func (s *Service) SetRole(ctx context.Context, id int64, role auth.Role) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if err := s.store.SetRole(ctx, id, role); err != nil {
		return nil, err
	}
	s.logger.Info("role changed", slog.Int64("user_id", id), slog.String("role", string(role)))
	return s.store.Get(ctx, id)
}

// EnsureAdmin creates an ADMIN account for email unless one exists. An
// existing account with that email is promoted to ADMIN.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return err
	}
	u, err := s.store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		u, err = s.create(ctx, email, password, auth.RoleAdmin)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		s.logger.Info("admin account created", slog.String("email", email), slog.Int64("user_id", u.ID))
		return nil
	case err != nil:
		return err
	}
	if u.Role != auth.RoleAdmin {
		if err := s.store.SetRole(ctx, u.ID, auth.RoleAdmin); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		s.logger.Info("admin account promoted", slog.String("email", email))
	}
	return nil
}
