package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/GoCodeAlone/tms/auth"
)

// SQLiteStore persists accounts in the shared SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore returns a store over db, which must carry the tms schema.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// Create persists u and sets its ID and CreatedAt.
func (s *SQLiteStore) Create(ctx context.Context, u *User) error {
	u.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, role, created_at) VALUES (?,?,?,?)`,
		u.Email, u.PasswordHash, string(u.Role), u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrEmailTaken, u.Email)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	return nil
}

const selectUser = `SELECT id, email, password_hash, role, created_at FROM users`

// FindByEmail returns the account registered under email.
func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", email, err)
	}
	return u, nil
}

// Get returns the account with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// List returns every account ordered by id.
func (s *SQLiteStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, selectUser+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetRole changes an account's role.
func (s *SQLiteStore) SetRole(ctx context.Context, id int64, role auth.Role) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), id)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// FindPrincipal implements auth.Directory. A missing account, or one whose
// stored role is not recognized, is reported as auth.ErrUnknownPrincipal.
func (s *SQLiteStore) FindPrincipal(ctx context.Context, identity string) (auth.Principal, error) {
	u, err := s.FindByEmail(ctx, NormalizeEmail(identity))
	if errors.Is(err, ErrNotFound) {
		return auth.Principal{}, fmt.Errorf("%w: %s", auth.ErrUnknownPrincipal, identity)
	}
	if err != nil {
		return auth.Principal{}, err
	}
	return u.Principal(), nil
}

// scanner abstracts sql.Row and sql.Rows for scanUser.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var u User
	var role string
	if err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		return nil, err
	}
	// An unrecognized stored role is kept as-is; the resolver rejects it.
	u.Role = auth.Role(role)
	return &u, nil
}
