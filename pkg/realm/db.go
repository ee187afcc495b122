package realm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	userQuery  = `SELECT password_hash FROM foyer_users WHERE username = $1`
	rolesQuery = `SELECT role FROM foyer_user_roles WHERE username = $1 ORDER BY role`

	userInsert  = `INSERT INTO foyer_users (username, password_hash) VALUES ($1, $2)`
	userUpdate  = `UPDATE foyer_users SET password_hash = $2 WHERE username = $1`
	userDelete  = `DELETE FROM foyer_users WHERE username = $1`
	roleInsert  = `INSERT INTO foyer_user_roles (username, role) VALUES ($1, $2)`
	rolesDelete = `DELETE FROM foyer_user_roles WHERE username = $1`
	usersList   = `SELECT username FROM foyer_users ORDER BY username`

	usersSchema = `
CREATE TABLE IF NOT EXISTS foyer_users (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS foyer_user_roles (
	username TEXT NOT NULL REFERENCES foyer_users(username) ON DELETE CASCADE,
	role     TEXT NOT NULL,
	PRIMARY KEY (username, role)
);`
)

// DBRealm resolves users from a SQL database. The driver is supplied by
// the binary (PostgreSQL for the gateway, SQLite for local tooling); the
// queries use numbered placeholders, which both drivers accept.
type DBRealm struct {
	db *sql.DB
}

// NewDBRealm creates a realm backed by the given database handle.
func NewDBRealm(db *sql.DB) *DBRealm {
	return &DBRealm{db: db}
}

// EnsureSchema creates the user tables if they do not exist.
func (r *DBRealm) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, usersSchema); err != nil {
		return fmt.Errorf("failed to create user tables: %w", err)
	}
	return nil
}

// AddUser hashes the password and inserts the user with their roles.
// Fails if the username is taken.
func (r *DBRealm) AddUser(ctx context.Context, username, password string, roles ...string) error {
	if username == "" {
		return fmt.Errorf("username must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, userInsert, username, string(hash)); err != nil {
		return fmt.Errorf("failed to insert user %q: %w", username, err)
	}
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx, roleInsert, username, role); err != nil {
			return fmt.Errorf("failed to insert role %q for %q: %w", role, username, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user %q: %w", username, err)
	}
	return nil
}

// SetPassword replaces the user's password hash.
func (r *DBRealm) SetPassword(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	res, err := r.db.ExecContext(ctx, userUpdate, username, string(hash))
	if err != nil {
		return fmt.Errorf("failed to update user %q: %w", username, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no user %q", username)
	}
	return nil
}

// RemoveUser deletes the user and their role assignments. Roles are
// deleted explicitly; SQLite only honors the schema's cascade with
// foreign keys enabled.
func (r *DBRealm) RemoveUser(ctx context.Context, username string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, rolesDelete, username); err != nil {
		return fmt.Errorf("failed to delete roles for %q: %w", username, err)
	}
	res, err := tx.ExecContext(ctx, userDelete, username)
	if err != nil {
		return fmt.Errorf("failed to delete user %q: %w", username, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no user %q", username)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal of %q: %w", username, err)
	}
	return nil
}

// ListUsers returns every username in the realm.
func (r *DBRealm) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, usersList)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var usernames []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}
		usernames = append(usernames, username)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return usernames, nil
}

// Authenticate implements Realm.
func (r *DBRealm) Authenticate(ctx context.Context, username, password string) (*Principal, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, userQuery, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user %q: %w", username, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	roles, err := r.userRoles(ctx, username)
	if err != nil {
		return nil, err
	}

	return &Principal{Name: username, Roles: roles}, nil
}

func (r *DBRealm) userRoles(ctx context.Context, username string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, rolesQuery, username)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles for %q: %w", username, err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}
