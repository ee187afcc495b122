package realm

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies opaque gateway tokens.
	TokenPrefix = "foyer_"
	// tokenBytes is the entropy behind each token.
	tokenBytes = 32
)

const (
	tokenQuery = `SELECT username, expires_at FROM foyer_tokens WHERE token_hash = $1`

	tokenInsert = `INSERT INTO foyer_tokens (token_hash, token_display, username, label, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	tokenDelete = `DELETE FROM foyer_tokens WHERE token_display = $1 AND username = $2`

	tokenCleanup = `DELETE FROM foyer_tokens WHERE expires_at IS NOT NULL AND expires_at < $1`

	tokenList = `SELECT token_display, label, created_at, expires_at FROM foyer_tokens WHERE username = $1 ORDER BY created_at`

	tokensSchema = `
CREATE TABLE IF NOT EXISTS foyer_tokens (
	token_hash    TEXT PRIMARY KEY,
	token_display TEXT NOT NULL,
	username      TEXT NOT NULL,
	label         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	expires_at    TIMESTAMP
);`
)

// TokenStore issues and verifies opaque bearer tokens for the gateway.
// Tokens look like foyer_<base64url(32 random bytes)> and only their
// SHA-256 hash is stored; the cleartext is shown once at issue time.
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore creates a token store backed by the given database
// handle.
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

// EnsureSchema creates the token table if it does not exist.
func (s *TokenStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, tokensSchema); err != nil {
		return fmt.Errorf("failed to create token table: %w", err)
	}
	return nil
}

// Issue mints a token for username. The returned cleartext cannot be
// recovered later. A zero ttl issues a non-expiring token.
func (s *TokenStore) Issue(ctx context.Context, username, label string, ttl time.Duration) (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := TokenPrefix + base64.RawURLEncoding.EncodeToString(raw)

	var expires sql.NullTime
	if ttl > 0 {
		expires = sql.NullTime{Time: time.Now().Add(ttl), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, tokenInsert,
		HashToken(token), DisplayPrefix(token), username, label, time.Now(), expires)
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// Verify resolves a presented token to its principal. Unknown and
// expired tokens return ErrInvalidCredentials.
func (s *TokenStore) Verify(ctx context.Context, token string) (*Principal, error) {
	if err := CheckTokenFormat(token); err != nil {
		return nil, ErrInvalidCredentials
	}

	var username string
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx, tokenQuery, HashToken(token)).Scan(&username, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query token: %w", err)
	}
	if expires.Valid && time.Now().After(expires.Time) {
		return nil, ErrInvalidCredentials
	}

	roles, err := s.userRoles(ctx, username)
	if err != nil {
		return nil, err
	}
	return &Principal{Name: username, Roles: roles}, nil
}

// Revoke deletes a token by its display prefix, scoped to a user so one
// user cannot revoke another's tokens.
func (s *TokenStore) Revoke(ctx context.Context, username, display string) error {
	res, err := s.db.ExecContext(ctx, tokenDelete, display, username)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no token %q for user %q", display, username)
	}
	return nil
}

// TokenInfo describes an issued token without its secret.
type TokenInfo struct {
	Display   string
	Label     string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// List returns the tokens issued to username, oldest first.
func (s *TokenStore) List(ctx context.Context, username string) ([]TokenInfo, error) {
	rows, err := s.db.QueryContext(ctx, tokenList, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens for %q: %w", username, err)
	}
	defer rows.Close()

	var infos []TokenInfo
	for rows.Next() {
		var info TokenInfo
		var expires sql.NullTime
		if err := rows.Scan(&info.Display, &info.Label, &info.CreatedAt, &expires); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		if expires.Valid {
			t := expires.Time
			info.ExpiresAt = &t
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tokens: %w", err)
	}
	return infos, nil
}

// CleanupExpired deletes tokens past their expiry and returns how many
// were removed.
func (s *TokenStore) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, tokenCleanup, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted tokens: %w", err)
	}
	return n, nil
}

func (s *TokenStore) userRoles(ctx context.Context, username string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, rolesQuery, username)
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

// HashToken computes the stored form of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the short form of a token safe to show in
// listings, e.g. "foyer_ab12cd34".
func DisplayPrefix(token string) string {
	encoded := strings.TrimPrefix(token, TokenPrefix)
	if len(encoded) >= 8 {
		return TokenPrefix + encoded[:8]
	}
	return token
}

// CheckTokenFormat reports whether a string is shaped like a gateway
// token.
func CheckTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}
	encoded := strings.TrimPrefix(token, TokenPrefix)
	if encoded == "" {
		return fmt.Errorf("token is too short")
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	return nil
}
