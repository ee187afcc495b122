package realm

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// UserRecord is one entry in a YAML users file.
type UserRecord struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"password_hash"`
	Roles        []string `yaml:"roles,omitempty"`
}

// UsersFile is the on-disk format consumed by LoadMemoryRealm.
type UsersFile struct {
	Users []UserRecord `yaml:"users"`
}

// MemoryRealm is an in-process Realm backed by a static user table.
type MemoryRealm struct {
	mu    sync.RWMutex
	users map[string]UserRecord
}

// NewMemoryRealm creates an empty in-memory realm.
func NewMemoryRealm() *MemoryRealm {
	return &MemoryRealm{
		users: make(map[string]UserRecord),
	}
}

// LoadMemoryRealm reads a YAML users file and returns a realm containing
// its users. Password hashes in the file must be bcrypt.
func LoadMemoryRealm(path string) (*MemoryRealm, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	var file UsersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}

	r := NewMemoryRealm()
	for _, u := range file.Users {
		if u.Username == "" {
			return nil, fmt.Errorf("users file %s: entry with empty username", path)
		}
		if u.PasswordHash == "" {
			return nil, fmt.Errorf("users file %s: user %q has no password_hash", path, u.Username)
		}
		r.mu.Lock()
		r.users[u.Username] = u
		r.mu.Unlock()
	}
	return r, nil
}

// AddUser hashes the password and inserts or replaces the user.
func (r *MemoryRealm) AddUser(username, password string, roles ...string) error {
	if username == "" {
		return fmt.Errorf("username must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[username] = UserRecord{
		Username:     username,
		PasswordHash: string(hash),
		Roles:        roles,
	}
	return nil
}

// RemoveUser deletes the user if present.
func (r *MemoryRealm) RemoveUser(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, username)
}

// Len returns the number of users in the realm.
func (r *MemoryRealm) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Authenticate implements Realm.
func (r *MemoryRealm) Authenticate(ctx context.Context, username, password string) (*Principal, error) {
	r.mu.RLock()
	user, ok := r.users[username]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	roles := make([]string, len(user.Roles))
	copy(roles, user.Roles)

	return &Principal{Name: user.Username, Roles: roles}, nil
}
