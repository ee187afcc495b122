package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/platinummonkey/foyer/pkg/realm"
)

// Session is a server-side per-user object keyed by an opaque identifier.
// All accessors are safe for concurrent use; the zero value is not usable,
// construct with NewSession.
type Session struct {
	mu         sync.RWMutex
	id         string
	principal  *realm.Principal
	authMethod string
	notes      map[string]string
	createdAt  time.Time
	lastAccess time.Time
}

// NewSession creates a session with the given identifier.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		id:         id,
		notes:      make(map[string]string),
		createdAt:  now,
		lastAccess: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Principal returns the cached principal, or nil if none is attached.
func (s *Session) Principal() *realm.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal
}

// SetPrincipal attaches the principal to the session. Re-attaching the
// same principal is a no-op in effect; the last write wins.
func (s *Session) SetPrincipal(p *realm.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = p
}

// AuthMethod returns the method that established the cached principal
// ("NONE", "BASIC", ...), or the empty string.
func (s *Session) AuthMethod() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authMethod
}

// SetAuthMethod records the method that established the cached principal.
func (s *Session) SetAuthMethod(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authMethod = method
}

// Note returns the named note.
func (s *Session) Note(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.notes[name]
	return value, ok
}

// SetNote stores a note on the session.
func (s *Session) SetNote(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[name] = value
}

// RemoveNote deletes the named note.
func (s *Session) RemoveNote(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes, name)
}

// CreatedAt returns the creation timestamp.
func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// LastAccessed returns the last access timestamp.
func (s *Session) LastAccessed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccess
}

// Touch updates the last access timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = time.Now()
}

// ExpiredAfter reports whether the session has been idle longer than the
// given timeout. A non-positive timeout means sessions never expire.
func (s *Session) ExpiredAfter(idleTimeout time.Duration) bool {
	if idleTimeout <= 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastAccess) > idleTimeout
}

// sessionJSON is the serialized form used by the Redis manager.
type sessionJSON struct {
	ID         string           `json:"id"`
	Principal  *realm.Principal `json:"principal,omitempty"`
	AuthMethod string           `json:"auth_method,omitempty"`
	Notes      map[string]string `json:"notes,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	LastAccess time.Time        `json:"last_access"`
}

// MarshalJSON implements json.Marshaler.
func (s *Session) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := make(map[string]string, len(s.notes))
	for k, v := range s.notes {
		notes[k] = v
	}

	return json.Marshal(sessionJSON{
		ID:         s.id,
		Principal:  s.principal,
		AuthMethod: s.authMethod,
		Notes:      notes,
		CreatedAt:  s.createdAt,
		LastAccess: s.lastAccess,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = raw.ID
	s.principal = raw.Principal
	s.authMethod = raw.AuthMethod
	s.notes = raw.Notes
	if s.notes == nil {
		s.notes = make(map[string]string)
	}
	s.createdAt = raw.CreatedAt
	s.lastAccess = raw.LastAccess
	return nil
}
