package sso

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/foyer/pkg/observability"
	"github.com/platinummonkey/foyer/pkg/realm"
	"github.com/platinummonkey/foyer/pkg/session"
)

// Entry is one single sign-on record: the principal established by the
// first authenticating application and the set of sessions currently
// riding on it.
type Entry struct {
	mu         sync.RWMutex
	id         string
	principal  *realm.Principal
	authMethod string
	createdAt  time.Time
	sessions   map[string]struct{}
}

// ID returns the SSO identifier.
func (e *Entry) ID() string {
	return e.id
}

// Principal returns the principal established for this entry.
func (e *Entry) Principal() *realm.Principal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.principal
}

// AuthMethod returns the method that established the principal.
func (e *Entry) AuthMethod() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.authMethod
}

// CreatedAt returns when the entry was registered.
func (e *Entry) CreatedAt() time.Time {
	return e.createdAt
}

// Sessions returns the associated session IDs, sorted.
func (e *Entry) Sessions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SessionCount returns the number of associated sessions.
func (e *Entry) SessionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// Registry is the process-wide single sign-on table. Construct once with
// NewRegistry and share by reference; it is never reached through package
// globals.
type Registry struct {
	logger *observability.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
	// bySession maps a session ID to the SSO identifier it is associated
	// with, for destroy-callback and prune bookkeeping.
	bySession map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *observability.Logger) *Registry {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Registry{
		logger:    logger.WithField("component", "sso"),
		entries:   make(map[string]*Entry),
		bySession: make(map[string]string),
	}
}

// Register creates the entry for ssoID with the given principal. An
// existing entry under the same identifier is replaced wholesale; its
// memberships are dropped.
func (r *Registry) Register(ssoID string, p *realm.Principal, authMethod string) {
	r.mu.Lock()
	if old, ok := r.entries[ssoID]; ok {
		for sid := range old.sessions {
			delete(r.bySession, sid)
		}
	}
	r.entries[ssoID] = &Entry{
		id:         ssoID,
		principal:  p,
		authMethod: authMethod,
		createdAt:  time.Now(),
		sessions:   make(map[string]struct{}),
	}
	r.mu.Unlock()

	r.logger.WithFields(map[string]interface{}{
		"sso_id":      ssoID,
		"auth_method": authMethod,
	}).Debugf("registered sso entry for %q", p.Name)
}

// Associate adds the session to the entry's associated-session set.
// Associating an already-member session is a no-op; an unknown ssoID is a
// logged no-op, since the entry may have been removed while the request
// carrying the identifier was in flight. A session associated with a
// different entry is moved.
func (r *Registry) Associate(ssoID string, sess *session.Session) error {
	sid := sess.ID()

	r.mu.Lock()
	entry, ok := r.entries[ssoID]
	if !ok {
		r.mu.Unlock()
		r.logger.WithField("sso_id", ssoID).Debug("associate for unknown sso entry, ignoring")
		return nil
	}

	if prev, bound := r.bySession[sid]; bound && prev != ssoID {
		if prevEntry, exists := r.entries[prev]; exists {
			prevEntry.mu.Lock()
			delete(prevEntry.sessions, sid)
			empty := len(prevEntry.sessions) == 0
			prevEntry.mu.Unlock()
			if empty {
				delete(r.entries, prev)
			}
		}
	}

	entry.mu.Lock()
	_, member := entry.sessions[sid]
	entry.sessions[sid] = struct{}{}
	entry.mu.Unlock()

	r.bySession[sid] = ssoID
	r.mu.Unlock()

	if !member {
		r.logger.WithFields(map[string]interface{}{
			"sso_id":     ssoID,
			"session_id": sid,
		}).Debug("associated session with sso entry")
	}
	return nil
}

// Lookup returns the entry for ssoID.
func (r *Registry) Lookup(ssoID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[ssoID]
	return entry, ok
}

// Deregister removes the entry and returns the session IDs that were
// associated with it. The caller destroys those sessions; the registry
// never destroys sessions itself.
func (r *Registry) Deregister(ssoID string) []string {
	r.mu.Lock()
	entry, ok := r.entries[ssoID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, ssoID)

	entry.mu.Lock()
	ids := make([]string, 0, len(entry.sessions))
	for sid := range entry.sessions {
		ids = append(ids, sid)
		delete(r.bySession, sid)
	}
	entry.sessions = make(map[string]struct{})
	entry.mu.Unlock()
	r.mu.Unlock()

	sort.Strings(ids)
	r.logger.WithFields(map[string]interface{}{
		"sso_id":   ssoID,
		"sessions": len(ids),
	}).Debug("deregistered sso entry")
	return ids
}

// SessionDestroyed removes the session from its entry. The entry itself
// is removed only when its associated-session set becomes empty: a
// passively-joined session keeps the entry alive past the death of the
// session that originally established it.
func (r *Registry) SessionDestroyed(sessionID string) {
	r.mu.Lock()
	ssoID, bound := r.bySession[sessionID]
	if !bound {
		r.mu.Unlock()
		return
	}
	delete(r.bySession, sessionID)

	entry, ok := r.entries[ssoID]
	if !ok {
		r.mu.Unlock()
		return
	}

	entry.mu.Lock()
	delete(entry.sessions, sessionID)
	empty := len(entry.sessions) == 0
	entry.mu.Unlock()

	if empty {
		delete(r.entries, ssoID)
	}
	r.mu.Unlock()

	if empty {
		r.logger.WithField("sso_id", ssoID).Debug("removed sso entry, no sessions remain")
	}
}

// Listener adapts the registry to the session manager's destroy callback.
func (r *Registry) Listener() session.DestroyListener {
	return func(sess *session.Session, reason session.DestroyReason) {
		r.SessionDestroyed(sess.ID())
	}
}

// Prune drops memberships whose sessions the manager no longer knows and
// removes entries that end up empty. It covers stores that expire keys
// without firing destroy listeners. Returns the number of entries removed.
func (r *Registry) Prune(ctx context.Context, alive func(ctx context.Context, sessionID string) bool) int {
	r.mu.RLock()
	type membership struct{ ssoID, sessionID string }
	var candidates []membership
	for sid, ssoID := range r.bySession {
		candidates = append(candidates, membership{ssoID: ssoID, sessionID: sid})
	}
	r.mu.RUnlock()

	before := r.Len()
	for _, m := range candidates {
		if ctx.Err() != nil {
			break
		}
		if !alive(ctx, m.sessionID) {
			r.SessionDestroyed(m.sessionID)
		}
	}
	removed := before - r.Len()
	if removed > 0 {
		r.logger.WithField("removed", removed).Debug("pruned sso entries")
	}
	return removed
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// AssociatedSessions returns the total number of session memberships
// across all entries.
func (r *Registry) AssociatedSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession)
}
