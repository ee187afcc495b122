package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no live session exists for an identifier.
var ErrNotFound = errors.New("session not found")

// DestroyReason tells a DestroyListener why a session went away.
type DestroyReason string

const (
	// DestroyReasonExpired marks sessions removed by the manager's own
	// idle-timeout policy.
	DestroyReasonExpired DestroyReason = "expired"
	// DestroyReasonLogout marks sessions removed by an explicit Destroy
	// call (sign-out, administrative revocation).
	DestroyReasonLogout DestroyReason = "logout"
)

// DestroyListener is notified after a session has been removed. Listeners
// run outside the manager's locks and must not block for long.
type DestroyListener func(sess *Session, reason DestroyReason)

// Manager owns the session lifecycle: creation, lookup, persistence and
// expiry. Implementations are safe for concurrent use.
type Manager interface {
	// Get returns the live session for id, refreshing its idle timer.
	// Returns ErrNotFound for unknown or expired identifiers.
	Get(ctx context.Context, id string) (*Session, error)

	// Create makes a new empty session under a fresh identifier.
	Create(ctx context.Context) (*Session, error)

	// Save persists the session's current state. Managers holding live
	// pointers treat this as a touch.
	Save(ctx context.Context, sess *Session) error

	// Destroy removes the session and notifies destroy listeners.
	// Destroying an unknown identifier is a no-op.
	Destroy(ctx context.Context, id string) error

	// OnDestroy registers a listener for session removal. Listeners must
	// be registered before the manager is put into service.
	OnDestroy(fn DestroyListener)

	// Active returns the number of live sessions.
	Active(ctx context.Context) (int, error)

	// Close releases manager resources (sweepers, connections).
	Close() error
}
