package realm

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultMaxFailures is the failed-attempt limit before lockout.
	DefaultMaxFailures = 5
	// DefaultLockoutWindow is how long failures are remembered. A locked
	// account unlocks itself once its entry ages out of the window.
	DefaultLockoutWindow = 5 * time.Minute

	// lockoutCacheSize bounds the number of usernames tracked at once.
	lockoutCacheSize = 10000
)

// LockoutRealm wraps a Realm and locks an account after repeated failed
// attempts. Failure counts live in an expirable LRU keyed by username, so
// a quiet account unlocks itself when its entry expires.
type LockoutRealm struct {
	inner       Realm
	maxFailures int

	mu       sync.Mutex
	failures *lru.LRU[string, int]
}

// NewLockoutRealm wraps inner with failure tracking. maxFailures <= 0 and
// window <= 0 fall back to the package defaults.
func NewLockoutRealm(inner Realm, maxFailures int, window time.Duration) *LockoutRealm {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	return &LockoutRealm{
		inner:       inner,
		maxFailures: maxFailures,
		failures:    lru.NewLRU[string, int](lockoutCacheSize, nil, window),
	}
}

// Locked reports whether the account currently exceeds the failure limit.
func (l *LockoutRealm) Locked(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	count, _ := l.failures.Get(username)
	return count >= l.maxFailures
}

// Failures returns the recorded failure count for the account.
func (l *LockoutRealm) Failures(username string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count, _ := l.failures.Get(username)
	return count
}

// Authenticate implements Realm. A locked account fails with ErrLockedOut
// before the inner realm is consulted, so an attacker cannot keep probing
// the password while the lock holds.
func (l *LockoutRealm) Authenticate(ctx context.Context, username, password string) (*Principal, error) {
	if l.Locked(username) {
		return nil, ErrLockedOut
	}

	p, err := l.inner.Authenticate(ctx, username, password)
	switch {
	case err == nil:
		l.mu.Lock()
		l.failures.Remove(username)
		l.mu.Unlock()
		return p, nil
	case errors.Is(err, ErrInvalidCredentials):
		l.mu.Lock()
		count, _ := l.failures.Get(username)
		l.failures.Add(username, count+1)
		l.mu.Unlock()
		return nil, err
	default:
		// Infrastructure failure: not the user's fault, no penalty.
		return nil, err
	}
}
