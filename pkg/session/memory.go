package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultIdleTimeout is how long a session may sit unused.
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultSweepInterval is how often the memory manager scans for
	// expired sessions.
	DefaultSweepInterval = time.Minute
)

// MemoryManager keeps sessions in an in-process map with a periodic
// sweeper. Expired sessions are also dropped lazily on Get, so a stale
// session is never handed out between sweeps.
type MemoryManager struct {
	idleTimeout   time.Duration
	sweepInterval time.Duration

	mu        sync.RWMutex
	sessions  map[string]*Session
	listeners []DestroyListener

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryManager creates a memory manager and starts its sweeper.
// Non-positive arguments fall back to the package defaults.
func NewMemoryManager(idleTimeout, sweepInterval time.Duration) *MemoryManager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	m := &MemoryManager{
		idleTimeout:   idleTimeout,
		sweepInterval: sweepInterval,
		sessions:      make(map[string]*Session),
		stop:          make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Get implements Manager.
func (m *MemoryManager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok && sess.ExpiredAfter(m.idleTimeout) {
		delete(m.sessions, id)
		m.mu.Unlock()
		m.notify(sess, DestroyReasonExpired)
		return nil, ErrNotFound
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	sess.Touch()
	return sess, nil
}

// Create implements Manager.
func (m *MemoryManager) Create(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// UUID collisions are vanishingly rare; the loop keeps create-if-absent
	// exact regardless.
	for {
		id := uuid.New().String()
		if _, exists := m.sessions[id]; exists {
			continue
		}
		sess := NewSession(id)
		m.sessions[id] = sess
		return sess, nil
	}
}

// Save implements Manager. The map holds live pointers, so persisting is
// just a touch.
func (m *MemoryManager) Save(ctx context.Context, sess *Session) error {
	sess.Touch()
	return nil
}

// Destroy implements Manager.
func (m *MemoryManager) Destroy(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		m.notify(sess, DestroyReasonLogout)
	}
	return nil
}

// OnDestroy implements Manager.
func (m *MemoryManager) OnDestroy(fn DestroyListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Active implements Manager.
func (m *MemoryManager) Active(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

// Close stops the sweeper. Sessions already handed out stay usable.
func (m *MemoryManager) Close() error {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	return nil
}

func (m *MemoryManager) sweep() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			var expired []*Session
			m.mu.Lock()
			for id, sess := range m.sessions {
				if sess.ExpiredAfter(m.idleTimeout) {
					delete(m.sessions, id)
					expired = append(expired, sess)
				}
			}
			m.mu.Unlock()

			for _, sess := range expired {
				m.notify(sess, DestroyReasonExpired)
			}
		}
	}
}

// notify runs the destroy listeners outside the manager lock.
func (m *MemoryManager) notify(sess *Session, reason DestroyReason) {
	m.mu.RLock()
	listeners := make([]DestroyListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(sess, reason)
	}
}
