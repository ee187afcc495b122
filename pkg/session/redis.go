package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	// redisKeyPrefix namespaces session keys in Redis.
	redisKeyPrefix = "foyer:session:"
	// createAttempts bounds SetNX retries on identifier collision.
	createAttempts = 3
)

// RedisManager stores sessions in Redis as JSON values with a native TTL.
// Redis evicting an expired key cannot fire destroy listeners; the SSO
// registry's prune cycle reconciles memberships for sessions that vanish
// this way.
type RedisManager struct {
	client *redis.Client
	ttl    time.Duration

	mu        sync.RWMutex
	listeners []DestroyListener
}

// NewRedisManager creates a Redis-backed manager. A non-positive ttl falls
// back to DefaultIdleTimeout.
func NewRedisManager(client *redis.Client, ttl time.Duration) *RedisManager {
	if ttl <= 0 {
		ttl = DefaultIdleTimeout
	}
	return &RedisManager{
		client: client,
		ttl:    ttl,
	}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

// Get implements Manager. A hit refreshes the key's TTL, mirroring the
// idle-timeout semantics of the memory manager.
func (m *RedisManager) Get(ctx context.Context, id string) (*Session, error) {
	data, err := m.client.Get(ctx, redisKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	sess := &Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	sess.Touch()

	if err := m.client.Expire(ctx, redisKey(id), m.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to refresh session %s: %w", id, err)
	}
	return sess, nil
}

// Exists reports whether a session key is present without refreshing its
// TTL. The SSO registry's prune cycle uses this as its liveness probe; a
// Get there would reset idle timers and keep every member session alive
// indefinitely.
func (m *RedisManager) Exists(ctx context.Context, id string) (bool, error) {
	n, err := m.client.Exists(ctx, redisKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session %s: %w", id, err)
	}
	return n > 0, nil
}

// Create implements Manager. SetNX guarantees two concurrent creates can
// never share an identifier.
func (m *RedisManager) Create(ctx context.Context) (*Session, error) {
	for i := 0; i < createAttempts; i++ {
		id := uuid.New().String()
		sess := NewSession(id)

		data, err := json.Marshal(sess)
		if err != nil {
			return nil, fmt.Errorf("failed to encode session: %w", err)
		}

		ok, err := m.client.SetNX(ctx, redisKey(id), data, m.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		if ok {
			return sess, nil
		}
	}
	return nil, fmt.Errorf("failed to create session: identifier collisions on %d attempts", createAttempts)
}

// Save implements Manager. The whole session is rewritten and the TTL
// restarted.
func (m *RedisManager) Save(ctx context.Context, sess *Session) error {
	sess.Touch()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID(), err)
	}
	if err := m.client.Set(ctx, redisKey(sess.ID()), data, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID(), err)
	}
	return nil
}

// Destroy implements Manager.
func (m *RedisManager) Destroy(ctx context.Context, id string) error {
	// Fetch first so listeners see the final state.
	data, err := m.client.Get(ctx, redisKey(id)).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get session %s: %w", id, err)
	}

	if err := m.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}

	sess := &Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		// The key is gone; notify with a bare session rather than failing.
		sess = NewSession(id)
	}
	m.notify(sess, DestroyReasonLogout)
	return nil
}

// OnDestroy implements Manager.
func (m *RedisManager) OnDestroy(fn DestroyListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Active implements Manager, counting keys under the session prefix.
func (m *RedisManager) Active(ctx context.Context) (int, error) {
	var count int
	iter := m.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return count, nil
}

// Close implements Manager.
func (m *RedisManager) Close() error {
	return m.client.Close()
}

func (m *RedisManager) notify(sess *Session, reason DestroyReason) {
	m.mu.RLock()
	listeners := make([]DestroyListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(sess, reason)
	}
}
