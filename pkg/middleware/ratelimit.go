package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/foyer/pkg/authn"
	"github.com/platinummonkey/foyer/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max credentialed requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultLoginRateLimitConfig returns the default limits for login attempts.
// Ten attempts a minute per client address is generous for humans and slow
// enough to make credential stuffing impractical.
func DefaultLoginRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
		BurstSize:         5,
	}
}

// Limiter counts credentialed requests per key. Implementations exist for a
// single process (MemoryLimiter) and for a fleet sharing Redis (RedisLimiter).
// When Allow returns an error the verdict is meaningless; callers decide
// whether to fail open or closed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Remaining(ctx context.Context, key string) (int, error)
	RetryAfter(ctx context.Context, key string) (time.Duration, error)
}

// MemoryLimiter implements rate limiting using a token bucket per key.
// State is process-local; run the gateway behind Redis for shared limits.
type MemoryLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.RWMutex
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(config *RateLimitConfig) *MemoryLimiter {
	if config == nil {
		config = DefaultLoginRateLimitConfig()
	}

	return &MemoryLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
	}
}

// Allow checks if a request is allowed for the given key. It never fails.
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     rl.config.RequestsPerWindow + rl.config.BurstSize,
			lastUpdate: time.Now(),
		}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastUpdate)

	// Refill tokens based on elapsed time
	tokensToAdd := int(elapsed.Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if tokensToAdd > 0 {
		b.tokens += tokensToAdd
		maxTokens := rl.config.RequestsPerWindow + rl.config.BurstSize
		if b.tokens > maxTokens {
			b.tokens = maxTokens
		}
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true, nil
	}

	return false, nil
}

// Remaining returns the number of remaining tokens for a key.
func (rl *MemoryLimiter) Remaining(_ context.Context, key string) (int, error) {
	rl.mu.RLock()
	b, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if !exists {
		return rl.config.RequestsPerWindow + rl.config.BurstSize, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.tokens, nil
}

// RetryAfter reports how long an exhausted key should wait. The bucket refills
// continuously, so the full window is an upper bound.
func (rl *MemoryLimiter) RetryAfter(_ context.Context, _ string) (time.Duration, error) {
	return rl.config.WindowDuration, nil
}

// Cleanup removes buckets that have been idle long enough to be full again.
func (rl *MemoryLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// StartCleanup starts a background goroutine to cleanup old buckets.
func (rl *MemoryLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// LoginRateLimit throttles credentialed requests per client address before
// they reach the realm. Requests that carry no credentials pass through
// untouched; the limiter only meters work an attacker could use to guess
// passwords. Limiter outages fail open so a Redis blip does not lock every
// user out of every application.
type LoginRateLimit struct {
	limiter Limiter
	config  *RateLimitConfig
	logger  *observability.Logger
}

// NewLoginRateLimit creates the login throttling middleware.
func NewLoginRateLimit(limiter Limiter, config *RateLimitConfig, logger *observability.Logger) *LoginRateLimit {
	if config == nil {
		config = DefaultLoginRateLimitConfig()
	}
	return &LoginRateLimit{
		limiter: limiter,
		config:  config,
		logger:  logger,
	}
}

// Handler wraps an HTTP handler with login rate limiting.
func (m *LoginRateLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !carriesCredentials(r) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		key := "ip:" + getClientIP(r)

		allowed, err := m.limiter.Allow(ctx, key)
		if err != nil {
			m.logger.WithError(err).Warn("Rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			m.rateLimitExceeded(ctx, w, key)
			return
		}

		remaining, err := m.limiter.Remaining(ctx, key)
		if err == nil {
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", m.config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			if retry, err := m.limiter.RetryAfter(ctx, key); err == nil && retry > 0 {
				w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(retry).Unix()))
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *LoginRateLimit) rateLimitExceeded(ctx context.Context, w http.ResponseWriter, key string) {
	retry, err := m.limiter.RetryAfter(ctx, key)
	if err != nil || retry <= 0 {
		retry = m.config.WindowDuration
	}
	if retry < time.Second {
		retry = time.Second
	}

	m.logger.WithField("key", key).Warn("Login rate limit exceeded")

	secs := fmt.Sprintf("%.0f", retry.Seconds())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", secs)
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", m.config.RequestsPerWindow))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(retry).Unix()))
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"too many login attempts","retry_after":` + secs + `}`))
}

// carriesCredentials reports whether serving this request means verifying
// something against the realm: an Authorization header (basic or bearer) or a
// login form submission.
func carriesCredentials(r *http.Request) bool {
	if r.Header.Get("Authorization") != "" {
		return true
	}
	return r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, authn.FormLoginAction)
}

func getClientIP(r *http.Request) string {
	// First hop of X-Forwarded-For when behind a proxy
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			forwarded = forwarded[:i]
		}
		return strings.TrimSpace(forwarded)
	}

	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
