// Package middleware provides HTTP middleware for throttling login attempts.
//
// # Overview
//
// The gateway verifies credentials on behalf of every hosted application,
// which makes it the one place an attacker can brute-force passwords for all
// of them. This package meters credentialed requests (Authorization headers
// and login form submissions) per client address before they reach the realm.
// Anonymous traffic is never throttled.
//
// # Components
//
// MemoryLimiter: token bucket per client, state local to one process
//
//	limiter := middleware.NewMemoryLimiter(nil) // default 10/min, burst 5
//	handler = middleware.NewLoginRateLimit(limiter, nil, logger).Handler(handler)
//
// RedisLimiter: counters shared across gateway instances
//
//	limiter := middleware.NewRedisLimiter(redisClient, cfg, "foyer:ratelimit")
//	handler = middleware.NewLoginRateLimit(limiter, cfg, logger).Handler(handler)
//
// Limited requests receive 429 with Retry-After and X-RateLimit-* headers.
// If the limiter backend is unreachable the middleware fails open and logs;
// login throttling is a hardening layer, not something whose outage should
// take authentication down with it.
//
// # Related Packages
//
//   - pkg/realm: per-account lockout after repeated bad passwords
//   - pkg/gateway: the handler this wraps
package middleware
