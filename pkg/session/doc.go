// Package session provides server-side sessions for the gateway.
//
// # Overview
//
// A Session is a keyed, mutable server-side object that may hold the
// authenticated Principal, the method that established it, and free-form
// string notes used by the authentication strategies (saved request URI,
// pending login state). Sessions are owned by a Manager; the Manager, not
// its callers, decides when a session expires.
//
// # Managers
//
//   - MemoryManager: in-process map with a periodic sweeper. Destroy
//     listeners fire both on explicit destroy and on sweep expiry.
//   - RedisManager: sessions serialized as JSON under a key prefix with a
//     native TTL. Redis evicts expired keys itself, which cannot fire
//     destroy listeners; the single sign-on registry reconciles that gap
//     with its periodic prune.
//
// # Concurrency
//
// Managers and Sessions carry their own locks. Callers may share one
// Session across goroutines and may call Manager methods concurrently;
// get-or-create for one key never produces two distinct live sessions for
// that key.
package session
