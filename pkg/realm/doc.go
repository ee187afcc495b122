// Package realm resolves user credentials to principals.
//
// # Overview
//
// A Realm is the user database behind the interactive authentication
// strategies: it verifies a username/password pair and returns the
// Principal (identity plus granted roles) for the user. Realms never
// create sessions and never touch the single sign-on registry; they are
// pure credential stores.
//
// # Implementations
//
//   - MemoryRealm: in-process user table, loadable from a YAML users file.
//     Intended for development and small static deployments.
//   - DBRealm: SQL-backed user table (PostgreSQL in production, SQLite for
//     local tooling). Passwords are stored as bcrypt hashes.
//   - LockoutRealm: wrapper that locks an account after repeated failed
//     attempts within a sliding window.
//
// # Error Contract
//
// Authenticate returns ErrInvalidCredentials when the pair does not match
// and ErrLockedOut when the account is temporarily locked. Any other error
// is an infrastructure failure (database down, malformed row) and must not
// be treated as a rejection.
//
// # Related Packages
//
//   - pkg/authn: strategies that consult a Realm
//   - pkg/session: where a resolved Principal is cached
package realm
