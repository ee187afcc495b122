// Package sso tracks single sign-on entries shared across the hosted
// applications.
//
// # Overview
//
// When an interactive strategy authenticates a user, the gateway registers
// an Entry under a fresh SSO identifier and sets that identifier in a
// host-wide cookie. Later requests to sibling applications carry the
// cookie; the pipeline looks the entry up and inherits its principal, so
// the user signs in once per host, not once per application.
//
// # Lifetime
//
// An Entry holds an explicit set of associated session IDs. Sessions join
// via Associate and leave when the session manager reports their
// destruction. The entry stays resident while ANY associated session
// lives, including sessions that joined passively through an application
// with no login mechanism of its own; only when the set becomes empty is
// the entry removed. Deregister (sign-out) removes the entry eagerly and
// hands the member sessions back to the caller for destruction.
//
// # Concurrency
//
// The Registry is a single shared object created at startup and passed by
// reference into the pipeline. All synchronization is internal; Associate,
// Lookup and the destroy callbacks are safe under concurrent requests.
package sso
