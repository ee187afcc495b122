// Package audit provides audit logging for security, compliance, and forensics.
//
// # Overview
//
// This package records every gateway decision, login, logout, session
// and single sign-on lifecycle change with request context, and serves
// the stored trail back through a query API.
//
// # Event Types
//
// Decisions: decision.allow, decision.anonymous, decision.challenge, decision.denied, decision.error
// Logins: login.success, login.failed, logout
// Sessions: session.create, session.destroy
// Single sign-on: sso.establish, sso.associate, sso.signout
// Tokens: token.create, token.revoke
//
// # Usage Example
//
// Record a decision from the request pipeline:
//
//	event := audit.NewEvent(r, audit.EventTypeDecisionAllow, audit.EventStatusSuccess)
//	event.App = app.Name
//	event.AuthMethod = "FORM"
//	event.Username = principal.Name
//	recorder.Record(ctx, event)
//
// Search audit logs:
//
//	results, err := store.Search(ctx, audit.SearchFilter{
//		StartTime:  &dayAgo,
//		Username:   "alice",
//		EventTypes: []audit.EventType{audit.EventTypeLoginFailed},
//	})
//
// # Destinations
//
// DBLogger persists events to PostgreSQL, FileLogger appends
// newline-delimited JSON with rotation, MultiLogger fans out to both.
// Recorder is the nil-safe asynchronous front door the request pipeline
// talks to.
//
// # Retention Policy
//
// Default: 90 days active retention
// Export: JSON, CSV, NDJSON formats for external analysis
//
// # Related Packages
//
//   - pkg/gateway: Emits decision and login events
//   - pkg/realm: Emits token administration events
package audit
