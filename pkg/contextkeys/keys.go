// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/foyer/pkg/contextkeys"
//	ctx = contextkeys.WithPrincipal(ctx, principal)
//	p := contextkeys.GetPrincipal(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// PrincipalKey contains the authenticated principal
	// Set by: gateway pipeline after a successful authentication decision
	// Used by: Built-in application handlers, /auth/whoami
	// Type: *realm.Principal
	PrincipalKey Key = "principal"

	// AuthMethodKey contains the method that established the principal
	// Set by: gateway pipeline alongside PrincipalKey
	// Used by: Built-in application handlers
	// Type: string
	AuthMethodKey Key = "auth_method"

	// AppNameKey contains the name of the application a request was
	// routed to.
	// Set by: gateway pipeline before invoking the application handler
	// Used by: Built-in application handlers, upstream error pages
	// Type: string
	AppNameKey Key = "app_name"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// Helper functions for type-safe context operations

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithPrincipal adds the authenticated principal to the context. The
// value is stored as interface{} so this package stays free of
// dependencies; callers assert the concrete type on the way out.
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithAuthMethod adds the authentication method to the context
func WithAuthMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, AuthMethodKey, method)
}

// WithAppName adds the routed application name to the context
func WithAppName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, AppNameKey, name)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetPrincipal retrieves the raw principal value from context. Callers
// assert the concrete type.
func GetPrincipal(ctx context.Context) interface{} {
	return ctx.Value(PrincipalKey)
}

// GetAuthMethod retrieves the authentication method from context
func GetAuthMethod(ctx context.Context) string {
	if method, ok := ctx.Value(AuthMethodKey).(string); ok {
		return method
	}
	return ""
}

// GetAppName retrieves the routed application name from context
func GetAppName(ctx context.Context) string {
	if name, ok := ctx.Value(AppNameKey).(string); ok {
		return name
	}
	return ""
}
