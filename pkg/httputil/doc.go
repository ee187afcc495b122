// Package httputil provides HTTP utilities for standardized responses and middleware.
//
// # Overview
//
// This package offers the JSON response helpers shared by the gateway's
// built-in endpoints and authentication challenges, plus the request-scoped
// middleware applied to both listeners.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//
// Error responses:
//
//	httputil.WriteErrorMessage(w, http.StatusBadRequest, "state mismatch")
//	httputil.WriteUnauthorized(w, "authentication required")
//	httputil.WriteForbidden(w, "access denied")
//	httputil.WriteInternalError(w, err)
//
// # Middleware
//
//	handler = httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)(handler)
//
// RequestIDMiddleware runs outermost so the logging and recovery layers can
// attach the request ID. The ID lands in pkg/contextkeys and in the
// X-Request-ID response header.
//
// # Related Packages
//
//   - pkg/contextkeys: where the request ID is stored
//   - pkg/middleware: login-attempt throttling
package httputil
