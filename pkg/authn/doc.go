// Package authn implements the per-application authentication strategies
// of the Foyer gateway.
//
// # Overview
//
// Every application manifest names a login method (NONE, BASIC, FORM,
// BEARER, CLIENT-CERT, OIDC, SAML). The gateway resolves the method to an
// Authenticator through an explicit Registry and invokes it on every
// request BEFORE security constraints are evaluated. An authenticator
// answers one question: may this request continue down the pipeline?
//
// # The Decision Contract
//
// Authenticate returns (true, nil) when the request may proceed, with or
// without an identity. It returns (false, nil) when it has already
// written a challenge or redirect to the client. It returns an error only
// for infrastructure failures (session store, single sign-on registry,
// identity provider outages). Rejected credentials are never an error;
// they become another challenge.
//
//	ok, err := authenticator.Authenticate(w, req, login)
//	if err != nil {
//		// 500: the gateway could not decide
//	}
//	if !ok {
//		// response already written (401, 302, ...)
//	}
//
// # The NONE Strategy
//
// None is the default and the simplest strategy: it admits every request.
// When the request already carries a principal (restored from a cached
// session or inherited through single sign-on) and principal caching is
// enabled, None persists the principal to the request's session and keeps
// the session's single sign-on association alive. When the request is
// anonymous, None changes nothing and lets the constraint check decide
// what an anonymous user may reach.
//
// # Strategy Registry
//
// Strategies are constructed through an explicit Registry object; there
// is no package-level registration, so two gateways in one process can
// carry different strategy sets.
//
//	reg := authn.NewRegistry()
//	reg.Register(host.MethodBasic, authn.NewBasicFactory())
//	a, err := reg.New(host.MethodBasic, deps, login)
//
// NewDefaultRegistry returns a Registry with every built-in strategy
// already registered.
//
// # Request Facade
//
// Authenticators operate on *authn.Request, which wraps *http.Request
// with the authentication state the pipeline accumulates: the principal,
// the effective auth method, the single sign-on identifier, and the
// lazily created session.
//
//	p := req.UserPrincipal()          // nil for anonymous requests
//	sess, err := req.EnsureSession(ctx)
//
// # Related Packages
//
//   - pkg/realm: credential verification backends
//   - pkg/session: session persistence
//   - pkg/sso: the single sign-on registry
//   - pkg/gateway: the pipeline that drives authenticators
package authn
