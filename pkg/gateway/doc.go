// Package gateway is the authenticating reverse proxy at the heart of
// foyer. It routes each request to a hosted application, restores any
// identity carried by the session or single sign-on cookies, runs the
// application's authentication strategy, evaluates security
// constraints, and finally forwards the request upstream with identity
// headers attached.
//
// # Request Pipeline
//
// Every request to an application path passes through the same stages,
// in order:
//
//  1. Reserved endpoints. Paths under /auth/ at the gateway root
//     (whoami, logout, the OIDC callback, the SAML assertion consumer)
//     are handled by the gateway itself and never reach an application.
//  2. Routing. The longest matching application path prefix wins.
//  3. Identity restoration. The session cookie and, when single
//     sign-on is enabled, the single sign-on cookie are resolved
//     against their stores. A dead cookie is cleared, never an error.
//  4. Authentication. The application's strategy runs. It may admit
//     the request (with or without an identity), or write a response
//     of its own, such as a login redirect.
//  5. Constraint evaluation. The most specific constraint for the
//     path decides whether the restored identity suffices. Anonymous
//     requests against protected resources are challenged; anything
//     else that fails is a 403.
//  6. Single sign-on establishment. A request that authenticated
//     fresh, rather than riding in on an existing entry, gets a new
//     single sign-on entry and cookie.
//  7. Forwarding. The request is proxied to the application's
//     upstream, or served by the built-in handler when the manifest
//     declares none.
//
// Cookies for sessions created mid-request are issued lazily, just
// before the first byte of the response is written, so strategies that
// redirect during authentication still get their cookies out.
//
// # Usage Example
//
//	gw, err := gateway.New(gateway.Config{
//		Apps:     apps,
//		Sessions: sessions,
//		SSO:      ssoRegistry,
//		Deps:     deps,
//		Logger:   logger,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	http.ListenAndServe(":8080", gw)
//
// # Related Packages
//
//   - pkg/authn: the authentication strategies the pipeline runs
//   - pkg/host: application manifests, routing, and constraints
//   - pkg/session: the session store behind the session cookie
//   - pkg/sso: the single sign-on registry behind the sso cookie
//   - pkg/audit: where the pipeline records its decisions
package gateway
