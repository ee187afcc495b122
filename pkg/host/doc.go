// Package host describes the applications the gateway fronts.
//
// # Overview
//
// Each hosted application is declared in a YAML manifest: the path prefix
// it owns, the upstream it proxies to, how it expects authentication to be
// performed (the login config), and the security constraints mapping its
// resources to required roles. The gateway evaluates constraints AFTER the
// authentication decision, so "no login method" applications still get
// role enforcement on their protected paths.
//
// # Manifests
//
// One application per file:
//
//	name: reports
//	path: /reports
//	upstream: http://127.0.0.1:9001
//	login:
//	  method: BASIC
//	  realm: Reports
//	constraints:
//	  - name: admin area
//	    paths: ["/admin/*"]
//	    roles: [admin]
//
// LoadDir reads every manifest in a directory; Watcher re-reads on change
// so applications can be added or edited without a restart.
//
// # URL Patterns
//
// Constraint paths use servlet-style patterns relative to the application
// prefix: exact ("/status"), prefix ("/admin/*"), extension ("*.pdf") and
// the catch-all ("/"). The most specific applicable constraint wins.
package host
