package host

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/foyer/pkg/realm"
)

// Login method names accepted in application manifests. MethodNone is
// the default when a manifest omits the method.
const (
	MethodNone       = "NONE"
	MethodBasic      = "BASIC"
	MethodForm       = "FORM"
	MethodBearer     = "BEARER"
	MethodClientCert = "CLIENT-CERT"
	MethodOIDC       = "OIDC"
	MethodSAML       = "SAML"
)

// LoginConfig is the read-only description of how an application expects
// authentication to be performed.
type LoginConfig struct {
	// Method names the authentication strategy: NONE, BASIC, FORM,
	// BEARER, CLIENT-CERT, OIDC, SAML.
	Method string `yaml:"method"`
	// Realm is the human-readable realm name used in challenges.
	Realm string `yaml:"realm,omitempty"`
	// LoginPage is where FORM authentication sends unauthenticated users.
	LoginPage string `yaml:"login_page,omitempty"`
	// ErrorPage is where FORM authentication sends failed logins.
	ErrorPage string `yaml:"error_page,omitempty"`
}

// Constraint maps application resources to the roles required to reach
// them. Constraints are evaluated by the pipeline after the
// authentication decision.
type Constraint struct {
	Name    string   `yaml:"name,omitempty"`
	Paths   []string `yaml:"paths"`
	Methods []string `yaml:"methods,omitempty"`
	// Roles lists role names that grant access. The single entry "*"
	// admits any authenticated principal.
	Roles []string `yaml:"roles,omitempty"`
	// RequireAuth demands an authenticated principal even when Roles is
	// empty.
	RequireAuth bool `yaml:"require_auth,omitempty"`
}

// Protected reports whether the constraint restricts access at all.
func (c *Constraint) Protected() bool {
	return c.RequireAuth || len(c.Roles) > 0
}

// AppliesTo reports whether the constraint covers the given
// application-relative path and HTTP method.
func (c *Constraint) AppliesTo(path, method string) bool {
	if len(c.Methods) > 0 {
		found := false
		for _, m := range c.Methods {
			if strings.EqualFold(m, method) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, pattern := range c.Paths {
		if ok, _ := matchPattern(pattern, path); ok {
			return true
		}
	}
	return false
}

// specificity returns the best pattern-match score for the path, or -1.
func (c *Constraint) specificity(path, method string) int {
	if !c.AppliesTo(path, method) {
		return -1
	}
	best := -1
	for _, pattern := range c.Paths {
		if ok, score := matchPattern(pattern, path); ok && score > best {
			best = score
		}
	}
	return best
}

// Satisfied reports whether the principal meets the constraint.
func (c *Constraint) Satisfied(p *realm.Principal) bool {
	if !c.Protected() {
		return true
	}
	if p == nil {
		return false
	}
	if len(c.Roles) == 0 {
		return true
	}
	for _, role := range c.Roles {
		if role == "*" || p.HasRole(role) {
			return true
		}
	}
	return false
}

// matchPattern matches servlet-style patterns and scores specificity:
// exact matches beat prefixes, longer prefixes beat shorter ones,
// extensions beat the catch-all.
func matchPattern(pattern, path string) (bool, int) {
	switch {
	case pattern == "/" || pattern == "/*":
		return true, 0
	case strings.HasSuffix(pattern, "/*"):
		prefix := strings.TrimSuffix(pattern, "/*")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true, len(prefix)
		}
		return false, 0
	case strings.HasPrefix(pattern, "*."):
		if strings.HasSuffix(path, pattern[1:]) {
			return true, 1
		}
		return false, 0
	default:
		if path == pattern {
			return true, len(pattern) * 2
		}
		return false, 0
	}
}

// validPattern reports whether a constraint path pattern is well formed.
func validPattern(pattern string) bool {
	if pattern == "" {
		return false
	}
	if strings.HasPrefix(pattern, "*.") {
		return len(pattern) > 2 && !strings.Contains(pattern[2:], "*") && !strings.Contains(pattern[2:], "/")
	}
	if !strings.HasPrefix(pattern, "/") {
		return false
	}
	// A single trailing wildcard is the only one allowed.
	if n := strings.Count(pattern, "*"); n > 1 || (n == 1 && !strings.HasSuffix(pattern, "/*")) {
		return false
	}
	return true
}

// App declares one hosted application.
type App struct {
	Name        string       `yaml:"name"`
	Path        string       `yaml:"path"`
	Upstream    string       `yaml:"upstream,omitempty"`
	Login       LoginConfig  `yaml:"login"`
	Constraints []Constraint `yaml:"constraints,omitempty"`
	// CachePrincipals overrides the gateway-wide principal caching
	// policy for this application.
	CachePrincipals *bool `yaml:"cache_principals,omitempty"`
}

// Validate normalizes the app declaration and reports structural
// problems. Whether the login method is actually available is decided by
// the strategy factory at wiring time.
func (a *App) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("app manifest: name is required")
	}
	if a.Path == "" || !strings.HasPrefix(a.Path, "/") {
		return fmt.Errorf("app %q: path must start with /", a.Name)
	}
	a.Path = strings.TrimRight(a.Path, "/")
	if a.Path == "" {
		a.Path = "/"
	}

	if a.Login.Method == "" {
		a.Login.Method = MethodNone
	}
	a.Login.Method = strings.ToUpper(a.Login.Method)

	for i := range a.Constraints {
		c := &a.Constraints[i]
		if len(c.Paths) == 0 {
			return fmt.Errorf("app %q: constraint %d has no paths", a.Name, i)
		}
		for _, p := range c.Paths {
			if !validPattern(p) {
				return fmt.Errorf("app %q: constraint %d has invalid pattern %q", a.Name, i, p)
			}
		}
	}
	return nil
}

// ConstraintFor returns the most specific constraint covering the
// application-relative path and method, or nil.
func (a *App) ConstraintFor(path, method string) *Constraint {
	best := -1
	var match *Constraint
	for i := range a.Constraints {
		c := &a.Constraints[i]
		if score := c.specificity(path, method); score > best {
			best = score
			match = c
		}
	}
	return match
}

// CachingEnabled resolves the effective principal-caching policy.
func (a *App) CachingEnabled(globalDefault bool) bool {
	if a.CachePrincipals != nil {
		return *a.CachePrincipals
	}
	return globalDefault
}

// RelativePath strips the application prefix from a request path.
func (a *App) RelativePath(requestPath string) string {
	if a.Path == "/" {
		return requestPath
	}
	rel := strings.TrimPrefix(requestPath, a.Path)
	if rel == "" {
		return "/"
	}
	return rel
}
