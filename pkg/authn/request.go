package authn

import (
	"context"
	"fmt"
	"net/http"

	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/realm"
	"github.com/platinummonkey/foyer/pkg/session"
)

// Request wraps an incoming *http.Request with the authentication state
// the gateway pipeline accumulates while processing it. It is built once
// per request and discarded afterwards; authenticators mutate it, the
// pipeline reads the result.
type Request struct {
	*http.Request

	// App is the application the request was routed to.
	App *host.App
	// Caching is the effective principal-caching policy for this
	// request's application.
	Caching bool

	sessions session.Manager
	sess     *session.Session
	created  bool

	principal  *realm.Principal
	authMethod string
	ssoID      string
}

// NewRequest builds the authentication facade for one HTTP request.
// sessions may be nil when principal caching is disabled gateway-wide.
func NewRequest(r *http.Request, app *host.App, sessions session.Manager, caching bool) *Request {
	return &Request{
		Request:  r,
		App:      app,
		Caching:  caching,
		sessions: sessions,
	}
}

// UserPrincipal returns the authenticated principal, or nil for an
// anonymous request.
func (r *Request) UserPrincipal() *realm.Principal {
	return r.principal
}

// SetUserPrincipal records the authenticated principal on the request.
func (r *Request) SetUserPrincipal(p *realm.Principal) {
	r.principal = p
}

// AuthMethod returns the method that established the current principal,
// or "" when the request is anonymous.
func (r *Request) AuthMethod() string {
	return r.authMethod
}

// SetAuthMethod records how the current principal was established.
func (r *Request) SetAuthMethod(method string) {
	r.authMethod = method
}

// SSOID returns the single sign-on identifier attached to this request,
// or "". The gateway sets it only after the identifier resolved to a
// live registry entry.
func (r *Request) SSOID() string {
	return r.ssoID
}

// SetSSOID attaches a verified single sign-on identifier.
func (r *Request) SetSSOID(id string) {
	r.ssoID = id
}

// Session returns the session attached to this request, or nil. It never
// creates one; use EnsureSession for that.
func (r *Request) Session() *session.Session {
	return r.sess
}

// AttachSession binds an existing session, typically one restored from
// the session cookie, to the request.
func (r *Request) AttachSession(sess *session.Session) {
	r.sess = sess
}

// EnsureSession returns the request's session, creating one through the
// session manager if none is attached yet.
func (r *Request) EnsureSession(ctx context.Context) (*session.Session, error) {
	if r.sess != nil {
		return r.sess, nil
	}
	if r.sessions == nil {
		return nil, fmt.Errorf("no session manager configured")
	}
	sess, err := r.sessions.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	r.sess = sess
	r.created = true
	return sess, nil
}

// SessionCreated reports whether EnsureSession created a new session
// during this request, which tells the pipeline to issue a cookie.
func (r *Request) SessionCreated() bool {
	return r.created
}
