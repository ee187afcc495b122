package authn

import (
	"net/http"

	"github.com/platinummonkey/foyer/pkg/host"
)

// None is the default strategy for applications that declare no login
// mechanism. It never challenges and never rejects: every request is
// admitted, and whether an anonymous user may reach a resource is left
// entirely to the constraint check.
//
// None still honors identities established upstream of it, either
// restored from a cached session or inherited through single sign-on,
// and keeps their session and single sign-on bookkeeping alive.
type None struct {
	Base
}

// NewNone builds the NONE strategy.
func NewNone(deps Deps) *None {
	return &None{Base: newBase(deps, "none")}
}

func noneFactory(deps Deps, _ *host.LoginConfig) (Authenticator, error) {
	return NewNone(deps), nil
}

// Method returns "NONE".
func (a *None) Method() string {
	return host.MethodNone
}

// Authenticate admits the request unconditionally.
//
// When the request already carries a principal and principal caching is
// enabled, the principal is written to the request's session (creating
// one if needed) and, if the request rode in on a single sign-on entry,
// the session's membership in that entry is refreshed. Both writes are
// idempotent, so replaying a request converges on the same state.
//
// An anonymous request passes through with no state touched at all.
func (a *None) Authenticate(_ http.ResponseWriter, r *Request, _ *host.LoginConfig) (bool, error) {
	if p := r.UserPrincipal(); p != nil {
		a.Logger.WithField("user", p.Name).Debug("request already authenticated")
		if err := a.Admit(r.Context(), r, p, ""); err != nil {
			return false, err
		}
		return true, nil
	}

	a.Logger.Debug("anonymous request admitted without authentication")
	return true, nil
}
