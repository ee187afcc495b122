package authn

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/httputil"
	"github.com/platinummonkey/foyer/pkg/realm"
)

// DefaultRealmName is used in challenges when the manifest does not name
// a realm.
const DefaultRealmName = "Foyer"

// Basic implements HTTP Basic authentication backed by a realm.
type Basic struct {
	Base
	realm realm.Realm
}

// NewBasic builds the BASIC strategy. A realm is required.
func NewBasic(deps Deps) (*Basic, error) {
	if deps.Realm == nil {
		return nil, fmt.Errorf("BASIC login requires a realm")
	}
	return &Basic{Base: newBase(deps, "basic"), realm: deps.Realm}, nil
}

func basicFactory(deps Deps, _ *host.LoginConfig) (Authenticator, error) {
	return NewBasic(deps)
}

// Method returns "BASIC".
func (a *Basic) Method() string {
	return host.MethodBasic
}

// Authenticate verifies the Authorization header when one is present.
// Requests without credentials pass through anonymously; they are
// challenged only if the constraint check turns them away. Presented
// credentials that fail verification are challenged immediately.
func (a *Basic) Authenticate(w http.ResponseWriter, r *Request, login *host.LoginConfig) (bool, error) {
	if p := r.UserPrincipal(); p != nil {
		a.Logger.WithField("user", p.Name).Debug("request already authenticated")
		if err := a.Admit(r.Context(), r, p, ""); err != nil {
			return false, err
		}
		return true, nil
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		a.Logger.Debug("no basic credentials presented")
		return true, nil
	}

	p, err := a.realm.Authenticate(r.Context(), username, password)
	switch {
	case errors.Is(err, realm.ErrInvalidCredentials), errors.Is(err, realm.ErrLockedOut):
		a.Logger.WithField("user", username).Debug("basic credentials rejected")
		if cerr := a.Challenge(w, r, login); cerr != nil {
			return false, cerr
		}
		return false, nil
	case err != nil:
		return false, fmt.Errorf("realm failure: %w", err)
	}

	if err := a.Admit(r.Context(), r, p, host.MethodBasic); err != nil {
		return false, err
	}
	a.Logger.WithField("user", p.Name).Debug("basic authentication succeeded")
	return true, nil
}

// Challenge writes a 401 with a WWW-Authenticate header.
func (a *Basic) Challenge(w http.ResponseWriter, _ *Request, login *host.LoginConfig) error {
	name := DefaultRealmName
	if login != nil && login.Realm != "" {
		name = login.Realm
	}
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", name))
	httputil.WriteUnauthorized(w, "authentication required")
	return nil
}
