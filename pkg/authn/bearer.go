package authn

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/httputil"
	"github.com/platinummonkey/foyer/pkg/realm"
)

// Bearer authenticates Authorization: Bearer tokens. Two token shapes
// are understood: opaque gateway tokens (the "foyer_" prefix) verified
// against the token store, and OIDC ID tokens verified against the
// configured issuer. At least one verifier must be available.
type Bearer struct {
	Base
	tokens TokenVerifier
	oidc   *OIDCClient
}

// NewBearer builds the BEARER strategy.
func NewBearer(deps Deps) (*Bearer, error) {
	if deps.Tokens == nil && deps.OIDC == nil {
		return nil, fmt.Errorf("BEARER login requires a token store or an OIDC issuer")
	}
	return &Bearer{Base: newBase(deps, "bearer"), tokens: deps.Tokens, oidc: deps.OIDC}, nil
}

func bearerFactory(deps Deps, _ *host.LoginConfig) (Authenticator, error) {
	return NewBearer(deps)
}

// Method returns "BEARER".
func (a *Bearer) Method() string {
	return host.MethodBearer
}

// Authenticate verifies a bearer token when one is presented. Requests
// without a token pass through anonymously; a rejected token is
// challenged immediately.
func (a *Bearer) Authenticate(w http.ResponseWriter, r *Request, login *host.LoginConfig) (bool, error) {
	if p := r.UserPrincipal(); p != nil {
		a.Logger.WithField("user", p.Name).Debug("request already authenticated")
		if err := a.Admit(r.Context(), r, p, ""); err != nil {
			return false, err
		}
		return true, nil
	}

	token, ok := bearerToken(r.Request)
	if !ok {
		a.Logger.Debug("no bearer token presented")
		return true, nil
	}

	p, err := a.verify(r, token)
	switch {
	case errors.Is(err, realm.ErrInvalidCredentials):
		a.Logger.Debug("bearer token rejected")
		if cerr := a.Challenge(w, r, login); cerr != nil {
			return false, cerr
		}
		return false, nil
	case err != nil:
		return false, err
	}

	if err := a.Admit(r.Context(), r, p, host.MethodBearer); err != nil {
		return false, err
	}
	a.Logger.WithField("user", p.Name).Debug("bearer authentication succeeded")
	return true, nil
}

func (a *Bearer) verify(r *Request, token string) (*realm.Principal, error) {
	if strings.HasPrefix(token, realm.TokenPrefix) {
		if a.tokens == nil {
			return nil, realm.ErrInvalidCredentials
		}
		return a.tokens.Verify(r.Context(), token)
	}

	if a.oidc == nil {
		return nil, realm.ErrInvalidCredentials
	}
	p, err := a.oidc.VerifyIDToken(r.Context(), token)
	if err != nil {
		// Signature, audience, and expiry failures all land here; a
		// token that does not verify is a rejected credential, not an
		// infrastructure fault.
		a.Logger.WithError(err).Debug("ID token verification failed")
		return nil, realm.ErrInvalidCredentials
	}
	return p, nil
}

// Challenge writes a 401 with a Bearer challenge.
func (a *Bearer) Challenge(w http.ResponseWriter, _ *Request, login *host.LoginConfig) error {
	name := DefaultRealmName
	if login != nil && login.Realm != "" {
		name = login.Realm
	}
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Bearer realm=%q", name))
	httputil.WriteUnauthorized(w, "valid bearer token required")
	return nil
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(authz) <= len(prefix) || !strings.EqualFold(authz[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(authz[len(prefix):]), true
}
