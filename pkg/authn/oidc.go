package authn

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/realm"
)

// Session notes carrying OIDC login state across the authorization
// redirect. The gateway's callback endpoint consumes them.
const (
	NoteOIDCState  = "foyer.authn.oidc.state"
	NoteOIDCReturn = "foyer.authn.oidc.return"
)

// OIDCConfig configures the gateway's OpenID Connect relying party.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	// RedirectURL is the gateway's externally reachable callback,
	// e.g. https://gateway.example.com/auth/oidc/callback.
	RedirectURL string
	// Scopes defaults to "openid profile email".
	Scopes []string
	// UsernameClaim names the claim used as the principal name.
	// Defaults to "preferred_username", falling back to "email" and
	// finally the token subject.
	UsernameClaim string
	// RolesClaim optionally names a claim holding role names.
	RolesClaim string
}

// Validate fills defaults and reports missing fields.
func (c *OIDCConfig) Validate() error {
	if c.IssuerURL == "" {
		return fmt.Errorf("oidc: issuer URL is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("oidc: client ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("oidc: client secret is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("oidc: redirect URL is required")
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	hasOpenID := false
	for _, s := range c.Scopes {
		if s == oidc.ScopeOpenID {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("oidc: the %q scope is required", oidc.ScopeOpenID)
	}
	if c.UsernameClaim == "" {
		c.UsernameClaim = "preferred_username"
	}
	return nil
}

// OIDCClient is the discovered relying-party client shared by the OIDC
// and BEARER strategies and the gateway's callback endpoint.
type OIDCClient struct {
	cfg      OIDCConfig
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth2   oauth2.Config
}

// NewOIDCClient validates the config and runs issuer discovery.
func NewOIDCClient(ctx context.Context, cfg OIDCConfig) (*OIDCClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", cfg.IssuerURL, err)
	}

	return &OIDCClient{
		cfg:      cfg,
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
	}, nil
}

// AuthCodeURL returns the IdP authorization URL for one login attempt.
func (c *OIDCClient) AuthCodeURL(state string) string {
	return c.oauth2.AuthCodeURL(state)
}

// Exchange redeems an authorization code and returns the principal
// carried by the verified ID token.
func (c *OIDCClient) Exchange(ctx context.Context, code string) (*realm.Principal, error) {
	token, err := c.oauth2.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("token response carries no id_token")
	}
	return c.VerifyIDToken(ctx, rawIDToken)
}

// VerifyIDToken verifies a raw ID token and maps its claims to a
// principal.
func (c *OIDCClient) VerifyIDToken(ctx context.Context, rawIDToken string) (*realm.Principal, error) {
	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	name := stringClaim(claims, c.cfg.UsernameClaim)
	if name == "" {
		name = stringClaim(claims, "email")
	}
	if name == "" {
		name = idToken.Subject
	}
	if name == "" {
		return nil, fmt.Errorf("ID token carries no usable identity claim")
	}

	p := &realm.Principal{Name: name}
	if c.cfg.RolesClaim != "" {
		p.Roles = arrayClaim(claims, c.cfg.RolesClaim)
	}
	return p, nil
}

func stringClaim(claims map[string]interface{}, name string) string {
	if name == "" {
		return ""
	}
	s, _ := claims[name].(string)
	return s
}

func arrayClaim(claims map[string]interface{}, name string) []string {
	switch v := claims[name].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// OIDC implements browser login through an OpenID Connect provider. The
// strategy only initiates the flow; the gateway's callback endpoint
// finishes it and persists the principal.
type OIDC struct {
	Base
	client *OIDCClient
}

// NewOIDC builds the OIDC strategy.
func NewOIDC(deps Deps) (*OIDC, error) {
	if deps.OIDC == nil {
		return nil, fmt.Errorf("OIDC login requires a configured OIDC provider")
	}
	return &OIDC{Base: newBase(deps, "oidc"), client: deps.OIDC}, nil
}

func oidcFactory(deps Deps, _ *host.LoginConfig) (Authenticator, error) {
	return NewOIDC(deps)
}

// Method returns "OIDC".
func (a *OIDC) Method() string {
	return host.MethodOIDC
}

// Authenticate honors identities established earlier (a cached session,
// single sign-on, or the callback endpoint) and otherwise passes the
// request through anonymously until a constraint triggers the redirect
// to the identity provider.
func (a *OIDC) Authenticate(_ http.ResponseWriter, r *Request, _ *host.LoginConfig) (bool, error) {
	if p := r.UserPrincipal(); p != nil {
		a.Logger.WithField("user", p.Name).Debug("request already authenticated")
		if err := a.Admit(r.Context(), r, p, ""); err != nil {
			return false, err
		}
		return true, nil
	}

	a.Logger.Debug("no OIDC identity, continuing anonymously")
	return true, nil
}

// Challenge stores the login state in the session and redirects to the
// identity provider's authorization endpoint.
func (a *OIDC) Challenge(w http.ResponseWriter, r *Request, _ *host.LoginConfig) error {
	r.Caching = true
	sess, err := r.EnsureSession(r.Context())
	if err != nil {
		return err
	}

	state := uuid.New().String()
	sess.SetNote(NoteOIDCState, state)

	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	sess.SetNote(NoteOIDCReturn, target)

	http.Redirect(w, r.Request, a.client.AuthCodeURL(state), http.StatusFound)
	return nil
}
