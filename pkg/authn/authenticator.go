package authn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/observability"
	"github.com/platinummonkey/foyer/pkg/realm"
	"github.com/platinummonkey/foyer/pkg/session"
)

// ErrUnknownMethod is returned when a manifest names a login method no
// factory is registered for.
var ErrUnknownMethod = errors.New("unknown login method")

// Authenticator decides whether a request may continue down the
// pipeline.
type Authenticator interface {
	// Authenticate returns true when the request may proceed to
	// constraint evaluation, with or without an identity. When it
	// returns false the response has already been written (a challenge
	// or a redirect). An error is an infrastructure failure only;
	// rejected credentials never surface as errors.
	Authenticate(w http.ResponseWriter, r *Request, login *host.LoginConfig) (bool, error)

	// Method names the authentication scheme the strategy implements,
	// e.g. "BASIC".
	Method() string
}

// Challenger is implemented by strategies that can ask the client for
// credentials. The pipeline invokes it when an anonymous request hits a
// protected constraint.
type Challenger interface {
	Challenge(w http.ResponseWriter, r *Request, login *host.LoginConfig) error
}

// Associator is the slice of the single sign-on registry that strategies
// touch: joining a session to an existing entry.
type Associator interface {
	Associate(ssoID string, sess *session.Session) error
}

// TokenVerifier resolves an opaque bearer token to a principal.
// Unknown, expired, or revoked tokens return realm.ErrInvalidCredentials.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*realm.Principal, error)
}

// Deps carries the gateway collaborators strategies draw from. Factories
// reject a login config whose strategy needs a dependency that is nil.
type Deps struct {
	// Realm verifies username/password credentials (BASIC, FORM).
	Realm realm.Realm
	// SSO keeps session associations alive; nil when single sign-on is
	// disabled.
	SSO Associator
	// Tokens verifies opaque gateway tokens (BEARER); may be nil.
	Tokens TokenVerifier
	// OIDC is the discovered OpenID Connect client used by the OIDC
	// strategy and BEARER ID-token verification; may be nil.
	OIDC *OIDCClient
	// SAML is the SAML service provider used by the SAML strategy; may
	// be nil.
	SAML *SAMLClient
	// Logger receives strategy debug logging.
	Logger *observability.Logger
}

// Base carries the state and bookkeeping shared by every strategy.
type Base struct {
	SSO    Associator
	Logger *observability.Logger
}

func newBase(deps Deps, strategy string) Base {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return Base{
		SSO:    deps.SSO,
		Logger: logger.WithField("strategy", strategy),
	}
}

// associate keeps the session's membership in its single sign-on entry
// alive. With single sign-on disabled it is a no-op.
func (b *Base) associate(ssoID string, sess *session.Session) error {
	if b.SSO == nil {
		return nil
	}
	if err := b.SSO.Associate(ssoID, sess); err != nil {
		return fmt.Errorf("failed to associate session %s with sso entry: %w", sess.ID(), err)
	}
	return nil
}

// Admit records an established identity on the request and, when
// principal caching is on, persists it to the session and keeps any
// single sign-on association alive. An empty method leaves the recorded
// auth method untouched.
func (b *Base) Admit(ctx context.Context, r *Request, p *realm.Principal, method string) error {
	r.SetUserPrincipal(p)
	if method != "" {
		r.SetAuthMethod(method)
	}
	if !r.Caching {
		return nil
	}
	sess, err := r.EnsureSession(ctx)
	if err != nil {
		return err
	}
	sess.SetPrincipal(p)
	if method != "" {
		sess.SetAuthMethod(method)
	}
	if ssoID := r.SSOID(); ssoID != "" {
		return b.associate(ssoID, sess)
	}
	return nil
}

// Factory builds an authenticator for one application's login config.
type Factory func(deps Deps, login *host.LoginConfig) (Authenticator, error)

// Registry maps login method names to strategy factories. It is an
// explicit object rather than package state, so embedders can carry
// different strategy sets side by side.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry returns a registry with every built-in strategy
// registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(host.MethodNone, noneFactory)
	r.Register(host.MethodBasic, basicFactory)
	r.Register(host.MethodForm, formFactory)
	r.Register(host.MethodBearer, bearerFactory)
	r.Register(host.MethodClientCert, clientCertFactory)
	r.Register(host.MethodOIDC, oidcFactory)
	r.Register(host.MethodSAML, samlFactory)
	return r
}

// Register makes a factory available under the given method name,
// replacing any previous registration. Method names are
// case-insensitive.
func (r *Registry) Register(method string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToUpper(method)] = f
}

// New builds the authenticator for a login config. An empty method
// resolves to NONE.
func (r *Registry) New(deps Deps, login *host.LoginConfig) (Authenticator, error) {
	method := strings.ToUpper(login.Method)
	if method == "" {
		method = host.MethodNone
	}

	r.mu.RLock()
	f, ok := r.factories[method]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, login.Method)
	}
	return f(deps, login)
}

// Methods returns the registered method names, sorted.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods := make([]string, 0, len(r.factories))
	for m := range r.factories {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}
