package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/platinummonkey/foyer/pkg/audit"
	"github.com/platinummonkey/foyer/pkg/authn"
	"github.com/platinummonkey/foyer/pkg/contextkeys"
	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/httputil"
	"github.com/platinummonkey/foyer/pkg/observability"
	"github.com/platinummonkey/foyer/pkg/session"
	"github.com/platinummonkey/foyer/pkg/sso"
)

// Config wires the gateway's collaborators together.
type Config struct {
	// Apps is the initial application set. Reload swaps it later.
	Apps []*host.App

	// Sessions is the session store behind the session cookie. Required.
	Sessions session.Manager

	// SSO is the single sign-on registry; nil disables single sign-on.
	SSO *sso.Registry

	// Strategies maps login methods to authenticators. Defaults to the
	// built-in set.
	Strategies *authn.Registry

	// Deps carries the collaborators handed to each strategy. Deps.SSO
	// and Deps.Logger are filled from this config when unset.
	Deps authn.Deps

	// CachePrincipals is the gateway-wide default for persisting
	// authenticated principals into sessions. Apps may override it.
	CachePrincipals bool

	// SessionCookie and SSOCookie override the default cookie names.
	SessionCookie string
	SSOCookie     string
	// CookieSecure marks issued cookies Secure.
	CookieSecure bool

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Audit   *audit.Recorder
}

// Gateway is the authenticating reverse proxy. It implements
// http.Handler for the proxied surface; admin concerns (metrics,
// health, the audit API) belong on a separate listener.
type Gateway struct {
	cfg      Config
	log      *observability.Logger
	metrics  *observability.Metrics
	audit    *audit.Recorder
	sessions session.Manager
	sso      *sso.Registry

	strategies *authn.Registry
	deps       authn.Deps

	mu       sync.RWMutex
	apps     []*host.App
	handlers map[string]*appHandler
}

// appHandler is one hosted application with its strategy and upstream
// bound.
type appHandler struct {
	app      *host.App
	auth     authn.Authenticator
	upstream http.Handler
}

// New builds a gateway from the config and loads the initial
// application set.
func New(cfg Config) (*Gateway, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("gateway: a session manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = DefaultSessionCookie
	}
	if cfg.SSOCookie == "" {
		cfg.SSOCookie = DefaultSSOCookie
	}
	if cfg.Strategies == nil {
		cfg.Strategies = authn.NewDefaultRegistry()
	}
	if cfg.Deps.SSO == nil && cfg.SSO != nil {
		cfg.Deps.SSO = cfg.SSO
	}
	if cfg.Deps.Logger == nil {
		cfg.Deps.Logger = cfg.Logger
	}

	g := &Gateway{
		cfg:        cfg,
		log:        cfg.Logger.WithField("component", "gateway"),
		metrics:    cfg.Metrics,
		audit:      cfg.Audit,
		sessions:   cfg.Sessions,
		sso:        cfg.SSO,
		strategies: cfg.Strategies,
		deps:       cfg.Deps,
	}

	if err := g.Reload(cfg.Apps); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload swaps the hosted application set. The manifest watcher calls
// it on every manifest change; a bad set leaves the previous one
// serving.
func (g *Gateway) Reload(apps []*host.App) error {
	for _, app := range apps {
		if err := app.Validate(); err != nil {
			return err
		}
	}
	if err := host.ValidateSet(apps); err != nil {
		return err
	}

	handlers := make(map[string]*appHandler, len(apps))
	for _, app := range apps {
		auth, err := g.strategies.New(g.deps, &app.Login)
		if err != nil {
			return fmt.Errorf("app %q: %w", app.Name, err)
		}
		upstream, err := g.upstreamFor(app)
		if err != nil {
			return fmt.Errorf("app %q: %w", app.Name, err)
		}
		handlers[app.Path] = &appHandler{app: app, auth: auth, upstream: upstream}
	}

	sorted := make([]*host.App, len(apps))
	copy(sorted, apps)
	sortByPrefix(sorted)

	g.mu.Lock()
	g.apps = sorted
	g.handlers = handlers
	g.mu.Unlock()

	g.log.WithField("apps", len(apps)).Info("application set loaded")
	return nil
}

// Apps returns the currently hosted applications.
func (g *Gateway) Apps() []*host.App {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*host.App, len(g.apps))
	copy(out, g.apps)
	return out
}

func sortByPrefix(apps []*host.App) {
	// Longest prefix first, the order AppFor expects.
	for i := 1; i < len(apps); i++ {
		for j := i; j > 0 && len(apps[j].Path) > len(apps[j-1].Path); j-- {
			apps[j], apps[j-1] = apps[j-1], apps[j]
		}
	}
}

func (g *Gateway) handlerFor(path string) *appHandler {
	g.mu.RLock()
	defer g.mu.RUnlock()
	app := host.AppFor(g.apps, path)
	if app == nil {
		return nil
	}
	return g.handlers[app.Path]
}

// ServeHTTP runs the request pipeline.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Reserved gateway endpoints shadow application paths. Unclaimed
	// /auth/ paths still fall through so app-relative login actions on a
	// root-mounted app keep working.
	if strings.HasPrefix(r.URL.Path, "/auth/") && g.serveAuthEndpoint(w, r) {
		return
	}

	h := g.handlerFor(r.URL.Path)
	if h == nil {
		http.NotFound(w, r)
		return
	}
	g.serveApp(w, r, h)
}

func (g *Gateway) serveApp(w http.ResponseWriter, r *http.Request, h *appHandler) {
	app := h.app
	req := authn.NewRequest(r, app, g.sessions, app.CachingEnabled(g.cfg.CachePrincipals))

	clearSSO, err := g.restore(req)
	if err != nil {
		g.decision(req, audit.EventTypeDecisionError, audit.EventStatusFailure, "error", err)
		g.serverError(w, req, err)
		return
	}

	dw := &deferredWriter{ResponseWriter: w}
	dw.before = func(hw http.ResponseWriter) {
		g.finishIdentity(hw, req, clearSSO)
	}

	ok, err := h.auth.Authenticate(dw, req, &app.Login)
	if err != nil {
		g.decision(req, audit.EventTypeDecisionError, audit.EventStatusFailure, "error", err)
		g.serverError(dw, req, err)
		g.saveSession(req)
		return
	}
	if !ok {
		// The strategy wrote the response itself: a post-login redirect
		// when it established an identity, a failure redirect otherwise.
		if req.UserPrincipal() != nil {
			g.decision(req, audit.EventTypeLoginSuccess, audit.EventStatusSuccess, "success", nil)
		} else {
			g.decision(req, audit.EventTypeLoginFailed, audit.EventStatusFailure, "challenge", nil)
		}
		g.saveSession(req)
		return
	}

	rel := app.RelativePath(r.URL.Path)
	if c := app.ConstraintFor(rel, r.Method); c != nil && !c.Satisfied(req.UserPrincipal()) && !loginResource(app, rel) {
		if req.UserPrincipal() == nil {
			if challenger, canChallenge := h.auth.(authn.Challenger); canChallenge {
				if g.metrics != nil {
					g.metrics.AuthChallengesTotal.WithLabelValues(app.Name, h.auth.Method()).Inc()
				}
				g.decision(req, audit.EventTypeDecisionChallenge, audit.EventStatusSuccess, "challenge", nil)
				if err := challenger.Challenge(dw, req, &app.Login); err != nil {
					g.serverError(dw, req, err)
				}
				g.saveSession(req)
				return
			}
		}
		g.decision(req, audit.EventTypeDecisionDenied, audit.EventStatusDenied, "denied", nil)
		g.saveSession(req)
		httputil.WriteForbidden(dw, "access denied")
		return
	}

	if req.UserPrincipal() != nil {
		g.decision(req, audit.EventTypeDecisionAllow, audit.EventStatusSuccess, "success", nil)
	} else {
		g.decision(req, audit.EventTypeDecisionAnonymous, audit.EventStatusSuccess, "anonymous", nil)
	}
	g.saveSession(req)

	ctx := contextkeys.WithAppName(r.Context(), app.Name)
	if p := req.UserPrincipal(); p != nil {
		ctx = contextkeys.WithPrincipal(ctx, p)
		ctx = contextkeys.WithAuthMethod(ctx, req.AuthMethod())
	}
	h.upstream.ServeHTTP(dw, req.WithContext(ctx))

	// An upstream that writes nothing still owes the client its cookies.
	dw.flushPending()
}

// loginResource reports whether the path is part of the form-login
// machinery itself, which stays reachable no matter what the
// application's constraints say, or the flow could never complete.
func loginResource(app *host.App, rel string) bool {
	if app.Login.Method != host.MethodForm {
		return false
	}
	if rel == authn.FormLoginAction {
		return true
	}
	page := func(p string) string {
		if i := strings.IndexByte(p, '?'); i >= 0 {
			return p[:i]
		}
		return p
	}
	return (app.Login.LoginPage != "" && rel == page(app.Login.LoginPage)) ||
		(app.Login.ErrorPage != "" && rel == page(app.Login.ErrorPage))
}

// restore resolves the identity cookies against their stores. Dead
// cookies are cleared, never errors; only store failures propagate.
func (g *Gateway) restore(req *authn.Request) (clearSSO bool, err error) {
	if c, cerr := req.Cookie(g.cfg.SessionCookie); cerr == nil && c.Value != "" {
		sess, gerr := g.sessions.Get(req.Context(), c.Value)
		switch {
		case gerr == nil:
			req.AttachSession(sess)
			if req.Caching {
				if p := sess.Principal(); p != nil {
					req.SetUserPrincipal(p)
					req.SetAuthMethod(sess.AuthMethod())
				}
			}
		case errors.Is(gerr, session.ErrNotFound):
			// Expired or revoked; a fresh cookie goes out if the request
			// ends up creating a new session.
		default:
			return false, fmt.Errorf("session lookup failed: %w", gerr)
		}
	}

	if g.sso == nil {
		return false, nil
	}
	c, cerr := req.Cookie(g.cfg.SSOCookie)
	if cerr != nil || c.Value == "" {
		return false, nil
	}
	entry, ok := g.sso.Lookup(c.Value)
	if !ok {
		return true, nil
	}
	req.SetSSOID(c.Value)
	if req.UserPrincipal() == nil {
		req.SetUserPrincipal(entry.Principal())
	}
	if req.AuthMethod() == "" {
		req.SetAuthMethod(entry.AuthMethod())
	}
	return false, nil
}

// finishIdentity runs once per request, just before the first response
// byte. A request that authenticated fresh gets its single sign-on
// entry here, and any cookies the pipeline owes the client go out.
func (g *Gateway) finishIdentity(w http.ResponseWriter, req *authn.Request, clearSSO bool) {
	switch {
	case g.sso != nil && req.UserPrincipal() != nil && req.SSOID() == "" && req.Session() != nil:
		id := uuid.New().String()
		g.sso.Register(id, req.UserPrincipal(), req.AuthMethod())
		if err := g.sso.Associate(id, req.Session()); err != nil {
			g.log.WithError(err).Error("failed to associate fresh session with sso entry")
		} else {
			req.SetSSOID(id)
			http.SetCookie(w, g.ssoCookie(id))
			g.recordSSO(req, audit.EventTypeSSOEstablish, id)
		}
	case clearSSO:
		http.SetCookie(w, expire(g.ssoCookie("")))
	}

	if req.SessionCreated() {
		http.SetCookie(w, g.sessionCookie(req.Session().ID()))
	}
}

// saveSession persists any session attached to the request.
func (g *Gateway) saveSession(req *authn.Request) {
	sess := req.Session()
	if sess == nil {
		return
	}
	sess.Touch()
	if err := g.sessions.Save(req.Context(), sess); err != nil {
		g.log.WithError(err).WithField("session", sess.ID()).Error("failed to save session")
	}
}

func (g *Gateway) serverError(w http.ResponseWriter, req *authn.Request, err error) {
	log := observability.UpdateLoggerWithTraceContext(req.Context(), g.log)
	log.WithError(err).WithFields(map[string]interface{}{
		"app":  req.App.Name,
		"path": req.URL.Path,
	}).Error("request pipeline failed")
	httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// decision records one pipeline outcome in the metrics and the audit
// trail.
func (g *Gateway) decision(req *authn.Request, eventType audit.EventType, status audit.EventStatus, outcome string, cause error) {
	method := req.AuthMethod()
	if method == "" {
		method = req.App.Login.Method
	}

	if g.metrics != nil {
		g.metrics.AuthDecisionsTotal.WithLabelValues(req.App.Name, method, outcome).Inc()
	}

	if g.audit == nil {
		return
	}
	event := audit.NewEvent(req.Request, eventType, status)
	event.App = req.App.Name
	event.AuthMethod = method
	if p := req.UserPrincipal(); p != nil {
		event.Username = p.Name
	}
	if sess := req.Session(); sess != nil {
		event.SessionID = sess.ID()
	}
	event.SSOID = req.SSOID()
	if cause != nil {
		event.ErrorMessage = cause.Error()
	}
	g.audit.Record(req.Context(), event)
}

func (g *Gateway) recordSSO(req *authn.Request, eventType audit.EventType, ssoID string) {
	if g.audit == nil {
		return
	}
	event := audit.NewEvent(req.Request, eventType, audit.EventStatusSuccess)
	event.App = req.App.Name
	event.AuthMethod = req.AuthMethod()
	if p := req.UserPrincipal(); p != nil {
		event.Username = p.Name
	}
	if sess := req.Session(); sess != nil {
		event.SessionID = sess.ID()
	}
	event.SSOID = ssoID
	g.audit.Record(req.Context(), event)
}
