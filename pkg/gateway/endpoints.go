package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/foyer/pkg/audit"
	"github.com/platinummonkey/foyer/pkg/authn"
	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/httputil"
	"github.com/platinummonkey/foyer/pkg/realm"
	"github.com/platinummonkey/foyer/pkg/session"
)

// serveAuthEndpoint dispatches the gateway's own endpoints. It reports
// false for paths it does not own.
func (g *Gateway) serveAuthEndpoint(w http.ResponseWriter, r *http.Request) bool {
	switch r.URL.Path {
	case "/auth/whoami":
		g.serveWhoami(w, r)
	case "/auth/logout":
		g.serveLogout(w, r)
	case "/auth/oidc/callback":
		g.serveOIDCCallback(w, r)
	case "/auth/saml/acs":
		g.serveSAMLACS(w, r)
	case "/auth/saml/metadata":
		g.serveSAMLMetadata(w, r)
	default:
		return false
	}
	return true
}

// resolveIdentity reads the identity cookies without an application
// context, for the gateway's own endpoints.
func (g *Gateway) resolveIdentity(r *http.Request) (p *realm.Principal, method string, sess *session.Session, ssoID string, err error) {
	if c, cerr := r.Cookie(g.cfg.SessionCookie); cerr == nil && c.Value != "" {
		s, gerr := g.sessions.Get(r.Context(), c.Value)
		switch {
		case gerr == nil:
			sess = s
			p = s.Principal()
			method = s.AuthMethod()
		case errors.Is(gerr, session.ErrNotFound):
		default:
			return nil, "", nil, "", gerr
		}
	}

	if g.sso != nil {
		if c, cerr := r.Cookie(g.cfg.SSOCookie); cerr == nil && c.Value != "" {
			if entry, ok := g.sso.Lookup(c.Value); ok {
				ssoID = c.Value
				if p == nil {
					p = entry.Principal()
				}
				if method == "" {
					method = entry.AuthMethod()
				}
			}
		}
	}
	return p, method, sess, ssoID, nil
}

// serveWhoami reports the identity the gateway resolved for the caller.
func (g *Gateway) serveWhoami(w http.ResponseWriter, r *http.Request) {
	p, method, sess, ssoID, err := g.resolveIdentity(r)
	if err != nil {
		g.log.WithError(err).Error("whoami identity resolution failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if p == nil {
		httputil.WriteUnauthorized(w, "not authenticated")
		return
	}

	payload := map[string]interface{}{
		"user":        p.Name,
		"roles":       p.Roles,
		"auth_method": method,
		"sso":         ssoID != "",
	}
	if sess != nil {
		payload["session_id"] = sess.ID()
	}
	httputil.WriteJSON(w, http.StatusOK, payload)
}

// serveLogout ends the caller's single sign-on: the registry entry is
// deregistered and every session that joined it is destroyed, so the
// sign-out takes effect across all applications at once.
func (g *Gateway) serveLogout(w http.ResponseWriter, r *http.Request) {
	p, method, sess, ssoID, err := g.resolveIdentity(r)
	if err != nil {
		g.log.WithError(err).Error("logout identity resolution failed")
		httputil.WriteInternalError(w, err)
		return
	}

	destroyed := 0
	switch {
	case ssoID != "":
		for _, id := range g.sso.Deregister(ssoID) {
			if derr := g.sessions.Destroy(r.Context(), id); derr != nil {
				g.log.WithError(derr).WithField("session", id).Warn("failed to destroy session during sign-out")
				continue
			}
			destroyed++
		}
		g.recordEndpoint(r, audit.EventTypeSSOSignout, p, method, sess, ssoID, map[string]interface{}{
			"sessions_destroyed": destroyed,
		})
	case sess != nil:
		if derr := g.sessions.Destroy(r.Context(), sess.ID()); derr != nil {
			g.log.WithError(derr).WithField("session", sess.ID()).Warn("failed to destroy session during sign-out")
		} else {
			destroyed = 1
		}
		g.recordEndpoint(r, audit.EventTypeLogout, p, method, sess, "", nil)
	}

	http.SetCookie(w, expire(g.sessionCookie("")))
	if g.sso != nil {
		http.SetCookie(w, expire(g.ssoCookie("")))
	}

	if target := r.URL.Query().Get("redirect"); safeRedirect(target) {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "signed out",
		"sessions_destroyed": destroyed,
	})
}

// safeRedirect permits only local absolute paths as post-logout
// targets.
func safeRedirect(target string) bool {
	return strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//")
}

// serveOIDCCallback finishes the authorization code flow the OIDC
// strategy initiated.
func (g *Gateway) serveOIDCCallback(w http.ResponseWriter, r *http.Request) {
	if g.deps.OIDC == nil {
		http.NotFound(w, r)
		return
	}

	sess, err := g.loginSession(r)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if sess == nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "no login in progress")
		return
	}

	if errCode := r.URL.Query().Get("error"); errCode != "" {
		g.log.WithField("error", errCode).Debug("identity provider returned an error")
		g.recordLoginFailure(r, host.MethodOIDC, sess, "identity provider error: "+errCode)
		httputil.WriteUnauthorized(w, "login was not completed")
		return
	}

	// The state note is one-shot: it is consumed here no matter how the
	// callback turns out.
	want, ok := sess.Note(authn.NoteOIDCState)
	sess.RemoveNote(authn.NoteOIDCState)
	state := r.URL.Query().Get("state")
	if !ok || state == "" || state != want {
		g.log.Warn("oidc state mismatch, rejecting callback")
		g.persistLoginSession(r, sess)
		g.recordLoginFailure(r, host.MethodOIDC, sess, "state mismatch")
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "state mismatch")
		return
	}

	p, err := g.deps.OIDC.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		g.log.WithError(err).Warn("oidc code exchange failed")
		g.persistLoginSession(r, sess)
		g.recordLoginFailure(r, host.MethodOIDC, sess, err.Error())
		httputil.WriteUnauthorized(w, "login failed")
		return
	}

	target, _ := sess.Note(authn.NoteOIDCReturn)
	sess.RemoveNote(authn.NoteOIDCReturn)
	g.completeLogin(w, r, sess, p, host.MethodOIDC, target)
}

// serveSAMLACS consumes the identity provider's POSTed assertion and
// finishes the login the SAML strategy initiated.
func (g *Gateway) serveSAMLACS(w http.ResponseWriter, r *http.Request) {
	if g.deps.SAML == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "malformed assertion post")
		return
	}

	sess, err := g.loginSession(r)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if sess == nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "no login in progress")
		return
	}

	want, ok := sess.Note(authn.NoteSAMLRelay)
	sess.RemoveNote(authn.NoteSAMLRelay)
	relay := r.PostForm.Get("RelayState")
	if !ok || relay == "" || relay != want {
		g.log.Warn("saml relay state mismatch, rejecting assertion")
		g.persistLoginSession(r, sess)
		g.recordLoginFailure(r, host.MethodSAML, sess, "relay state mismatch")
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "relay state mismatch")
		return
	}

	p, err := g.deps.SAML.ParseResponse(r.PostForm.Get("SAMLResponse"))
	if err != nil {
		g.log.WithError(err).Warn("saml assertion rejected")
		g.persistLoginSession(r, sess)
		g.recordLoginFailure(r, host.MethodSAML, sess, err.Error())
		httputil.WriteUnauthorized(w, "login failed")
		return
	}

	target, _ := sess.Note(authn.NoteSAMLReturn)
	sess.RemoveNote(authn.NoteSAMLReturn)
	g.completeLogin(w, r, sess, p, host.MethodSAML, target)
}

// serveSAMLMetadata publishes the service provider metadata document.
func (g *Gateway) serveSAMLMetadata(w http.ResponseWriter, r *http.Request) {
	if g.deps.SAML == nil {
		http.NotFound(w, r)
		return
	}
	data, err := g.deps.SAML.MetadataXML()
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// persistLoginSession saves note changes made while rejecting a
// callback, so consumed one-shot state survives a store round trip.
func (g *Gateway) persistLoginSession(r *http.Request, sess *session.Session) {
	sess.Touch()
	if err := g.sessions.Save(r.Context(), sess); err != nil {
		g.log.WithError(err).WithField("session", sess.ID()).Error("failed to save session")
	}
}

// loginSession restores the session a browser login flow stashed its
// state in. A missing or expired session returns nil without error.
func (g *Gateway) loginSession(r *http.Request) (*session.Session, error) {
	c, err := r.Cookie(g.cfg.SessionCookie)
	if err != nil || c.Value == "" {
		return nil, nil
	}
	sess, err := g.sessions.Get(r.Context(), c.Value)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// completeLogin persists a principal delivered by an identity provider
// into the login session, establishes single sign-on, and sends the
// user back where they were headed.
func (g *Gateway) completeLogin(w http.ResponseWriter, r *http.Request, sess *session.Session, p *realm.Principal, method, target string) {
	sess.SetPrincipal(p)
	sess.SetAuthMethod(method)

	ssoID := ""
	if g.sso != nil {
		id := uuid.New().String()
		g.sso.Register(id, p, method)
		if err := g.sso.Associate(id, sess); err != nil {
			g.log.WithError(err).Error("failed to associate login session with sso entry")
		} else {
			ssoID = id
			http.SetCookie(w, g.ssoCookie(id))
		}
	}

	sess.Touch()
	if err := g.sessions.Save(r.Context(), sess); err != nil {
		g.log.WithError(err).WithField("session", sess.ID()).Error("failed to save session after login")
		httputil.WriteInternalError(w, err)
		return
	}

	g.recordEndpoint(r, audit.EventTypeLoginSuccess, p, method, sess, ssoID, nil)
	if ssoID != "" {
		g.recordEndpoint(r, audit.EventTypeSSOEstablish, p, method, sess, ssoID, nil)
	}

	if !safeRedirect(target) {
		target = "/"
	}
	g.log.WithFields(map[string]interface{}{
		"user":   p.Name,
		"method": method,
	}).Info("browser login completed")
	http.Redirect(w, r, target, http.StatusFound)
}

// recordEndpoint writes one audit event for a gateway endpoint.
func (g *Gateway) recordEndpoint(r *http.Request, eventType audit.EventType, p *realm.Principal, method string, sess *session.Session, ssoID string, metadata map[string]interface{}) {
	if g.audit == nil {
		return
	}
	event := audit.NewEvent(r, eventType, audit.EventStatusSuccess)
	event.AuthMethod = method
	if p != nil {
		event.Username = p.Name
	}
	if sess != nil {
		event.SessionID = sess.ID()
	}
	event.SSOID = ssoID
	event.Metadata = metadata
	g.audit.Record(r.Context(), event)
}

func (g *Gateway) recordLoginFailure(r *http.Request, method string, sess *session.Session, cause string) {
	if g.audit == nil {
		return
	}
	event := audit.NewEvent(r, audit.EventTypeLoginFailed, audit.EventStatusFailure)
	event.AuthMethod = method
	if sess != nil {
		event.SessionID = sess.ID()
	}
	event.ErrorMessage = cause
	g.audit.Record(r.Context(), event)
}
