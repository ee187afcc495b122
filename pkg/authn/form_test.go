package authn

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/realm"
	"github.com/platinummonkey/foyer/pkg/session"
)

func formApp(t *testing.T) *host.App {
	t.Helper()
	app := &host.App{
		Name:     "docs",
		Path:     "/docs",
		Upstream: "http://docs.internal:8080",
		Login: host.LoginConfig{
			Method:    host.MethodForm,
			LoginPage: "/login.html",
			ErrorPage: "/login.html?failed=1",
		},
	}
	require.NoError(t, app.Validate())
	return app
}

func formLogin(app *host.App) *host.LoginConfig {
	return &app.Login
}

func newForm(t *testing.T, r realm.Realm) *Form {
	t.Helper()
	app := formApp(t)
	a, err := NewForm(Deps{Realm: r}, formLogin(app))
	require.NoError(t, err)
	return a
}

func postLogin(app *host.App, mgr session.Manager, username, password string) *Request {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	httpReq := httptest.NewRequest(http.MethodPost, "/docs/auth/login", strings.NewReader(form.Encode()))
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return NewRequest(httpReq, app, mgr, true)
}

func TestFormRequiresLoginPage(t *testing.T) {
	_, err := NewForm(Deps{Realm: &stubRealm{}}, &host.LoginConfig{Method: host.MethodForm})
	assert.Error(t, err)

	_, err = NewForm(Deps{}, &host.LoginConfig{Method: host.MethodForm, LoginPage: "/login.html"})
	assert.Error(t, err, "FORM requires a realm")
}

func TestFormAnonymousPassesThrough(t *testing.T) {
	mgr := newTestManager(t)
	app := formApp(t)
	a := newForm(t, &stubRealm{})

	req := NewRequest(httptest.NewRequest(http.MethodGet, "/docs/page", nil), app, mgr, true)
	ok, err := a.Authenticate(httptest.NewRecorder(), req, formLogin(app))

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, req.Session())
}

func TestFormChallengeRedirectsToLoginPage(t *testing.T) {
	mgr := newTestManager(t)
	app := formApp(t)
	a := newForm(t, &stubRealm{})

	rec := httptest.NewRecorder()
	req := NewRequest(httptest.NewRequest(http.MethodGet, "/docs/secret?tab=2", nil), app, mgr, true)
	require.NoError(t, a.Challenge(rec, req, formLogin(app)))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/docs/login.html", rec.Header().Get("Location"))

	sess := req.Session()
	require.NotNil(t, sess, "challenge must create a session to remember the target")
	saved, ok := sess.Note("foyer.authn.form.return")
	require.True(t, ok)
	assert.Equal(t, "/docs/secret?tab=2", saved)
}

func TestFormLoginSuccess(t *testing.T) {
	mgr := newTestManager(t)
	app := formApp(t)
	a := newForm(t, &stubRealm{users: map[string]string{"alice": "wonderland"}})

	rec := httptest.NewRecorder()
	req := postLogin(app, mgr, "alice", "wonderland")
	ok, err := a.Authenticate(rec, req, formLogin(app))

	require.NoError(t, err)
	assert.False(t, ok, "the redirect is the response")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/docs/", rec.Header().Get("Location"))

	sess := req.Session()
	require.NotNil(t, sess)
	require.NotNil(t, sess.Principal())
	assert.Equal(t, "alice", sess.Principal().Name)
	assert.Equal(t, host.MethodForm, sess.AuthMethod())
}

func TestFormLoginReturnsToSavedTarget(t *testing.T) {
	mgr := newTestManager(t)
	app := formApp(t)
	a := newForm(t, &stubRealm{users: map[string]string{"alice": "wonderland"}})

	// First hop: the challenge stashes the target.
	challengeReq := NewRequest(httptest.NewRequest(http.MethodGet, "/docs/secret", nil), app, mgr, true)
	require.NoError(t, a.Challenge(httptest.NewRecorder(), challengeReq, formLogin(app)))
	sess := challengeReq.Session()
	require.NotNil(t, sess)

	// Second hop: the login POST rides the same session.
	rec := httptest.NewRecorder()
	loginReq := postLogin(app, mgr, "alice", "wonderland")
	loginReq.AttachSession(sess)
	ok, err := a.Authenticate(rec, loginReq, formLogin(app))

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "/docs/secret", rec.Header().Get("Location"))
	_, still := sess.Note("foyer.authn.form.return")
	assert.False(t, still, "the saved target is consumed by the login")
}

func TestFormLoginRejected(t *testing.T) {
	mgr := newTestManager(t)
	app := formApp(t)
	a := newForm(t, &stubRealm{users: map[string]string{"alice": "wonderland"}})

	rec := httptest.NewRecorder()
	req := postLogin(app, mgr, "alice", "wrong")
	ok, err := a.Authenticate(rec, req, formLogin(app))

	require.NoError(t, err, "rejected credentials are not an error")
	assert.False(t, ok)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/docs/login.html?failed=1", rec.Header().Get("Location"))
}

func TestFormLoginRealmFailure(t *testing.T) {
	mgr := newTestManager(t)
	app := formApp(t)
	realmErr := errors.New("db down")
	a := newForm(t, &stubRealm{err: realmErr})

	req := postLogin(app, mgr, "alice", "wonderland")
	ok, err := a.Authenticate(httptest.NewRecorder(), req, formLogin(app))

	assert.False(t, ok)
	assert.ErrorIs(t, err, realmErr)
}
