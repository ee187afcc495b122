package authn

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/realm"
)

// FormLoginAction is the application-relative path login forms post
// their credentials to.
const FormLoginAction = "/auth/login"

// Form field names expected on the login POST.
const (
	formUsernameField = "username"
	formPasswordField = "password"
)

// noteFormReturn is the session note holding the URL to return to after
// a successful form login.
const noteFormReturn = "foyer.authn.form.return"

// Form implements form-based login: anonymous users bound for a
// protected resource are redirected to the application's login page,
// and the posted credentials are verified against the realm.
type Form struct {
	Base
	realm realm.Realm
}

// NewForm builds the FORM strategy. The login config must name a login
// page and a realm must be available.
func NewForm(deps Deps, login *host.LoginConfig) (*Form, error) {
	if deps.Realm == nil {
		return nil, fmt.Errorf("FORM login requires a realm")
	}
	if login == nil || login.LoginPage == "" {
		return nil, fmt.Errorf("FORM login requires a login_page")
	}
	return &Form{Base: newBase(deps, "form"), realm: deps.Realm}, nil
}

func formFactory(deps Deps, login *host.LoginConfig) (Authenticator, error) {
	return NewForm(deps, login)
}

// Method returns "FORM".
func (a *Form) Method() string {
	return host.MethodForm
}

// Authenticate handles the three form-login request shapes: requests
// that already carry an identity, credential POSTs to the login action,
// and everything else, which passes through anonymously until a
// constraint triggers the redirect to the login page.
func (a *Form) Authenticate(w http.ResponseWriter, r *Request, login *host.LoginConfig) (bool, error) {
	if p := r.UserPrincipal(); p != nil {
		a.Logger.WithField("user", p.Name).Debug("request already authenticated")
		if err := a.Admit(r.Context(), r, p, ""); err != nil {
			return false, err
		}
		return true, nil
	}

	if r.Method == http.MethodPost && a.relativePath(r) == FormLoginAction {
		return a.handleLogin(w, r, login)
	}

	a.Logger.Debug("no form identity, continuing anonymously")
	return true, nil
}

func (a *Form) handleLogin(w http.ResponseWriter, r *Request, login *host.LoginConfig) (bool, error) {
	if err := r.ParseForm(); err != nil {
		a.Logger.WithError(err).Debug("malformed login form")
		a.redirectFailure(w, r, login)
		return false, nil
	}
	username := r.PostForm.Get(formUsernameField)
	password := r.PostForm.Get(formPasswordField)

	p, err := a.realm.Authenticate(r.Context(), username, password)
	switch {
	case errors.Is(err, realm.ErrInvalidCredentials), errors.Is(err, realm.ErrLockedOut):
		a.Logger.WithField("user", username).Debug("form credentials rejected")
		a.redirectFailure(w, r, login)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("realm failure: %w", err)
	}

	// Form login is meaningless without a session to carry the
	// principal from the login POST to the next request, so the
	// caching policy is forced on for this strategy.
	r.Caching = true
	if err := a.Admit(r.Context(), r, p, host.MethodForm); err != nil {
		return false, err
	}

	target := a.appPath(r) + "/"
	if sess := r.Session(); sess != nil {
		if saved, ok := sess.Note(noteFormReturn); ok {
			target = saved
			sess.RemoveNote(noteFormReturn)
		}
	}
	a.Logger.WithField("user", p.Name).Debug("form authentication succeeded")
	http.Redirect(w, r.Request, target, http.StatusFound)
	return false, nil
}

// Challenge remembers where the user was headed and redirects to the
// login page.
func (a *Form) Challenge(w http.ResponseWriter, r *Request, login *host.LoginConfig) error {
	r.Caching = true
	sess, err := r.EnsureSession(r.Context())
	if err != nil {
		return err
	}
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	sess.SetNote(noteFormReturn, target)

	http.Redirect(w, r.Request, a.page(r, login.LoginPage), http.StatusFound)
	return nil
}

func (a *Form) redirectFailure(w http.ResponseWriter, r *Request, login *host.LoginConfig) {
	page := login.ErrorPage
	if page == "" {
		page = login.LoginPage + "?error=1"
	}
	http.Redirect(w, r.Request, a.page(r, page), http.StatusFound)
}

// page resolves an application-relative page to a gateway path.
func (a *Form) page(r *Request, page string) string {
	return a.appPath(r) + page
}

func (a *Form) appPath(r *Request) string {
	if r.App == nil || r.App.Path == "/" {
		return ""
	}
	return r.App.Path
}

func (a *Form) relativePath(r *Request) string {
	if r.App == nil {
		return r.URL.Path
	}
	return r.App.RelativePath(r.URL.Path)
}
