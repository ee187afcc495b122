package gateway

import (
	"html/template"
	"net/http"

	"github.com/platinummonkey/foyer/pkg/authn"
	"github.com/platinummonkey/foyer/pkg/contextkeys"
	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/httputil"
	"github.com/platinummonkey/foyer/pkg/realm"
)

// builtinHandler serves apps declared without an upstream. FORM apps get
// a functional login page at their configured path; every other request
// is answered with a JSON echo of the identity the pipeline resolved,
// which is what demo manifests and smoke tests point at.
func (g *Gateway) builtinHandler(app *host.App) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rel := app.RelativePath(r.URL.Path)
		if app.Login.Method == host.MethodForm && app.Login.LoginPage != "" && rel == app.Login.LoginPage {
			g.serveLoginPage(w, r, app)
			return
		}
		g.serveIdentityEcho(w, r, app)
	})
}

func (g *Gateway) serveIdentityEcho(w http.ResponseWriter, r *http.Request, app *host.App) {
	payload := map[string]interface{}{
		"app":           app.Name,
		"path":          app.RelativePath(r.URL.Path),
		"authenticated": false,
	}
	if p, ok := contextkeys.GetPrincipal(r.Context()).(*realm.Principal); ok && p != nil {
		payload["authenticated"] = true
		payload["user"] = p.Name
		payload["roles"] = p.Roles
		payload["auth_method"] = contextkeys.GetAuthMethod(r.Context())
	}
	httputil.WriteJSON(w, http.StatusOK, payload)
}

func (g *Gateway) serveLoginPage(w http.ResponseWriter, r *http.Request, app *host.App) {
	tmpl := template.Must(template.New("login").Parse(loginPageTemplate))

	action := app.Path
	if action == "/" {
		action = ""
	}
	action += authn.FormLoginAction

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := tmpl.Execute(w, map[string]interface{}{
		"App":    app.Name,
		"Action": action,
		"Failed": r.URL.Query().Get("error") != "",
	})
	if err != nil {
		httputil.WriteInternalError(w, err)
	}
}

const loginPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Sign in - {{.App}}</title>
  <style>
    body {
      font-family: system-ui, sans-serif;
      display: flex;
      justify-content: center;
      padding-top: 10vh;
      background: #f5f5f5;
    }
    form {
      background: #fff;
      padding: 2rem;
      border-radius: 8px;
      box-shadow: 0 1px 4px rgba(0,0,0,0.15);
      min-width: 280px;
    }
    label { display: block; margin-top: 1rem; }
    input { width: 100%; padding: 0.5rem; margin-top: 0.25rem; }
    button { margin-top: 1.5rem; width: 100%; padding: 0.6rem; }
    .error { color: #b00020; margin-top: 1rem; }
  </style>
</head>
<body>
<form method="POST" action="{{.Action}}">
  <h2>Sign in to {{.App}}</h2>
  {{if .Failed}}<p class="error">Invalid username or password.</p>{{end}}
  <label>Username
    <input type="text" name="username" autocomplete="username" autofocus>
  </label>
  <label>Password
    <input type="password" name="password" autocomplete="current-password">
  </label>
  <button type="submit">Sign in</button>
</form>
</body>
</html>`
