package gateway

import (
	"net/http"
)

// Default cookie names. Both are overridable through Config.
const (
	DefaultSessionCookie = "FOYERSESSID"
	DefaultSSOCookie     = "FOYERSSO"
)

func (g *Gateway) sessionCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     g.cfg.SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (g *Gateway) ssoCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     g.cfg.SSOCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// expire turns a cookie into its own deletion.
func expire(c *http.Cookie) *http.Cookie {
	c.Value = ""
	c.MaxAge = -1
	return c
}

// deferredWriter delays cookie issuance until the response is actually
// written. Strategies may create sessions and redirect in the same
// breath; the pending cookies have to reach the header block first.
type deferredWriter struct {
	http.ResponseWriter
	before func(w http.ResponseWriter)
	done   bool
}

func (d *deferredWriter) WriteHeader(code int) {
	d.flushPending()
	d.ResponseWriter.WriteHeader(code)
}

func (d *deferredWriter) Write(b []byte) (int, error) {
	d.flushPending()
	return d.ResponseWriter.Write(b)
}

func (d *deferredWriter) flushPending() {
	if d.done {
		return
	}
	d.done = true
	if d.before != nil {
		d.before(d.ResponseWriter)
	}
}
