package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/foyer/pkg/contextkeys"
	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/observability"
	"github.com/platinummonkey/foyer/pkg/realm"
)

// Identity headers injected into upstream requests. Inbound values are
// stripped so clients cannot spoof them.
const (
	HeaderForwardedUser  = "X-Forwarded-User"
	HeaderForwardedRoles = "X-Forwarded-Roles"
	HeaderAuthMethod     = "X-Auth-Method"
)

// upstreamFor builds the handler admitted requests are forwarded to.
// Apps without an upstream URL are served by the built-in handler.
func (g *Gateway) upstreamFor(app *host.App) (http.Handler, error) {
	if app.Upstream == "" {
		return g.builtinHandler(app), nil
	}

	target, err := url.Parse(app.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream %q: %w", app.Upstream, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q: scheme and host are required", app.Upstream)
	}
	return g.proxyHandler(app, target), nil
}

// proxyHandler forwards requests to the app's upstream with the
// application prefix stripped and identity headers attached.
func (g *Gateway) proxyHandler(app *host.App, target *url.URL) http.Handler {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = joinUpstreamPath(target.Path, app.RelativePath(pr.In.URL.Path))
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host
			pr.SetXForwarded()
			setIdentityHeaders(pr.Out)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			g.log.WithError(err).WithFields(map[string]interface{}{
				"app":      app.Name,
				"upstream": target.Host,
			}).Error("upstream request failed")
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		},
	}
	return instrumentUpstream(app, g.metrics, proxy)
}

// joinUpstreamPath joins the upstream base path with the
// application-relative request path.
func joinUpstreamPath(base, rel string) string {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return base + rel
}

// setIdentityHeaders replaces the identity headers on an outbound
// request from the identity the pipeline put in its context.
func setIdentityHeaders(out *http.Request) {
	out.Header.Del(HeaderForwardedUser)
	out.Header.Del(HeaderForwardedRoles)
	out.Header.Del(HeaderAuthMethod)

	p, ok := contextkeys.GetPrincipal(out.Context()).(*realm.Principal)
	if !ok || p == nil {
		return
	}
	out.Header.Set(HeaderForwardedUser, p.Name)
	if len(p.Roles) > 0 {
		out.Header.Set(HeaderForwardedRoles, strings.Join(p.Roles, ","))
	}
	if method := contextkeys.GetAuthMethod(out.Context()); method != "" {
		out.Header.Set(HeaderAuthMethod, method)
	}
}

// upstreamWriter wraps http.ResponseWriter to capture the status code
type upstreamWriter struct {
	http.ResponseWriter
	statusCode int
}

func (uw *upstreamWriter) WriteHeader(code int) {
	uw.statusCode = code
	uw.ResponseWriter.WriteHeader(code)
}

// instrumentUpstream records per-app request counts and latency around
// the forwarding handler.
func instrumentUpstream(app *host.App, metrics *observability.Metrics, next http.Handler) http.Handler {
	if metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		uw := &upstreamWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(uw, r)

		duration := time.Since(start).Seconds()
		metrics.UpstreamRequestsTotal.WithLabelValues(app.Name, strconv.Itoa(uw.statusCode)).Inc()
		metrics.UpstreamRequestDuration.WithLabelValues(app.Name).Observe(duration)
	})
}
