package authn

import (
	"crypto/x509"
	"net/http"

	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/httputil"
	"github.com/platinummonkey/foyer/pkg/realm"
)

// ClientCert authenticates requests by the TLS client certificate the
// connection was established with. Chain verification against the
// configured client CA pool happens in the TLS handshake; this strategy
// only turns an already verified certificate into a principal.
type ClientCert struct {
	Base
}

// NewClientCert builds the CLIENT-CERT strategy.
func NewClientCert(deps Deps) *ClientCert {
	return &ClientCert{Base: newBase(deps, "client-cert")}
}

func clientCertFactory(deps Deps, _ *host.LoginConfig) (Authenticator, error) {
	return NewClientCert(deps), nil
}

// Method returns "CLIENT-CERT".
func (a *ClientCert) Method() string {
	return host.MethodClientCert
}

// Authenticate admits requests bearing a verified client certificate
// with a principal derived from it. Plain connections pass through
// anonymously; the constraint check decides whether that is enough.
func (a *ClientCert) Authenticate(_ http.ResponseWriter, r *Request, _ *host.LoginConfig) (bool, error) {
	if p := r.UserPrincipal(); p != nil {
		a.Logger.WithField("user", p.Name).Debug("request already authenticated")
		if err := a.Admit(r.Context(), r, p, ""); err != nil {
			return false, err
		}
		return true, nil
	}

	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		a.Logger.Debug("no client certificate presented")
		return true, nil
	}

	p := principalFromCert(r.TLS.PeerCertificates[0])
	if err := a.Admit(r.Context(), r, p, host.MethodClientCert); err != nil {
		return false, err
	}
	a.Logger.WithField("user", p.Name).Debug("client certificate accepted")
	return true, nil
}

// Challenge writes a 401. A certificate cannot be negotiated
// mid-connection, so there is no scheme to advertise.
func (a *ClientCert) Challenge(w http.ResponseWriter, _ *Request, _ *host.LoginConfig) error {
	httputil.WriteUnauthorized(w, "client certificate required")
	return nil
}

// principalFromCert maps a certificate subject to a principal: the
// common name (falling back to the full subject) becomes the user name,
// organizational units become roles.
func principalFromCert(cert *x509.Certificate) *realm.Principal {
	name := cert.Subject.CommonName
	if name == "" {
		name = cert.Subject.String()
	}
	return &realm.Principal{
		Name:  name,
		Roles: append([]string(nil), cert.Subject.OrganizationalUnit...),
	}
}
