package authn

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/realm"
)

// Session notes carrying SAML login state across the IdP redirect. The
// gateway's assertion consumer endpoint consumes them.
const (
	NoteSAMLRelay  = "foyer.authn.saml.relay"
	NoteSAMLReturn = "foyer.authn.saml.return"
)

// SAMLConfig configures the gateway's SAML 2.0 service provider.
type SAMLConfig struct {
	// IdPSSOURL is the identity provider's single sign-on endpoint.
	IdPSSOURL string
	// IdPIssuer is the identity provider's entity ID.
	IdPIssuer string
	// IdPCertificate is the PEM-encoded IdP signing certificate.
	IdPCertificate string
	// SPBaseURL is the gateway's externally reachable base URL; the
	// assertion consumer and metadata endpoints hang off it.
	SPBaseURL string
	// SPCertificate and SPPrivateKey (PEM) sign AuthnRequests when
	// SignRequests is set.
	SPCertificate string
	SPPrivateKey  string
	SignRequests  bool
	// NameIDFormat overrides the requested NameID format.
	NameIDFormat string
	// UsernameAttribute names the assertion attribute used as the
	// principal name; the assertion NameID is the fallback.
	UsernameAttribute string
	// RolesAttribute names a multi-valued assertion attribute holding
	// role names; optional.
	RolesAttribute string
}

// Validate reports missing required fields.
func (c *SAMLConfig) Validate() error {
	if c.IdPSSOURL == "" {
		return fmt.Errorf("saml: IdP SSO URL is required")
	}
	if c.IdPIssuer == "" {
		return fmt.Errorf("saml: IdP issuer is required")
	}
	if c.IdPCertificate == "" {
		return fmt.Errorf("saml: IdP certificate is required")
	}
	if c.SPBaseURL == "" {
		return fmt.Errorf("saml: SP base URL is required")
	}
	if c.SignRequests && (c.SPCertificate == "" || c.SPPrivateKey == "") {
		return fmt.Errorf("saml: request signing requires an SP certificate and private key")
	}
	return nil
}

// SAMLClient wraps the service provider shared by the SAML strategy and
// the gateway's assertion consumer endpoint.
type SAMLClient struct {
	cfg SAMLConfig
	sp  *saml2.SAMLServiceProvider
}

// NewSAMLClient validates the config and assembles the service
// provider.
func NewSAMLClient(cfg SAMLConfig) (*SAMLClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	certBlock, _ := pem.Decode([]byte(cfg.IdPCertificate))
	if certBlock == nil {
		return nil, fmt.Errorf("saml: failed to decode IdP certificate PEM")
	}
	idpCert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("saml: failed to parse IdP certificate: %w", err)
	}
	certStore := dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{idpCert},
	}

	var keyStore dsig.X509KeyStore
	if cfg.SPPrivateKey != "" {
		keyBlock, _ := pem.Decode([]byte(cfg.SPPrivateKey))
		if keyBlock == nil {
			return nil, fmt.Errorf("saml: failed to decode SP private key PEM")
		}
		privateKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
		if err != nil {
			pkcs8Key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
			if err != nil {
				return nil, fmt.Errorf("saml: failed to parse SP private key: %w", err)
			}
			rsaKey, ok := pkcs8Key.(*rsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("saml: SP private key is not RSA")
			}
			privateKey = rsaKey
		}
		// The key store wants DER; accept PEM input like the IdP side.
		certDER := []byte(cfg.SPCertificate)
		if spBlock, _ := pem.Decode(certDER); spBlock != nil {
			certDER = spBlock.Bytes
		}
		keyStore = &dsig.TLSCertKeyStore{
			PrivateKey:  privateKey,
			Certificate: [][]byte{certDER},
		}
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.IdPSSOURL,
		IdentityProviderIssuer:      cfg.IdPIssuer,
		ServiceProviderIssuer:       cfg.SPBaseURL + "/auth/saml/metadata",
		AssertionConsumerServiceURL: cfg.SPBaseURL + "/auth/saml/acs",
		SignAuthnRequests:           cfg.SignRequests,
		AudienceURI:                 cfg.SPBaseURL,
		IDPCertificateStore:         &certStore,
		SPKeyStore:                  keyStore,
	}
	if cfg.NameIDFormat != "" {
		sp.NameIdFormat = cfg.NameIDFormat
	}

	return &SAMLClient{cfg: cfg, sp: sp}, nil
}

// AuthURL builds the IdP authorization URL for one login attempt.
func (c *SAMLClient) AuthURL(relayState string) (string, error) {
	authURL, err := c.sp.BuildAuthURL(relayState)
	if err != nil {
		return "", fmt.Errorf("saml: failed to build auth URL: %w", err)
	}
	return authURL, nil
}

// ParseResponse validates a base64-encoded SAMLResponse and maps the
// assertion to a principal.
func (c *SAMLClient) ParseResponse(encodedResponse string) (*realm.Principal, error) {
	info, err := c.sp.RetrieveAssertionInfo(encodedResponse)
	if err != nil {
		return nil, fmt.Errorf("saml: failed to validate assertion: %w", err)
	}
	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("saml: assertion is outside its validity window")
		}
		if info.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("saml: assertion is not for this audience")
		}
	}

	name := info.NameID
	var roles []string
	for _, attr := range info.Values {
		switch attr.Name {
		case c.cfg.UsernameAttribute:
			if len(attr.Values) > 0 && attr.Values[0].Value != "" {
				name = attr.Values[0].Value
			}
		case c.cfg.RolesAttribute:
			for _, v := range attr.Values {
				if v.Value != "" {
					roles = append(roles, v.Value)
				}
			}
		}
	}
	if name == "" {
		return nil, fmt.Errorf("saml: assertion carries no usable identity")
	}

	return &realm.Principal{Name: name, Roles: roles}, nil
}

// MetadataXML renders the service provider metadata document.
func (c *SAMLClient) MetadataXML() ([]byte, error) {
	meta, err := c.sp.Metadata()
	if err != nil {
		return nil, fmt.Errorf("saml: failed to build metadata: %w", err)
	}
	out, err := xml.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("saml: failed to marshal metadata: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// SAML implements browser login through a SAML 2.0 identity provider.
// The strategy only initiates the flow; the gateway's assertion
// consumer endpoint finishes it and persists the principal.
type SAML struct {
	Base
	client *SAMLClient
}

// NewSAML builds the SAML strategy.
func NewSAML(deps Deps) (*SAML, error) {
	if deps.SAML == nil {
		return nil, fmt.Errorf("SAML login requires a configured identity provider")
	}
	return &SAML{Base: newBase(deps, "saml"), client: deps.SAML}, nil
}

func samlFactory(deps Deps, _ *host.LoginConfig) (Authenticator, error) {
	return NewSAML(deps)
}

// Method returns "SAML".
func (a *SAML) Method() string {
	return host.MethodSAML
}

// Authenticate honors identities established earlier and otherwise
// passes the request through anonymously until a constraint triggers
// the redirect to the identity provider.
func (a *SAML) Authenticate(_ http.ResponseWriter, r *Request, _ *host.LoginConfig) (bool, error) {
	if p := r.UserPrincipal(); p != nil {
		a.Logger.WithField("user", p.Name).Debug("request already authenticated")
		if err := a.Admit(r.Context(), r, p, ""); err != nil {
			return false, err
		}
		return true, nil
	}

	a.Logger.Debug("no SAML identity, continuing anonymously")
	return true, nil
}

// Challenge stores the login state in the session and redirects to the
// identity provider.
func (a *SAML) Challenge(w http.ResponseWriter, r *Request, _ *host.LoginConfig) error {
	r.Caching = true
	sess, err := r.EnsureSession(r.Context())
	if err != nil {
		return err
	}

	relay := uuid.New().String()
	sess.SetNote(NoteSAMLRelay, relay)

	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	sess.SetNote(NoteSAMLReturn, target)

	authURL, err := a.client.AuthURL(relay)
	if err != nil {
		return err
	}
	http.Redirect(w, r.Request, authURL, http.StatusFound)
	return nil
}
