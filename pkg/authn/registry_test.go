package authn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/foyer/pkg/host"
)

func TestDefaultRegistryMethods(t *testing.T) {
	reg := NewDefaultRegistry()
	assert.Equal(t, []string{
		host.MethodBasic,
		host.MethodBearer,
		host.MethodClientCert,
		host.MethodForm,
		host.MethodNone,
		host.MethodOIDC,
		host.MethodSAML,
	}, reg.Methods())
}

func TestRegistryEmptyMethodIsNone(t *testing.T) {
	reg := NewDefaultRegistry()
	a, err := reg.New(Deps{}, &host.LoginConfig{})
	require.NoError(t, err)
	assert.Equal(t, host.MethodNone, a.Method())
}

func TestRegistryCaseInsensitive(t *testing.T) {
	reg := NewDefaultRegistry()
	a, err := reg.New(Deps{Realm: &stubRealm{}}, &host.LoginConfig{Method: "basic"})
	require.NoError(t, err)
	assert.Equal(t, host.MethodBasic, a.Method())
}

func TestRegistryUnknownMethod(t *testing.T) {
	reg := NewDefaultRegistry()
	_, err := reg.New(Deps{}, &host.LoginConfig{Method: "KERBEROS"})
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestRegistryFactoryErrorsPropagate(t *testing.T) {
	reg := NewDefaultRegistry()

	_, err := reg.New(Deps{}, &host.LoginConfig{Method: host.MethodBasic})
	assert.Error(t, err, "BASIC without a realm must fail at wiring time")

	_, err = reg.New(Deps{}, &host.LoginConfig{Method: host.MethodOIDC})
	assert.Error(t, err, "OIDC without a provider must fail at wiring time")

	_, err = reg.New(Deps{}, &host.LoginConfig{Method: host.MethodSAML})
	assert.Error(t, err, "SAML without a provider must fail at wiring time")
}

func TestRegistryCustomStrategy(t *testing.T) {
	reg := NewRegistry()
	reg.Register("custom", func(deps Deps, _ *host.LoginConfig) (Authenticator, error) {
		return NewNone(deps), nil
	})

	a, err := reg.New(Deps{}, &host.LoginConfig{Method: "CUSTOM"})
	require.NoError(t, err)
	assert.Equal(t, host.MethodNone, a.Method())

	_, err = reg.New(Deps{}, &host.LoginConfig{Method: host.MethodBasic})
	assert.ErrorIs(t, err, ErrUnknownMethod, "registries are independent")
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	a.Register("only-a", func(deps Deps, _ *host.LoginConfig) (Authenticator, error) {
		return NewNone(deps), nil
	})

	_, err := b.New(Deps{}, &host.LoginConfig{Method: "only-a"})
	assert.ErrorIs(t, err, ErrUnknownMethod)
}
