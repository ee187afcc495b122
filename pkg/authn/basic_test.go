package authn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/foyer/pkg/host"
	"github.com/platinummonkey/foyer/pkg/realm"
	"github.com/platinummonkey/foyer/pkg/session"
)

type stubRealm struct {
	users map[string]string
	roles map[string][]string
	err   error
}

func (s *stubRealm) Authenticate(_ context.Context, username, password string) (*realm.Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	if pw, ok := s.users[username]; ok && pw == password {
		return &realm.Principal{Name: username, Roles: s.roles[username]}, nil
	}
	return nil, realm.ErrInvalidCredentials
}

func basicRequest(t *testing.T, mgr session.Manager, username, password string) *Request {
	t.Helper()
	httpReq := httptest.NewRequest(http.MethodGet, "/docs/", nil)
	if username != "" {
		httpReq.SetBasicAuth(username, password)
	}
	return NewRequest(httpReq, nil, mgr, true)
}

func TestBasicRequiresRealm(t *testing.T) {
	_, err := NewBasic(Deps{})
	assert.Error(t, err)
}

func TestBasicNoCredentials(t *testing.T) {
	mgr := newTestManager(t)
	a, err := NewBasic(Deps{Realm: &stubRealm{}})
	require.NoError(t, err)

	req := basicRequest(t, mgr, "", "")
	ok, err := a.Authenticate(httptest.NewRecorder(), req, nil)

	require.NoError(t, err)
	assert.True(t, ok, "missing credentials must pass through anonymously")
	assert.Nil(t, req.UserPrincipal())
	assert.Nil(t, req.Session())
}

func TestBasicSuccess(t *testing.T) {
	mgr := newTestManager(t)
	a, err := NewBasic(Deps{Realm: &stubRealm{
		users: map[string]string{"alice": "wonderland"},
		roles: map[string][]string{"alice": {"editor"}},
	}})
	require.NoError(t, err)

	req := basicRequest(t, mgr, "alice", "wonderland")
	ok, err := a.Authenticate(httptest.NewRecorder(), req, nil)

	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, req.UserPrincipal())
	assert.Equal(t, "alice", req.UserPrincipal().Name)
	assert.Equal(t, host.MethodBasic, req.AuthMethod())

	sess := req.Session()
	require.NotNil(t, sess)
	assert.Equal(t, "alice", sess.Principal().Name)
	assert.Equal(t, host.MethodBasic, sess.AuthMethod())
}

func TestBasicRejected(t *testing.T) {
	mgr := newTestManager(t)
	a, err := NewBasic(Deps{Realm: &stubRealm{users: map[string]string{"alice": "wonderland"}}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := basicRequest(t, mgr, "alice", "wrong")
	ok, err := a.Authenticate(rec, req, &host.LoginConfig{Realm: "corp"})

	require.NoError(t, err, "rejected credentials are not an error")
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `Basic realm="corp"`)
	assert.Nil(t, req.UserPrincipal())
}

func TestBasicRealmFailure(t *testing.T) {
	mgr := newTestManager(t)
	realmErr := errors.New("ldap unreachable")
	a, err := NewBasic(Deps{Realm: &stubRealm{err: realmErr}})
	require.NoError(t, err)

	req := basicRequest(t, mgr, "alice", "wonderland")
	ok, err := a.Authenticate(httptest.NewRecorder(), req, nil)

	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, realmErr)
}

func TestBasicCachedPrincipalSkipsRealm(t *testing.T) {
	mgr := newTestManager(t)
	a, err := NewBasic(Deps{Realm: &stubRealm{err: errors.New("must not be called")}})
	require.NoError(t, err)

	req := basicRequest(t, mgr, "alice", "wonderland")
	req.SetUserPrincipal(&realm.Principal{Name: "alice"})

	ok, err := a.Authenticate(httptest.NewRecorder(), req, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBasicChallengeDefaultRealm(t *testing.T) {
	a, err := NewBasic(Deps{Realm: &stubRealm{}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, a.Challenge(rec, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), DefaultRealmName)
}
