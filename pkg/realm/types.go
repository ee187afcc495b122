package realm

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredentials is returned when a username/password pair does
	// not match a known user. It is the only "rejected" error in this
	// package; everything else is an infrastructure failure.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLockedOut is returned when an account has exceeded the failed
	// attempt limit and is temporarily locked.
	ErrLockedOut = errors.New("account temporarily locked")
)

// Principal represents an authenticated identity and the roles granted to
// it. Principals are created by a Realm or an external identity provider
// and treated as immutable afterwards: the rest of the system only reads
// and re-attaches them.
type Principal struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the principal was granted the given role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Realm verifies user credentials and resolves granted roles.
type Realm interface {
	// Authenticate verifies the username/password pair and returns the
	// matching principal. It returns ErrInvalidCredentials when the pair
	// does not match and ErrLockedOut when the account is locked; any
	// other error indicates an infrastructure failure.
	Authenticate(ctx context.Context, username, password string) (*Principal, error)
}
