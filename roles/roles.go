// Package roles implements role based access control for the ledger: a
// fixed admin root role plus named roles derived by hashing their
// canonical name.
package roles

import (
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bridgemint/bridgemint-go/types"
)

var (
	// Admin is the root role. It administers every role, including itself.
	Admin = types.RoleID{}
	// Depositor authorizes bridge deposit minting.
	Depositor = Derive("DEPOSITOR_ROLE")
)

// Derive returns the role ID for a canonical role name (keccak-256 of
// the name).
func Derive(name string) types.RoleID {
	return types.RoleID(crypto.Keccak256Hash([]byte(name)))
}

// Gate tracks role membership. Membership only changes through explicit
// grant, revoke or renounce calls; no ledger operation revokes a role
// implicitly.
type Gate struct {
	mu      sync.RWMutex
	members map[types.RoleID]map[types.Principal]struct{}
}

// NewGate creates a gate with admin as the initial holder of the Admin
// role.
func NewGate(admin types.Principal) (*Gate, error) {
	if admin == (types.Principal{}) {
		return nil, types.ErrInvalidArgumentf("initial admin must not be the zero address")
	}
	g := &Gate{members: map[types.RoleID]map[types.Principal]struct{}{}}
	g.add(Admin, admin)
	return g, nil
}

func (g *Gate) add(role types.RoleID, principal types.Principal) {
	m, ok := g.members[role]
	if !ok {
		m = map[types.Principal]struct{}{}
		g.members[role] = m
	}
	m[principal] = struct{}{}
}

func (g *Gate) HasRole(role types.RoleID, principal types.Principal) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[role][principal]
	return ok
}

// RequireRole returns an AuthorizationError if principal does not hold
// role.
func (g *Gate) RequireRole(role types.RoleID, principal types.Principal) error {
	if !g.HasRole(role, principal) {
		return &types.AuthorizationError{Principal: principal, Role: role}
	}
	return nil
}

// GrantRole adds principal to role. Only Admin holders grant; granting
// the Admin role itself extends the admin set.
func (g *Gate) GrantRole(granter types.Principal, role types.RoleID, principal types.Principal) error {
	if err := g.RequireRole(Admin, granter); err != nil {
		return err
	}
	if principal == (types.Principal{}) {
		return types.ErrInvalidArgumentf("cannot grant a role to the zero address")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.add(role, principal)
	return nil
}

// RevokeRole removes principal from role. Only Admin holders revoke.
func (g *Gate) RevokeRole(revoker types.Principal, role types.RoleID, principal types.Principal) error {
	if err := g.RequireRole(Admin, revoker); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members[role], principal)
	return nil
}

// RenounceRole removes the caller's own membership of role. Renouncing
// a role the caller does not hold is an authorization error.
func (g *Gate) RenounceRole(principal types.Principal, role types.RoleID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[role][principal]; !ok {
		return &types.AuthorizationError{Principal: principal, Role: role}
	}
	delete(g.members[role], principal)
	return nil
}
