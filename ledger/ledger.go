/*
Package ledger implements the multi-token balance ledger: the token
type registry, per principal balances, supply accounting, role gated
mint and burn with batch variants, transfer approvals and the
marketplace proxy override.

State lives in memory mirrored to a persistent store. Every mutating
operation resolves the effective caller, authorizes it, validates its
complete effect and only then commits, store first, in one atomic
batch. A failed call leaves no partial state, so the supply invariant
(the total supply of every token equals the sum of its balances) holds
after every operation.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bridgemint/bridgemint-go/identity"
	"github.com/bridgemint/bridgemint-go/proxy"
	"github.com/bridgemint/bridgemint-go/roles"
	"github.com/bridgemint/bridgemint-go/storage"
	"github.com/bridgemint/bridgemint-go/types"
	"github.com/bridgemint/bridgemint-go/util"
)

type (
	// AccessGate authorizes privileged operations.
	AccessGate interface {
		HasRole(role types.RoleID, principal types.Principal) bool
		RequireRole(role types.RoleID, principal types.Principal) error
	}

	// Observer receives a record for every committed balance mutation,
	// including zero quantity mints. Delivery is synchronous and in
	// commit order, with the ledger lock held: implementations must not
	// call back into the ledger.
	Observer interface {
		TransferApplied(rec *types.TransferRecord)
	}

	// Config assembles a ledger's collaborators.
	Config struct {
		Store    *storage.Store    // persistent state, required
		Gate     AccessGate        // role checks, required
		Identity identity.Resolver // effective caller resolution, required
		Proxies  proxy.Registry    // marketplace approval override, optional
		Observer Observer          // mutation record sink, optional
	}

	Ledger struct {
		mu       sync.Mutex
		gate     AccessGate
		ident    identity.Resolver
		store    *storage.Store
		proxies  proxy.Registry
		observer Observer

		lastID    types.TokenID // last issued token ID, 0 before the first create
		created   map[types.TokenID]struct{}
		supply    map[types.TokenID]uint64
		balances  map[types.TokenID]map[types.Principal]uint64
		approvals map[types.Principal]map[types.Principal]struct{}
	}
)

// New builds a ledger from cfg and reconstructs its state from the
// store.
func New(cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is nil")
	}
	if cfg.Gate == nil {
		return nil, errors.New("access gate is nil")
	}
	if cfg.Identity == nil {
		return nil, errors.New("identity resolver is nil")
	}

	l := &Ledger{
		gate:      cfg.Gate,
		ident:     cfg.Identity,
		store:     cfg.Store,
		proxies:   cfg.Proxies,
		observer:  cfg.Observer,
		created:   map[types.TokenID]struct{}{},
		supply:    map[types.TokenID]uint64{},
		balances:  map[types.TokenID]map[types.Principal]uint64{},
		approvals: map[types.Principal]map[types.Principal]struct{}{},
	}
	if err := l.loadState(); err != nil {
		return nil, fmt.Errorf("loading ledger state: %w", err)
	}
	return l, nil
}

// BalanceOf returns the balance of token id held by owner.
func (l *Ledger) BalanceOf(owner types.Principal, id types.TokenID) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[id][owner]
}

// BalanceOfBatch returns the balances for pairwise (owners[i], ids[i]).
func (l *Ledger) BalanceOfBatch(owners []types.Principal, ids []types.TokenID) ([]uint64, error) {
	if len(owners) != len(ids) {
		return nil, types.ErrInvalidArgumentf("owners and ids length mismatch: %d vs %d", len(owners), len(ids))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]uint64, len(ids))
	for i := range ids {
		out[i] = l.balances[ids[i]][owners[i]]
	}
	return out, nil
}

// Exists reports whether id was issued by this registry's create. Note
// that bridged deposits may carry balances under IDs the local registry
// never issued.
func (l *Ledger) Exists(id types.TokenID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.created[id]
	return ok
}

// AuditSupply verifies the supply invariant over the whole state:
// for every token the recorded total supply equals the sum of all
// balances of that token. Returns the first inconsistency found.
func (l *Ledger) AuditSupply() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[types.TokenID]struct{}, len(l.balances))
	for id, holders := range l.balances {
		seen[id] = struct{}{}
		sums := make([]uint64, 0, len(holders))
		for _, v := range holders {
			sums = append(sums, v)
		}
		sum, ok := util.AddUint64(sums...)
		if !ok {
			return fmt.Errorf("token %s: balance sum overflows", id)
		}
		if sum != l.supply[id] {
			return fmt.Errorf("token %s: total supply %d != balance sum %d", id, l.supply[id], sum)
		}
	}
	for id, v := range l.supply {
		if _, ok := seen[id]; !ok && v != 0 {
			return fmt.Errorf("token %s: total supply %d with no balances", id, v)
		}
	}
	return nil
}

// Mint credits qty units of token id to `to` and grows the token's
// supply. Admin only. A qty of zero has no economic effect but still
// emits a transfer record.
func (l *Ledger) Mint(ctx context.Context, to types.Principal, id types.TokenID, qty uint64, aux []byte) error {
	caller, err := l.ident.Caller(ctx)
	if err != nil {
		return err
	}
	if err := l.gate.RequireRole(roles.Admin, caller); err != nil {
		return err
	}
	return l.MintFor(caller, to, []types.TokenID{id}, []uint64{qty}, aux)
}

// BatchMint is Mint over pairwise (ids[i], qtys[i]), all-or-nothing.
func (l *Ledger) BatchMint(ctx context.Context, to types.Principal, ids []types.TokenID, qtys []uint64, aux []byte) error {
	caller, err := l.ident.Caller(ctx)
	if err != nil {
		return err
	}
	if err := l.gate.RequireRole(roles.Admin, caller); err != nil {
		return err
	}
	return l.MintFor(caller, to, ids, qtys, aux)
}

// MintFor credits pairwise (ids[i], qtys[i]) to `to` on the authority
// of operator, growing each token's supply. Authorization has already
// been performed by the caller: the admin entry points gate on the
// admin role, the bridge gateway's deposit path on the depositor role.
func (l *Ledger) MintFor(operator, to types.Principal, ids []types.TokenID, qtys []uint64, aux []byte) error {
	if to == (types.Principal{}) {
		return types.ErrInvalidArgumentf("mint to the zero address")
	}
	if len(ids) != len(qtys) {
		return types.ErrInvalidArgumentf("ids and quantities length mismatch: %d vs %d", len(ids), len(qtys))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.newChangeset()
	for i := range ids {
		if err := c.credit(to, ids[i], qtys[i], true); err != nil {
			return err
		}
	}
	if err := c.commit(); err != nil {
		return err
	}
	l.notify(&types.TransferRecord{
		Kind:     types.TransferMint,
		Operator: operator,
		To:       to,
		IDs:      ids,
		Amounts:  qtys,
		Aux:      aux,
	})
	return nil
}

// Burn debits qty units of token id from `from` and shrinks the
// token's supply. The caller burns from its own balance freely; burning
// from another account requires the admin role.
func (l *Ledger) Burn(ctx context.Context, from types.Principal, id types.TokenID, qty uint64) error {
	caller, err := l.ident.Caller(ctx)
	if err != nil {
		return err
	}
	if caller != from {
		if err := l.gate.RequireRole(roles.Admin, caller); err != nil {
			return err
		}
	}
	return l.BurnFor(caller, from, []types.TokenID{id}, []uint64{qty})
}

// BatchBurn is Burn over pairwise (ids[i], qtys[i]), all-or-nothing.
func (l *Ledger) BatchBurn(ctx context.Context, from types.Principal, ids []types.TokenID, qtys []uint64) error {
	caller, err := l.ident.Caller(ctx)
	if err != nil {
		return err
	}
	if caller != from {
		if err := l.gate.RequireRole(roles.Admin, caller); err != nil {
			return err
		}
	}
	return l.BurnFor(caller, from, ids, qtys)
}

// BurnFor debits pairwise (ids[i], qtys[i]) from `from` on the
// authority of operator, shrinking each token's supply. Authorization
// has already been performed by the caller: the bridge gateway's
// withdraw paths pass the resolved caller as both operator and from.
func (l *Ledger) BurnFor(operator, from types.Principal, ids []types.TokenID, qtys []uint64) error {
	if len(ids) != len(qtys) {
		return types.ErrInvalidArgumentf("ids and quantities length mismatch: %d vs %d", len(ids), len(qtys))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.newChangeset()
	for i := range ids {
		if err := c.debit(from, ids[i], qtys[i], true); err != nil {
			return err
		}
	}
	if err := c.commit(); err != nil {
		return err
	}
	l.notify(&types.TransferRecord{
		Kind:     types.TransferBurn,
		Operator: operator,
		From:     from,
		IDs:      ids,
		Amounts:  qtys,
	})
	return nil
}

// TransferFrom moves qty units of token id from `from` to `to`. The
// caller must be `from` itself or an operator approved for all of
// from's tokens (explicitly or through the marketplace proxy).
func (l *Ledger) TransferFrom(ctx context.Context, from, to types.Principal, id types.TokenID, qty uint64) error {
	return l.BatchTransferFrom(ctx, from, to, []types.TokenID{id}, []uint64{qty})
}

// BatchTransferFrom is TransferFrom over pairwise (ids[i], qtys[i]),
// all-or-nothing. Supplies are unchanged by transfers.
func (l *Ledger) BatchTransferFrom(ctx context.Context, from, to types.Principal, ids []types.TokenID, qtys []uint64) error {
	caller, err := l.ident.Caller(ctx)
	if err != nil {
		return err
	}
	if from == (types.Principal{}) {
		return types.ErrInvalidArgumentf("transfer from the zero address")
	}
	if to == (types.Principal{}) {
		return types.ErrInvalidArgumentf("transfer to the zero address")
	}
	if len(ids) != len(qtys) {
		return types.ErrInvalidArgumentf("ids and quantities length mismatch: %d vs %d", len(ids), len(qtys))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != from && !l.isApproved(from, caller) {
		return fmt.Errorf("%s is neither owner nor approved operator of %s: %w", caller, from, types.ErrUnauthorized)
	}

	c := l.newChangeset()
	for i := range ids {
		if err := c.debit(from, ids[i], qtys[i], false); err != nil {
			return err
		}
		if err := c.credit(to, ids[i], qtys[i], false); err != nil {
			return err
		}
	}
	if err := c.commit(); err != nil {
		return err
	}
	l.notify(&types.TransferRecord{
		Kind:     types.TransferSend,
		Operator: caller,
		From:     from,
		To:       to,
		IDs:      ids,
		Amounts:  qtys,
	})
	return nil
}

func (l *Ledger) notify(rec *types.TransferRecord) {
	if l.observer != nil {
		l.observer.TransferApplied(rec)
	}
}
