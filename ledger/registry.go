package ledger

import (
	"context"
	"fmt"

	"github.com/bridgemint/bridgemint-go/roles"
	"github.com/bridgemint/bridgemint-go/types"
)

// NextID returns the ID the next create call will assign, without
// mutating state.
func (l *Ledger) NextID() types.TokenID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastID + 1
}

// TotalSupply returns the total number of units of token id. The
// result is 0 both for a fully burned and for a never created token;
// Exists disambiguates.
func (l *Ledger) TotalSupply(id types.TokenID) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply[id]
}

// Create issues the next token ID and mints initialSupply units of it
// to initialOwner. Admin only. IDs are issued monotonically starting at
// 1, with no gaps, and are never reused even if the supply later drops
// to zero.
func (l *Ledger) Create(ctx context.Context, initialOwner types.Principal, initialSupply uint64, aux []byte) (types.TokenID, error) {
	caller, err := l.ident.Caller(ctx)
	if err != nil {
		return 0, err
	}
	if err := l.gate.RequireRole(roles.Admin, caller); err != nil {
		return 0, err
	}
	if initialOwner == (types.Principal{}) {
		return 0, types.ErrInvalidArgumentf("initial owner is the zero address")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.lastID + 1
	if id == 0 {
		return 0, fmt.Errorf("token ID space exhausted")
	}

	c := l.newChangeset()
	c.newToken = id
	if err := c.credit(initialOwner, id, initialSupply, true); err != nil {
		return 0, err
	}
	if err := c.commit(); err != nil {
		return 0, err
	}
	l.notify(&types.TransferRecord{
		Kind:     types.TransferMint,
		Operator: caller,
		To:       initialOwner,
		IDs:      []types.TokenID{id},
		Amounts:  []uint64{initialSupply},
		Aux:      aux,
	})
	return id, nil
}
