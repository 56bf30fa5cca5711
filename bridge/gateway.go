/*
Package bridge implements the trust boundary of the ledger: the
gateway mints on attested deposits and burns on withdrawal intents,
and the receiver translates and dedups the other chain's deposit
records before they reach the gateway.

A deposit credits a user with the token amounts named in a deposit
payload; only the depositor role may submit one, and the gateway
deliberately provides no replay protection (the receiver in front of
it owns the processed-record set). A withdrawal burns from the
caller's own balance only and journals an exit record for the
off-chain prover that releases the funds on the other ledger.
*/
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bridgemint/bridgemint-go/exitlog"
	"github.com/bridgemint/bridgemint-go/identity"
	"github.com/bridgemint/bridgemint-go/roles"
	"github.com/bridgemint/bridgemint-go/types"
)

type (
	// TokenLedger is the mint/burn surface the gateway drives. Both
	// methods trust the gateway to have authorized the operator.
	TokenLedger interface {
		MintFor(operator, to types.Principal, ids []types.TokenID, qtys []uint64, aux []byte) error
		BurnFor(operator, from types.Principal, ids []types.TokenID, qtys []uint64) error
	}

	// AccessGate authorizes deposit submissions.
	AccessGate interface {
		RequireRole(role types.RoleID, principal types.Principal) error
	}

	// ExitJournal records withdrawal burns for the external prover.
	ExitJournal interface {
		Append(burner types.Principal, ids []types.TokenID, amounts []uint64) ([]exitlog.Record, error)
	}

	// Gateway is the bridge entry point in front of the ledger.
	Gateway struct {
		withdrawMu sync.Mutex // serializes burn + journal append
		ledger     TokenLedger
		gate       AccessGate
		ident      identity.Resolver
		exits      ExitJournal
	}
)

// NewGateway builds a gateway. The exit journal may be nil, in which
// case withdrawals burn without journaling.
func NewGateway(ledger TokenLedger, gate AccessGate, ident identity.Resolver, exits ExitJournal) (*Gateway, error) {
	if ledger == nil {
		return nil, errors.New("token ledger is nil")
	}
	if gate == nil {
		return nil, errors.New("access gate is nil")
	}
	if ident == nil {
		return nil, errors.New("identity resolver is nil")
	}
	return &Gateway{ledger: ledger, gate: gate, ident: ident, exits: exits}, nil
}

// Deposit credits user with the token amounts of an attested deposit
// payload, all-or-nothing. Depositor role only. Submitting the same
// payload twice mints twice: replay defense belongs to the caller
// (normally the receiver).
func (g *Gateway) Deposit(ctx context.Context, user types.Principal, payload []byte) error {
	caller, err := g.ident.Caller(ctx)
	if err != nil {
		return err
	}
	if err := g.gate.RequireRole(roles.Depositor, caller); err != nil {
		return err
	}
	if user == (types.Principal{}) {
		return types.ErrInvalidArgumentf("deposit to the zero address")
	}
	data, err := DecodeDepositData(payload)
	if err != nil {
		return err
	}
	if err := g.ledger.MintFor(caller, user, data.IDs, data.Amounts, data.Aux); err != nil {
		return fmt.Errorf("minting deposit: %w", err)
	}
	return nil
}

// WithdrawSingle burns amount units of token id from the caller's own
// balance and journals the exit.
func (g *Gateway) WithdrawSingle(ctx context.Context, id types.TokenID, amount uint64) error {
	return g.WithdrawBatch(ctx, []types.TokenID{id}, []uint64{amount})
}

// WithdrawBatch burns pairwise (ids[i], amounts[i]) from the caller's
// own balance, all-or-nothing, and journals the exits as one batch.
// The burn is the authoritative effect: it is never rolled back for a
// journaling failure, which is reported to the caller instead.
func (g *Gateway) WithdrawBatch(ctx context.Context, ids []types.TokenID, amounts []uint64) error {
	caller, err := g.ident.Caller(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return types.ErrInvalidArgumentf("empty withdrawal")
	}

	g.withdrawMu.Lock()
	defer g.withdrawMu.Unlock()

	if err := g.ledger.BurnFor(caller, caller, ids, amounts); err != nil {
		return err
	}
	if g.exits != nil {
		if _, err := g.exits.Append(caller, ids, amounts); err != nil {
			return fmt.Errorf("burn committed but exit journaling failed: %w", err)
		}
	}
	return nil
}
