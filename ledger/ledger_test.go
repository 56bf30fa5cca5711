package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/bridgemint/bridgemint-go/identity"
	"github.com/bridgemint/bridgemint-go/proxy"
	"github.com/bridgemint/bridgemint-go/roles"
	"github.com/bridgemint/bridgemint-go/storage"
	"github.com/bridgemint/bridgemint-go/testutils"
	"github.com/bridgemint/bridgemint-go/types"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	operator = common.HexToAddress("0x00000000000000000000000000000000000000C1")
)

// recorder collects the transfer records the ledger emits.
type recorder struct {
	recs []*types.TransferRecord
}

func (r *recorder) TransferApplied(rec *types.TransferRecord) {
	r.recs = append(r.recs, rec)
}

func (r *recorder) last(t *testing.T) *types.TransferRecord {
	t.Helper()
	require.NotEmpty(t, r.recs)
	return r.recs[len(r.recs)-1]
}

func newTestLedger(t *testing.T) (*Ledger, *proxy.Static, *recorder) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	gate, err := roles.NewGate(admin)
	require.NoError(t, err)
	proxies := proxy.NewStatic()
	rec := &recorder{}

	l, err := New(Config{
		Store:    store,
		Gate:     gate,
		Identity: identity.Direct{},
		Proxies:  proxies,
		Observer: rec,
	})
	require.NoError(t, err)
	return l, proxies, rec
}

// as returns a context calling as the given principal.
func as(p types.Principal) context.Context {
	return identity.WithSender(context.Background(), p)
}

func Test_New(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	gate, err := roles.NewGate(admin)
	require.NoError(t, err)

	t.Run("missing store", func(t *testing.T) {
		_, err := New(Config{Gate: gate, Identity: identity.Direct{}})
		require.EqualError(t, err, "store is nil")
	})

	t.Run("missing gate", func(t *testing.T) {
		_, err := New(Config{Store: store, Identity: identity.Direct{}})
		require.EqualError(t, err, "access gate is nil")
	})

	t.Run("missing identity resolver", func(t *testing.T) {
		_, err := New(Config{Store: store, Gate: gate})
		require.EqualError(t, err, "identity resolver is nil")
	})

	t.Run("proxies and observer are optional", func(t *testing.T) {
		l, err := New(Config{Store: store, Gate: gate, Identity: identity.Direct{}})
		require.NoError(t, err)
		require.NotNil(t, l)
	})
}

func Test_Mint(t *testing.T) {
	t.Run("admin mints", func(t *testing.T) {
		l, _, rec := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 7, 100, []byte("aux")))
		require.EqualValues(t, 100, l.BalanceOf(alice, 7))
		require.EqualValues(t, 100, l.TotalSupply(7))
		require.NoError(t, l.AuditSupply())

		r := rec.last(t)
		require.Equal(t, types.TransferMint, r.Kind)
		require.Equal(t, admin, r.Operator)
		require.Equal(t, alice, r.To)
		require.Equal(t, []types.TokenID{7}, r.IDs)
		require.Equal(t, []uint64{100}, r.Amounts)
		require.Equal(t, []byte("aux"), r.Aux)
	})

	t.Run("non-admin cannot mint", func(t *testing.T) {
		l, _, rec := newTestLedger(t)
		err := l.Mint(as(alice), alice, 7, 100, nil)
		require.ErrorIs(t, err, types.ErrUnauthorized)
		require.Zero(t, l.BalanceOf(alice, 7))
		require.Zero(t, l.TotalSupply(7))
		require.Empty(t, rec.recs)
	})

	t.Run("zero address recipient", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		err := l.Mint(as(admin), common.Address{}, 7, 100, nil)
		require.ErrorIs(t, err, types.ErrInvalidArgument)
		require.Zero(t, l.TotalSupply(7))
	})

	t.Run("zero quantity still emits a record", func(t *testing.T) {
		l, _, rec := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 7, 0, nil))
		require.Zero(t, l.BalanceOf(alice, 7))
		require.Zero(t, l.TotalSupply(7))
		require.Len(t, rec.recs, 1)
		require.Equal(t, []uint64{0}, rec.recs[0].Amounts)
	})

	t.Run("missing caller in context", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		err := l.Mint(context.Background(), alice, 7, 100, nil)
		require.ErrorIs(t, err, types.ErrInvalidArgument)
	})
}

func Test_BatchMint(t *testing.T) {
	t.Run("mints every pair", func(t *testing.T) {
		l, _, rec := newTestLedger(t)
		require.NoError(t, l.BatchMint(as(admin), alice, []types.TokenID{1, 2, 3}, []uint64{10, 20, 30}, nil))
		require.EqualValues(t, 10, l.BalanceOf(alice, 1))
		require.EqualValues(t, 20, l.BalanceOf(alice, 2))
		require.EqualValues(t, 30, l.BalanceOf(alice, 3))
		require.NoError(t, l.AuditSupply())
		require.Len(t, rec.recs, 1)
	})

	t.Run("repeated IDs accumulate", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.BatchMint(as(admin), alice, []types.TokenID{5, 5}, []uint64{10, 20}, nil))
		require.EqualValues(t, 30, l.BalanceOf(alice, 5))
		require.EqualValues(t, 30, l.TotalSupply(5))
		require.NoError(t, l.AuditSupply())
	})

	t.Run("length mismatch fails the whole call", func(t *testing.T) {
		l, _, rec := newTestLedger(t)
		err := l.BatchMint(as(admin), alice, []types.TokenID{1, 2}, []uint64{10}, nil)
		require.ErrorIs(t, err, types.ErrInvalidArgument)
		require.Zero(t, l.BalanceOf(alice, 1))
		require.Zero(t, l.TotalSupply(1))
		require.Empty(t, rec.recs)
	})

	t.Run("overflow fails with no partial mutation", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 9, 10, nil))

		err := l.BatchMint(as(admin), alice, []types.TokenID{1, 9}, []uint64{5, ^uint64(0)}, nil)
		require.ErrorIs(t, err, types.ErrInvalidArgument)
		require.Zero(t, l.BalanceOf(alice, 1))
		require.EqualValues(t, 10, l.BalanceOf(alice, 9))
		require.NoError(t, l.AuditSupply())
	})
}

func Test_Burn(t *testing.T) {
	t.Run("self burn needs no role", func(t *testing.T) {
		l, _, rec := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 1, 100, nil))

		require.NoError(t, l.Burn(as(alice), alice, 1, 40))
		require.EqualValues(t, 60, l.BalanceOf(alice, 1))
		require.EqualValues(t, 60, l.TotalSupply(1))
		require.NoError(t, l.AuditSupply())

		r := rec.last(t)
		require.Equal(t, types.TransferBurn, r.Kind)
		require.Equal(t, alice, r.Operator)
		require.Equal(t, alice, r.From)
	})

	t.Run("admin burns from any account", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 1, 100, nil))
		require.NoError(t, l.Burn(as(admin), alice, 1, 100))
		require.Zero(t, l.BalanceOf(alice, 1))
		require.Zero(t, l.TotalSupply(1))
	})

	t.Run("non-admin cannot burn from another account", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 1, 100, nil))
		err := l.Burn(as(bob), alice, 1, 10)
		require.ErrorIs(t, err, types.ErrUnauthorized)
		require.EqualValues(t, 100, l.BalanceOf(alice, 1))
	})

	t.Run("insufficient balance", func(t *testing.T) {
		l, _, rec := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 1, 30, nil))
		n := len(rec.recs)

		err := l.Burn(as(alice), alice, 1, 31)
		require.ErrorIs(t, err, types.ErrInsufficientBalance)

		var balErr *types.InsufficientBalanceError
		require.ErrorAs(t, err, &balErr)
		require.EqualValues(t, 1, balErr.Token)
		require.Equal(t, alice, balErr.Principal)
		require.EqualValues(t, 30, balErr.Have)
		require.EqualValues(t, 31, balErr.Want)

		require.EqualValues(t, 30, l.BalanceOf(alice, 1))
		require.EqualValues(t, 30, l.TotalSupply(1))
		require.Len(t, rec.recs, n)
	})
}

func Test_BatchBurn(t *testing.T) {
	t.Run("burns every pair", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.BatchMint(as(admin), alice, []types.TokenID{1, 2}, []uint64{10, 20}, nil))
		require.NoError(t, l.BatchBurn(as(alice), alice, []types.TokenID{1, 2}, []uint64{10, 5}))
		require.Zero(t, l.BalanceOf(alice, 1))
		require.EqualValues(t, 15, l.BalanceOf(alice, 2))
		require.NoError(t, l.AuditSupply())
	})

	t.Run("one short pair fails the whole batch", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.BatchMint(as(admin), alice, []types.TokenID{1, 2}, []uint64{10, 20}, nil))

		err := l.BatchBurn(as(alice), alice, []types.TokenID{1, 2}, []uint64{10, 21})
		require.ErrorIs(t, err, types.ErrInsufficientBalance)
		require.EqualValues(t, 10, l.BalanceOf(alice, 1))
		require.EqualValues(t, 20, l.BalanceOf(alice, 2))
		require.NoError(t, l.AuditSupply())
	})

	t.Run("length mismatch", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 1, 10, nil))
		err := l.BatchBurn(as(alice), alice, []types.TokenID{1}, []uint64{1, 2})
		require.ErrorIs(t, err, types.ErrInvalidArgument)
		require.EqualValues(t, 10, l.BalanceOf(alice, 1))
	})

	t.Run("repeated IDs are checked cumulatively", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 1, 10, nil))

		// 6+6 exceeds the balance of 10 even though each pair alone fits
		err := l.BatchBurn(as(alice), alice, []types.TokenID{1, 1}, []uint64{6, 6})
		require.ErrorIs(t, err, types.ErrInsufficientBalance)
		require.EqualValues(t, 10, l.BalanceOf(alice, 1))

		require.NoError(t, l.BatchBurn(as(alice), alice, []types.TokenID{1, 1}, []uint64{6, 4}))
		require.Zero(t, l.BalanceOf(alice, 1))
	})
}

func Test_TransferFrom(t *testing.T) {
	t.Run("owner transfers", func(t *testing.T) {
		l, _, rec := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 1, 100, nil))

		require.NoError(t, l.TransferFrom(as(alice), alice, bob, 1, 40))
		require.EqualValues(t, 60, l.BalanceOf(alice, 1))
		require.EqualValues(t, 40, l.BalanceOf(bob, 1))
		// transfers never change the supply
		require.EqualValues(t, 100, l.TotalSupply(1))
		require.NoError(t, l.AuditSupply())

		r := rec.last(t)
		require.Equal(t, types.TransferSend, r.Kind)
		require.Equal(t, alice, r.From)
		require.Equal(t, bob, r.To)
	})

	t.Run("approved operator transfers", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 1, 100, nil))
		require.NoError(t, l.SetApprovalForAll(as(alice), operator, true))

		require.NoError(t, l.TransferFrom(as(operator), alice, bob, 1, 10))
		require.EqualValues(t, 10, l.BalanceOf(bob, 1))
	})

	t.Run("proxy operator transfers without explicit approval", func(t *testing.T) {
		l, proxies, _ := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 1, 100, nil))
		proxies.Register(alice, operator)

		require.NoError(t, l.TransferFrom(as(operator), alice, bob, 1, 10))
		require.EqualValues(t, 10, l.BalanceOf(bob, 1))
	})

	t.Run("stranger cannot transfer", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 1, 100, nil))

		err := l.TransferFrom(as(bob), alice, bob, 1, 10)
		require.ErrorIs(t, err, types.ErrUnauthorized)
		require.EqualValues(t, 100, l.BalanceOf(alice, 1))
	})

	t.Run("insufficient balance", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 1, 5, nil))
		err := l.TransferFrom(as(alice), alice, bob, 1, 6)
		require.ErrorIs(t, err, types.ErrInsufficientBalance)
		require.Zero(t, l.BalanceOf(bob, 1))
	})

	t.Run("zero addresses rejected", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 1, 5, nil))

		err := l.TransferFrom(as(alice), alice, common.Address{}, 1, 1)
		require.ErrorIs(t, err, types.ErrInvalidArgument)

		err = l.BatchTransferFrom(as(alice), common.Address{}, bob, []types.TokenID{1}, []uint64{1})
		require.ErrorIs(t, err, types.ErrInvalidArgument)
	})
}

func Test_BatchTransferFrom(t *testing.T) {
	t.Run("all-or-nothing", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.BatchMint(as(admin), alice, []types.TokenID{1, 2}, []uint64{10, 3}, nil))

		err := l.BatchTransferFrom(as(alice), alice, bob, []types.TokenID{1, 2}, []uint64{5, 4})
		require.ErrorIs(t, err, types.ErrInsufficientBalance)
		require.EqualValues(t, 10, l.BalanceOf(alice, 1))
		require.EqualValues(t, 3, l.BalanceOf(alice, 2))
		require.Zero(t, l.BalanceOf(bob, 1))
	})

	t.Run("transfer to self is a no-op", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		require.NoError(t, l.Mint(as(admin), alice, 1, 10, nil))
		require.NoError(t, l.BatchTransferFrom(as(alice), alice, alice, []types.TokenID{1}, []uint64{7}))
		require.EqualValues(t, 10, l.BalanceOf(alice, 1))
		require.NoError(t, l.AuditSupply())
	})
}

func Test_BalanceOfBatch(t *testing.T) {
	l, _, _ := newTestLedger(t)
	require.NoError(t, l.Mint(as(admin), alice, 1, 10, nil))
	require.NoError(t, l.Mint(as(admin), bob, 2, 20, nil))

	got, err := l.BalanceOfBatch([]types.Principal{alice, bob, alice}, []types.TokenID{1, 2, 2})
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 20, 0}, got)

	_, err = l.BalanceOfBatch([]types.Principal{alice}, []types.TokenID{1, 2})
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func Test_Reload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	gate, err := roles.NewGate(admin)
	require.NoError(t, err)

	store, err := storage.Open(dir)
	require.NoError(t, err)

	l, err := New(Config{Store: store, Gate: gate, Identity: identity.Direct{}})
	require.NoError(t, err)

	id, err := l.Create(as(admin), alice, 100, nil)
	require.NoError(t, err)
	require.NoError(t, l.Mint(as(admin), bob, id, 50, nil))
	require.NoError(t, l.Burn(as(alice), alice, id, 30))
	require.NoError(t, l.SetApprovalForAll(as(alice), operator, true))
	require.NoError(t, store.Close())

	// a fresh ledger over the same store sees the same state
	store, err = storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	l2, err := New(Config{Store: store, Gate: gate, Identity: identity.Direct{}})
	require.NoError(t, err)

	require.EqualValues(t, 70, l2.BalanceOf(alice, id))
	require.EqualValues(t, 50, l2.BalanceOf(bob, id))
	require.EqualValues(t, 120, l2.TotalSupply(id))
	require.True(t, l2.Exists(id))
	require.True(t, l2.IsApprovedForAll(alice, operator))
	require.NoError(t, l2.AuditSupply())

	// the ID counter continues where it left off
	require.Equal(t, id+1, l2.NextID())
	next, err := l2.Create(as(admin), alice, 1, nil)
	require.NoError(t, err)
	require.Equal(t, id+1, next)
}

// Test_SupplyConservation walks a token through a chain of random
// holders, checking after every step that the recorded supply equals
// the sum of balances.
func Test_SupplyConservation(t *testing.T) {
	l, _, _ := newTestLedger(t)

	holders := make([]types.Principal, 4)
	for i := range holders {
		holders[i] = testutils.RandomPrincipal(t)
	}
	id := testutils.RandomTokenID(t)

	require.NoError(t, l.Mint(as(admin), holders[0], id, 1000, testutils.RandomBytes(t, 16)))
	require.NoError(t, l.AuditSupply())

	for i, qty := range []uint64{300, 200, 100} {
		require.NoError(t, l.TransferFrom(as(holders[i]), holders[i], holders[i+1], id, qty))
		require.NoError(t, l.AuditSupply())
	}
	require.EqualValues(t, 1000, l.TotalSupply(id))

	require.NoError(t, l.Burn(as(holders[3]), holders[3], id, 100))
	require.NoError(t, l.AuditSupply())
	require.EqualValues(t, 900, l.TotalSupply(id))
	require.Zero(t, l.BalanceOf(holders[3], id))
}
