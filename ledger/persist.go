package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bridgemint/bridgemint-go/storage"
	"github.com/bridgemint/bridgemint-go/types"
	"github.com/bridgemint/bridgemint-go/util"
)

// Pebble keyspace of the ledger. Every mutating operation commits its
// complete changeset through one atomic batch over these keys.
var (
	balanceKeyPrefix  = []byte("b:") // b:<id><owner> -> uint64, absent when zero
	supplyKeyPrefix   = []byte("s:") // s:<id> -> uint64, absent when zero
	tokenKeyPrefix    = []byte("t:") // t:<id> -> nil, key presence marks existence
	approvalKeyPrefix = []byte("a:") // a:<owner><operator> -> 1, absent when not approved
	counterKey        = []byte("c:last") // uint64, last issued token ID
)

func balanceKey(id types.TokenID, owner types.Principal) []byte {
	key := make([]byte, 0, len(balanceKeyPrefix)+types.TokenIDLength+common.AddressLength)
	key = append(key, balanceKeyPrefix...)
	key = append(key, id.Bytes()...)
	key = append(key, owner.Bytes()...)
	return key
}

func supplyKey(id types.TokenID) []byte {
	return append(append([]byte{}, supplyKeyPrefix...), id.Bytes()...)
}

func tokenKey(id types.TokenID) []byte {
	return append(append([]byte{}, tokenKeyPrefix...), id.Bytes()...)
}

func approvalKey(owner, operator types.Principal) []byte {
	key := make([]byte, 0, len(approvalKeyPrefix)+2*common.AddressLength)
	key = append(key, approvalKeyPrefix...)
	key = append(key, owner.Bytes()...)
	key = append(key, operator.Bytes()...)
	return key
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("expected 8 byte value, got %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

type holding struct {
	id    types.TokenID
	owner types.Principal
}

// changeset stages the complete effect of one operation against the
// current ledger state. Nothing becomes visible to readers or the store
// until commit; a changeset abandoned on a validation error leaves no
// trace.
type changeset struct {
	l        *Ledger
	balances map[holding]uint64
	supplies map[types.TokenID]uint64
	newToken types.TokenID // set by create, 0 otherwise
}

func (l *Ledger) newChangeset() *changeset {
	return &changeset{
		l:        l,
		balances: map[holding]uint64{},
		supplies: map[types.TokenID]uint64{},
	}
}

func (c *changeset) balance(owner types.Principal, id types.TokenID) uint64 {
	if v, ok := c.balances[holding{id: id, owner: owner}]; ok {
		return v
	}
	return c.l.balances[id][owner]
}

func (c *changeset) supply(id types.TokenID) uint64 {
	if v, ok := c.supplies[id]; ok {
		return v
	}
	return c.l.supply[id]
}

// credit stages a mint or transfer-in of qty units of id to owner,
// adjusting the balance; adjustSupply selects whether the token supply
// grows with it (mints) or stays put (transfers).
func (c *changeset) credit(owner types.Principal, id types.TokenID, qty uint64, adjustSupply bool) error {
	b, ok := util.SafeAdd(c.balance(owner, id), qty)
	if !ok {
		return types.ErrInvalidArgumentf("balance of token %s for %s overflows", id, owner)
	}
	c.balances[holding{id: id, owner: owner}] = b

	if !adjustSupply {
		return nil
	}
	s, ok := util.SafeAdd(c.supply(id), qty)
	if !ok {
		return types.ErrInvalidArgumentf("total supply of token %s overflows", id)
	}
	c.supplies[id] = s
	return nil
}

// debit stages a burn or transfer-out of qty units of id from owner.
func (c *changeset) debit(owner types.Principal, id types.TokenID, qty uint64, adjustSupply bool) error {
	have := c.balance(owner, id)
	b, ok := util.SafeSub(have, qty)
	if !ok {
		return &types.InsufficientBalanceError{Token: id, Principal: owner, Have: have, Want: qty}
	}
	c.balances[holding{id: id, owner: owner}] = b

	if !adjustSupply {
		return nil
	}
	s, ok := util.SafeSub(c.supply(id), qty)
	if !ok {
		// cannot happen while the supply invariant holds: a balance
		// is never larger than its token's supply
		return fmt.Errorf("supply of token %s underflows on burn of %d", id, qty)
	}
	c.supplies[id] = s
	return nil
}

// commit applies the staged changes: first the persistent store in one
// atomic batch, then the in-memory state (which cannot fail). The
// ledger lock must be held.
func (c *changeset) commit() error {
	var ops []storage.Op
	for h, v := range c.balances {
		if v == 0 {
			ops = append(ops, storage.Op{Key: balanceKey(h.id, h.owner), Delete: true})
			continue
		}
		ops = append(ops, storage.Op{Key: balanceKey(h.id, h.owner), Value: encodeUint64(v)})
	}
	for id, v := range c.supplies {
		if v == 0 {
			ops = append(ops, storage.Op{Key: supplyKey(id), Delete: true})
			continue
		}
		ops = append(ops, storage.Op{Key: supplyKey(id), Value: encodeUint64(v)})
	}
	if c.newToken != 0 {
		ops = append(ops, storage.Op{Key: tokenKey(c.newToken)})
		ops = append(ops, storage.Op{Key: counterKey, Value: encodeUint64(uint64(c.newToken))})
	}

	if len(ops) > 0 {
		if err := c.l.store.Apply(ops); err != nil {
			return fmt.Errorf("committing changeset: %w", err)
		}
	}

	for h, v := range c.balances {
		if v == 0 {
			delete(c.l.balances[h.id], h.owner)
			if len(c.l.balances[h.id]) == 0 {
				delete(c.l.balances, h.id)
			}
			continue
		}
		m, ok := c.l.balances[h.id]
		if !ok {
			m = map[types.Principal]uint64{}
			c.l.balances[h.id] = m
		}
		m[h.owner] = v
	}
	for id, v := range c.supplies {
		if v == 0 {
			delete(c.l.supply, id)
			continue
		}
		c.l.supply[id] = v
	}
	if c.newToken != 0 {
		c.l.created[c.newToken] = struct{}{}
		c.l.lastID = c.newToken
	}
	return nil
}

// loadState reconstructs the in-memory ledger state from the store.
func (l *Ledger) loadState() error {
	value, err := l.store.Get(counterKey)
	if err != nil {
		return fmt.Errorf("reading token counter: %w", err)
	}
	if value != nil {
		last, err := decodeUint64(value)
		if err != nil {
			return fmt.Errorf("decoding token counter: %w", err)
		}
		l.lastID = types.TokenID(last)
	}

	err = l.store.IteratePrefix(tokenKeyPrefix, func(key, value []byte) error {
		id, err := types.BytesToTokenID(key[len(tokenKeyPrefix):])
		if err != nil {
			return fmt.Errorf("decoding token key %x: %w", key, err)
		}
		l.created[id] = struct{}{}
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading token set: %w", err)
	}

	err = l.store.IteratePrefix(supplyKeyPrefix, func(key, value []byte) error {
		id, err := types.BytesToTokenID(key[len(supplyKeyPrefix):])
		if err != nil {
			return fmt.Errorf("decoding supply key %x: %w", key, err)
		}
		v, err := decodeUint64(value)
		if err != nil {
			return fmt.Errorf("decoding supply of token %s: %w", id, err)
		}
		l.supply[id] = v
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading supplies: %w", err)
	}

	err = l.store.IteratePrefix(balanceKeyPrefix, func(key, value []byte) error {
		rest := key[len(balanceKeyPrefix):]
		if len(rest) != types.TokenIDLength+common.AddressLength {
			return fmt.Errorf("malformed balance key %x", key)
		}
		id, err := types.BytesToTokenID(rest[:types.TokenIDLength])
		if err != nil {
			return fmt.Errorf("decoding balance key %x: %w", key, err)
		}
		owner := common.BytesToAddress(rest[types.TokenIDLength:])
		v, err := decodeUint64(value)
		if err != nil {
			return fmt.Errorf("decoding balance of token %s for %s: %w", id, owner, err)
		}
		m, ok := l.balances[id]
		if !ok {
			m = map[types.Principal]uint64{}
			l.balances[id] = m
		}
		m[owner] = v
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading balances: %w", err)
	}

	err = l.store.IteratePrefix(approvalKeyPrefix, func(key, value []byte) error {
		rest := key[len(approvalKeyPrefix):]
		if len(rest) != 2*common.AddressLength {
			return fmt.Errorf("malformed approval key %x", key)
		}
		owner := common.BytesToAddress(rest[:common.AddressLength])
		operator := common.BytesToAddress(rest[common.AddressLength:])
		m, ok := l.approvals[owner]
		if !ok {
			m = map[types.Principal]struct{}{}
			l.approvals[owner] = m
		}
		m[operator] = struct{}{}
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading approvals: %w", err)
	}
	return nil
}
