package ledger

import (
	"context"
	"fmt"

	"github.com/bridgemint/bridgemint-go/types"
)

// SetApprovalForAll grants or revokes operator's authority over every
// token held by the resolved caller, now and in the future.
func (l *Ledger) SetApprovalForAll(ctx context.Context, operator types.Principal, approved bool) error {
	caller, err := l.ident.Caller(ctx)
	if err != nil {
		return err
	}
	if operator == (types.Principal{}) {
		return types.ErrInvalidArgumentf("operator is the zero address")
	}
	if operator == caller {
		return types.ErrInvalidArgumentf("cannot set approval for self")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := approvalKey(caller, operator)
	if approved {
		if err := l.store.Set(key, []byte{1}); err != nil {
			return fmt.Errorf("persisting approval: %w", err)
		}
		m, ok := l.approvals[caller]
		if !ok {
			m = map[types.Principal]struct{}{}
			l.approvals[caller] = m
		}
		m[operator] = struct{}{}
		return nil
	}

	if err := l.store.Delete(key); err != nil {
		return fmt.Errorf("removing approval: %w", err)
	}
	delete(l.approvals[caller], operator)
	if len(l.approvals[caller]) == 0 {
		delete(l.approvals, caller)
	}
	return nil
}

// IsApprovedForAll reports whether operator may move owner's tokens.
// An operator that is the owner's registered marketplace proxy is
// approved unconditionally; this is a standing authorization that
// exists as long as the registry entry does, not a revocable
// delegation. Every other operator falls through to the explicit
// approval set.
func (l *Ledger) IsApprovedForAll(owner, operator types.Principal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isApproved(owner, operator)
}

// isApproved implements IsApprovedForAll; the ledger lock must be held.
func (l *Ledger) isApproved(owner, operator types.Principal) bool {
	if l.proxies != nil {
		if proxy, ok := l.proxies.ProxyFor(owner); ok && proxy == operator {
			return true
		}
	}
	_, ok := l.approvals[owner][operator]
	return ok
}
