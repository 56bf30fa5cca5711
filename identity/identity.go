// Package identity resolves the effective caller of an operation.
//
// The transport level sender travels on the context. A Resolver maps it
// to the principal the operation acts as: Direct passes the sender
// through, TrustedRelay unwraps calls relayed on behalf of another
// principal by a registered relayer.
package identity

import (
	"context"

	"github.com/bridgemint/bridgemint-go/types"
)

type ctxKey int

const (
	senderKey ctxKey = iota
	originKey
)

// WithSender returns a context carrying sender as the transport level
// caller of the operation.
func WithSender(ctx context.Context, sender types.Principal) context.Context {
	return context.WithValue(ctx, senderKey, sender)
}

// WithRelayedOrigin returns a context carrying the principal a relayer
// claims to act for. The origin is honored only by TrustedRelay and
// only when the sender is a registered relayer.
func WithRelayedOrigin(ctx context.Context, origin types.Principal) context.Context {
	return context.WithValue(ctx, originKey, origin)
}

// Sender returns the transport level sender of the context.
func Sender(ctx context.Context) (types.Principal, bool) {
	sender, ok := ctx.Value(senderKey).(types.Principal)
	return sender, ok
}

func relayedOrigin(ctx context.Context) (types.Principal, bool) {
	origin, ok := ctx.Value(originKey).(types.Principal)
	return origin, ok
}

// Resolver maps a call context to the principal the operation acts as.
type Resolver interface {
	Caller(ctx context.Context) (types.Principal, error)
}

// Direct resolves the caller to the context sender.
type Direct struct{}

func (Direct) Caller(ctx context.Context) (types.Principal, error) {
	sender, ok := Sender(ctx)
	if !ok || sender == (types.Principal{}) {
		return types.Principal{}, types.ErrInvalidArgumentf("no caller in context")
	}
	return sender, nil
}

// TrustedRelay resolves relayed calls: when the sender is a registered
// relayer and the context carries a relayed origin, the origin is the
// effective caller. In every other case resolution falls back to the
// sender itself.
type TrustedRelay struct {
	relayers map[types.Principal]struct{}
}

func NewTrustedRelay(relayers ...types.Principal) *TrustedRelay {
	r := &TrustedRelay{relayers: make(map[types.Principal]struct{}, len(relayers))}
	for _, relayer := range relayers {
		r.relayers[relayer] = struct{}{}
	}
	return r
}

func (r *TrustedRelay) Caller(ctx context.Context) (types.Principal, error) {
	sender, err := Direct{}.Caller(ctx)
	if err != nil {
		return types.Principal{}, err
	}
	if _, ok := r.relayers[sender]; !ok {
		return sender, nil
	}
	if origin, ok := relayedOrigin(ctx); ok && origin != (types.Principal{}) {
		return origin, nil
	}
	return sender, nil
}
