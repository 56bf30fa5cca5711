package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/bridgemint/bridgemint-go/identity"
	"github.com/bridgemint/bridgemint-go/storage"
	"github.com/bridgemint/bridgemint-go/types"
)

// ErrReplayedRecord is returned for a root chain record whose ID has
// already been processed.
var ErrReplayedRecord = errors.New("record already processed")

const processedKeyPrefix = "r:"

// rootDepositArgs is the ABI layout of a root chain deposit record
// payload: (uint256[] ids, uint256[] amounts, bytes data).
var rootDepositArgs = func() abi.Arguments {
	uints, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		panic(err)
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Name: "ids", Type: uints},
		{Name: "amounts", Type: uints},
		{Name: "data", Type: bytesType},
	}
}()

type (
	// DepositSink accepts translated deposit payloads. Implemented by
	// *Gateway.
	DepositSink interface {
		Deposit(ctx context.Context, user types.Principal, payload []byte) error
	}

	// Receiver consumes deposit records emitted by the root chain,
	// translates their ABI payloads into the gateway's format and
	// submits them under the depositor identity it was configured
	// with. It owns the replay defense the gateway does not provide:
	// each record ID is processed at most once.
	Receiver struct {
		mu    sync.Mutex
		sink  DepositSink
		store *storage.Store
		self  types.Principal
		log   *slog.Logger
	}
)

// NewReceiver builds a receiver submitting deposits as self, which
// must hold the depositor role on the gateway's access gate. A nil
// log falls back to slog.Default.
func NewReceiver(sink DepositSink, store *storage.Store, self types.Principal, log *slog.Logger) (*Receiver, error) {
	if sink == nil {
		return nil, errors.New("deposit sink is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if self == (types.Principal{}) {
		return nil, errors.New("depositor principal is the zero address")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Receiver{sink: sink, store: store, self: self, log: log}, nil
}

// OnRootRecord processes one deposit record from the root chain.
// Replays of an already processed record ID fail with
// ErrReplayedRecord and have no effect. The record is marked
// processed only after the mint commits, so a crash between the two
// can redeliver a record but never lose one.
func (r *Receiver) OnRootRecord(ctx context.Context, recordID uint64, user types.Principal, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := processedKey(recordID)
	seen, err := r.store.Has(key)
	if err != nil {
		return fmt.Errorf("reading processed record set: %w", err)
	}
	if seen {
		return fmt.Errorf("record %d: %w", recordID, ErrReplayedRecord)
	}

	data, err := decodeRootPayload(payload)
	if err != nil {
		return fmt.Errorf("record %d: %w", recordID, err)
	}
	encoded, err := EncodeDepositData(data)
	if err != nil {
		return fmt.Errorf("record %d: encoding deposit payload: %w", recordID, err)
	}

	ctx = identity.WithSender(ctx, r.self)
	if err := r.sink.Deposit(ctx, user, encoded); err != nil {
		return fmt.Errorf("record %d: %w", recordID, err)
	}
	if err := r.store.Set(key, nil); err != nil {
		return fmt.Errorf("record %d minted but not marked processed: %w", recordID, err)
	}
	r.log.Info("processed root deposit record", "record", recordID, "user", user.Hex(), "tokens", len(data.IDs))
	return nil
}

// decodeRootPayload unpacks a root chain ABI payload into the
// gateway's format. Values outside the uint64 token ID and amount
// ranges are invalid arguments, not truncated.
func decodeRootPayload(payload []byte) (*DepositData, error) {
	values, err := rootDepositArgs.Unpack(payload)
	if err != nil {
		return nil, types.ErrInvalidArgumentf("unpacking root deposit payload: %v", err)
	}
	rawIDs, ok := values[0].([]*big.Int)
	if !ok {
		return nil, types.ErrInvalidArgumentf("root deposit ids have unexpected type %T", values[0])
	}
	rawAmounts, ok := values[1].([]*big.Int)
	if !ok {
		return nil, types.ErrInvalidArgumentf("root deposit amounts have unexpected type %T", values[1])
	}
	aux, ok := values[2].([]byte)
	if !ok {
		return nil, types.ErrInvalidArgumentf("root deposit data has unexpected type %T", values[2])
	}
	if len(rawIDs) != len(rawAmounts) {
		return nil, types.ErrInvalidArgumentf("root deposit ids and amounts length mismatch: %d vs %d", len(rawIDs), len(rawAmounts))
	}
	data := &DepositData{
		IDs:     make([]types.TokenID, len(rawIDs)),
		Amounts: make([]uint64, len(rawAmounts)),
		Aux:     aux,
	}
	for i, id := range rawIDs {
		if !id.IsUint64() {
			return nil, types.ErrInvalidArgumentf("root deposit token ID %s is not representable", id)
		}
		data.IDs[i] = types.TokenID(id.Uint64())
	}
	for i, amount := range rawAmounts {
		if !amount.IsUint64() {
			return nil, types.ErrInvalidArgumentf("root deposit amount of token %s is not representable", data.IDs[i])
		}
		data.Amounts[i] = amount.Uint64()
	}
	return data, nil
}

func processedKey(recordID uint64) []byte {
	key := make([]byte, len(processedKeyPrefix)+8)
	copy(key, processedKeyPrefix)
	binary.BigEndian.PutUint64(key[len(processedKeyPrefix):], recordID)
	return key
}
