package bridge

import (
	"github.com/bridgemint/bridgemint-go/types"
	"github.com/bridgemint/bridgemint-go/wire"
)

// DepositData is the deposit payload consumed by the gateway: the
// token IDs and amounts to credit, pairwise, plus opaque passthrough
// metadata. This is the only wire format the gateway understands;
// translating foreign formats into it is the receiver's job.
type DepositData struct {
	_       struct{} `cbor:",toarray"`
	IDs     []types.TokenID
	Amounts []uint64
	Aux     []byte
}

// EncodeDepositData serializes data into the canonical payload bytes.
func EncodeDepositData(data *DepositData) ([]byte, error) {
	return wire.Marshal(data)
}

// DecodeDepositData parses a deposit payload. Malformed bytes and
// unequal ID/amount sequences are invalid argument errors.
func DecodeDepositData(payload []byte) (*DepositData, error) {
	data := &DepositData{}
	if err := wire.Unmarshal(payload, data); err != nil {
		return nil, types.ErrInvalidArgumentf("decoding deposit payload: %v", err)
	}
	if len(data.IDs) != len(data.Amounts) {
		return nil, types.ErrInvalidArgumentf("deposit ids and amounts length mismatch: %d vs %d", len(data.IDs), len(data.Amounts))
	}
	return data, nil
}
