package types

import (
	"github.com/bridgemint/bridgemint-go/wire"
)

const (
	// TransferMint records creation of units into a holder's balance.
	TransferMint TransferKind = 1
	// TransferBurn records destruction of units from a holder's balance.
	TransferBurn TransferKind = 2
	// TransferSend records movement of units between two holders.
	TransferSend TransferKind = 3
)

type (
	TransferKind uint64

	// TransferRecord describes one applied balance mutation. A record is
	// emitted only after the mutation has been committed, so observers
	// never see a record for a rejected operation. Batch operations emit
	// a single record carrying all affected token IDs.
	TransferRecord struct {
		_        struct{} `cbor:",toarray"`
		Kind     TransferKind
		Operator Principal // resolved caller that triggered the mutation
		From     Principal // zero address for mints
		To       Principal // zero address for burns
		IDs      []TokenID
		Amounts  []uint64
		Aux      []byte // passthrough metadata of mints, nil otherwise
	}
)

func (r *TransferRecord) Bytes() ([]byte, error) {
	return wire.Marshal(r)
}

// Hash returns the canonical digest of the record, usable as a stable
// reference to the mutation.
func (r *TransferRecord) Hash() ([]byte, error) {
	return wire.Digest(r)
}
