package types

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	TokenIDLength = 8
	RoleIDLength  = 32
)

type (
	// TokenID identifies a token class within a ledger instance. IDs are
	// assigned by the registry starting from 1; 0 is never assigned and
	// serves as the "no token" value.
	TokenID uint64

	// RoleID identifies a permission class. The zero value is the admin
	// role, other roles are derived by hashing their canonical name.
	RoleID [RoleIDLength]byte

	// Principal is an account that holds balances, carries roles and
	// invokes operations. The zero address is reserved and is never a
	// valid holder.
	Principal = common.Address
)

func (id TokenID) Bytes() []byte {
	b := make([]byte, TokenIDLength)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func (id TokenID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

func BytesToTokenID(b []byte) (TokenID, error) {
	if len(b) != TokenIDLength {
		return 0, fmt.Errorf("token ID length must be %d bytes, got %d bytes", TokenIDLength, len(b))
	}

	return TokenID(binary.BigEndian.Uint64(b)), nil
}

func (rid RoleID) Bytes() []byte {
	return rid[:]
}

func (rid RoleID) String() string {
	return fmt.Sprintf("%X", rid[:])
}
