/*
Package wire provides the canonical serialization used by the ledger: CBOR
with Core Deterministic Encoding. Every persisted record and every bridge
payload goes through this package so that equal values always produce equal
bytes (and therefore equal digests).
*/
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// RawCBOR is an already encoded value carried through without re-encoding,
// used for opaque passthrough data such as the deposit aux field.
type RawCBOR []byte

var (
	encMode cbor.EncMode

	cborNil = []byte{0xf6}
)

/*
Set Core Deterministic Encoding as standard. See <https://www.rfc-editor.org/rfc/rfc8949.html#name-deterministically-encoded-c>.
*/
func cborEncoder() (_ cbor.EncMode, err error) {
	if encMode != nil {
		return encMode, nil
	}
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		return nil, err
	}
	return encMode, nil
}

func Marshal(v any) ([]byte, error) {
	enc, err := cborEncoder()
	if err != nil {
		return nil, err
	}
	return enc.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	enc, err := cborEncoder()
	if err != nil {
		return err
	}
	return enc.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return cbor.NewDecoder(r).Decode(v)
}

// MarshalCBOR returns r or CBOR nil if r is empty.
func (r RawCBOR) MarshalCBOR() ([]byte, error) {
	if len(r) == 0 {
		return cborNil, nil
	}
	return r, nil
}

// UnmarshalCBOR copies data into r unless it's CBOR "nil marker" - in that
// case r is set to empty slice.
func (r *RawCBOR) UnmarshalCBOR(data []byte) error {
	if r == nil {
		return errors.New("UnmarshalCBOR on nil pointer")
	}
	if bytes.Equal(data, cborNil) {
		*r = (*r)[0:0]
	} else {
		*r = append((*r)[0:0], data...)
	}
	return nil
}

func (r RawCBOR) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%X", []byte(r))), nil
}
