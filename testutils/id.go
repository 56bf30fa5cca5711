package testutils

import (
	"crypto/rand"
	"testing"

	"github.com/bridgemint/bridgemint-go/types"
)

/*
Random fills the buf with random bytes.
Meant to be used as argument for the generator functions in this package.
*/
func Random(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

// RandomPrincipal returns a random nonzero principal.
func RandomPrincipal(t *testing.T) types.Principal {
	var p types.Principal
	if err := Random(p[:]); err != nil {
		t.Fatal("failed to generate principal:", err)
	}
	if p == (types.Principal{}) {
		p[0] = 1
	}
	return p
}

// RandomTokenID returns a random nonzero token ID. Such an ID is
// outside the registry's issued range with overwhelming probability,
// which makes it a stand-in for a bridged foreign token.
func RandomTokenID(t *testing.T) types.TokenID {
	buf := make([]byte, types.TokenIDLength)
	if err := Random(buf); err != nil {
		t.Fatal("failed to generate token ID:", err)
	}
	id, err := types.BytesToTokenID(buf)
	if err != nil {
		t.Fatal("failed to generate token ID:", err)
	}
	if id == 0 {
		id = 1
	}
	return id
}

// RandomBytes returns n random bytes.
func RandomBytes(t *testing.T, n int) []byte {
	buf := make([]byte, n)
	if err := Random(buf); err != nil {
		t.Fatal("failed to generate random bytes:", err)
	}
	return buf
}
