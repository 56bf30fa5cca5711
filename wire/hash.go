package wire

import (
	"crypto"
	_ "crypto/sha256"
)

// HashCBOR encodes "data" to canonical CBOR and hashes the encoding with the
// provided algorithm. The data parameter should be a CBOR struct with the
// "toarray" tag; hashing the encoding instead of concatenated fields avoids
// field offset attacks where two different values yield the same digest.
func HashCBOR(data any, hashAlgorithm crypto.Hash) ([]byte, error) {
	buf, err := Marshal(data)
	if err != nil {
		return nil, err
	}
	hasher := hashAlgorithm.New()
	hasher.Write(buf)
	return hasher.Sum(nil), nil
}

// Digest is HashCBOR with SHA-256, the ledger's record digest algorithm.
func Digest(data any) ([]byte, error) {
	return HashCBOR(data, crypto.SHA256)
}
