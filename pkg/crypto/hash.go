// Package crypto provides the hash functions, key derivation and Schnorr
// signatures used by the Locker engine.
package crypto

import (
	"fmt"

	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// Hasher names a 256-bit hash function usable for provenance chains.
type Hasher func(data ...[]byte) types.Hash

// Supported hasher names.
const (
	HasherKeccak256 = "keccak256"
	HasherBlake3    = "blake3"
)

// Keccak256 computes the legacy (pre-NIST) Keccak-256 digest of the
// concatenation of data, matching EVM keccak256.
func Keccak256(data ...[]byte) types.Hash {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	var h types.Hash
	d.Sum(h[:0])
	return h
}

// Blake3 computes a BLAKE3-256 digest of the concatenation of data.
func Blake3(data ...[]byte) types.Hash {
	d := blake3.New()
	for _, b := range data {
		d.Write(b)
	}
	var h types.Hash
	d.Sum(h[:0])
	return h
}

// Hash computes a BLAKE3-256 hash of the input data.
// Used for address derivation and storage checksums.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HasherByName resolves a configured hasher name. An empty name selects keccak256.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", HasherKeccak256:
		return Keccak256, nil
	case HasherBlake3:
		return Blake3, nil
	default:
		return nil, fmt.Errorf("unknown hasher %q", name)
	}
}

// HashConcat hashes the concatenation of two hashes with h.
func HashConcat(h Hasher, a, b types.Hash) types.Hash {
	return h(a[:], b[:])
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// AddressFromLabel derives a keyless system address (for example the staking
// custody account) from a fixed label. No private key exists for it.
func AddressFromLabel(label string) types.Address {
	h := Hash([]byte("locker/system/" + label))
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}
