package keystore

import (
	"fmt"

	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// Holder keys live at m/44'/7331'/0'/0/i.
const (
	purpose  = bip32.FirstHardenedChild + 44
	coinType = bip32.FirstHardenedChild + 7331
	account  = bip32.FirstHardenedChild + 0
	external = 0
)

// HolderPath returns the derivation path string for index i.
func HolderPath(i uint32) string {
	return fmt.Sprintf("m/44'/7331'/0'/0/%d", i)
}

// DeriveHolderKey derives the signing key for holder index i from a BIP-39 seed.
func DeriveHolderKey(seed []byte, i uint32) (*crypto.PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	if i >= bip32.FirstHardenedChild {
		return nil, fmt.Errorf("holder index %d out of range", i)
	}
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	for _, idx := range []uint32{purpose, coinType, account, external, i} {
		if key, err = key.NewChildKey(idx); err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
	}
	// bip32 stores private keys as 33 bytes with a leading zero.
	raw := key.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return crypto.PrivateKeyFromBytes(raw)
}

// HolderAddress derives the address for holder index i.
func HolderAddress(seed []byte, i uint32) (types.Address, error) {
	key, err := DeriveHolderKey(seed, i)
	if err != nil {
		return types.Address{}, err
	}
	defer key.Zero()
	return key.Address(), nil
}
