// Package provenance implements the pre-committed hash chain that binds each
// item id to its rarity before any item is revealed.
//
// For entries i = 0..n-1:
//
//	item[i]    = H(word(id) || word(rarity) || salt)
//	running[i] = H(running[i-1] || item[i]),   running[-1] = seed
//
// where word is the 32-byte big-endian encoding. Inclusion of one entry is
// checked from its item hash, its running hash and the preceding running
// hash alone.
package provenance

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/types"
)

var (
	ErrAlreadyInitialized = errors.New("provenance already initialized")
	ErrZeroSeed           = errors.New("seed must not be zero")
	ErrNotInitialized     = errors.New("provenance not initialized")
	ErrChainMismatch      = errors.New("running hash does not extend the chain tip")
	ErrAlreadyCommitted   = errors.New("item already committed")
	ErrDuplicateRarity    = errors.New("rarity already assigned")
	ErrZeroItem           = errors.New("item id must be positive")
)

// MismatchError reports the first entry whose hashes do not replay.
type MismatchError struct {
	Index int
	Field string // "itemHash" or "runningHash"
	Want  types.Hash
	Got   types.Hash
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("provenance mismatch at entry %d (%s): want %s, got %s", e.Index, e.Field, e.Want, e.Got)
}

func (e *MismatchError) Unwrap() error {
	return ErrChainMismatch
}

// Entry is one committed (item, rarity) binding.
type Entry struct {
	ItemID   types.ItemID `json:"itemId"`
	Rarity   uint64       `json:"rarity"`
	ItemHash types.Hash   `json:"itemHash"`
	Running  types.Hash   `json:"runningHash"`
}

// Assignment is an (item, rarity) pair from the collection manifest.
type Assignment struct {
	ItemID types.ItemID `json:"itemId" yaml:"id"`
	Rarity uint64       `json:"rarity" yaml:"rarity"`
}

func word(v uint64) []byte {
	var w [32]byte
	binary.BigEndian.PutUint64(w[24:], v)
	return w[:]
}

// ItemHash computes the per-item commitment H(word(id) || word(rarity) || salt).
func ItemHash(h crypto.Hasher, id types.ItemID, rarity uint64, salt types.Hash) types.Hash {
	return h(word(uint64(id)), word(rarity), salt[:])
}

// ConcatenateHash returns H(a || b).
func ConcatenateHash(h crypto.Hasher, a, b types.Hash) types.Hash {
	return crypto.HashConcat(h, a, b)
}

// VerifyInclusion checks a single link: running == H(prev || itemHash).
func VerifyInclusion(h crypto.Hasher, prev, itemHash, running types.Hash) bool {
	return ConcatenateHash(h, prev, itemHash) == running
}

// Build precomputes the full chain for a manifest. Operators run it before
// publishing the seed; the result is the exact sequence of Commit arguments.
func Build(h crypto.Hasher, seed, salt types.Hash, assignments []Assignment) ([]Entry, error) {
	if seed.IsZero() {
		return nil, ErrZeroSeed
	}
	ids := make(map[types.ItemID]struct{}, len(assignments))
	rarities := make(map[uint64]struct{}, len(assignments))
	entries := make([]Entry, 0, len(assignments))
	prev := seed
	for i, a := range assignments {
		if a.ItemID.IsZero() {
			return nil, fmt.Errorf("assignment %d: %w", i, ErrZeroItem)
		}
		if _, ok := ids[a.ItemID]; ok {
			return nil, fmt.Errorf("assignment %d (item %d): %w", i, a.ItemID, ErrAlreadyCommitted)
		}
		if _, ok := rarities[a.Rarity]; ok {
			return nil, fmt.Errorf("assignment %d (rarity %d): %w", i, a.Rarity, ErrDuplicateRarity)
		}
		ids[a.ItemID] = struct{}{}
		rarities[a.Rarity] = struct{}{}

		item := ItemHash(h, a.ItemID, a.Rarity, salt)
		running := ConcatenateHash(h, prev, item)
		entries = append(entries, Entry{ItemID: a.ItemID, Rarity: a.Rarity, ItemHash: item, Running: running})
		prev = running
	}
	return entries, nil
}

// Verify replays the running hashes of entries from seed and returns a
// *MismatchError for the first entry that does not match.
func Verify(h crypto.Hasher, seed types.Hash, entries []Entry) error {
	prev := seed
	for i, e := range entries {
		want := ConcatenateHash(h, prev, e.ItemHash)
		if want != e.Running {
			return &MismatchError{Index: i, Field: "runningHash", Want: want, Got: e.Running}
		}
		prev = e.Running
	}
	return nil
}

// VerifyHashes replays a bare sequence of item hashes against the recorded
// running hashes.
func VerifyHashes(h crypto.Hasher, seed types.Hash, itemHashes, recorded []types.Hash) error {
	if len(itemHashes) != len(recorded) {
		return fmt.Errorf("%w: %d item hashes, %d running hashes", ErrChainMismatch, len(itemHashes), len(recorded))
	}
	entries := make([]Entry, len(itemHashes))
	for i := range itemHashes {
		entries[i] = Entry{ItemHash: itemHashes[i], Running: recorded[i]}
	}
	return Verify(h, seed, entries)
}

// Audit is Verify plus a check that every item hash derives from its
// (id, rarity) under the revealed salt.
func Audit(h crypto.Hasher, seed, salt types.Hash, entries []Entry) error {
	for i, e := range entries {
		want := ItemHash(h, e.ItemID, e.Rarity, salt)
		if want != e.ItemHash {
			return &MismatchError{Index: i, Field: "itemHash", Want: want, Got: e.ItemHash}
		}
	}
	return Verify(h, seed, entries)
}
