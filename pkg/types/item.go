package types

import (
	"encoding/binary"
	"sort"
)

// ItemID identifies one collectible. IDs are positive; zero is the "no item"
// sentinel used by the stake index links.
type ItemID uint64

// IsZero reports whether the id is the sentinel value.
func (id ItemID) IsZero() bool {
	return id == 0
}

// Key returns the 8-byte big-endian encoding used in storage keys, so that
// prefix iteration visits items in ascending id order.
func (id ItemID) Key() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

// ItemIDFromKey decodes an id produced by Key.
func ItemIDFromKey(b []byte) ItemID {
	if len(b) < 8 {
		return 0
	}
	return ItemID(binary.BigEndian.Uint64(b[:8]))
}

// SortItemIDs sorts ids ascending in place.
func SortItemIDs(ids []ItemID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
