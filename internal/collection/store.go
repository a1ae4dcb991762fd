package collection

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/locker/internal/storage"
	"github.com/Klingon-tech/locker/pkg/types"
)

var prefixItem = []byte("i/") // i/<id(8)> -> Item JSON

// Store persists minted items.
type Store struct {
	db storage.DB
}

// NewStore creates an item store.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Put writes an item record.
func (s *Store) Put(it *Item) error {
	data, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("item marshal: %w", err)
	}
	return s.db.Put(itemKey(it.ID), data)
}

// Delete removes an item record.
func (s *Store) Delete(id types.ItemID) error {
	return s.db.Delete(itemKey(id))
}

// ForEach visits stored items in ascending id order.
func (s *Store) ForEach(fn func(*Item) error) error {
	return s.db.ForEach(prefixItem, func(key, value []byte) error {
		var it Item
		if err := json.Unmarshal(value, &it); err != nil {
			return fmt.Errorf("item %x unmarshal: %w", key, err)
		}
		if id := types.ItemIDFromKey(key[len(prefixItem):]); id != it.ID {
			return fmt.Errorf("item key %d holds item %d", id, it.ID)
		}
		return fn(&it)
	})
}

func itemKey(id types.ItemID) []byte {
	return append(append([]byte{}, prefixItem...), id.Key()...)
}
