package provenance

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/locker/internal/storage"
	"github.com/Klingon-tech/locker/pkg/types"
)

var (
	keySeed        = []byte("seed")   // seed -> 32 bytes
	keyHasher      = []byte("hasher") // hasher -> name
	keyPublication = []byte("pub")    // pub -> Publication JSON
	prefixEntry    = []byte("e/")     // e/<index(8)> -> Entry JSON
)

// Store persists the provenance chain.
type Store struct {
	db storage.DB
}

// NewStore creates a provenance store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Seed returns the stored seed and hasher name, or ok=false before initialization.
func (s *Store) Seed() (seed types.Hash, hasher string, ok bool, err error) {
	data, err := s.db.Get(keySeed)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, "", false, nil
	}
	if err != nil {
		return types.Hash{}, "", false, fmt.Errorf("provenance seed get: %w", err)
	}
	if len(data) != types.HashSize {
		return types.Hash{}, "", false, fmt.Errorf("provenance seed: corrupt length %d", len(data))
	}
	copy(seed[:], data)
	name, err := s.db.Get(keyHasher)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, "", false, fmt.Errorf("provenance hasher get: %w", err)
	}
	return seed, string(name), true, nil
}

// Publication returns the signed seed publication, if one was stored.
func (s *Store) Publication() (*Publication, error) {
	data, err := s.db.Get(keyPublication)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("provenance publication get: %w", err)
	}
	var pub Publication
	if err := json.Unmarshal(data, &pub); err != nil {
		return nil, fmt.Errorf("provenance publication unmarshal: %w", err)
	}
	return &pub, nil
}

// Entries loads every committed entry in commit order.
func (s *Store) Entries() ([]Entry, error) {
	var entries []Entry
	err := s.db.ForEach(prefixEntry, func(key, value []byte) error {
		var e Entry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("provenance entry %x: %w", key, err)
		}
		idx := binary.BigEndian.Uint64(key[len(prefixEntry):])
		if idx != uint64(len(entries)) {
			return fmt.Errorf("provenance entry gap at %d", len(entries))
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) writeSeed(b storage.Batch, seed types.Hash, hasher string, pub *Publication) error {
	if err := b.Put(keySeed, seed[:]); err != nil {
		return err
	}
	if err := b.Put(keyHasher, []byte(hasher)); err != nil {
		return err
	}
	if pub == nil {
		return nil
	}
	data, err := json.Marshal(pub)
	if err != nil {
		return fmt.Errorf("provenance publication marshal: %w", err)
	}
	return b.Put(keyPublication, data)
}

func (s *Store) writeEntry(b storage.Batch, index int, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("provenance entry marshal: %w", err)
	}
	return b.Put(entryKey(index), data)
}

func (s *Store) newBatch() storage.Batch {
	return storage.NewBatch(s.db)
}

func entryKey(index int) []byte {
	key := make([]byte, len(prefixEntry)+8)
	copy(key, prefixEntry)
	binary.BigEndian.PutUint64(key[len(prefixEntry):], uint64(index))
	return key
}
