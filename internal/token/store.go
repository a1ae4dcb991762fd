package token

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/locker/internal/storage"
	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/holiman/uint256"
)

var (
	keyMeta          = []byte("meta")   // Metadata JSON
	keySupply        = []byte("supply") // 32-byte big-endian
	prefixController = []byte("c/")     // c/<addr> -> 0x01
	prefixBalance    = []byte("b/")     // b/<addr> -> 32-byte big-endian
)

// Store persists token state.
type Store struct {
	db storage.DB
}

// NewStore creates a token store.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Metadata returns the stored metadata, ok=false when none is stored.
func (s *Store) Metadata() (Metadata, bool, error) {
	data, err := s.db.Get(keyMeta)
	if errors.Is(err, storage.ErrNotFound) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("token meta get: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, false, fmt.Errorf("token meta unmarshal: %w", err)
	}
	return meta, true, nil
}

// PutMetadata stores the token description.
func (s *Store) PutMetadata(meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("token meta marshal: %w", err)
	}
	return s.db.Put(keyMeta, data)
}

// PutController adds addr to the allow-list.
func (s *Store) PutController(addr types.Address) error {
	return s.db.Put(addrKey(prefixController, addr), []byte{1})
}

// DeleteController removes addr from the allow-list.
func (s *Store) DeleteController(addr types.Address) error {
	return s.db.Delete(addrKey(prefixController, addr))
}

// Controllers loads the allow-list.
func (s *Store) Controllers() (map[types.Address]bool, error) {
	out := make(map[types.Address]bool)
	err := s.db.ForEach(prefixController, func(key, _ []byte) error {
		addr, err := keyAddr(prefixController, key)
		if err != nil {
			return err
		}
		out[addr] = true
		return nil
	})
	return out, err
}

// Balances loads every non-zero balance.
func (s *Store) Balances() (map[types.Address]*uint256.Int, error) {
	out := make(map[types.Address]*uint256.Int)
	err := s.db.ForEach(prefixBalance, func(key, value []byte) error {
		addr, err := keyAddr(prefixBalance, key)
		if err != nil {
			return err
		}
		if len(value) != 32 {
			return fmt.Errorf("token balance %s: malformed value", addr)
		}
		out[addr] = new(uint256.Int).SetBytes32(value)
		return nil
	})
	return out, err
}

// Supply loads the total supply, zero when unset.
func (s *Store) Supply() (*uint256.Int, error) {
	data, err := s.db.Get(keySupply)
	if errors.Is(err, storage.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("token supply get: %w", err)
	}
	if len(data) != 32 {
		return nil, fmt.Errorf("token supply: malformed value")
	}
	return new(uint256.Int).SetBytes32(data), nil
}

// WriteBalance stores a balance and the resulting supply in one batch.
func (s *Store) WriteBalance(addr types.Address, balance, supply *uint256.Int) error {
	batch := storage.NewBatch(s.db)
	key := addrKey(prefixBalance, addr)
	var err error
	if balance.IsZero() {
		err = batch.Delete(key)
	} else {
		b := balance.Bytes32()
		err = batch.Put(key, b[:])
	}
	if err != nil {
		return err
	}
	sup := supply.Bytes32()
	if err := batch.Put(keySupply, sup[:]); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("token balance commit: %w", err)
	}
	return nil
}

func addrKey(prefix []byte, addr types.Address) []byte {
	key := make([]byte, len(prefix)+types.AddressSize)
	copy(key, prefix)
	copy(key[len(prefix):], addr[:])
	return key
}

func keyAddr(prefix, key []byte) (types.Address, error) {
	var addr types.Address
	if len(key) != len(prefix)+types.AddressSize {
		return addr, fmt.Errorf("token key %x: malformed", key)
	}
	copy(addr[:], key[len(prefix):])
	return addr, nil
}

func sortAddresses(addrs []types.Address) {
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })
}
