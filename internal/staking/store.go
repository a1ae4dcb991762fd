package staking

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/locker/internal/storage"
	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/holiman/uint256"
)

// Key layout within the staking namespace.
var (
	keyMeta       = []byte("meta")
	prefixStake   = []byte("k/") // k/<itemID(8)> -> Stake JSON
	prefixBalance = []byte("b/") // b/<address(20)> -> balance(32)
)

// meta holds the global counters and list ends.
type meta struct {
	ContractStart uint64
	LastSettledAt uint64
	Emitted       *uint256.Int
	Unallocated   *uint256.Int
	Claimed       *uint256.Int
	Head, Tail    types.ItemID
	Count         uint64
	P0, Total     *uint256.Int
}

// metaRecord is the stored form of meta; amounts are decimal strings.
type metaRecord struct {
	ContractStart uint64       `json:"contractStart"`
	LastSettledAt uint64       `json:"lastSettledAt"`
	Emitted       string       `json:"emitted"`
	Unallocated   string       `json:"unallocated"`
	Claimed       string       `json:"claimed"`
	Head          types.ItemID `json:"head"`
	Tail          types.ItemID `json:"tail"`
	Count         uint64       `json:"count"`
	P0            string       `json:"p0"`
	Total         string       `json:"total"`
}

func (m meta) clone() meta {
	out := m
	out.Emitted = new(uint256.Int).Set(m.Emitted)
	out.Unallocated = new(uint256.Int).Set(m.Unallocated)
	out.Claimed = new(uint256.Int).Set(m.Claimed)
	out.P0 = new(uint256.Int).Set(m.P0)
	out.Total = new(uint256.Int).Set(m.Total)
	return out
}

func (m meta) record() metaRecord {
	return metaRecord{
		ContractStart: m.ContractStart,
		LastSettledAt: m.LastSettledAt,
		Emitted:       m.Emitted.Dec(),
		Unallocated:   m.Unallocated.Dec(),
		Claimed:       m.Claimed.Dec(),
		Head:          m.Head,
		Tail:          m.Tail,
		Count:         m.Count,
		P0:            m.P0.Dec(),
		Total:         m.Total.Dec(),
	}
}

func (r metaRecord) meta() (meta, error) {
	m := meta{
		ContractStart: r.ContractStart,
		LastSettledAt: r.LastSettledAt,
		Head:          r.Head,
		Tail:          r.Tail,
		Count:         r.Count,
	}
	fields := []struct {
		dst **uint256.Int
		src string
	}{
		{&m.Emitted, r.Emitted},
		{&m.Unallocated, r.Unallocated},
		{&m.Claimed, r.Claimed},
		{&m.P0, r.P0},
		{&m.Total, r.Total},
	}
	for _, f := range fields {
		v, err := uint256.FromDecimal(f.src)
		if err != nil {
			return meta{}, fmt.Errorf("staking meta amount %q: %w", f.src, err)
		}
		*f.dst = v
	}
	return m, nil
}

// Store persists ledger state.
type Store struct {
	db storage.DB
}

// NewStore creates a staking store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// loadMeta returns ok=false for a fresh ledger.
func (s *Store) loadMeta() (meta, bool, error) {
	data, err := s.db.Get(keyMeta)
	if errors.Is(err, storage.ErrNotFound) {
		return meta{}, false, nil
	}
	if err != nil {
		return meta{}, false, fmt.Errorf("staking meta get: %w", err)
	}
	var rec metaRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return meta{}, false, fmt.Errorf("staking meta unmarshal: %w", err)
	}
	m, err := rec.meta()
	if err != nil {
		return meta{}, false, err
	}
	return m, true, nil
}

func (s *Store) loadStakes() (map[types.ItemID]*Stake, error) {
	stakes := make(map[types.ItemID]*Stake)
	err := s.db.ForEach(prefixStake, func(key, value []byte) error {
		var st Stake
		if err := json.Unmarshal(value, &st); err != nil {
			return fmt.Errorf("staking stake %x: %w", key, err)
		}
		if id := types.ItemIDFromKey(key[len(prefixStake):]); id != st.ItemID {
			return fmt.Errorf("%w: key %d holds item %d", ErrCorruptIndex, id, st.ItemID)
		}
		stakes[st.ItemID] = &st
		return nil
	})
	return stakes, err
}

func (s *Store) loadBalances() (map[types.Address]*uint256.Int, error) {
	balances := make(map[types.Address]*uint256.Int)
	err := s.db.ForEach(prefixBalance, func(key, value []byte) error {
		if len(key) != len(prefixBalance)+types.AddressSize || len(value) != 32 {
			return fmt.Errorf("staking balance %x: malformed entry", key)
		}
		var addr types.Address
		copy(addr[:], key[len(prefixBalance):])
		balances[addr] = new(uint256.Int).SetBytes32(value)
		return nil
	})
	return balances, err
}

func (s *Store) newBatch() storage.Batch {
	return storage.NewBatch(s.db)
}

func writeMeta(b storage.Batch, m meta) error {
	data, err := json.Marshal(m.record())
	if err != nil {
		return fmt.Errorf("staking meta marshal: %w", err)
	}
	return b.Put(keyMeta, data)
}

func writeStake(b storage.Batch, st *Stake) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("staking stake marshal: %w", err)
	}
	return b.Put(stakeKey(st.ItemID), data)
}

func writeBalance(b storage.Batch, addr types.Address, v *uint256.Int) error {
	if v.IsZero() {
		return b.Delete(balanceKey(addr))
	}
	buf := v.Bytes32()
	return b.Put(balanceKey(addr), buf[:])
}

func stakeKey(id types.ItemID) []byte {
	return append(append([]byte{}, prefixStake...), id.Key()...)
}

func balanceKey(addr types.Address) []byte {
	return append(append([]byte{}, prefixBalance...), addr[:]...)
}
