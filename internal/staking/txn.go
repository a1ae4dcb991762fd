package staking

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/holiman/uint256"
)

// state is the committed in-memory ledger.
type state struct {
	meta     meta
	stakes   map[types.ItemID]*Stake
	balances map[types.Address]*uint256.Int
}

// txn is a journal over state. Reads fall through to the base state, writes
// stay in the overlay until commit. Collaborator effects run through effect
// and are undone in reverse order if the operation aborts.
type txn struct {
	base     *state
	meta     meta
	stakes   map[types.ItemID]*Stake // nil value marks a deleted stake
	balances map[types.Address]*uint256.Int
	undo     []func() error
}

func newTxn(base *state) *txn {
	return &txn{
		base:     base,
		meta:     base.meta.clone(),
		stakes:   make(map[types.ItemID]*Stake),
		balances: make(map[types.Address]*uint256.Int),
	}
}

// stake returns the current view of a stake, or nil. Callers must not mutate it.
func (tx *txn) stake(id types.ItemID) *Stake {
	if st, ok := tx.stakes[id]; ok {
		return st
	}
	return tx.base.stakes[id]
}

// mutStake returns a writable copy of a stake held in the overlay.
func (tx *txn) mutStake(id types.ItemID) *Stake {
	if st, ok := tx.stakes[id]; ok {
		return st
	}
	base, ok := tx.base.stakes[id]
	if !ok {
		return nil
	}
	cp := *base
	tx.stakes[id] = &cp
	return &cp
}

func (tx *txn) balance(addr types.Address) *uint256.Int {
	if v, ok := tx.balances[addr]; ok {
		return new(uint256.Int).Set(v)
	}
	if v, ok := tx.base.balances[addr]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (tx *txn) setBalance(addr types.Address, v *uint256.Int) {
	tx.balances[addr] = new(uint256.Int).Set(v)
}

// insert links a new stake into the ordered index. The list is ordered by
// (StakedAt, ItemID); stakes normally land at the tail.
func (tx *txn) insert(st *Stake) {
	st.Prev, st.Next = 0, 0
	after := tx.meta.Tail
	for !after.IsZero() {
		cur := tx.stake(after)
		if cur.StakedAt < st.StakedAt || (cur.StakedAt == st.StakedAt && cur.ItemID < st.ItemID) {
			break
		}
		after = cur.Prev
	}

	var before types.ItemID
	if after.IsZero() {
		before = tx.meta.Head
		tx.meta.Head = st.ItemID
	} else {
		prev := tx.mutStake(after)
		before = prev.Next
		prev.Next = st.ItemID
	}
	st.Prev = after
	st.Next = before
	if before.IsZero() {
		tx.meta.Tail = st.ItemID
	} else {
		tx.mutStake(before).Prev = st.ItemID
	}

	tx.stakes[st.ItemID] = st
	tx.meta.Count++
}

// remove unlinks a stake from the ordered index and deletes it.
func (tx *txn) remove(id types.ItemID) {
	st := tx.stake(id)
	if st == nil {
		return
	}
	prev, next := st.Prev, st.Next
	if prev.IsZero() {
		tx.meta.Head = next
	} else {
		tx.mutStake(prev).Next = next
	}
	if next.IsZero() {
		tx.meta.Tail = prev
	} else {
		tx.mutStake(next).Prev = prev
	}
	tx.stakes[id] = nil
	tx.meta.Count--
}

// walk visits stakes in rank order.
func (tx *txn) walk(fn func(rank uint64, st *Stake) error) error {
	var rank uint64
	for id := tx.meta.Head; !id.IsZero(); rank++ {
		st := tx.stake(id)
		if st == nil || rank >= tx.meta.Count {
			return fmt.Errorf("%w: broken link at item %d", ErrCorruptIndex, id)
		}
		if err := fn(rank, st); err != nil {
			return err
		}
		id = st.Next
	}
	if rank != tx.meta.Count {
		return fmt.Errorf("%w: walked %d stakes, count %d", ErrCorruptIndex, rank, tx.meta.Count)
	}
	return nil
}

// effect runs a collaborator call and records its compensation.
func (tx *txn) effect(do, undo func() error) error {
	if err := do(); err != nil {
		return err
	}
	tx.undo = append(tx.undo, undo)
	return nil
}

// rollback runs compensations newest first.
func (tx *txn) rollback() error {
	var errs []error
	for i := len(tx.undo) - 1; i >= 0; i-- {
		if err := tx.undo[i](); err != nil {
			errs = append(errs, err)
		}
	}
	tx.undo = nil
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrCompensation, errors.Join(errs...))
	}
	return nil
}

// commit persists the overlay in one batch.
func (tx *txn) commit(store *Store) error {
	batch := store.newBatch()
	if err := writeMeta(batch, tx.meta); err != nil {
		return err
	}
	for id, st := range tx.stakes {
		var err error
		if st == nil {
			err = batch.Delete(stakeKey(id))
		} else {
			err = writeStake(batch, st)
		}
		if err != nil {
			return err
		}
	}
	for addr, v := range tx.balances {
		if err := writeBalance(batch, addr, v); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit staking batch: %w", err)
	}
	return nil
}

// apply merges the overlay into the base state. Only called after commit.
func (tx *txn) apply() {
	tx.base.meta = tx.meta
	for id, st := range tx.stakes {
		if st == nil {
			delete(tx.base.stakes, id)
		} else {
			tx.base.stakes[id] = st
		}
	}
	for addr, v := range tx.balances {
		if v.IsZero() {
			delete(tx.base.balances, addr)
		} else {
			tx.base.balances[addr] = v
		}
	}
}
