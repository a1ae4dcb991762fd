package staking

import (
	"fmt"

	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/payout"
	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/holiman/uint256"
)

// emittedAt returns E(now - contractStart).
func (l *Ledger) emittedAt(m meta, now uint64) *uint256.Int {
	var era uint64
	if now > m.ContractStart {
		era = now - m.ContractStart
	}
	return l.curve.At(era)
}

// pending returns the curve output not yet credited or released.
func (l *Ledger) pending(m meta, now uint64) *uint256.Int {
	released := new(uint256.Int).Add(m.Emitted, m.Unallocated)
	return fixed.SubFloor(l.emittedAt(m, now), released)
}

// settle distributes the pending pool across staked items by rank. It is a
// no-op when the ledger already settled at or after now. With nothing staked
// the pool is recorded as unallocated. Rounding dust stays pending.
func (l *Ledger) settle(tx *txn, now uint64) (*Settlement, error) {
	s := &Settlement{
		At:          now,
		Staked:      tx.meta.Count,
		Pool:        new(uint256.Int),
		Distributed: new(uint256.Int),
		Unallocated: new(uint256.Int),
		Dust:        new(uint256.Int),
	}
	if now > tx.meta.ContractStart {
		s.Era = now - tx.meta.ContractStart
	}
	if now <= tx.meta.LastSettledAt {
		s.Skipped = true
		return s, nil
	}

	s.Pool = l.pending(tx.meta, now)
	tx.meta.LastSettledAt = now

	n := tx.meta.Count
	if n == 0 {
		s.Unallocated.Set(s.Pool)
		tx.meta.Unallocated.Add(tx.meta.Unallocated, s.Pool)
		klog.Ledger.Debug().
			Uint64("era", s.Era).
			Str("unallocated", fixed.Format(s.Pool)).
			Msg("Settlement with nothing staked")
		return s, nil
	}

	shares, dust, err := payout.Split(s.Pool, n)
	if err != nil {
		return nil, fmt.Errorf("split pool: %w", err)
	}
	s.Payouts = make([]ItemPayout, 0, n)
	err = tx.walk(func(rank uint64, st *Stake) error {
		share := shares[rank]
		if !share.IsZero() {
			bal := tx.balance(st.Holder)
			tx.setBalance(st.Holder, bal.Add(bal, share))
			s.Distributed.Add(s.Distributed, share)
		}
		tx.mutStake(st.ItemID).SettledAt = now
		s.Payouts = append(s.Payouts, ItemPayout{ItemID: st.ItemID, Holder: st.Holder, Rank: rank, Amount: share})
		return nil
	})
	if err != nil {
		return nil, err
	}
	tx.meta.Emitted.Add(tx.meta.Emitted, s.Distributed)
	s.Dust.Set(dust)

	klog.Ledger.Debug().
		Uint64("era", s.Era).
		Uint64("staked", n).
		Str("pool", fixed.Format(s.Pool)).
		Str("distributed", fixed.Format(s.Distributed)).
		Str("dust", s.Dust.Dec()).
		Msg("Settlement")
	return s, nil
}
