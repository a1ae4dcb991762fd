package staking

import (
	"fmt"

	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/holiman/uint256"
)

// Payout returns holder's settled, unclaimed balance.
func (l *Ledger) Payout(holder types.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.st.balances[holder]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

// PreviewPayout returns what holder's balance would be after a settlement
// now. Nothing is written.
func (l *Ledger) PreviewPayout(holder types.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx := newTxn(l.st)
	if _, err := l.settle(tx, l.clock.Now()); err != nil {
		return nil, err
	}
	return tx.balance(holder), nil
}

// Earnings returns the pool emitted but not yet settled:
// E(now - start) - emitted - unallocated.
func (l *Ledger) Earnings() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pending(l.st.meta, l.clock.Now())
}

// EarningsForEra returns E(now - start), the curve's cumulative output.
func (l *Ledger) EarningsForEra() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.emittedAt(l.st.meta, l.clock.Now())
}

// Now returns the ledger clock's current time in unix seconds.
func (l *Ledger) Now() uint64 {
	return l.clock.Now()
}

// ContractStart returns the ledger's creation time in unix seconds.
func (l *Ledger) ContractStart() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.meta.ContractStart
}

// TotalStaked returns the number of staked items.
func (l *Ledger) TotalStaked() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.meta.Count
}

// Ranks returns all stakes in rank order.
func (l *Ledger) Ranks() ([]RankedStake, error) {
	return l.collect(func(*Stake) bool { return true })
}

// StakesOf returns holder's stakes in rank order.
func (l *Ledger) StakesOf(holder types.Address) ([]RankedStake, error) {
	return l.collect(func(st *Stake) bool { return st.Holder == holder })
}

// StakeInfo returns the stake on id with its current rank.
func (l *Ledger) StakeInfo(id types.ItemID) (RankedStake, bool, error) {
	out, err := l.collect(func(st *Stake) bool { return st.ItemID == id })
	if err != nil || len(out) == 0 {
		return RankedStake{}, false, err
	}
	return out[0], true, nil
}

func (l *Ledger) collect(keep func(*Stake) bool) ([]RankedStake, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []RankedStake{}
	err := newTxn(l.st).walk(func(rank uint64, st *Stake) error {
		if keep(st) {
			out = append(out, RankedStake{Stake: *st, Rank: rank})
		}
		return nil
	})
	return out, err
}

// Totals returns a snapshot of the global counters.
func (l *Ledger) Totals() Totals {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalsLocked()
}

func (l *Ledger) totalsLocked() Totals {
	m := l.st.meta
	return Totals{
		ContractStart: m.ContractStart,
		LastSettledAt: m.LastSettledAt,
		Staked:        m.Count,
		Emitted:       new(uint256.Int).Set(m.Emitted),
		Unallocated:   new(uint256.Int).Set(m.Unallocated),
		Claimed:       new(uint256.Int).Set(m.Claimed),
		Outstanding:   new(uint256.Int).Sub(m.Emitted, m.Claimed),
	}
}

// CheckConservation verifies sum(balances) + claimed == emitted and that
// nothing was released beyond the curve.
func (l *Ledger) CheckConservation() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.checkConservation()
}

func (l *Ledger) checkConservation() error {
	m := l.st.meta
	sum := new(uint256.Int).Set(m.Claimed)
	for _, v := range l.st.balances {
		sum.Add(sum, v)
	}
	if !sum.Eq(m.Emitted) {
		return fmt.Errorf("%w: balances+claimed %s, emitted %s", ErrConservation, sum, m.Emitted)
	}
	released := new(uint256.Int).Add(m.Emitted, m.Unallocated)
	if limit := l.emittedAt(m, m.LastSettledAt); released.Gt(limit) {
		return fmt.Errorf("%w: released %s exceeds curve %s", ErrConservation, released, limit)
	}
	return nil
}
