// Package staking implements the staking ledger: the registry of staked
// items, per-holder reward balances and era bookkeeping.
//
// Every mutating operation validates its input, stages its state changes in
// a journal, performs collaborator effects (custody transfers, reward mints)
// with recorded compensations, commits the journal in one storage batch and
// only then applies it in memory. A failure at any step runs the
// compensations, leaving no partial state.
package staking

import (
	"fmt"
	"sync"

	"github.com/Klingon-tech/locker/internal/earnings"
	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/storage"
	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/holiman/uint256"
)

// CustodyLabel derives the default custody address.
const CustodyLabel = "staking/custody"

// Observer receives ledger events after they are committed.
type Observer interface {
	OnSettlement(s *Settlement)
	OnCommit(op string, t Totals)
}

// Options tunes ledger behaviour.
type Options struct {
	// AutoSettle runs a settlement before stake. Unstake and claim always
	// settle first so accrued rewards are never forfeited.
	AutoSettle bool
	// Custody receives staked items. Defaults to the CustodyLabel address.
	Custody types.Address
	Clock   Clock
}

// DefaultOptions returns auto-settling options on the system clock.
func DefaultOptions() Options {
	return Options{AutoSettle: true, Clock: SystemClock{}}
}

// Ledger is the staking registry. All mutations are serialized by mu.
type Ledger struct {
	mu      sync.RWMutex
	st      *state
	store   *Store
	curve   *earnings.Curve
	items   Ownership
	rewards RewardMinter
	clock   Clock
	opts    Options
	obs     Observer
}

// Open loads the ledger stored in db or creates a fresh one whose contract
// start is the current clock time. P0 and Ptotal are fixed at creation; a
// stored ledger with different parameters is rejected.
func Open(db storage.DB, curve *earnings.Curve, items Ownership, rewards RewardMinter, opts Options) (*Ledger, error) {
	if db == nil || curve == nil || items == nil || rewards == nil {
		return nil, fmt.Errorf("staking: missing dependency")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Custody.IsZero() {
		opts.Custody = crypto.AddressFromLabel(CustodyLabel)
	}

	l := &Ledger{
		store:   NewStore(db),
		curve:   curve,
		items:   items,
		rewards: rewards,
		clock:   opts.Clock,
		opts:    opts,
	}

	m, ok, err := l.store.loadMeta()
	if err != nil {
		return nil, err
	}
	if !ok {
		return l, l.create()
	}
	if !m.P0.Eq(curve.P0()) || !m.Total.Eq(curve.Total()) {
		return nil, fmt.Errorf("%w: stored P0=%s Ptotal=%s", ErrParamsChanged, m.P0, m.Total)
	}
	stakes, err := l.store.loadStakes()
	if err != nil {
		return nil, err
	}
	balances, err := l.store.loadBalances()
	if err != nil {
		return nil, err
	}
	l.st = &state{meta: m, stakes: stakes, balances: balances}

	// Rebuild check: the links must cover every stored stake exactly once.
	if err := newTxn(l.st).walk(func(uint64, *Stake) error { return nil }); err != nil {
		return nil, err
	}
	if uint64(len(stakes)) != m.Count {
		return nil, fmt.Errorf("%w: %d records, count %d", ErrCorruptIndex, len(stakes), m.Count)
	}
	if err := l.checkConservation(); err != nil {
		return nil, err
	}

	klog.Ledger.Info().
		Uint64("contract_start", m.ContractStart).
		Uint64("staked", m.Count).
		Str("emitted", fixed.Format(m.Emitted)).
		Msg("Staking ledger loaded")
	return l, nil
}

func (l *Ledger) create() error {
	now := l.clock.Now()
	l.st = &state{
		meta: meta{
			ContractStart: now,
			LastSettledAt: now,
			Emitted:       new(uint256.Int),
			Unallocated:   new(uint256.Int),
			Claimed:       new(uint256.Int),
			P0:            l.curve.P0(),
			Total:         l.curve.Total(),
		},
		stakes:   make(map[types.ItemID]*Stake),
		balances: make(map[types.Address]*uint256.Int),
	}
	tx := newTxn(l.st)
	if err := tx.commit(l.store); err != nil {
		return err
	}
	tx.apply()
	klog.Ledger.Info().
		Uint64("contract_start", now).
		Str("p0", fixed.Format(l.st.meta.P0)).
		Str("ptotal", fixed.Format(l.st.meta.Total)).
		Msg("Staking ledger created")
	return nil
}

// SetObserver registers an observer for committed operations.
func (l *Ledger) SetObserver(o Observer) {
	l.mu.Lock()
	l.obs = o
	l.mu.Unlock()
}

// Custody returns the address holding staked items.
func (l *Ledger) Custody() types.Address {
	return l.opts.Custody
}

// Curve returns the emission curve.
func (l *Ledger) Curve() *earnings.Curve {
	return l.curve
}

// run executes one journaled operation. Must be called with mu held.
func (l *Ledger) run(op string, fn func(tx *txn, now uint64) error) error {
	now := l.clock.Now()
	tx := newTxn(l.st)
	err := fn(tx, now)
	if err == nil {
		err = tx.commit(l.store)
	}
	if err != nil {
		if rbErr := tx.rollback(); rbErr != nil {
			klog.Ledger.Error().Err(rbErr).Str("op", op).Msg("Compensation failed, collaborator state may be inconsistent")
			return fmt.Errorf("%s: %w (%v)", op, err, rbErr)
		}
		return err
	}
	tx.apply()
	if l.obs != nil {
		l.obs.OnCommit(op, l.totalsLocked())
	}
	return nil
}

func (l *Ledger) notify(s *Settlement) {
	if l.obs != nil && s != nil && !s.Skipped {
		l.obs.OnSettlement(s)
	}
}

// checkItems rejects empty lists and duplicates.
func checkItems(ids []types.ItemID) ([]types.ItemID, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyItems
	}
	sorted := append([]types.ItemID(nil), ids...)
	types.SortItemIDs(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateItem, sorted[i])
		}
	}
	return sorted, nil
}

// Stake takes custody of ids for holder and appends them to the rank order.
// Items staked in the same call rank by ascending id.
func (l *Ledger) Stake(holder types.Address, ids []types.ItemID) (*Settlement, error) {
	sorted, err := checkItems(ids)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var settled *Settlement
	err = l.run("stake", func(tx *txn, now uint64) error {
		for _, id := range sorted {
			if tx.stake(id) != nil {
				return fmt.Errorf("%w: %d", ErrAlreadyStaked, id)
			}
			owner, err := l.items.OwnerOf(id)
			if err != nil {
				return fmt.Errorf("%w: %d: %v", ErrNotOwner, id, err)
			}
			if owner != holder {
				return fmt.Errorf("%w: %d", ErrNotOwner, id)
			}
		}

		if l.opts.AutoSettle {
			var err error
			if settled, err = l.settle(tx, now); err != nil {
				return err
			}
		}
		for _, id := range sorted {
			tx.insert(&Stake{Holder: holder, ItemID: id, StakedAt: now, SettledAt: now})
		}

		for _, id := range sorted {
			id := id
			err := tx.effect(
				func() error { return l.items.Transfer(id, holder, l.opts.Custody) },
				func() error { return l.items.Transfer(id, l.opts.Custody, holder) },
			)
			if err != nil {
				return fmt.Errorf("take custody of %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.notify(settled)

	klog.Ledger.Info().
		Str("holder", holder.String()).
		Int("items", len(sorted)).
		Uint64("staked", l.st.meta.Count).
		Msg("Items staked")
	return settled, nil
}

// Unstake settles, removes holder's stakes on ids and returns custody.
// Ranks of later stakes compact.
func (l *Ledger) Unstake(holder types.Address, ids []types.ItemID) (*Settlement, error) {
	sorted, err := checkItems(ids)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var settled *Settlement
	err = l.run("unstake", func(tx *txn, now uint64) error {
		for _, id := range sorted {
			st := tx.stake(id)
			if st == nil || st.Holder != holder {
				return fmt.Errorf("%w: %d", ErrNotStakedByCaller, id)
			}
		}

		var err error
		if settled, err = l.settle(tx, now); err != nil {
			return err
		}
		for _, id := range sorted {
			tx.remove(id)
		}

		for _, id := range sorted {
			id := id
			err := tx.effect(
				func() error { return l.items.Transfer(id, l.opts.Custody, holder) },
				func() error { return l.items.Transfer(id, holder, l.opts.Custody) },
			)
			if err != nil {
				return fmt.Errorf("return custody of %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.notify(settled)

	klog.Ledger.Info().
		Str("holder", holder.String()).
		Int("items", len(sorted)).
		Uint64("staked", l.st.meta.Count).
		Msg("Items unstaked")
	return settled, nil
}

// SetPayouts settles the pool emitted since the last settlement.
func (l *Ledger) SetPayouts() (*Settlement, error) {
	defer klog.Timer(klog.Ledger, "settle")()
	l.mu.Lock()
	defer l.mu.Unlock()

	var settled *Settlement
	err := l.run("settle", func(tx *txn, now uint64) error {
		var err error
		settled, err = l.settle(tx, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.notify(settled)
	return settled, nil
}

// Claim settles, then mints holder's whole balance as reward tokens and
// zeroes it. A zero balance fails with ErrNothingToClaim.
func (l *Ledger) Claim(holder types.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		amount  *uint256.Int
		settled *Settlement
	)
	err := l.run("claim", func(tx *txn, now uint64) error {
		var err error
		if settled, err = l.settle(tx, now); err != nil {
			return err
		}
		amount = tx.balance(holder)
		if amount.IsZero() {
			return ErrNothingToClaim
		}
		tx.setBalance(holder, new(uint256.Int))
		tx.meta.Claimed.Add(tx.meta.Claimed, amount)

		return tx.effect(
			func() error { return l.rewards.Mint(holder, amount) },
			func() error { return l.rewards.Burn(holder, amount) },
		)
	})
	if err != nil {
		return nil, err
	}
	l.notify(settled)

	klog.Ledger.Info().
		Str("holder", holder.String()).
		Str("amount", fixed.Format(amount)).
		Msg("Rewards claimed")
	return amount, nil
}
