package staking

import (
	"errors"

	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/holiman/uint256"
)

var (
	ErrEmptyItems        = errors.New("no items given")
	ErrDuplicateItem     = errors.New("item listed more than once")
	ErrNotOwner          = errors.New("caller does not own item")
	ErrAlreadyStaked     = errors.New("item already staked")
	ErrNotStakedByCaller = errors.New("item not staked by caller")
	ErrNothingToClaim    = errors.New("nothing to claim")
	ErrConservation      = errors.New("reward conservation violated")
	ErrParamsChanged     = errors.New("emission parameters differ from stored ledger")
	ErrCorruptIndex      = errors.New("stake index is corrupt")
	ErrCompensation      = errors.New("collaborator compensation failed")
)

// Stake is the ledger's record of one staked item. Prev and Next link the
// ordered stake index; the zero id terminates the list.
type Stake struct {
	Holder    types.Address `json:"holder"`
	ItemID    types.ItemID  `json:"itemId"`
	StakedAt  uint64        `json:"stakedAt"`
	SettledAt uint64        `json:"settledAt"`
	Prev      types.ItemID  `json:"prev"`
	Next      types.ItemID  `json:"next"`
}

// RankedStake is a stake with its current rank (0 = earliest).
type RankedStake struct {
	Stake
	Rank uint64 `json:"rank"`
}

// ItemPayout is one item's credit in a settlement.
type ItemPayout struct {
	ItemID types.ItemID  `json:"itemId"`
	Holder types.Address `json:"holder"`
	Rank   uint64        `json:"rank"`
	Amount *uint256.Int  `json:"-"`
}

// Settlement reports what one settlement did.
type Settlement struct {
	At          uint64       `json:"at"`
	Era         uint64       `json:"era"`
	Skipped     bool         `json:"skipped"`
	Staked      uint64       `json:"staked"`
	Pool        *uint256.Int `json:"-"`
	Distributed *uint256.Int `json:"-"`
	Unallocated *uint256.Int `json:"-"` // moved to unallocated because nothing was staked
	Dust        *uint256.Int `json:"-"` // left in the pool by rounding
	Payouts     []ItemPayout `json:"payouts"`
}

// Totals is a snapshot of the global counters.
type Totals struct {
	ContractStart uint64       `json:"contractStart"`
	LastSettledAt uint64       `json:"lastSettledAt"`
	Staked        uint64       `json:"staked"`
	Emitted       *uint256.Int `json:"-"` // credited to holders
	Unallocated   *uint256.Int `json:"-"` // released while nothing was staked
	Claimed       *uint256.Int `json:"-"`
	Outstanding   *uint256.Int `json:"-"` // credited but unclaimed
}
