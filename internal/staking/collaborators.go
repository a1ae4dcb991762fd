package staking

import (
	"sync"
	"time"

	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/holiman/uint256"
)

// Ownership reads and moves item ownership. Transfer must fail when from is
// not the current owner.
type Ownership interface {
	OwnerOf(id types.ItemID) (types.Address, error)
	Transfer(id types.ItemID, from, to types.Address) error
}

// RewardMinter credits reward tokens. Burn is used only to compensate a
// Mint when the ledger cannot commit the matching claim.
type RewardMinter interface {
	Mint(to types.Address, amount *uint256.Int) error
	Burn(from types.Address, amount *uint256.Int) error
	BalanceOf(holder types.Address) *uint256.Int
}

// Clock supplies unix seconds.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current unix time in seconds.
func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// ManualClock is a settable clock for tests and simulations.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock starts a manual clock at now.
func NewManualClock(now uint64) *ManualClock {
	return &ManualClock{now: now}
}

// Now returns the current manual time.
func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to now.
func (c *ManualClock) Set(now uint64) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d uint64) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}
