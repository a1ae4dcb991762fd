package staking

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Klingon-tech/locker/internal/earnings"
	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/storage"
	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/holiman/uint256"
)

const testStart = 1_700_000_000

var errInjected = errors.New("injected failure")

// fakeItems is an in-memory Ownership with failure injection.
type fakeItems struct {
	mu        sync.Mutex
	owners    map[types.ItemID]types.Address
	failOnto  map[types.ItemID]bool // fail transfers of this item
	transfers int
}

func newFakeItems() *fakeItems {
	return &fakeItems{owners: make(map[types.ItemID]types.Address), failOnto: make(map[types.ItemID]bool)}
}

func (f *fakeItems) give(id types.ItemID, to types.Address) {
	f.mu.Lock()
	f.owners[id] = to
	f.mu.Unlock()
}

func (f *fakeItems) OwnerOf(id types.ItemID) (types.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.owners[id]
	if !ok {
		return types.Address{}, fmt.Errorf("item %d does not exist", id)
	}
	return owner, nil
}

func (f *fakeItems) Transfer(id types.ItemID, from, to types.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnto[id] {
		return errInjected
	}
	if f.owners[id] != from {
		return fmt.Errorf("item %d not owned by %s", id, from)
	}
	f.owners[id] = to
	f.transfers++
	return nil
}

// fakeRewards is an in-memory RewardMinter with failure injection.
type fakeRewards struct {
	mu       sync.Mutex
	balances map[types.Address]*uint256.Int
	failMint bool
	burns    int
}

func newFakeRewards() *fakeRewards {
	return &fakeRewards{balances: make(map[types.Address]*uint256.Int)}
}

func (f *fakeRewards) Mint(to types.Address, amount *uint256.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMint {
		return errInjected
	}
	bal := f.balances[to]
	if bal == nil {
		bal = new(uint256.Int)
	}
	f.balances[to] = new(uint256.Int).Add(bal, amount)
	return nil
}

func (f *fakeRewards) Burn(from types.Address, amount *uint256.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal := f.balances[from]
	if bal == nil || bal.Lt(amount) {
		return fmt.Errorf("burn exceeds balance")
	}
	f.balances[from] = new(uint256.Int).Sub(bal, amount)
	f.burns++
	return nil
}

func (f *fakeRewards) BalanceOf(holder types.Address) *uint256.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fixed.Clone(f.balances[holder])
}

func (f *fakeRewards) total() *uint256.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := new(uint256.Int)
	for _, v := range f.balances {
		sum.Add(sum, v)
	}
	return sum
}

// failingDB fails batch commits while fail is set.
type failingDB struct {
	*storage.MemoryDB
	fail bool
}

type failingBatch struct {
	storage.Batch
	db *failingDB
}

func (b *failingBatch) Commit() error {
	if b.db.fail {
		return errInjected
	}
	return b.Batch.Commit()
}

func (f *failingDB) NewBatch() storage.Batch {
	return &failingBatch{Batch: f.MemoryDB.NewBatch(), db: f}
}

type testEnv struct {
	ledger  *Ledger
	clock   *ManualClock
	items   *fakeItems
	rewards *fakeRewards
	db      *failingDB
}

func testCurve(t *testing.T) *earnings.Curve {
	t.Helper()
	c, err := earnings.NewCurve(fixed.Units(1), fixed.Units(1000))
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}
	return c
}

func newTestEnv(t *testing.T, autoSettle bool) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	env := &testEnv{
		clock:   NewManualClock(testStart),
		items:   newFakeItems(),
		rewards: newFakeRewards(),
		db:      &failingDB{MemoryDB: storage.NewMemory()},
	}
	opts := DefaultOptions()
	opts.AutoSettle = autoSettle
	opts.Clock = env.clock

	l, err := Open(env.db, testCurve(t), env.items, env.rewards, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	env.ledger = l
	return env
}

func holder(n byte) types.Address {
	return types.Address{0xaa, n}
}

func mustConserve(t *testing.T, l *Ledger) {
	t.Helper()
	if err := l.CheckConservation(); err != nil {
		t.Fatalf("conservation: %v", err)
	}
}
