// Package collection implements the fixed-supply collectible set. Minting an
// item commits its (id, rarity) binding to the provenance chain and records
// ownership; the staking ledger uses the collection as its custody registry.
package collection

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/provenance"
	"github.com/Klingon-tech/locker/internal/storage"
	"github.com/Klingon-tech/locker/pkg/types"
)

var (
	ErrSoldOut      = errors.New("collection sold out")
	ErrItemExists   = errors.New("item already minted")
	ErrUnknownItem  = errors.New("item does not exist")
	ErrNotItemOwner = errors.New("sender does not own item")
	ErrZeroAddress  = errors.New("zero address")
)

// Config describes the collection.
type Config struct {
	Name      string `json:"name" yaml:"name"`
	Symbol    string `json:"symbol" yaml:"symbol"`
	MaxSupply uint64 `json:"maxSupply" yaml:"max_supply"`
	BaseURI   string `json:"baseURI,omitempty" yaml:"base_uri,omitempty"`
}

// Item is a minted collectible.
type Item struct {
	ID          types.ItemID  `json:"id"`
	Rarity      uint64        `json:"rarity"`
	Hash        types.Hash    `json:"hash"`
	RunningHash types.Hash    `json:"runningHash"`
	Owner       types.Address `json:"owner"`
}

// Collection tracks minted items and their owners.
type Collection struct {
	mu       sync.RWMutex
	cfg      Config
	store    *Store
	chain    *provenance.Chain
	items    map[types.ItemID]*Item
	balances map[types.Address]uint64
}

// Open loads the collection stored in db. Minting commits to chain.
func Open(db storage.DB, chain *provenance.Chain, cfg Config) (*Collection, error) {
	if db == nil || chain == nil {
		return nil, fmt.Errorf("collection: missing dependency")
	}
	c := &Collection{
		cfg:      cfg,
		store:    NewStore(db),
		chain:    chain,
		items:    make(map[types.ItemID]*Item),
		balances: make(map[types.Address]uint64),
	}
	err := c.store.ForEach(func(it *Item) error {
		c.items[it.ID] = it
		c.balances[it.Owner]++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cfg.MaxSupply > 0 && uint64(len(c.items)) > cfg.MaxSupply {
		return nil, fmt.Errorf("collection holds %d items, max supply %d", len(c.items), cfg.MaxSupply)
	}
	if err := c.reconcile(); err != nil {
		return nil, err
	}
	return c, nil
}

// reconcile checks that every stored item is committed with the same binding.
func (c *Collection) reconcile() error {
	for id, it := range c.items {
		e, _, ok := c.chain.Entry(id)
		if !ok {
			return fmt.Errorf("item %d has no provenance entry", id)
		}
		if e.Rarity != it.Rarity || e.ItemHash != it.Hash {
			return fmt.Errorf("item %d disagrees with provenance entry", id)
		}
	}
	return nil
}

// Config returns the collection description.
func (c *Collection) Config() Config {
	return c.cfg
}

// Mint commits (id, rarity) to the provenance chain and assigns the item to
// to. itemHash and expectedRunning must extend the chain tip.
func (c *Collection) Mint(to types.Address, id types.ItemID, rarity uint64, itemHash, expectedRunning types.Hash) (Item, error) {
	if to.IsZero() {
		return Item{}, ErrZeroAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[id]; ok {
		return Item{}, fmt.Errorf("%w: %d", ErrItemExists, id)
	}
	if c.cfg.MaxSupply > 0 && uint64(len(c.items)) >= c.cfg.MaxSupply {
		return Item{}, ErrSoldOut
	}

	it := &Item{ID: id, Rarity: rarity, Hash: itemHash, RunningHash: expectedRunning, Owner: to}
	if err := c.store.Put(it); err != nil {
		return Item{}, err
	}
	if _, err := c.chain.Commit(id, rarity, itemHash, expectedRunning); err != nil {
		if delErr := c.store.Delete(id); delErr != nil {
			klog.Collection.Error().Err(delErr).Uint64("item", uint64(id)).Msg("Failed to drop uncommitted item")
		}
		return Item{}, err
	}
	c.items[id] = it
	c.balances[to]++

	klog.Collection.Info().
		Uint64("item", uint64(id)).
		Uint64("rarity", rarity).
		Str("owner", to.String()).
		Int("supply", len(c.items)).
		Msg("Item minted")
	return *it, nil
}

// OwnerOf returns the current owner of id.
func (c *Collection) OwnerOf(id types.ItemID) (types.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	if !ok {
		return types.Address{}, fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	return it.Owner, nil
}

// Transfer moves id from from to to.
func (c *Collection) Transfer(id types.ItemID, from, to types.Address) error {
	if to.IsZero() {
		return ErrZeroAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	if it.Owner != from {
		return fmt.Errorf("%w: %d", ErrNotItemOwner, id)
	}
	if from == to {
		return nil
	}
	moved := *it
	moved.Owner = to
	if err := c.store.Put(&moved); err != nil {
		return err
	}
	c.items[id] = &moved
	c.balances[from]--
	if c.balances[from] == 0 {
		delete(c.balances, from)
	}
	c.balances[to]++

	klog.Collection.Debug().
		Uint64("item", uint64(id)).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Item transferred")
	return nil
}

// BalanceOf returns how many items owner holds.
func (c *Collection) BalanceOf(owner types.Address) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balances[owner]
}

// Item returns a minted item.
func (c *Collection) Item(id types.ItemID) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// ItemsOf returns owner's items in ascending id order.
func (c *Collection) ItemsOf(owner types.Address) []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]types.ItemID, 0, c.balances[owner])
	for id, it := range c.items {
		if it.Owner == owner {
			ids = append(ids, id)
		}
	}
	types.SortItemIDs(ids)
	out := make([]Item, len(ids))
	for i, id := range ids {
		out[i] = *c.items[id]
	}
	return out
}

// Supply returns the number of minted items.
func (c *Collection) Supply() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.items))
}

// TokenURI returns BaseURI followed by the decimal item id.
func (c *Collection) TokenURI(id types.ItemID) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.items[id]; !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	return c.cfg.BaseURI + strconv.FormatUint(uint64(id), 10), nil
}
