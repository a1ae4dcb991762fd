package provenance

import (
	"errors"
	"fmt"
	"sync"

	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/storage"
	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/types"
)

// ErrHasherMismatch is returned when a stored chain was built with a
// different hash function than the one configured.
var ErrHasherMismatch = errors.New("provenance hasher differs from stored chain")

// CommitHandler is called after an entry is durably committed.
type CommitHandler func(e Entry, length int)

// Chain is the live, append-only provenance record.
type Chain struct {
	mu         sync.RWMutex // Protects everything below.
	hasherName string
	hasher     crypto.Hasher
	store      *Store

	seed     types.Hash
	pub      *Publication
	entries  []Entry
	byItem   map[types.ItemID]int
	byRarity map[uint64]types.ItemID

	commitHandler CommitHandler
}

// Info summarizes the chain state.
type Info struct {
	Initialized bool         `json:"initialized"`
	Hasher      string       `json:"hasher"`
	Seed        types.Hash   `json:"seed"`
	Tip         types.Hash   `json:"tip"`
	Length      int          `json:"length"`
	Publication *Publication `json:"publication,omitempty"`
}

// New opens the chain stored in db, using the named hash function.
func New(db storage.DB, hasherName string) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if hasherName == "" {
		hasherName = crypto.HasherKeccak256
	}
	hasher, err := crypto.HasherByName(hasherName)
	if err != nil {
		return nil, err
	}

	c := &Chain{
		hasherName: hasherName,
		hasher:     hasher,
		store:      NewStore(db),
		byItem:     make(map[types.ItemID]int),
		byRarity:   make(map[uint64]types.ItemID),
	}

	seed, storedHasher, ok, err := c.store.Seed()
	if err != nil {
		return nil, err
	}
	if !ok {
		return c, nil
	}
	if storedHasher != "" && storedHasher != hasherName {
		return nil, fmt.Errorf("%w: stored %s, configured %s", ErrHasherMismatch, storedHasher, hasherName)
	}
	c.seed = seed
	if c.pub, err = c.store.Publication(); err != nil {
		return nil, err
	}

	entries, err := c.store.Entries()
	if err != nil {
		return nil, err
	}
	if err := Verify(hasher, seed, entries); err != nil {
		return nil, fmt.Errorf("stored provenance chain is corrupt: %w", err)
	}
	for i, e := range entries {
		c.byItem[e.ItemID] = i
		c.byRarity[e.Rarity] = e.ItemID
	}
	c.entries = entries

	klog.Provenance.Info().
		Str("hasher", hasherName).
		Int("entries", len(entries)).
		Msg("Provenance chain loaded")
	return c, nil
}

// SetCommitHandler registers a callback for committed entries.
func (c *Chain) SetCommitHandler(fn CommitHandler) {
	c.mu.Lock()
	c.commitHandler = fn
	c.mu.Unlock()
}

// Hasher returns the chain's hash function.
func (c *Chain) Hasher() crypto.Hasher {
	return c.hasher
}

// Initialize sets the one-time seed.
func (c *Chain) Initialize(seed types.Hash) error {
	return c.initialize(seed, nil)
}

// InitializePublished verifies a signed publication and sets its seed. When
// operator is non-zero the publication must be signed by that address.
func (c *Chain) InitializePublished(pub *Publication, operator types.Address) error {
	if err := VerifyPublication(pub); err != nil {
		return err
	}
	if pub.Hasher != c.hasherName {
		return fmt.Errorf("%w: publication uses %s, chain uses %s", ErrHasherMismatch, pub.Hasher, c.hasherName)
	}
	if !operator.IsZero() {
		signer, err := pub.Operator()
		if err != nil {
			return err
		}
		if signer != operator {
			return fmt.Errorf("%w: signed by %s", ErrWrongOperator, signer)
		}
	}
	return c.initialize(pub.Seed, pub)
}

func (c *Chain) initialize(seed types.Hash, pub *Publication) error {
	if seed.IsZero() {
		return ErrZeroSeed
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.seed.IsZero() {
		return ErrAlreadyInitialized
	}

	batch := c.store.newBatch()
	if err := c.store.writeSeed(batch, seed, c.hasherName, pub); err != nil {
		return fmt.Errorf("write seed: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	c.seed = seed
	c.pub = pub

	klog.Provenance.Info().
		Str("seed", seed.String()).
		Bool("signed", pub != nil).
		Msg("Provenance initialized")
	return nil
}

// Commit appends one entry. expectedRunning must equal H(tip || itemHash).
func (c *Chain) Commit(id types.ItemID, rarity uint64, itemHash, expectedRunning types.Hash) (Entry, error) {
	c.mu.Lock()
	entry, length, handler, err := c.commitLocked(id, rarity, itemHash, expectedRunning)
	c.mu.Unlock()
	if err != nil {
		return Entry{}, err
	}
	if handler != nil {
		handler(entry, length)
	}
	return entry, nil
}

func (c *Chain) commitLocked(id types.ItemID, rarity uint64, itemHash, expectedRunning types.Hash) (Entry, int, CommitHandler, error) {
	if c.seed.IsZero() {
		return Entry{}, 0, nil, ErrNotInitialized
	}
	if id.IsZero() {
		return Entry{}, 0, nil, ErrZeroItem
	}
	tip := c.tipLocked()
	if !VerifyInclusion(c.hasher, tip, itemHash, expectedRunning) {
		return Entry{}, 0, nil, fmt.Errorf("%w: item %d", ErrChainMismatch, id)
	}
	if _, ok := c.byItem[id]; ok {
		return Entry{}, 0, nil, fmt.Errorf("%w: item %d", ErrAlreadyCommitted, id)
	}
	if owner, ok := c.byRarity[rarity]; ok {
		return Entry{}, 0, nil, fmt.Errorf("%w: rarity %d held by item %d", ErrDuplicateRarity, rarity, owner)
	}

	entry := Entry{ItemID: id, Rarity: rarity, ItemHash: itemHash, Running: expectedRunning}
	index := len(c.entries)

	batch := c.store.newBatch()
	if err := c.store.writeEntry(batch, index, entry); err != nil {
		return Entry{}, 0, nil, err
	}
	if err := batch.Commit(); err != nil {
		return Entry{}, 0, nil, fmt.Errorf("commit entry: %w", err)
	}

	c.entries = append(c.entries, entry)
	c.byItem[id] = index
	c.byRarity[rarity] = id

	klog.Provenance.Debug().
		Uint64("item", uint64(id)).
		Uint64("rarity", rarity).
		Int("index", index).
		Str("running", expectedRunning.String()).
		Msg("Item committed")
	return entry, len(c.entries), c.commitHandler, nil
}

// tipLocked returns the current running hash; the seed before any commit.
func (c *Chain) tipLocked() types.Hash {
	if len(c.entries) == 0 {
		return c.seed
	}
	return c.entries[len(c.entries)-1].Running
}

// Tip returns the current chain tip.
func (c *Chain) Tip() types.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tipLocked()
}

// Initialized reports whether the seed is set.
func (c *Chain) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.seed.IsZero()
}

// Len returns the number of committed entries.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entry returns the committed entry for an item and the running hash that
// precedes it, which together with the entry proves inclusion.
func (c *Chain) Entry(id types.ItemID) (e Entry, prev types.Hash, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byItem[id]
	if !ok {
		return Entry{}, types.Hash{}, false
	}
	prev = c.seed
	if i > 0 {
		prev = c.entries[i-1].Running
	}
	return c.entries[i], prev, true
}

// Entries returns a copy of all committed entries in order.
func (c *Chain) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Info returns a snapshot of the chain state.
func (c *Chain) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Info{
		Initialized: !c.seed.IsZero(),
		Hasher:      c.hasherName,
		Seed:        c.seed,
		Tip:         c.tipLocked(),
		Length:      len(c.entries),
		Publication: c.pub,
	}
}

// Audit replays the whole stored chain from the seed.
func (c *Chain) Audit() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.seed.IsZero() {
		return ErrNotInitialized
	}
	return Verify(c.hasher, c.seed, c.entries)
}
