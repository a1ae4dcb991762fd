package provenance

import (
	"errors"
	"math/rand"
	"testing"

	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/storage"
	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/types"
)

func newTestChain(t *testing.T, db storage.DB) *Chain {
	t.Helper()
	klog.Init("error", false, "")
	c, err := New(db, crypto.HasherKeccak256)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestChain_InitializeOnce(t *testing.T) {
	c := newTestChain(t, storage.NewMemory())

	if err := c.Initialize(types.Hash{}); !errors.Is(err, ErrZeroSeed) {
		t.Fatalf("zero seed err = %v", err)
	}
	if err := c.Initialize(testSeed(1)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := c.Initialize(testSeed(2)); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second Initialize err = %v", err)
	}
	if c.Tip() != testSeed(1) {
		t.Error("tip should equal the seed before any commit")
	}
}

func TestChain_CommitRules(t *testing.T) {
	c := newTestChain(t, storage.NewMemory())
	salt := testSeed(7)
	h := crypto.Keccak256

	item1 := ItemHash(h, 1, 10, salt)
	if _, err := c.Commit(1, 10, item1, ConcatenateHash(h, testSeed(1), item1)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("commit before init err = %v", err)
	}

	seed := testSeed(1)
	if err := c.Initialize(seed); err != nil {
		t.Fatal(err)
	}

	// Wrong expected running hash.
	if _, err := c.Commit(1, 10, item1, ConcatenateHash(h, testSeed(2), item1)); !errors.Is(err, ErrChainMismatch) {
		t.Fatalf("bad running err = %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("failed commit must not append")
	}

	run1 := ConcatenateHash(h, seed, item1)
	if _, err := c.Commit(1, 10, item1, run1); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Replaying the old tip no longer matches.
	if _, err := c.Commit(2, 11, item1, run1); !errors.Is(err, ErrChainMismatch) {
		t.Fatalf("stale tip err = %v", err)
	}

	item2 := ItemHash(h, 1, 11, salt)
	if _, err := c.Commit(1, 11, item2, ConcatenateHash(h, run1, item2)); !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("duplicate id err = %v", err)
	}
	item3 := ItemHash(h, 2, 10, salt)
	if _, err := c.Commit(2, 10, item3, ConcatenateHash(h, run1, item3)); !errors.Is(err, ErrDuplicateRarity) {
		t.Fatalf("duplicate rarity err = %v", err)
	}
	if _, err := c.Commit(0, 99, item3, ConcatenateHash(h, run1, item3)); !errors.Is(err, ErrZeroItem) {
		t.Fatalf("zero id err = %v", err)
	}

	e, prev, ok := c.Entry(1)
	if !ok || prev != seed || e.Running != run1 {
		t.Fatalf("Entry(1) = %+v, prev %s, ok %v", e, prev, ok)
	}
	if _, _, ok := c.Entry(2); ok {
		t.Error("Entry(2) should not exist")
	}
}

func TestChain_BuildThenCommitAll(t *testing.T) {
	c := newTestChain(t, storage.NewMemory())
	seed, salt := testSeed(1), testSeed(2)
	entries, err := Build(c.Hasher(), seed, salt, manifest(25, rand.New(rand.NewSource(5))))
	if err != nil {
		t.Fatal(err)
	}

	var committed int
	c.SetCommitHandler(func(e Entry, length int) { committed = length })

	if err := c.Initialize(seed); err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if _, err := c.Commit(e.ItemID, e.Rarity, e.ItemHash, e.Running); err != nil {
			t.Fatalf("Commit(%d): %v", e.ItemID, err)
		}
	}
	if committed != len(entries) {
		t.Errorf("commit handler saw length %d, want %d", committed, len(entries))
	}
	if c.Tip() != entries[len(entries)-1].Running {
		t.Error("tip should be the last running hash")
	}
	if err := c.Audit(); err != nil {
		t.Errorf("Audit: %v", err)
	}
	info := c.Info()
	if !info.Initialized || info.Length != 25 || info.Hasher != crypto.HasherKeccak256 {
		t.Errorf("Info = %+v", info)
	}
}

func TestChain_Persistence(t *testing.T) {
	klog.Init("error", false, "")
	dir := t.TempDir()
	seed, salt := testSeed(1), testSeed(2)
	entries, err := Build(crypto.Keccak256, seed, salt, manifest(10, rand.New(rand.NewSource(8))))
	if err != nil {
		t.Fatal(err)
	}

	db, err := storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	c := newTestChain(t, storage.NewPrefixDB(db, []byte("p/")))
	if err := c.Initialize(seed); err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if _, err := c.Commit(e.ItemID, e.Rarity, e.ItemHash, e.Running); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	db, err = storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	if _, err := New(storage.NewPrefixDB(db, []byte("p/")), crypto.HasherBlake3); !errors.Is(err, ErrHasherMismatch) {
		t.Fatalf("reopen with other hasher err = %v", err)
	}

	reopened := newTestChain(t, storage.NewPrefixDB(db, []byte("p/")))
	if reopened.Len() != len(entries) {
		t.Fatalf("reopened Len = %d, want %d", reopened.Len(), len(entries))
	}
	if reopened.Tip() != entries[len(entries)-1].Running {
		t.Error("reopened tip mismatch")
	}
	if err := reopened.Initialize(testSeed(3)); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("re-initialize after reopen err = %v", err)
	}
	// Committed bindings survive a restart.
	e := entries[0]
	if _, err := reopened.Commit(e.ItemID, 999, e.ItemHash, ConcatenateHash(crypto.Keccak256, reopened.Tip(), e.ItemHash)); !errors.Is(err, ErrAlreadyCommitted) {
		t.Errorf("recommit after reopen err = %v", err)
	}
}

func TestChain_InitializePublished(t *testing.T) {
	operator, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	intruder, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	seed := testSeed(4)

	pub, err := Publish(operator, seed, crypto.HasherKeccak256)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := VerifyPublication(pub); err != nil {
		t.Fatalf("VerifyPublication: %v", err)
	}

	forged := *pub
	forged.Seed = testSeed(5)
	if err := VerifyPublication(&forged); !errors.Is(err, ErrBadPublication) {
		t.Errorf("forged seed err = %v", err)
	}

	c := newTestChain(t, storage.NewMemory())
	if err := c.InitializePublished(pub, intruder.Address()); !errors.Is(err, ErrWrongOperator) {
		t.Fatalf("wrong operator err = %v", err)
	}
	blake, _ := Publish(operator, seed, crypto.HasherBlake3)
	if err := c.InitializePublished(blake, operator.Address()); !errors.Is(err, ErrHasherMismatch) {
		t.Fatalf("hasher mismatch err = %v", err)
	}
	if err := c.InitializePublished(pub, operator.Address()); err != nil {
		t.Fatalf("InitializePublished: %v", err)
	}
	if got := c.Info().Publication; got == nil || got.Seed != seed {
		t.Errorf("publication not recorded: %+v", got)
	}
}
