package token

import (
	"errors"
	"testing"

	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/storage"
	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/holiman/uint256"
)

var (
	ctrl  = types.Address{0xc0}
	alice = types.Address{0xa1}
)

func openToken(t *testing.T, db storage.DB) *Token {
	t.Helper()
	klog.Init("error", false, "")
	tok, err := Open(db, DefaultMetadata())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tok
}

func TestDefaultMetadata(t *testing.T) {
	m := DefaultMetadata()
	if m.Name != "Locker rewards token" || m.Symbol != "LOCK" || m.Decimals != 18 {
		t.Errorf("metadata = %+v", m)
	}
}

func TestControllers(t *testing.T) {
	tok := openToken(t, storage.NewMemory())

	if err := tok.Mint(ctrl, alice, fixed.Units(1)); !errors.Is(err, ErrNotController) {
		t.Fatalf("mint without controller err = %v", err)
	}
	if err := tok.AddController(ctrl); err != nil {
		t.Fatal(err)
	}
	if !tok.IsController(ctrl) || tok.IsController(alice) {
		t.Fatal("allow-list wrong after AddController")
	}
	if got := tok.Controllers(); len(got) != 1 || got[0] != ctrl {
		t.Fatalf("Controllers = %v", got)
	}
	if err := tok.RemoveController(ctrl); err != nil {
		t.Fatal(err)
	}
	if tok.IsController(ctrl) {
		t.Fatal("controller still allowed after removal")
	}
	if err := tok.Burn(ctrl, alice, fixed.Units(1)); !errors.Is(err, ErrNotController) {
		t.Fatalf("burn after removal err = %v", err)
	}
}

func TestMintBurn(t *testing.T) {
	tok := openToken(t, storage.NewMemory())
	if err := tok.AddController(ctrl); err != nil {
		t.Fatal(err)
	}

	if err := tok.Mint(ctrl, alice, new(uint256.Int)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero mint err = %v", err)
	}
	if err := tok.Mint(ctrl, alice, fixed.Units(5)); err != nil {
		t.Fatal(err)
	}
	if err := tok.Burn(ctrl, alice, fixed.Units(2)); err != nil {
		t.Fatal(err)
	}
	if got := tok.BalanceOf(alice); !got.Eq(fixed.Units(3)) {
		t.Errorf("balance = %s, want 3 tokens", fixed.Format(got))
	}
	if got := tok.TotalSupply(); !got.Eq(fixed.Units(3)) {
		t.Errorf("supply = %s, want 3 tokens", fixed.Format(got))
	}
	if err := tok.Burn(ctrl, alice, fixed.Units(4)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraw err = %v", err)
	}

	huge := new(uint256.Int).SetAllOne()
	if err := tok.Mint(ctrl, alice, huge); !errors.Is(err, ErrSupplyOverflow) {
		t.Fatalf("overflow err = %v", err)
	}
}

func TestMinter(t *testing.T) {
	tok := openToken(t, storage.NewMemory())
	m := NewMinter(tok, ctrl)
	if err := m.Mint(alice, fixed.Units(1)); !errors.Is(err, ErrNotController) {
		t.Fatalf("unauthorized minter err = %v", err)
	}
	if err := tok.AddController(m.Controller()); err != nil {
		t.Fatal(err)
	}
	if err := m.Mint(alice, fixed.Units(1)); err != nil {
		t.Fatal(err)
	}
	if err := m.Burn(alice, fixed.Units(1)); err != nil {
		t.Fatal(err)
	}
	if !m.BalanceOf(alice).IsZero() {
		t.Error("balance should be zero after burn")
	}
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewBadger(dir)
	if err != nil {
		t.Fatal(err)
	}
	tok := openToken(t, db)
	if err := tok.AddController(ctrl); err != nil {
		t.Fatal(err)
	}
	if err := tok.Mint(ctrl, alice, fixed.Units(7)); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = storage.NewBadger(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	tok = openToken(t, db)
	if !tok.IsController(ctrl) {
		t.Error("controller lost on reopen")
	}
	if !tok.BalanceOf(alice).Eq(fixed.Units(7)) || !tok.TotalSupply().Eq(fixed.Units(7)) {
		t.Errorf("balance %s supply %s after reopen", tok.BalanceOf(alice), tok.TotalSupply())
	}

	other := DefaultMetadata()
	other.Symbol = "XXX"
	if _, err := Open(db, other); !errors.Is(err, ErrMetadataMismatch) {
		t.Errorf("reopen with other metadata err = %v", err)
	}
}
