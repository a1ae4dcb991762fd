// Package token implements the reward token: an account-balance fungible
// token whose supply is created and destroyed only by allow-listed
// controllers. The staking ledger mints claimed rewards through a Minter.
package token

import (
	"errors"
	"fmt"
	"sync"

	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/storage"
	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/holiman/uint256"
)

// Token errors.
var (
	ErrNotController       = errors.New("caller is not a token controller")
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrSupplyOverflow      = errors.New("token supply overflow")
	ErrMetadataMismatch    = errors.New("token metadata differs from stored token")
)

// Metadata holds descriptive information about the token.
type Metadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// DefaultMetadata describes the staking reward token.
func DefaultMetadata() Metadata {
	return Metadata{Name: "Locker rewards token", Symbol: "LOCK", Decimals: fixed.Decimals}
}

// Token is the reward token ledger.
type Token struct {
	mu          sync.RWMutex
	store       *Store
	meta        Metadata
	controllers map[types.Address]bool
	balances    map[types.Address]*uint256.Int
	supply      *uint256.Int
}

// Open loads the token stored in db, or creates it with meta.
func Open(db storage.DB, meta Metadata) (*Token, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	t := &Token{store: NewStore(db)}

	stored, ok, err := t.store.Metadata()
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := t.store.PutMetadata(meta); err != nil {
			return nil, err
		}
		stored = meta
	} else if stored != meta {
		return nil, fmt.Errorf("%w: stored %s (%s)", ErrMetadataMismatch, stored.Name, stored.Symbol)
	}
	t.meta = stored

	if t.controllers, err = t.store.Controllers(); err != nil {
		return nil, err
	}
	if t.balances, err = t.store.Balances(); err != nil {
		return nil, err
	}
	if t.supply, err = t.store.Supply(); err != nil {
		return nil, err
	}
	return t, nil
}

// Metadata returns the token description.
func (t *Token) Metadata() Metadata {
	return t.meta
}

// AddController allows addr to mint and burn.
func (t *Token) AddController(addr types.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.controllers[addr] {
		return nil
	}
	if err := t.store.PutController(addr); err != nil {
		return err
	}
	t.controllers[addr] = true
	klog.Token.Info().Str("controller", addr.String()).Msg("Controller added")
	return nil
}

// RemoveController revokes addr.
func (t *Token) RemoveController(addr types.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.controllers[addr] {
		return nil
	}
	if err := t.store.DeleteController(addr); err != nil {
		return err
	}
	delete(t.controllers, addr)
	klog.Token.Info().Str("controller", addr.String()).Msg("Controller removed")
	return nil
}

// IsController reports whether addr may mint and burn.
func (t *Token) IsController(addr types.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.controllers[addr]
}

// Controllers returns the allow-list sorted by address.
func (t *Token) Controllers() []types.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.Address, 0, len(t.controllers))
	for addr := range t.controllers {
		out = append(out, addr)
	}
	sortAddresses(out)
	return out
}

// Mint creates amount tokens for to.
func (t *Token) Mint(controller, to types.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkCall(controller, amount); err != nil {
		return err
	}
	supply, overflow := new(uint256.Int).AddOverflow(t.supply, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	bal := new(uint256.Int).Add(t.balanceLocked(to), amount)
	if err := t.store.WriteBalance(to, bal, supply); err != nil {
		return err
	}
	t.setBalance(to, bal)
	t.supply = supply

	klog.Token.Debug().
		Str("to", to.String()).
		Str("amount", fixed.Format(amount)).
		Msg("Minted")
	return nil
}

// Burn destroys amount tokens held by from.
func (t *Token) Burn(controller, from types.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkCall(controller, amount); err != nil {
		return err
	}
	bal := t.balanceLocked(from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: have %s, burn %s", ErrInsufficientBalance, fixed.Format(bal), fixed.Format(amount))
	}
	bal.Sub(bal, amount)
	supply := new(uint256.Int).Sub(t.supply, amount)
	if err := t.store.WriteBalance(from, bal, supply); err != nil {
		return err
	}
	t.setBalance(from, bal)
	t.supply = supply

	klog.Token.Debug().
		Str("from", from.String()).
		Str("amount", fixed.Format(amount)).
		Msg("Burned")
	return nil
}

// BalanceOf returns addr's balance.
func (t *Token) BalanceOf(addr types.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceLocked(addr)
}

// TotalSupply returns the circulating supply.
func (t *Token) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fixed.Clone(t.supply)
}

func (t *Token) checkCall(controller types.Address, amount *uint256.Int) error {
	if !t.controllers[controller] {
		return fmt.Errorf("%w: %s", ErrNotController, controller)
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	return nil
}

func (t *Token) balanceLocked(addr types.Address) *uint256.Int {
	return fixed.Clone(t.balances[addr])
}

func (t *Token) setBalance(addr types.Address, v *uint256.Int) {
	if v.IsZero() {
		delete(t.balances, addr)
		return
	}
	t.balances[addr] = v
}

// Minter binds a controller address to the token so that a single
// component can mint and burn without passing its identity on each call.
type Minter struct {
	token      *Token
	controller types.Address
}

// NewMinter returns a Minter acting as controller.
func NewMinter(t *Token, controller types.Address) *Minter {
	return &Minter{token: t, controller: controller}
}

// Controller returns the bound controller address.
func (m *Minter) Controller() types.Address { return m.controller }

// Mint creates amount tokens for to.
func (m *Minter) Mint(to types.Address, amount *uint256.Int) error {
	return m.token.Mint(m.controller, to, amount)
}

// Burn destroys amount tokens held by from.
func (m *Minter) Burn(from types.Address, amount *uint256.Int) error {
	return m.token.Burn(m.controller, from, amount)
}

// BalanceOf returns holder's token balance.
func (m *Minter) BalanceOf(holder types.Address) *uint256.Int {
	return m.token.BalanceOf(holder)
}
