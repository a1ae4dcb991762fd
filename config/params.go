package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/holiman/uint256"
)

// =============================================================================
// Protocol Parameters (immutable once the ledger exists)
// =============================================================================

// Params holds the deployment parameters. The staking ledger stores P0 and
// Ptotal at creation and refuses to open with different values.
type Params struct {
	Name       string           `json:"name"`
	Collection CollectionParams `json:"collection"`
	Token      TokenParams      `json:"token"`
	Rewards    RewardParams     `json:"rewards"`
	Provenance ProvenanceParams `json:"provenance"`
}

// CollectionParams describes the collectible set.
type CollectionParams struct {
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	MaxSupply uint64 `json:"max_supply"`
	BaseURI   string `json:"base_uri,omitempty"`
}

// TokenParams describes the reward token.
type TokenParams struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// RewardParams configures the emission curve. Amounts are decimal token
// strings ("1", "0.5", "1000000").
type RewardParams struct {
	InitialRate string `json:"initial_rate"` // P0
	TotalPool   string `json:"total_pool"`   // Ptotal
}

// ProvenanceParams selects the provenance chain hash function.
type ProvenanceParams struct {
	Hasher string `json:"hasher"`
}

// MainnetParams returns the mainnet deployment parameters.
func MainnetParams() *Params {
	return &Params{
		Name: "locker-mainnet",
		Collection: CollectionParams{
			Name:      "Locker Collection",
			Symbol:    "LOCKR",
			MaxSupply: 10_000,
		},
		Token: TokenParams{
			Name:     "Locker rewards token",
			Symbol:   "LOCK",
			Decimals: fixed.Decimals,
		},
		Rewards: RewardParams{
			InitialRate: "1",
			TotalPool:   "10000000",
		},
		Provenance: ProvenanceParams{
			Hasher: crypto.HasherKeccak256,
		},
	}
}

// TestnetParams returns the testnet deployment parameters. The smaller pool
// makes the curve saturate within a few hours.
func TestnetParams() *Params {
	p := MainnetParams()
	p.Name = "locker-testnet"
	p.Collection.MaxSupply = 1_000
	p.Rewards.TotalPool = "10000"
	return p
}

// DefaultParams returns the built-in parameters for the network.
func DefaultParams(network NetworkType) *Params {
	if network == Testnet {
		return TestnetParams()
	}
	return MainnetParams()
}

// LoadParams loads parameters from a JSON file.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading params file: %w", err)
	}

	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing params file: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	return &p, nil
}

// LoadOrCreateParams loads the params file at path, writing the network
// defaults there first if it does not exist.
func LoadOrCreateParams(path string, network NetworkType) (*Params, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := DefaultParams(network).Save(path); err != nil {
			return nil, err
		}
	}
	return LoadParams(path)
}

// Save writes the parameters to a file.
func (p *Params) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating params dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing params file: %w", err)
	}

	return nil
}

// Validate checks that the parameters are usable.
func (p *Params) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Collection.Name == "" || p.Collection.Symbol == "" {
		return fmt.Errorf("collection name and symbol are required")
	}
	if p.Token.Name == "" || p.Token.Symbol == "" {
		return fmt.Errorf("token name and symbol are required")
	}
	if p.Token.Decimals != fixed.Decimals {
		return fmt.Errorf("token decimals must be %d, got %d", fixed.Decimals, p.Token.Decimals)
	}

	p0, err := p.InitialRate()
	if err != nil {
		return err
	}
	total, err := p.TotalPool()
	if err != nil {
		return err
	}
	if p0.IsZero() {
		return fmt.Errorf("initial_rate must be positive")
	}
	if total.Lt(p0) {
		return fmt.Errorf("total_pool (%s) must be at least initial_rate (%s)",
			p.Rewards.TotalPool, p.Rewards.InitialRate)
	}

	if _, err := crypto.HasherByName(p.Provenance.Hasher); err != nil {
		return fmt.Errorf("provenance: %w", err)
	}
	return nil
}

// InitialRate returns P0 in base units.
func (p *Params) InitialRate() (*uint256.Int, error) {
	v, err := fixed.Parse(p.Rewards.InitialRate)
	if err != nil {
		return nil, fmt.Errorf("initial_rate: %w", err)
	}
	return v, nil
}

// TotalPool returns Ptotal in base units.
func (p *Params) TotalPool() (*uint256.Int, error) {
	v, err := fixed.Parse(p.Rewards.TotalPool)
	if err != nil {
		return nil, fmt.Errorf("total_pool: %w", err)
	}
	return v, nil
}

// Hash returns a BLAKE3 hash of the parameters.
// Used to identify a deployment and detect parameter mismatches.
func (p *Params) Hash() (types.Hash, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
