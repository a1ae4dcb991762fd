package collection

import (
	"fmt"
	"os"

	"github.com/Klingon-tech/locker/internal/provenance"
	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/types"
	"gopkg.in/yaml.v3"
)

// Manifest is the operator's pre-reveal description of the collection: the
// secret salt and every (id, rarity) assignment in mint order.
//
//	name: Locker
//	symbol: LOCKR
//	max_supply: 3
//	hasher: keccak256
//	seed: 0x...
//	salt: 0x...
//	items:
//	  - {id: 1, rarity: 984}
type Manifest struct {
	Config `yaml:",inline"`
	Hasher string                  `yaml:"hasher,omitempty"`
	Seed   types.Hash              `yaml:"seed"`
	Salt   types.Hash              `yaml:"salt"`
	Items  []provenance.Assignment `yaml:"items"`
}

// LoadManifest reads and validates a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest is internally consistent.
func (m *Manifest) Validate() error {
	if _, err := crypto.HasherByName(m.Hasher); err != nil {
		return err
	}
	if m.Seed.IsZero() {
		return fmt.Errorf("manifest: %w", provenance.ErrZeroSeed)
	}
	if m.MaxSupply > 0 && uint64(len(m.Items)) > m.MaxSupply {
		return fmt.Errorf("manifest lists %d items, max supply %d", len(m.Items), m.MaxSupply)
	}
	ids := make(map[types.ItemID]bool, len(m.Items))
	rarities := make(map[uint64]bool, len(m.Items))
	for i, a := range m.Items {
		if a.ItemID.IsZero() {
			return fmt.Errorf("manifest item %d: %w", i, provenance.ErrZeroItem)
		}
		if ids[a.ItemID] {
			return fmt.Errorf("manifest item %d: duplicate id %d", i, a.ItemID)
		}
		if rarities[a.Rarity] {
			return fmt.Errorf("manifest item %d: %w: %d", i, provenance.ErrDuplicateRarity, a.Rarity)
		}
		ids[a.ItemID] = true
		rarities[a.Rarity] = true
	}
	return nil
}

// Build computes the full chain of entries for the manifest.
func (m *Manifest) Build() ([]provenance.Entry, error) {
	h, err := crypto.HasherByName(m.Hasher)
	if err != nil {
		return nil, err
	}
	return provenance.Build(h, m.Seed, m.Salt, m.Items)
}
