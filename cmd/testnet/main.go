// Command testnet boots a local in-memory locker node and drives a full
// staking round over JSON-RPC.
//
// Usage: go run ./cmd/testnet/
//
// It generates an operator and three holder keys, publishes a provenance
// seed, mints a small collection, stakes the items, advances a simulated
// clock through several settlement rounds, claims every holder's rewards
// and checks the ledger balances.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Klingon-tech/locker/config"
	"github.com/Klingon-tech/locker/internal/collection"
	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/node"
	"github.com/Klingon-tech/locker/internal/provenance"
	"github.com/Klingon-tech/locker/internal/rpc"
	"github.com/Klingon-tech/locker/internal/rpcclient"
	"github.com/Klingon-tech/locker/internal/staking"
	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/Klingon-tech/locker/pkg/types"
)

const (
	numItems  = 9
	numRounds = 5
	roundTime = 10 * 60 // simulated seconds per round
)

func main() {
	klog.Init("info", false, "")
	logger := klog.WithComponent("testnet")

	logger.Info().Msg("=== Locker Local Testnet ===")

	// ── Phase 1: Keys ───────────────────────────────────────────────────

	operator := mustKey()
	holders := []*crypto.PrivateKey{mustKey(), mustKey(), mustKey()}
	logger.Info().Str("operator", operator.Address().String()).Msg("Generated operator key")

	// ── Phase 2: Node ───────────────────────────────────────────────────

	dataDir, err := os.MkdirTemp("", "locker-testnet-*")
	if err != nil {
		logger.Fatal().Err(err).Msg("create data dir")
	}
	defer os.RemoveAll(dataDir)

	cfg := config.DefaultTestnet()
	cfg.DataDir = dataDir
	cfg.Storage.Engine = config.StorageMemory
	cfg.RPC.Port = 0
	cfg.Staking.SettleInterval = 0
	cfg.Staking.Operator = operator.Address().String()

	clock := staking.NewManualClock(uint64(time.Now().Unix()))
	n, err := node.New(cfg, node.WithClock(clock), node.WithoutLogInit())
	if err != nil {
		logger.Fatal().Err(err).Msg("create node")
	}
	if err := n.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start node")
	}
	defer n.Stop()

	client := rpcclient.New("http://" + n.RPCAddr() + "/")
	client.SetClock(func() time.Time { return time.Unix(int64(clock.Now()), 0) })
	logger.Info().Str("rpc", n.RPCAddr()).Msg("Node running")

	// ── Phase 3: Provenance + mint ──────────────────────────────────────

	manifest := &collection.Manifest{
		Config: collection.Config{Name: "Locker Testnet", Symbol: "TLOCK", MaxSupply: numItems},
		Hasher: n.Params().Provenance.Hasher,
		Seed:   crypto.Keccak256([]byte(fmt.Sprintf("testnet seed %d", clock.Now()))),
		Salt:   crypto.Keccak256([]byte(fmt.Sprintf("testnet salt %d", clock.Now()))),
	}
	for i := 1; i <= numItems; i++ {
		manifest.Items = append(manifest.Items, provenance.Assignment{
			ItemID: types.ItemID(i), Rarity: uint64(1000 - 37*i),
		})
	}
	if err := manifest.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid manifest")
	}
	entries, err := manifest.Build()
	if err != nil {
		logger.Fatal().Err(err).Msg("build provenance")
	}

	pub, err := provenance.Publish(operator, manifest.Seed, manifest.Hasher)
	if err != nil {
		logger.Fatal().Err(err).Msg("publish seed")
	}
	if err := client.Call("provenance_initialize", pub, nil); err != nil {
		logger.Fatal().Err(err).Msg("initialize provenance")
	}

	owned := make(map[int][]uint64)
	for i, e := range entries {
		h := i % len(holders)
		err := client.CallSigned(operator, "collection_mint", rpc.MintPayload{
			To:          holders[h].Address().String(),
			ID:          uint64(e.ItemID),
			Rarity:      e.Rarity,
			ItemHash:    e.ItemHash,
			RunningHash: e.Running,
		}, nil)
		if err != nil {
			logger.Fatal().Err(err).Uint64("item", uint64(e.ItemID)).Msg("mint")
		}
		owned[h] = append(owned[h], uint64(e.ItemID))
	}

	var verify rpc.VerifyResult
	if err := client.Call("provenance_verify", nil, &verify); err != nil || !verify.Valid {
		logger.Fatal().Err(err).Interface("result", verify).Msg("provenance does not verify")
	}
	logger.Info().Int("items", verify.Length).Msg("Collection minted and verified")

	// ── Phase 4: Stake ──────────────────────────────────────────────────

	for h, key := range holders {
		clock.Advance(30)
		if _, err := client.Stake(key, owned[h]); err != nil {
			logger.Fatal().Err(err).Int("holder", h).Msg("stake")
		}
		logger.Info().Int("holder", h).Interface("items", owned[h]).Msg("Staked")
	}

	// ── Phase 5: Settlement rounds ──────────────────────────────────────

	for r := 1; r <= numRounds; r++ {
		clock.Advance(roundTime)
		s, err := client.SetPayouts()
		if err != nil {
			logger.Fatal().Err(err).Int("round", r).Msg("settle")
		}
		logger.Info().
			Int("round", r).
			Uint64("staked", s.Staked).
			Str("distributed", s.Distributed.Tokens).
			Msg("Settlement")
	}

	// ── Phase 6: Claim + verify ─────────────────────────────────────────

	for h, key := range holders {
		res, err := client.Claim(key)
		if err != nil {
			logger.Fatal().Err(err).Int("holder", h).Msg("claim")
		}
		logger.Info().Int("holder", h).Str("claimed", res.Claimed.Tokens).Msg("Claimed")
	}

	if err := n.Ledger().CheckConservation(); err != nil {
		logger.Fatal().Err(err).Msg("conservation check failed")
	}
	totals, err := client.Totals()
	if err != nil {
		logger.Fatal().Err(err).Msg("totals")
	}
	if totals.Outstanding.Units != "0" {
		logger.Fatal().Str("outstanding", totals.Outstanding.Tokens).Msg("rewards left unclaimed")
	}
	supply := n.Token().TotalSupply()
	claimed, err := totals.Claimed.Int()
	if err != nil {
		logger.Fatal().Err(err).Msg("decode claimed total")
	}
	if !supply.Eq(claimed) {
		logger.Fatal().
			Str("supply", fixed.Format(supply)).
			Str("claimed", totals.Claimed.Tokens).
			Msg("token supply differs from claimed rewards")
	}

	logger.Info().
		Str("emitted", totals.Emitted.Tokens).
		Str("claimed", totals.Claimed.Tokens).
		Str("unallocated", totals.Unallocated.Tokens).
		Msg("=== Testnet run complete ===")
}

func mustKey() *crypto.PrivateKey {
	k, err := crypto.GenerateKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate key:", err)
		os.Exit(1)
	}
	return k
}
