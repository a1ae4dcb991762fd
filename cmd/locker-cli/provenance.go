package main

import (
	"fmt"

	"github.com/Klingon-tech/locker/internal/collection"
	"github.com/Klingon-tech/locker/internal/provenance"
	"github.com/Klingon-tech/locker/internal/rpc"
	"github.com/Klingon-tech/locker/pkg/types"
	cli "gopkg.in/urfave/cli.v1"
)

var (
	outFlag = cli.StringFlag{
		Name:  "out",
		Usage: "also write the result as JSON to this file",
	}
	toFlag = cli.StringFlag{
		Name:  "to",
		Usage: "recipient address (default: the signing key)",
	}
)

var provenanceCommand = cli.Command{
	Name:  "provenance",
	Usage: "build, publish and audit the provenance chain",
	Subcommands: []cli.Command{
		{
			Name:      "build",
			Usage:     "compute item and running hashes from a manifest (offline)",
			ArgsUsage: "<manifest.yaml>",
			Flags:     []cli.Flag{outFlag},
			Action:    provenanceBuild,
		},
		{
			Name:      "init",
			Usage:     "sign the manifest seed and initialize the node's chain",
			ArgsUsage: "<manifest.yaml>",
			Action:    provenanceInit,
		},
		{
			Name:      "verify",
			Usage:     "verify the node's chain, optionally against a manifest",
			ArgsUsage: "[manifest.yaml]",
			Action:    provenanceVerify,
		},
		{
			Name:   "info",
			Usage:  "show the node's chain summary",
			Action: provenanceInfo,
		},
	},
}

var mintCommand = cli.Command{
	Name:      "mint",
	Usage:     "mint the manifest items the node has not committed yet (operator)",
	ArgsUsage: "<manifest.yaml>",
	Flags:     []cli.Flag{toFlag},
	Action:    mintManifest,
}

// buildResult is the offline output of provenance build.
type buildResult struct {
	Hasher  string             `json:"hasher"`
	Seed    types.Hash         `json:"seed"`
	Tip     types.Hash         `json:"tip"`
	Entries []provenance.Entry `json:"entries"`
}

func loadManifest(ctx *cli.Context) (*collection.Manifest, []provenance.Entry, error) {
	path := ctx.Args().First()
	if path == "" {
		return nil, nil, fmt.Errorf("manifest path is required")
	}
	m, err := collection.LoadManifest(path)
	if err != nil {
		return nil, nil, err
	}
	entries, err := m.Build()
	if err != nil {
		return nil, nil, err
	}
	return m, entries, nil
}

func provenanceBuild(ctx *cli.Context) error {
	m, entries, err := loadManifest(ctx)
	if err != nil {
		return err
	}
	res := buildResult{Hasher: m.Hasher, Seed: m.Seed, Tip: m.Seed, Entries: entries}
	if len(entries) > 0 {
		res.Tip = entries[len(entries)-1].Running
	}
	if out := ctx.String(outFlag.Name); out != "" {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	}
	return printJSON(res)
}

func provenanceInit(ctx *cli.Context) error {
	m, _, err := loadManifest(ctx)
	if err != nil {
		return err
	}
	key, err := loadKey(ctx)
	if err != nil {
		return err
	}
	defer key.Zero()

	pub, err := provenance.Publish(key, m.Seed, m.Hasher)
	if err != nil {
		return err
	}
	var info provenance.Info
	if err := newClient(ctx).Call("provenance_initialize", pub, &info); err != nil {
		return err
	}
	return printJSON(info)
}

func provenanceVerify(ctx *cli.Context) error {
	client := newClient(ctx)
	var res rpc.VerifyResult
	if err := client.Call("provenance_verify", nil, &res); err != nil {
		return err
	}
	if ctx.Args().First() == "" {
		return printJSON(res)
	}

	// Compare every committed entry with the locally built chain.
	_, entries, err := loadManifest(ctx)
	if err != nil {
		return err
	}
	if res.Length > len(entries) {
		return fmt.Errorf("node has %d entries, manifest only %d", res.Length, len(entries))
	}
	for i, want := range entries[:res.Length] {
		var got rpc.ProvenanceItemResult
		if err := client.Call("provenance_getItem", rpc.ItemParam{ID: uint64(want.ItemID)}, &got); err != nil {
			return fmt.Errorf("entry %d (item %d): %w", i, want.ItemID, err)
		}
		if got.Entry != want {
			return fmt.Errorf("entry %d (item %d): node %s, manifest %s", i, want.ItemID, got.Running, want.Running)
		}
	}
	return printJSON(res)
}

func provenanceInfo(ctx *cli.Context) error {
	var info provenance.Info
	if err := newClient(ctx).Call("provenance_getInfo", nil, &info); err != nil {
		return err
	}
	return printJSON(info)
}

func mintManifest(ctx *cli.Context) error {
	_, entries, err := loadManifest(ctx)
	if err != nil {
		return err
	}
	key, err := loadKey(ctx)
	if err != nil {
		return err
	}
	defer key.Zero()

	to := key.Address()
	if s := ctx.String(toFlag.Name); s != "" {
		if to, err = types.ParseAddress(s); err != nil {
			return err
		}
	}

	client := newClient(ctx)
	var info provenance.Info
	if err := client.Call("provenance_getInfo", nil, &info); err != nil {
		return err
	}
	if info.Length > len(entries) {
		return fmt.Errorf("node has %d entries, manifest only %d", info.Length, len(entries))
	}
	for _, e := range entries[info.Length:] {
		var item rpc.ItemResult
		err := client.CallSigned(key, "collection_mint", rpc.MintPayload{
			To:          to.String(),
			ID:          uint64(e.ItemID),
			Rarity:      e.Rarity,
			ItemHash:    e.ItemHash,
			RunningHash: e.Running,
		}, &item)
		if err != nil {
			return fmt.Errorf("mint item %d: %w", e.ItemID, err)
		}
		fmt.Printf("minted item %d (rarity %d) to %s\n", e.ItemID, e.Rarity, to)
	}
	fmt.Printf("%d items minted, chain length %d\n", len(entries)-info.Length, len(entries))
	return nil
}
