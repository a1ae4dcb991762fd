// locker-cli is a command-line client for a lockerd node and an offline
// toolbox for holder keys, provenance manifests and the reward math.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Klingon-tech/locker/config"
	"github.com/Klingon-tech/locker/internal/keystore"
	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/rpcclient"
	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/types"
	cli "gopkg.in/urfave/cli.v1"
)

var (
	rpcFlag = cli.StringFlag{
		Name:  "rpc",
		Usage: "node RPC endpoint (default: derived from network)",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Value: config.DefaultDataDir(),
		Usage: "data directory holding the keystore",
	}
	testnetFlag = cli.BoolFlag{
		Name:  "testnet",
		Usage: "use testnet defaults",
	}
	keyFlag = cli.StringFlag{
		Name:  "key",
		Value: "default",
		Usage: "keystore entry used to sign requests",
	}
)

func main() {
	klog.Init("warn", false, "")
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "locker-cli"
	app.Usage = "Locker staking node client"
	app.Version = config.Version
	app.Flags = []cli.Flag{rpcFlag, dataDirFlag, testnetFlag, keyFlag}
	app.Commands = []cli.Command{
		keyCommand,
		provenanceCommand,
		mintCommand,
		stakeCommand,
		unstakeCommand,
		claimCommand,
		settleCommand,
		payoutCommand,
		earningsCommand,
		statsCommand,
		mathCommand,
	}
	return app
}

// nodeConfig returns the defaults for the selected network with the global
// datadir applied.
func nodeConfig(ctx *cli.Context) *config.Config {
	network := config.Mainnet
	if ctx.GlobalBool(testnetFlag.Name) {
		network = config.Testnet
	}
	cfg := config.Default(network)
	if dir := ctx.GlobalString(dataDirFlag.Name); dir != "" {
		cfg.DataDir = dir
	}
	return cfg
}

func newClient(ctx *cli.Context) *rpcclient.Client {
	endpoint := ctx.GlobalString(rpcFlag.Name)
	if endpoint == "" {
		endpoint = nodeConfig(ctx).RPCEndpoint()
	}
	return rpcclient.New(endpoint)
}

func openKeystore(ctx *cli.Context) (*keystore.Keystore, error) {
	return keystore.New(nodeConfig(ctx).KeystoreDir(), keystore.DefaultKDFParams())
}

// loadKey prompts for the password of the global --key entry and decrypts it.
func loadKey(ctx *cli.Context) (*crypto.PrivateKey, error) {
	ks, err := openKeystore(ctx)
	if err != nil {
		return nil, err
	}
	name := ctx.GlobalString(keyFlag.Name)
	pw, err := keystore.ReadPassword(fmt.Sprintf("Password for %s: ", name))
	if err != nil {
		return nil, err
	}
	return ks.Load(name, pw)
}

// holderAddress returns the first argument as an address, or the address of
// the global --key entry.
func holderAddress(ctx *cli.Context) (types.Address, error) {
	if arg := ctx.Args().First(); arg != "" {
		return types.ParseAddress(arg)
	}
	ks, err := openKeystore(ctx)
	if err != nil {
		return types.Address{}, err
	}
	info, err := ks.Info(ctx.GlobalString(keyFlag.Name))
	if err != nil {
		return types.Address{}, err
	}
	return info.Address, nil
}

func parseIDs(args []string) ([]uint64, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one item id is required")
	}
	ids := make([]uint64, len(args))
	for i, a := range args {
		id, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid item id %q", a)
		}
		ids[i] = id
	}
	return ids, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
