package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/locker/internal/keystore"
	"github.com/Klingon-tech/locker/pkg/crypto"
	cli "gopkg.in/urfave/cli.v1"
)

var (
	nameFlag = cli.StringFlag{
		Name:  "name",
		Value: "default",
		Usage: "keystore entry name",
	}
	indexFlag = cli.UintFlag{
		Name:  "index",
		Usage: "holder index i in m/44'/7331'/0'/0/i",
	}
	hexFlag = cli.BoolFlag{
		Name:  "hex",
		Usage: "import a hex private key instead of a mnemonic",
	}
)

var keyCommand = cli.Command{
	Name:  "key",
	Usage: "manage holder keys",
	Subcommands: []cli.Command{
		{
			Name:   "new",
			Usage:  "generate a mnemonic and store the derived holder key",
			Flags:  []cli.Flag{nameFlag, indexFlag},
			Action: keyNew,
		},
		{
			Name:   "import",
			Usage:  "import a key from a mnemonic or a hex private key",
			Flags:  []cli.Flag{nameFlag, indexFlag, hexFlag},
			Action: keyImport,
		},
		{
			Name:      "show",
			Usage:     "show one key, or list all keys",
			ArgsUsage: "[name]",
			Action:    keyShow,
		},
	},
}

func keyNew(ctx *cli.Context) error {
	ks, err := openKeystore(ctx)
	if err != nil {
		return err
	}
	mnemonic, err := keystore.GenerateMnemonic()
	if err != nil {
		return err
	}
	seed, err := keystore.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return err
	}
	index := uint32(ctx.Uint(indexFlag.Name))
	key, err := keystore.DeriveHolderKey(seed, index)
	if err != nil {
		return err
	}
	defer key.Zero()

	pw, err := keystore.ReadNewPassword()
	if err != nil {
		return err
	}
	info, err := ks.Store(ctx.String(nameFlag.Name), key, keystore.HolderPath(index), pw)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "Write down this mnemonic; it is the only backup of the key:")
	fmt.Println(mnemonic)
	return printJSON(info)
}

func keyImport(ctx *cli.Context) error {
	ks, err := openKeystore(ctx)
	if err != nil {
		return err
	}

	var (
		key  *crypto.PrivateKey
		path string
	)
	if ctx.Bool(hexFlag.Name) {
		secret, err := keystore.ReadPassword("Private key (hex): ")
		if err != nil {
			return err
		}
		key, err = crypto.PrivateKeyFromHex(strings.TrimPrefix(strings.TrimSpace(string(secret)), "0x"))
		if err != nil {
			return err
		}
	} else {
		words, err := keystore.ReadPassword("Mnemonic: ")
		if err != nil {
			return err
		}
		seed, err := keystore.SeedFromMnemonic(strings.Join(strings.Fields(string(words)), " "), "")
		if err != nil {
			return err
		}
		index := uint32(ctx.Uint(indexFlag.Name))
		if key, err = keystore.DeriveHolderKey(seed, index); err != nil {
			return err
		}
		path = keystore.HolderPath(index)
	}
	defer key.Zero()

	pw, err := keystore.ReadNewPassword()
	if err != nil {
		return err
	}
	info, err := ks.Store(ctx.String(nameFlag.Name), key, path, pw)
	if err != nil {
		return err
	}
	return printJSON(info)
}

func keyShow(ctx *cli.Context) error {
	ks, err := openKeystore(ctx)
	if err != nil {
		return err
	}
	if name := ctx.Args().First(); name != "" {
		info, err := ks.Info(name)
		if err != nil {
			return err
		}
		return printJSON(info)
	}
	infos, err := ks.List()
	if err != nil {
		return err
	}
	return printJSON(infos)
}
