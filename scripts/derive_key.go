// derive_key prints the public key and locker address for a hex-encoded
// private key file, or the address derived from a label such as the
// staking custody label.
//
// Usage:
//
//	go run scripts/derive_key.go <keyfile>
//	go run scripts/derive_key.go -label staking/custody
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/locker/pkg/crypto"
)

func main() {
	if len(os.Args) == 3 && os.Args[1] == "-label" {
		fmt.Printf("address=%s\n", crypto.AddressFromLabel(os.Args[2]).String())
		return
	}
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <keyfile> | -label <label>")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	keyHex := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	key, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer key.Zero()
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(key.PublicKey()))
	fmt.Printf("address=%s\n", key.Address().String())
}
