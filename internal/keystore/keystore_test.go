package keystore

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Klingon-tech/locker/pkg/crypto"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// fastParams keeps Argon2 cheap in tests.
func fastParams() KDFParams {
	return KDFParams{Memory: 64, Iterations: 1, Parallelism: 1}
}

func testSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := SeedFromMnemonic(testMnemonic, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic: %v", err)
	}
	return seed
}

func TestSeedFromMnemonic_Vector(t *testing.T) {
	// BIP-39 reference vector with passphrase "TREZOR".
	want := "c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04"
	if got := hex.EncodeToString(testSeed(t)); got != want {
		t.Errorf("seed = %s, want %s", got, want)
	}
	if _, err := SeedFromMnemonic("abandon abandon", ""); !errors.Is(err, ErrInvalidMnemonic) {
		t.Errorf("invalid mnemonic err = %v", err)
	}
}

func TestGenerateMnemonic(t *testing.T) {
	m, err := GenerateMnemonic()
	if err != nil {
		t.Fatal(err)
	}
	if n := len(strings.Fields(m)); n != 24 {
		t.Errorf("word count = %d, want 24", n)
	}
	if !ValidateMnemonic(m) {
		t.Error("generated mnemonic does not validate")
	}
}

func TestDeriveHolderKey(t *testing.T) {
	seed := testSeed(t)
	k0, err := DeriveHolderKey(seed, 0)
	if err != nil {
		t.Fatal(err)
	}
	again, err := DeriveHolderKey(seed, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(k0.Serialize(), again.Serialize()) {
		t.Error("derivation is not deterministic")
	}
	k1, err := DeriveHolderKey(seed, 1)
	if err != nil {
		t.Fatal(err)
	}
	if k0.Address() == k1.Address() {
		t.Error("indices 0 and 1 derived the same address")
	}
	addr, err := HolderAddress(seed, 1)
	if err != nil || addr != k1.Address() {
		t.Errorf("HolderAddress = %s, %v", addr, err)
	}
	if HolderPath(3) != "m/44'/7331'/0'/0/3" {
		t.Errorf("HolderPath = %s", HolderPath(3))
	}
	if _, err := DeriveHolderKey(seed[:32], 0); err == nil {
		t.Error("short seed accepted")
	}
}

func TestKeystore_StoreLoad(t *testing.T) {
	ks, err := New(t.TempDir(), fastParams())
	if err != nil {
		t.Fatal(err)
	}
	key, err := DeriveHolderKey(testSeed(t), 0)
	if err != nil {
		t.Fatal(err)
	}
	pw := []byte("hunter2")

	info, err := ks.Store("alice", key, HolderPath(0), pw)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if info.Address != key.Address() {
		t.Errorf("info address = %s", info.Address)
	}
	if _, err := ks.Store("alice", key, "", pw); !errors.Is(err, ErrKeyExists) {
		t.Errorf("duplicate store err = %v", err)
	}

	loaded, err := ks.Load("alice", pw)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(loaded.Serialize(), key.Serialize()) {
		t.Error("loaded key differs")
	}
	if _, err := ks.Load("alice", []byte("wrong")); !errors.Is(err, ErrDecrypt) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := ks.Load("bob", pw); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("missing key err = %v", err)
	}
	if _, err := ks.Store("../evil", key, "", pw); err == nil {
		t.Error("path traversal name accepted")
	}

	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ks.Store("imported", other, "", pw); err != nil {
		t.Fatal(err)
	}
	list, err := ks.List()
	if err != nil || len(list) != 2 || list[0].Name != "alice" || list[1].Name != "imported" {
		t.Fatalf("List = %+v, %v", list, err)
	}
	if err := ks.Delete("imported"); err != nil {
		t.Fatal(err)
	}
	if err := ks.Delete("imported"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestKeystore_TamperedAddress(t *testing.T) {
	dir := t.TempDir()
	ks, err := New(dir, fastParams())
	if err != nil {
		t.Fatal(err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	pw := []byte("pw")
	info, err := ks.Store("k", key, "", pw)
	if err != nil {
		t.Fatal(err)
	}

	// Rewriting the address breaks the AEAD binding.
	file := filepath.Join(dir, "k.key")
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	forged := strings.Replace(string(data), info.Address.String(), "0x"+strings.Repeat("ab", 20), 1)
	if err := os.WriteFile(file, []byte(forged), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ks.Load("k", pw); !errors.Is(err, ErrDecrypt) {
		t.Errorf("tampered address err = %v", err)
	}
}
