package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/types"
)

const (
	keyFileVersion = 1
	keyFileExt     = ".key"
)

var (
	ErrKeyExists   = errors.New("key already exists")
	ErrKeyNotFound = errors.New("key not found")
)

// KeyInfo is the public part of a key file.
type KeyInfo struct {
	Name      string        `json:"name"`
	Address   types.Address `json:"address"`
	Path      string        `json:"path,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type keyFile struct {
	Version int `json:"version"`
	KeyInfo
	Crypto *cipherJSON `json:"crypto"`
}

// Keystore stores encrypted holder keys as JSON files in a directory.
type Keystore struct {
	dir    string
	params KDFParams
}

// New opens the keystore at dir, creating the directory if needed.
func New(dir string, params KDFParams) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{dir: dir, params: params}, nil
}

func (ks *Keystore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid key name %q", name)
	}
	return filepath.Join(ks.dir, name+keyFileExt), nil
}

// Store encrypts key under password as name. path records the derivation
// path for display and may be empty for imported keys.
func (ks *Keystore) Store(name string, key *crypto.PrivateKey, path string, password []byte) (KeyInfo, error) {
	file, err := ks.path(name)
	if err != nil {
		return KeyInfo{}, err
	}
	if _, err := os.Stat(file); err == nil {
		return KeyInfo{}, fmt.Errorf("%w: %s", ErrKeyExists, name)
	}

	info := KeyInfo{Name: name, Address: key.Address(), Path: path, CreatedAt: time.Now().UTC()}
	raw := key.Serialize()
	defer zero(raw)
	sealed, err := encrypt(raw, password, info.Address[:], ks.params)
	if err != nil {
		return KeyInfo{}, err
	}

	data, err := json.MarshalIndent(keyFile{Version: keyFileVersion, KeyInfo: info, Crypto: sealed}, "", "  ")
	if err != nil {
		return KeyInfo{}, fmt.Errorf("marshal key file: %w", err)
	}
	if err := os.WriteFile(file, data, 0o600); err != nil {
		return KeyInfo{}, fmt.Errorf("write key file: %w", err)
	}
	klog.Keystore.Info().Str("name", name).Str("address", info.Address.String()).Msg("Key stored")
	return info, nil
}

// Load decrypts the key stored as name.
func (ks *Keystore) Load(name string, password []byte) (*crypto.PrivateKey, error) {
	kf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	raw, err := decrypt(kf.Crypto, password, kf.Address[:])
	if err != nil {
		return nil, err
	}
	defer zero(raw)
	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		return nil, err
	}
	if key.Address() != kf.Address {
		key.Zero()
		return nil, fmt.Errorf("key file %s: address mismatch", name)
	}
	return key, nil
}

// Info returns the public part of the key stored as name.
func (ks *Keystore) Info(name string) (KeyInfo, error) {
	kf, err := ks.read(name)
	if err != nil {
		return KeyInfo{}, err
	}
	return kf.KeyInfo, nil
}

// List returns all stored keys sorted by name.
func (ks *Keystore) List() ([]KeyInfo, error) {
	entries, err := os.ReadDir(ks.dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	out := []KeyInfo{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != keyFileExt {
			continue
		}
		info, err := ks.Info(strings.TrimSuffix(e.Name(), keyFileExt))
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes the key stored as name.
func (ks *Keystore) Delete(name string) error {
	file, err := ks.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(file); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, name)
		}
		return err
	}
	klog.Keystore.Info().Str("name", name).Msg("Key deleted")
	return nil
}

func (ks *Keystore) read(name string) (*keyFile, error) {
	file, err := ks.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, name)
		}
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("unsupported key file version: %d", kf.Version)
	}
	if kf.Crypto == nil {
		return nil, fmt.Errorf("key file %s has no crypto section", name)
	}
	return &kf, nil
}
