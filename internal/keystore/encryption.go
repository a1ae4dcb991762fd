package keystore

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	kdfArgon2id = "argon2id"
	saltSize    = 32
)

var ErrDecrypt = errors.New("wrong password or corrupt key file")

// KDFParams are the Argon2id cost parameters.
type KDFParams struct {
	Memory      uint32 `json:"memory"` // KiB
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultKDFParams returns interactive-strength parameters.
func DefaultKDFParams() KDFParams {
	return KDFParams{Memory: 64 * 1024, Iterations: 3, Parallelism: 4}
}

// cipherJSON is the encrypted section of a key file.
type cipherJSON struct {
	KDF        string    `json:"kdf"`
	Params     KDFParams `json:"kdfparams"`
	Salt       string    `json:"salt"`
	Cipher     string    `json:"cipher"`
	Nonce      string    `json:"nonce"`
	Ciphertext string    `json:"ciphertext"`
}

func deriveKey(password, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// encrypt seals data under password with Argon2id and XChaCha20-Poly1305.
// aad binds the ciphertext to the key file's address.
func encrypt(data, password, aad []byte, p KDFParams) (*cipherJSON, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key := deriveKey(password, salt, p)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return &cipherJSON{
		KDF:        kdfArgon2id,
		Params:     p,
		Salt:       hex.EncodeToString(salt),
		Cipher:     "xchacha20-poly1305",
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(aead.Seal(nil, nonce, data, aad)),
	}, nil
}

// decrypt opens a sealed section.
func decrypt(c *cipherJSON, password, aad []byte) ([]byte, error) {
	if c.KDF != kdfArgon2id {
		return nil, fmt.Errorf("unsupported kdf %q", c.KDF)
	}
	salt, err := hex.DecodeString(c.Salt)
	if err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	nonce, err := hex.DecodeString(c.Nonce)
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("nonce: malformed")
	}
	ct, err := hex.DecodeString(c.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("ciphertext: %w", err)
	}

	key := deriveKey(password, salt, c.Params)
	defer zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}
