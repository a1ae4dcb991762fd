package provenance

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/types"
)

var (
	ErrBadPublication = errors.New("invalid seed publication signature")
	ErrWrongOperator  = errors.New("seed not signed by the provenance operator")
)

// Publication is the operator's signed announcement of the seed and hash
// function, released before the first mint.
type Publication struct {
	Seed      types.Hash `json:"seed"`
	Hasher    string     `json:"hasher"`
	PublicKey string     `json:"publicKey"`
	Signature string     `json:"signature"`
}

func publicationDigest(seed types.Hash, hasher string) types.Hash {
	return crypto.Keccak256([]byte("locker/provenance/seed"), []byte(hasher), seed[:])
}

// Publish signs seed and the hasher name with the operator key.
func Publish(signer crypto.Signer, seed types.Hash, hasher string) (*Publication, error) {
	if seed.IsZero() {
		return nil, ErrZeroSeed
	}
	if hasher == "" {
		hasher = crypto.HasherKeccak256
	}
	digest := publicationDigest(seed, hasher)
	sig, err := signer.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign seed: %w", err)
	}
	return &Publication{
		Seed:      seed,
		Hasher:    hasher,
		PublicKey: hex.EncodeToString(signer.PublicKey()),
		Signature: hex.EncodeToString(sig),
	}, nil
}

// Operator returns the address of the signing key.
func (p *Publication) Operator() (types.Address, error) {
	pub, err := hex.DecodeString(p.PublicKey)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: public key: %v", ErrBadPublication, err)
	}
	return crypto.AddressFromPubKey(pub), nil
}

// VerifyPublication checks the signature over the seed and hasher name.
func VerifyPublication(p *Publication) error {
	if p == nil {
		return ErrBadPublication
	}
	pub, err := hex.DecodeString(p.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: public key: %v", ErrBadPublication, err)
	}
	sig, err := hex.DecodeString(p.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrBadPublication, err)
	}
	digest := publicationDigest(p.Seed, p.Hasher)
	if !crypto.VerifySignature(digest[:], sig, pub) {
		return ErrBadPublication
	}
	return nil
}
