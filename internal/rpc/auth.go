package rpc

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/types"
)

// MaxAuthWindow bounds how far in the future a signature may expire.
const MaxAuthWindow = 5 * time.Minute

// Auth errors.
var (
	ErrAuthMissing   = errors.New("request signature required")
	ErrAuthExpired   = errors.New("request signature expired")
	ErrAuthTooFar    = errors.New("request signature expires too far ahead")
	ErrAuthSignature = errors.New("invalid request signature")
	ErrAuthReplay    = errors.New("request already processed")
)

// Auth authenticates a holder call.
type Auth struct {
	PubKey    string `json:"pubkey"`
	Expires   int64  `json:"expires"` // unix seconds
	Signature string `json:"signature"`
}

// SignedParams wraps the payload of a mutating call with its signature.
type SignedParams struct {
	Auth    Auth            `json:"auth"`
	Payload json.RawMessage `json:"payload"`
}

// SigningDigest returns keccak256(method || 0x00 || payload || be64(expires)).
func SigningDigest(method string, payload []byte, expires int64) types.Hash {
	var exp [8]byte
	binary.BigEndian.PutUint64(exp[:], uint64(expires))
	return crypto.Keccak256([]byte(method), []byte{0}, payload, exp[:])
}

// Sign builds signed params for method. The payload is encoded once and the
// signature covers exactly those bytes.
func Sign(signer crypto.Signer, method string, payload interface{}, expires time.Time) (*SignedParams, error) {
	if payload == nil {
		payload = struct{}{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	exp := expires.Unix()
	digest := SigningDigest(method, raw, exp)
	sig, err := signer.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	return &SignedParams{
		Auth: Auth{
			PubKey:    hex.EncodeToString(signer.PublicKey()),
			Expires:   exp,
			Signature: hex.EncodeToString(sig),
		},
		Payload: raw,
	}, nil
}

// authenticator verifies signed params and rejects replays until the
// signature expires.
type authenticator struct {
	mu   sync.Mutex
	now  func() time.Time
	seen map[types.Hash]int64 // digest -> expiry
}

func newAuthenticator(now func() time.Time) *authenticator {
	if now == nil {
		now = time.Now
	}
	return &authenticator{now: now, seen: make(map[types.Hash]int64)}
}

// verify checks p for method and returns the caller's address.
func (a *authenticator) verify(method string, p *SignedParams) (types.Address, error) {
	if p.Auth.PubKey == "" || p.Auth.Signature == "" {
		return types.Address{}, ErrAuthMissing
	}
	pub, err := hex.DecodeString(p.Auth.PubKey)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: pubkey: %v", ErrAuthSignature, err)
	}
	if err := crypto.ValidatePublicKey(pub); err != nil {
		return types.Address{}, fmt.Errorf("%w: %v", ErrAuthSignature, err)
	}
	sig, err := hex.DecodeString(p.Auth.Signature)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: signature: %v", ErrAuthSignature, err)
	}

	now := a.now().Unix()
	if p.Auth.Expires <= now {
		return types.Address{}, ErrAuthExpired
	}
	if p.Auth.Expires-now > int64(MaxAuthWindow/time.Second) {
		return types.Address{}, ErrAuthTooFar
	}

	digest := SigningDigest(method, p.Payload, p.Auth.Expires)
	if !crypto.VerifySignature(digest[:], sig, pub) {
		return types.Address{}, ErrAuthSignature
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for d, exp := range a.seen {
		if exp <= now {
			delete(a.seen, d)
		}
	}
	if _, dup := a.seen[digest]; dup {
		return types.Address{}, ErrAuthReplay
	}
	a.seen[digest] = p.Auth.Expires

	return crypto.AddressFromPubKey(pub), nil
}
