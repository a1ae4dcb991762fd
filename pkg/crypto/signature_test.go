package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	k1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	k2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	if len(k1.PublicKey()) != 33 {
		t.Errorf("PublicKey() length = %d, want 33", len(k1.PublicKey()))
	}
	if len(k1.Serialize()) != 32 {
		t.Errorf("Serialize() length = %d, want 32", len(k1.Serialize()))
	}
	if bytes.Equal(k1.Serialize(), k2.Serialize()) {
		t.Error("two generated keys should not be identical")
	}
	if k1.Address() == k2.Address() {
		t.Error("two generated keys should have different addresses")
	}
}

func TestPrivateKeyFromBytes(t *testing.T) {
	original, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	restored, err := PrivateKeyFromBytes(original.Serialize())
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes() error: %v", err)
	}
	if !bytes.Equal(original.PublicKey(), restored.PublicKey()) {
		t.Error("restored key should have same public key")
	}

	fromHex, err := PrivateKeyFromHex("0x" + hex.EncodeToString(original.Serialize()))
	if err != nil {
		t.Fatalf("PrivateKeyFromHex() error: %v", err)
	}
	if fromHex.Address() != original.Address() {
		t.Error("hex-restored key should have same address")
	}

	for _, bad := range [][]byte{{}, make([]byte, 16), make([]byte, 64)} {
		if _, err := PrivateKeyFromBytes(bad); err == nil {
			t.Errorf("expected error for %d-byte key", len(bad))
		}
	}
	if _, err := PrivateKeyFromHex("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
}

func TestSign_Verify(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	other, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	digest := Keccak256([]byte("stake 1,2,3"))
	sig, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if len(sig) != 64 {
		t.Errorf("signature length = %d, want 64", len(sig))
	}

	otherDigest := Keccak256([]byte("other"))
	tests := []struct {
		name   string
		digest []byte
		sig    []byte
		pub    []byte
		want   bool
	}{
		{"valid", digest[:], sig, key.PublicKey(), true},
		{"wrong digest", otherDigest[:], sig, key.PublicKey(), false},
		{"wrong key", digest[:], sig, other.PublicKey(), false},
		{"corrupted signature", digest[:], append([]byte{sig[0] ^ 0xff}, sig[1:]...), key.PublicKey(), false},
		{"garbage pubkey", digest[:], sig, []byte{0x01, 0x02}, false},
		{"short signature", digest[:], sig[:10], key.PublicKey(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.digest, tt.sig, tt.pub); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSign_Deterministic(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	digest := Keccak256([]byte("deterministic"))
	sig1, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	sig2, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !bytes.Equal(sig1, sig2) {
		t.Error("Schnorr signatures should be deterministic")
	}

	if _, err := key.Sign([]byte("too short")); err == nil {
		t.Error("Sign() should reject non-32-byte digest")
	}
}

func TestValidatePublicKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if err := ValidatePublicKey(key.PublicKey()); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
	if err := ValidatePublicKey(make([]byte, 33)); err == nil {
		t.Error("zero key should be rejected")
	}
	if err := ValidatePublicKey(key.PublicKey()[:32]); err == nil {
		t.Error("short key should be rejected")
	}
}

func TestPrivateKey_SignerInterface(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	var s Signer = key
	digest := Keccak256([]byte("iface"))
	sig, err := s.Sign(digest[:])
	if err != nil {
		t.Fatal(err)
	}
	if !VerifySignature(digest[:], sig, s.PublicKey()) {
		t.Error("signature via interface should verify")
	}
}
