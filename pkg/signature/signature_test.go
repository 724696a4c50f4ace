package signature

import (
	"errors"
	"strings"
	"testing"

	"github.com/aaravjj2/RiskCanvas-sub002/pkg/canonhash"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kr, err := NewKeyring()
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	digest := canonhash.SumString("manifest")

	sig, err := kr.SignDigestHex(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != 128 {
		t.Fatalf("expected 128 hex chars, got %d", len(sig))
	}
	if err := VerifyDigestHex(digest, kr.PublicKeyHex(), sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTamperedDigest(t *testing.T) {
	kr, _ := NewKeyring()
	sig, _ := kr.SignDigestHex(canonhash.SumString("original"))

	err := VerifyDigestHex(canonhash.SumString("tampered"), kr.PublicKeyHex(), sig)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer, _ := NewKeyring()
	other, _ := NewKeyring()
	digest := canonhash.SumString("manifest")
	sig, _ := signer.SignDigestHex(digest)

	err := VerifyDigestHex(digest, other.PublicKeyHex(), sig)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestHexEncodingIsStrict(t *testing.T) {
	kr, _ := NewKeyring()
	digest := canonhash.SumString("manifest")
	sig, _ := kr.SignDigestHex(digest)

	cases := []struct {
		name             string
		digest, pub, sgn string
	}{
		{"uppercase digest", strings.ToUpper(digest), kr.PublicKeyHex(), sig},
		{"short digest", digest[:62], kr.PublicKeyHex(), sig},
		{"non-hex digest", strings.Repeat("zz", 32), kr.PublicKeyHex(), sig},
		{"empty signature", digest, kr.PublicKeyHex(), ""},
		{"truncated signature", digest, kr.PublicKeyHex(), sig[:64]},
		{"truncated public key", digest, kr.PublicKeyHex()[:32], sig},
	}
	for _, tc := range cases {
		err := VerifyDigestHex(tc.digest, tc.pub, tc.sgn)
		if !errors.Is(err, ErrInvalidEncoding) {
			t.Fatalf("%s: expected ErrInvalidEncoding, got %v", tc.name, err)
		}
	}
}

func TestKeyringFromSeedIsStable(t *testing.T) {
	seed := strings.Repeat("ab", 32)
	a, err := KeyringFromSeedHex(seed)
	if err != nil {
		t.Fatalf("seed keyring: %v", err)
	}
	b, err := KeyringFromSeedHex(seed)
	if err != nil {
		t.Fatalf("seed keyring: %v", err)
	}
	if a.PublicKeyHex() != b.PublicKeyHex() {
		t.Fatalf("same seed must restore the same key")
	}

	digest := canonhash.SumString("manifest")
	sigA, _ := a.SignDigestHex(digest)
	sigB, _ := b.SignDigestHex(digest)
	if sigA != sigB {
		t.Fatalf("ed25519 is deterministic, same seed and digest must sign identically")
	}

	if _, err := KeyringFromSeedHex("deadbeef"); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding for short seed, got %v", err)
	}
}
