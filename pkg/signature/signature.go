// Package signature signs and verifies 32-byte manifest digests with ed25519.
// All wire encodings are lowercase hex: 64 chars for digests and public keys,
// 128 chars for signatures. The private key never leaves the Keyring.
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const AlgorithmEd25519 = "ed25519"

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidEncoding      = errors.New("invalid encoding")
	ErrInvalidSignature     = errors.New("invalid signature")
)

// Keyring holds the service signing key.
type Keyring struct {
	priv ed25519.PrivateKey
}

// NewKeyring generates a fresh ed25519 key pair.
func NewKeyring() (*Keyring, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keyring{priv: priv}, nil
}

// KeyringFromSeedHex restores a keyring from a 32-byte hex seed, for stable
// keys across restarts.
func KeyringFromSeedHex(seedHex string) (*Keyring, error) {
	seed, err := decodeLowerHex(seedHex, ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	return &Keyring{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k *Keyring) PublicKeyHex() string {
	pub := k.priv.Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub)
}

// SignDigestHex signs a lowercase hex SHA-256 digest and returns the 128-char
// hex signature.
func (k *Keyring) SignDigestHex(digestHex string) (string, error) {
	digest, err := decodeLowerHex(digestHex, 32)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ed25519.Sign(k.priv, digest)), nil
}

// VerifyDigestHex checks sigHex over digestHex under publicKeyHex. Callers
// treating mismatch as a boolean outcome should compare against
// ErrInvalidSignature; other errors are encoding problems.
func VerifyDigestHex(digestHex, publicKeyHex, sigHex string) error {
	digest, err := decodeLowerHex(digestHex, 32)
	if err != nil {
		return err
	}
	pub, err := decodeLowerHex(publicKeyHex, ed25519.PublicKeySize)
	if err != nil {
		return err
	}
	sig, err := decodeLowerHex(sigHex, ed25519.SignatureSize)
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
		return ErrInvalidSignature
	}
	return nil
}

func decodeLowerHex(s string, wantLen int) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" || s != strings.ToLower(s) {
		return nil, ErrInvalidEncoding
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if len(b) != wantLen {
		return nil, fmt.Errorf("%w: expected %d bytes", ErrInvalidEncoding, wantLen)
	}
	return b, nil
}
