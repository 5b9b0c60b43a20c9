// Package crypto holds the signature and sealing primitives behind identities
// and proofs.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidKeySize is returned when key bytes have the wrong length.
var ErrInvalidKeySize = errors.New("invalid key size")

// Signer produces detached signatures.
type Signer interface {
	Sign(data []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// Ed25519Signer signs with an in-memory Ed25519 key.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
}

// NewEd25519Signer generates a fresh key pair from rng (crypto/rand when nil).
func NewEd25519Signer(rng io.Reader) (*Ed25519Signer, error) {
	if rng == nil {
		rng = rand.Reader
	}
	pub, priv, err := ed25519.GenerateKey(rng)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{privKey: priv, pubKey: pub}, nil
}

// NewEd25519SignerFromSeed rebuilds a signer from its 32-byte seed.
func NewEd25519SignerFromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed is %d bytes, want %d", ErrInvalidKeySize, len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

func (s *Ed25519Signer) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(s.privKey, data), nil
}

func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	return s.pubKey
}

// Seed returns a copy of the private seed. Callers are expected to seal it
// before it leaves memory.
func (s *Ed25519Signer) Seed() []byte {
	seed := s.privKey.Seed()
	out := make([]byte, len(seed))
	copy(out, seed)
	return out
}

// EncodeSignature renders a signature the way it appears in a proof envelope.
func EncodeSignature(sig []byte) string {
	return base64.RawURLEncoding.EncodeToString(sig)
}

// DecodeSignature accepts unpadded base64url, tolerating padding for
// signatures produced by other implementations. Decoding is strict so that no
// two encodings map to the same signature.
func DecodeSignature(s string) ([]byte, error) {
	if sig, err := base64.RawURLEncoding.Strict().DecodeString(s); err == nil {
		return sig, nil
	}
	sig, err := base64.URLEncoding.Strict().DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}
	return sig, nil
}
