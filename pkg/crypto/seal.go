package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryptionFailed is the only error Open reports for a bad passphrase or a
// corrupted ciphertext; the two cases are deliberately indistinguishable.
var ErrDecryptionFailed = errors.New("decryption failed")

// ErrUnsupportedKDF is returned for KDF parameters this package cannot apply.
var ErrUnsupportedKDF = errors.New("unsupported key derivation parameters")

// KDFVariantArgon2id is the only accepted KDF variant.
const KDFVariantArgon2id = "argon2id"

// Upper bounds on stored KDF parameters; id files are not trusted input.
const (
	MaxKDFIterations = 1024
	MaxKDFMemorySize = 256 * 1024 // KiB
)

// KDFParams are the passphrase stretching parameters stored next to a sealed key.
type KDFParams struct {
	Version    uint32 `yaml:"version"`
	Variant    string `yaml:"variant"`
	Iterations uint32 `yaml:"iterations"`
	MemorySize uint32 `yaml:"memory-size"` // KiB
	Lanes      uint8  `yaml:"lanes"`
	Salt       []byte `yaml:"-"`
}

// DefaultKDFParams returns interactive-strength argon2id parameters with a
// fresh random salt.
func DefaultKDFParams(rng io.Reader) (KDFParams, error) {
	if rng == nil {
		rng = rand.Reader
	}
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rng, salt); err != nil {
		return KDFParams{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	return KDFParams{
		Version:    argon2.Version,
		Variant:    KDFVariantArgon2id,
		Iterations: 192,
		MemorySize: 4096,
		Lanes:      8,
		Salt:       salt,
	}, nil
}

func (p KDFParams) validate() error {
	switch {
	case p.Variant != KDFVariantArgon2id:
		return fmt.Errorf("%w: variant %q", ErrUnsupportedKDF, p.Variant)
	case p.Version != argon2.Version:
		return fmt.Errorf("%w: version %d", ErrUnsupportedKDF, p.Version)
	case p.Iterations == 0 || p.Lanes == 0 || p.MemorySize < 8*uint32(p.Lanes):
		return fmt.Errorf("%w: iterations=%d memory=%d lanes=%d", ErrUnsupportedKDF, p.Iterations, p.MemorySize, p.Lanes)
	case p.Iterations > MaxKDFIterations || p.MemorySize > MaxKDFMemorySize:
		return fmt.Errorf("%w: iterations=%d memory=%d exceed limits %d/%d", ErrUnsupportedKDF, p.Iterations, p.MemorySize, MaxKDFIterations, MaxKDFMemorySize)
	case len(p.Salt) == 0:
		return fmt.Errorf("%w: empty salt", ErrUnsupportedKDF)
	}
	return nil
}

func (p KDFParams) deriveKey(passphrase string) []byte {
	return argon2.IDKey([]byte(passphrase), p.Salt, p.Iterations, p.MemorySize, p.Lanes, chacha20poly1305.KeySize)
}

// Seal encrypts secret under a key stretched from passphrase, returning the
// ciphertext and the random nonce used.
func Seal(secret []byte, passphrase string, params KDFParams, rng io.Reader) (sealed, nonce []byte, err error) {
	if err := params.validate(); err != nil {
		return nil, nil, err
	}
	if rng == nil {
		rng = rand.Reader
	}

	aead, err := chacha20poly1305.NewX(params.deriveKey(passphrase))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rng, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nil, nonce, secret, nil), nonce, nil
}

// Open reverses Seal.
func Open(sealed, nonce []byte, passphrase string, params KDFParams) ([]byte, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(params.deriveKey(passphrase))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}
