package identity

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/crev-dev/cargo-crev-sub001/pkg/crypto"
	"gopkg.in/yaml.v3"
)

// LockedIDVersion is the schema tag written into locked identity documents.
const LockedIDVersion = -1

// LockedID is an owned identity encrypted at rest with a passphrase.
type LockedID struct {
	Version         int           `yaml:"version"`
	URL             string        `yaml:"url,omitempty"`
	Alias           string        `yaml:"alias,omitempty"`
	PublicKey       string        `yaml:"public-key"`
	SealedSecretKey string        `yaml:"sealed-secret-key"`
	SealNonce       string        `yaml:"seal-nonce"`
	Pass            LockedIDParam `yaml:"pass"`
}

// LockedIDParam is the serialized form of crypto.KDFParams.
type LockedIDParam struct {
	Version    uint32 `yaml:"version"`
	Variant    string `yaml:"variant"`
	Iterations uint32 `yaml:"iterations"`
	MemorySize uint32 `yaml:"memory-size"`
	Lanes      uint8  `yaml:"lanes"`
	Salt       string `yaml:"salt"`
}

func (p LockedIDParam) kdf() (crypto.KDFParams, error) {
	salt, err := base64.RawURLEncoding.DecodeString(p.Salt)
	if err != nil {
		return crypto.KDFParams{}, fmt.Errorf("%w: salt: %v", ErrInvalidKeyMaterial, err)
	}
	return crypto.KDFParams{
		Version:    p.Version,
		Variant:    p.Variant,
		Iterations: p.Iterations,
		MemorySize: p.MemorySize,
		Lanes:      p.Lanes,
		Salt:       salt,
	}, nil
}

// Lock seals the identity's private key with passphrase using default KDF
// parameters.
func Lock(own *OwnID, passphrase string, rng io.Reader) (*LockedID, error) {
	params, err := crypto.DefaultKDFParams(rng)
	if err != nil {
		return nil, err
	}
	return LockWithParams(own, passphrase, params, rng)
}

// LockWithParams seals the identity using caller-chosen KDF parameters.
func LockWithParams(own *OwnID, passphrase string, params crypto.KDFParams, rng io.Reader) (*LockedID, error) {
	seed := own.signer.Seed()
	sealed, nonce, err := crypto.Seal(seed, passphrase, params, rng)
	if err != nil {
		return nil, fmt.Errorf("seal private key: %w", err)
	}
	enc := base64.RawURLEncoding
	return &LockedID{
		Version:         LockedIDVersion,
		URL:             own.pub.URL,
		Alias:           own.Alias,
		PublicKey:       own.pub.ID.String(),
		SealedSecretKey: enc.EncodeToString(sealed),
		SealNonce:       enc.EncodeToString(nonce),
		Pass: LockedIDParam{
			Version:    params.Version,
			Variant:    params.Variant,
			Iterations: params.Iterations,
			MemorySize: params.MemorySize,
			Lanes:      params.Lanes,
			Salt:       enc.EncodeToString(params.Salt),
		},
	}, nil
}

// ID returns the public identifier without unlocking.
func (l *LockedID) ID() (ID, error) {
	return ParseID(l.PublicKey)
}

// Unlock decrypts the private key. A wrong passphrase and a tampered
// ciphertext both yield ErrDecryptionFailed.
func (l *LockedID) Unlock(passphrase string) (*OwnID, error) {
	want, err := l.ID()
	if err != nil {
		return nil, err
	}
	params, err := l.Pass.kdf()
	if err != nil {
		return nil, err
	}
	enc := base64.RawURLEncoding
	sealed, err := enc.DecodeString(l.SealedSecretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: sealed key: %v", ErrInvalidKeyMaterial, err)
	}
	nonce, err := enc.DecodeString(l.SealNonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrInvalidKeyMaterial, err)
	}

	seed, err := crypto.Open(sealed, nonce, passphrase, params)
	if err != nil {
		return nil, err
	}
	own, err := FromSeed(seed, l.URL)
	if err != nil {
		return nil, err
	}
	if own.ID() != want {
		return nil, fmt.Errorf("%w: sealed key does not match public key", ErrInvalidKeyMaterial)
	}
	own.Alias = l.Alias
	return own, nil
}

// Marshal renders the locked identity as YAML.
func (l *LockedID) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(l); err != nil {
		return nil, fmt.Errorf("encode locked id: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseLockedID decodes a locked identity document.
func ParseLockedID(data []byte) (*LockedID, error) {
	var l LockedID
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	if _, err := l.ID(); err != nil {
		return nil, err
	}
	return &l, nil
}
