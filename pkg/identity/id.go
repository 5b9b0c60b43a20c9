// Package identity models the key pairs that sign proofs. A public identity is
// nothing more than an Ed25519 public key plus an optional URL of the proof
// repository it publishes to; its textual id is always derived from the key.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/crev-dev/cargo-crev-sub001/pkg/crypto"
	"github.com/crev-dev/cargo-crev-sub001/pkg/digest"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidKeyMaterial = errors.New("invalid key material")
	ErrDecryptionFailed   = crypto.ErrDecryptionFailed
	ErrUnsupportedIDType  = errors.New("unsupported id type")
)

const (
	// DefaultIDType is the only id type understood; it is omitted on the wire.
	DefaultIDType = "crev"
	// DefaultURLType is the implied url type; it is omitted on the wire.
	DefaultURLType = "git"
)

// ID is the stable identifier of a public key.
type ID struct {
	key [ed25519.PublicKeySize]byte
}

// NewID derives the identifier of pub.
func NewID(pub ed25519.PublicKey) (ID, error) {
	if len(pub) != ed25519.PublicKeySize {
		return ID{}, fmt.Errorf("%w: public key is %d bytes", ErrInvalidKeyMaterial, len(pub))
	}
	var id ID
	copy(id.key[:], pub)
	return id, nil
}

// ParseID decodes the base64url form of an identifier.
func ParseID(s string) (ID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return ID{}, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	return NewID(raw)
}

func (id ID) String() string {
	return base64.RawURLEncoding.EncodeToString(id.key[:])
}

func (id ID) IsZero() bool {
	return id == ID{}
}

// Compare orders identifiers by key bytes.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id.key[:], other.key[:])
}

// PublicKey returns a copy of the key bytes.
func (id ID) PublicKey() ed25519.PublicKey {
	out := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(out, id.key[:])
	return out
}

// Digest hashes the public key; used wherever an identity must be addressed
// like content.
func (id ID) Digest() digest.Digest {
	return digest.File(id.key[:])
}

// Verify reports whether sig is a valid signature of msg by this identity.
func (id ID) Verify(msg, sig []byte) bool {
	v := &crypto.Ed25519Verifier{PublicKey: id.PublicKey()}
	return v.Verify(msg, sig)
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// PubID is a public identity as it appears inside proofs.
type PubID struct {
	ID      ID
	URL     string
	URLType string
}

// NewPubID builds a public identity for id publishing at url (may be empty).
func NewPubID(id ID, url string) PubID {
	return PubID{ID: id, URL: url}
}

func (p PubID) String() string {
	if p.URL == "" {
		return p.ID.String()
	}
	return p.ID.String() + " " + p.URL
}

type pubIDWire struct {
	IDType  string `yaml:"id-type,omitempty"`
	ID      string `yaml:"id"`
	URL     string `yaml:"url,omitempty"`
	URLType string `yaml:"url-type,omitempty"`
}

func (p PubID) MarshalYAML() (interface{}, error) {
	w := pubIDWire{ID: p.ID.String(), URL: p.URL}
	if p.URL != "" && p.URLType != "" && p.URLType != DefaultURLType {
		w.URLType = p.URLType
	}
	return w, nil
}

func (p *PubID) UnmarshalYAML(value *yaml.Node) error {
	var w pubIDWire
	if err := value.Decode(&w); err != nil {
		return err
	}
	if w.IDType != "" && w.IDType != DefaultIDType {
		return fmt.Errorf("%w: %q", ErrUnsupportedIDType, w.IDType)
	}
	id, err := ParseID(w.ID)
	if err != nil {
		return err
	}
	p.ID = id
	p.URL = w.URL
	p.URLType = w.URLType
	if p.URLType == DefaultURLType {
		p.URLType = ""
	}
	return nil
}
