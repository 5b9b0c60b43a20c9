// Package digest computes the content hashes used to name identities, projects
// and packages, and to fingerprint reviewed code.
//
// Files hash to BLAKE2b-256 of their bytes. Directories hash to BLAKE2b-256 of
// the concatenation name||digest over their entries sorted by name, so the
// result never depends on the order the OS lists a directory in.
package digest

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/blake2b"
)

// Size is the length of a Digest in bytes.
const Size = blake2b.Size256

// ErrInvalidDigest is returned when a textual digest does not decode to Size bytes.
var ErrInvalidDigest = errors.New("invalid digest")

// Digest is an opaque content hash.
type Digest [Size]byte

// Zero is the all-zero digest; it never identifies real content.
var Zero Digest

// File hashes raw bytes.
func File(data []byte) Digest {
	return Digest(blake2b.Sum256(data))
}

// Reader hashes everything read from r.
func Reader(r io.Reader) (Digest, error) {
	h, _ := blake2b.New256(nil)
	if _, err := io.Copy(h, r); err != nil {
		return Zero, err
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// Parse decodes the base64url (unpadded) form produced by String.
func Parse(s string) (Digest, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	return FromBytes(b)
}

// ParseHex decodes the lowercase hex form produced by Hex.
func ParseHex(s string) (Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	return FromBytes(b)
}

// FromBytes copies b into a Digest.
func FromBytes(b []byte) (Digest, error) {
	if len(b) != Size {
		return Zero, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidDigest, len(b), Size)
	}
	var d Digest
	copy(d[:], b)
	return d, nil
}

func (d Digest) String() string {
	return base64.RawURLEncoding.EncodeToString(d[:])
}

// Hex returns the lowercase hex encoding.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) IsZero() bool {
	return d == Zero
}

func (d Digest) Equal(o Digest) bool {
	return bytes.Equal(d[:], o[:])
}

// Multihash wraps the digest in a self-describing blake2b-256 multihash.
func (d Digest) Multihash() (multihash.Multihash, error) {
	return multihash.Encode(d[:], multihash.BLAKE2B_MIN+Size-1)
}

// Multibase renders the multihash form as base32 multibase text, for tools
// that address content the IPFS way.
func (d Digest) Multibase() (string, error) {
	mh, err := d.Multihash()
	if err != nil {
		return "", fmt.Errorf("multihash: %w", err)
	}
	return multibase.Encode(multibase.Base32, mh)
}

// FromMultibase reverses Multibase.
func FromMultibase(s string) (Digest, error) {
	_, raw, err := multibase.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	decoded, err := multihash.Decode(raw)
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	if decoded.Code != multihash.BLAKE2B_MIN+Size-1 {
		return Zero, fmt.Errorf("%w: unexpected hash function %s", ErrInvalidDigest, decoded.Name)
	}
	return FromBytes(decoded.Digest)
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
