package identity

import (
	"io"

	"github.com/crev-dev/cargo-crev-sub001/pkg/crypto"
)

// OwnID is an identity whose private key is held in memory. Alias is a local
// nickname; it is stored with the locked key and never signed into proofs.
type OwnID struct {
	pub    PubID
	signer *crypto.Ed25519Signer
	Alias  string
}

// Generate creates a fresh key pair using rng (crypto/rand when nil).
func Generate(url string, rng io.Reader) (*OwnID, error) {
	signer, err := crypto.NewEd25519Signer(rng)
	if err != nil {
		return nil, err
	}
	return newOwnID(signer, url)
}

// FromSeed rebuilds an owned identity from its private seed.
func FromSeed(seed []byte, url string) (*OwnID, error) {
	signer, err := crypto.NewEd25519SignerFromSeed(seed)
	if err != nil {
		return nil, ErrInvalidKeyMaterial
	}
	return newOwnID(signer, url)
}

func newOwnID(signer *crypto.Ed25519Signer, url string) (*OwnID, error) {
	id, err := NewID(signer.PublicKey())
	if err != nil {
		return nil, err
	}
	return &OwnID{pub: NewPubID(id, url), signer: signer}, nil
}

// ID returns the identifier of the public half.
func (o *OwnID) ID() ID {
	return o.pub.ID
}

// PubID strips private material.
func (o *OwnID) PubID() PubID {
	return o.pub
}

// Sign signs data with the private key.
func (o *OwnID) Sign(data []byte) []byte {
	sig, _ := o.signer.Sign(data)
	return sig
}

// Verify checks a signature against a public identity.
func Verify(id ID, data, sig []byte) bool {
	return id.Verify(data, sig)
}
