package proof

import (
	"fmt"

	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
)

// Verify authenticates p and returns its typed content.
//
// The signature is checked over the exact body bytes, never over a
// re-serialization of the decoded content. When claimed is non-nil the body
// must name it as signer; otherwise the signer named in the body is trusted as
// the candidate and its key must have produced the signature.
//
// A body that does not decode cannot be attributed to any key and is reported
// as ErrSignatureInvalid. Only an unknown kind yields ErrUnsupportedContentType.
func Verify(p *Proof, claimed *identity.ID) (Content, error) {
	switch p.Kind {
	case KindCodeReview, KindPackageReview, KindTrust:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, string(p.Kind))
	}

	sig, err := p.SignatureBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	if claimed != nil && !claimed.Verify(p.Body, sig) {
		return nil, fmt.Errorf("%w: claimed signer %s", ErrSignatureInvalid, claimed)
	}

	c, err := Unmarshal(p.Kind, p.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	signer := c.Header().From.ID

	if claimed != nil {
		if signer != *claimed {
			return nil, fmt.Errorf("%w: body names %s, claimed %s", ErrSignerMismatch, signer, claimed)
		}
		return c, nil
	}
	if !signer.Verify(p.Body, sig) {
		return nil, fmt.Errorf("%w: signer %s", ErrSignatureInvalid, signer)
	}
	return c, nil
}

// Signer returns the identity a verified content claims as author.
func Signer(c Content) identity.ID {
	return c.Header().From.ID
}
