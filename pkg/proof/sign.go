package proof

import (
	"fmt"
	"strings"
	"time"

	"github.com/crev-dev/cargo-crev-sub001/pkg/crypto"
	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
)

// Sign fills in the signer and the current time, then signs the canonical
// body of c.
func Sign(own *identity.OwnID, c Content) (*Proof, error) {
	return SignAt(own, c, time.Now())
}

// SignAt is Sign with an explicit signing time. Any date or author already
// present on c is overwritten.
func SignAt(own *identity.OwnID, c Content, at time.Time) (*Proof, error) {
	if own == nil {
		return nil, fmt.Errorf("sign: %w: no identity", identity.ErrInvalidKeyMaterial)
	}
	if err := checkKind(c); err != nil {
		return nil, err
	}

	h := c.Header()
	h.Version = ContentVersion
	h.Date = Timestamp{Time: at}
	h.From = own.PubID()
	normalize(c)

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("sign %s: %w", c.Kind(), err)
	}

	body, err := Marshal(c)
	if err != nil {
		return nil, err
	}
	if line, ok := markerLine(body); ok {
		return nil, fmt.Errorf("sign %s: %w: body line %d looks like an envelope marker", c.Kind(), ErrMalformedContent, line)
	}
	sig := crypto.EncodeSignature(own.Sign(body))
	return &Proof{
		Kind:      c.Kind(),
		Body:      body,
		Signature: []byte(sig + "\n"),
	}, nil
}

// markerLine finds the first body line the envelope scanner would read as a
// marker. Free-text fields can produce one.
func markerLine(body []byte) (int, bool) {
	for i, line := range strings.Split(string(body), "\n") {
		if isMarker(strings.TrimSpace(line)) {
			return i + 1, true
		}
	}
	return 0, false
}
