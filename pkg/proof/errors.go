package proof

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedContentType is terminal: an unknown kind is never skipped,
	// since ignoring a claim would silently under-verify.
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrMalformedContent       = errors.New("malformed proof content")
	ErrSignatureInvalid       = errors.New("signature invalid")
	ErrSignerMismatch         = errors.New("proof not signed by claimed signer")
)

// ParseError locates a malformed envelope.
type ParseError struct {
	Line     int    // 1-based line of the offending input, or of EOF
	Start    int    // line of the record's begin marker, 0 outside a record
	Expected string // marker that was expected
	Found    string
}

func (e *ParseError) Error() string {
	if e.Start > 0 {
		return fmt.Sprintf("line %d: expected %q, found %s (record started at line %d)", e.Line, e.Expected, e.Found, e.Start)
	}
	return fmt.Sprintf("line %d: expected %q, found %s", e.Line, e.Expected, e.Found)
}

// IsSignatureError reports whether err means a proof failed authentication.
func IsSignatureError(err error) bool {
	return errors.Is(err, ErrSignatureInvalid) || errors.Is(err, ErrSignerMismatch)
}
