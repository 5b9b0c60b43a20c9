package proof

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/crev-dev/cargo-crev-sub001/pkg/crypto"
)

const (
	markerDashes    = "-----"
	beginPrefix     = markerDashes + "BEGIN "
	endPrefix       = markerDashes + "END "
	signatureSuffix = " SIGNATURE"
)

// Proof is one enveloped record: a kind, the exact body bytes that were
// signed, and the signature section. Body and Signature keep the newline that
// terminates each of their lines.
type Proof struct {
	Kind      Kind
	Body      []byte
	Signature []byte
	// Line is the begin marker's line in the stream the proof was parsed from.
	Line int
}

func beginMarker(k Kind) string     { return beginPrefix + string(k) + markerDashes }
func signatureMarker(k Kind) string { return beginPrefix + string(k) + signatureSuffix + markerDashes }
func endMarker(k Kind) string       { return endPrefix + string(k) + markerDashes }

// Bytes renders the envelope.
func (p *Proof) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = p.WriteTo(&buf)
	return buf.Bytes()
}

func (p *Proof) String() string {
	return string(p.Bytes())
}

// WriteTo writes the envelope to w.
func (p *Proof) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, part := range [][]byte{
		[]byte(beginMarker(p.Kind) + "\n"),
		withNewline(p.Body),
		[]byte(signatureMarker(p.Kind) + "\n"),
		withNewline(p.Signature),
		[]byte(endMarker(p.Kind) + "\n"),
	} {
		written, err := w.Write(part)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func withNewline(b []byte) []byte {
	if len(b) == 0 || b[len(b)-1] == '\n' {
		return b
	}
	return append(append([]byte{}, b...), '\n')
}

// SignatureBytes decodes the signature section. Wrapped signatures are joined.
func (p *Proof) SignatureBytes() ([]byte, error) {
	var sb strings.Builder
	for _, line := range strings.Split(string(p.Signature), "\n") {
		sb.WriteString(strings.TrimSpace(line))
	}
	return crypto.DecodeSignature(sb.String())
}

type scanState int

const (
	stateOutside scanState = iota
	stateBody
	stateSignature
)

// Scanner reads consecutive proofs from a stream. Blank lines between and
// around records are ignored; anything else outside a record, a marker out of
// place, or a record cut short by EOF stops the scan with a *ParseError.
type Scanner struct {
	r     *bufio.Reader
	line  int
	cur   *Proof
	state scanState
	err   error
	done  bool
}

// NewScanner returns a scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Scan advances to the next proof. It returns false at the end of input or
// on the first error.
func (s *Scanner) Scan() bool {
	if s.done {
		return false
	}
	s.cur = nil
	var (
		pending *Proof
		body    bytes.Buffer
		sig     bytes.Buffer
	)

	for {
		raw, readErr := s.r.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return s.fail(fmt.Errorf("read line %d: %w", s.line+1, readErr))
		}
		if raw == "" && readErr != nil {
			return s.finish(pending)
		}
		s.line++
		trimmed := strings.TrimSpace(raw)

		switch s.state {
		case stateOutside:
			if trimmed == "" {
				break
			}
			kind, ok := parseBegin(trimmed)
			if !ok {
				return s.fail(&ParseError{Line: s.line, Expected: beginPrefix + "<TYPE>" + markerDashes, Found: quote(trimmed)})
			}
			pending = &Proof{Kind: kind, Line: s.line}
			s.state = stateBody

		case stateBody:
			if trimmed == signatureMarker(pending.Kind) {
				s.state = stateSignature
				break
			}
			if isMarker(trimmed) {
				return s.fail(&ParseError{Line: s.line, Start: pending.Line, Expected: signatureMarker(pending.Kind), Found: quote(trimmed)})
			}
			body.WriteString(terminate(raw))

		case stateSignature:
			if trimmed == endMarker(pending.Kind) {
				pending.Body = append([]byte{}, body.Bytes()...)
				pending.Signature = append([]byte{}, sig.Bytes()...)
				s.cur = pending
				s.state = stateOutside
				if readErr != nil {
					s.done = true
				}
				return true
			}
			if isMarker(trimmed) {
				return s.fail(&ParseError{Line: s.line, Start: pending.Line, Expected: endMarker(pending.Kind), Found: quote(trimmed)})
			}
			sig.WriteString(terminate(raw))
		}

		if readErr != nil {
			return s.finish(pending)
		}
	}
}

func (s *Scanner) finish(pending *Proof) bool {
	s.done = true
	switch s.state {
	case stateBody:
		s.err = &ParseError{Line: s.line + 1, Start: pending.Line, Expected: signatureMarker(pending.Kind), Found: "EOF"}
	case stateSignature:
		s.err = &ParseError{Line: s.line + 1, Start: pending.Line, Expected: endMarker(pending.Kind), Found: "EOF"}
	}
	return false
}

func (s *Scanner) fail(err error) bool {
	s.done = true
	s.err = err
	return false
}

// Proof returns the proof read by the last successful Scan.
func (s *Scanner) Proof() *Proof {
	return s.cur
}

// Err returns the first error encountered, or nil at a clean end of input.
func (s *Scanner) Err() error {
	return s.err
}

// ParseAll parses every proof in data. On error no proofs are returned: a
// truncated trailing record is never passed off as a complete one.
func ParseAll(data []byte) ([]*Proof, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader is ParseAll over a stream.
func ParseReader(r io.Reader) ([]*Proof, error) {
	s := NewScanner(r)
	var out []*Proof
	for s.Scan() {
		out = append(out, s.Proof())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseBegin(line string) (Kind, bool) {
	if !strings.HasPrefix(line, beginPrefix) || !strings.HasSuffix(line, markerDashes) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(line, beginPrefix), markerDashes)
	if name == "" || strings.HasSuffix(name, signatureSuffix) {
		return "", false
	}
	return Kind(name), true
}

func isMarker(line string) bool {
	return (strings.HasPrefix(line, beginPrefix) || strings.HasPrefix(line, endPrefix)) &&
		strings.HasSuffix(line, markerDashes)
}

func terminate(raw string) string {
	if strings.HasSuffix(raw, "\n") {
		return raw
	}
	return raw + "\n"
}

func quote(s string) string {
	const max = 60
	if len(s) > max {
		s = s[:max] + "..."
	}
	return fmt.Sprintf("%q", s)
}
