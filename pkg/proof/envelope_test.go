package proof

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crev-dev/cargo-crev-sub001/pkg/digest"
)

func TestParseAll_ToleratesBlankLines(t *testing.T) {
	own := newID(t, "https://example.com/p")
	var proofs []*Proof
	for i := 0; i < 4; i++ {
		proofs = append(proofs, signedTrust(t, own, Level(i%4), newID(t, "").PubID()))
	}

	var buf bytes.Buffer
	for i, p := range proofs {
		buf.WriteString(strings.Repeat("\n", i))
		buf.Write(p.Bytes())
	}
	buf.WriteString("\n\n")

	parsed, err := ParseAll(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, parsed, len(proofs))
	for i, p := range parsed {
		assert.Equal(t, proofs[i].Kind, p.Kind)
		assert.Equal(t, string(proofs[i].Body), string(p.Body))
		assert.Equal(t, string(proofs[i].Signature), string(p.Signature))
		_, err := Verify(p, nil)
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, parsed[0].Line)
}

func TestParseAll_Empty(t *testing.T) {
	parsed, err := ParseAll(nil)
	require.NoError(t, err)
	assert.Empty(t, parsed)

	parsed, err = ParseAll([]byte("\n  \n\n"))
	require.NoError(t, err)
	assert.Empty(t, parsed)
}

func TestParseAll_MissingFinalNewline(t *testing.T) {
	p := signedTrust(t, newID(t, ""), High, newID(t, "").PubID())
	data := bytes.TrimSuffix(p.Bytes(), []byte("\n"))

	parsed, err := ParseAll(data)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, string(p.Body), string(parsed[0].Body))
}

func TestParseAll_UnterminatedRecord(t *testing.T) {
	own := newID(t, "")
	first := signedTrust(t, own, High, newID(t, "").PubID())
	second := signedTrust(t, own, Low, newID(t, "").PubID())

	full := second.Bytes()
	cut := full[:bytes.LastIndex(full, []byte(endMarker(second.Kind)))]
	data := append(first.Bytes(), cut...)

	parsed, err := ParseAll(data)
	assert.Nil(t, parsed)
	var perr *ParseError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, "EOF", perr.Found)
	assert.Equal(t, endMarker(KindTrust), perr.Expected)
	assert.Greater(t, perr.Start, 1)

	bodyOnly := full[:bytes.Index(full, []byte(signatureMarker(second.Kind)))]
	_, err = ParseAll(bodyOnly)
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, signatureMarker(KindTrust), perr.Expected)
}

func TestParseAll_JunkOutsideRecord(t *testing.T) {
	p := signedTrust(t, newID(t, ""), High, newID(t, "").PubID())
	data := append(p.Bytes(), []byte("hello\n")...)

	_, err := ParseAll(data)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 0, perr.Start)
	assert.Contains(t, perr.Found, "hello")
}

func TestParseAll_MismatchedMarkers(t *testing.T) {
	p := signedTrust(t, newID(t, ""), High, newID(t, "").PubID())
	bad := strings.Replace(p.String(), endMarker(KindTrust), endMarker(KindCodeReview), 1)

	_, err := ParseAll([]byte(bad))
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, endMarker(KindTrust), perr.Expected)
}

func TestSign_RefusesMarkerInFreeText(t *testing.T) {
	own := newID(t, "")
	target := digest.File([]byte("x"))
	texts := []string{
		"first\n" + endMarker(KindTrust) + "\nlast",
		signatureMarker(KindCodeReview) + "\nmore",
		"ok\n" + beginMarker(KindPackageReview),
	}
	for _, text := range texts {
		_, err := SignAt(own, &CodeReview{Digest: target, Review: Review{Trust: Low}, Comment: text}, signedAt)
		assert.ErrorIs(t, err, ErrMalformedContent, "%q", text)

		_, err = SignAt(own, &CodeReview{Digest: target, Path: text, Review: Review{Trust: Low}}, signedAt)
		assert.ErrorIs(t, err, ErrMalformedContent, "%q", text)
	}

	// dashes that do not form a marker still sign and parse
	p, err := SignAt(own, &CodeReview{Digest: target, Review: Review{Trust: Low}, Comment: "a\n-----\nb"}, signedAt)
	require.NoError(t, err)
	var blob bytes.Buffer
	blob.Write(signedTrust(t, own, High, newID(t, "").PubID()).Bytes())
	blob.Write(p.Bytes())
	parsed, err := ParseAll(blob.Bytes())
	require.NoError(t, err)
	assert.Len(t, parsed, 2)
}

func TestParseAll_UnknownKindParsesButDoesNotVerify(t *testing.T) {
	p := signedTrust(t, newID(t, ""), High, newID(t, "").PubID())
	p.Kind = "ATTESTATION"

	parsed, err := ParseAll(p.Bytes())
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, Kind("ATTESTATION"), parsed[0].Kind)

	_, err = Verify(parsed[0], nil)
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
}

func TestSignatureBytes_WrappedLines(t *testing.T) {
	p := signedTrust(t, newID(t, ""), Medium, newID(t, "").PubID())
	sig := strings.TrimSpace(string(p.Signature))
	p.Signature = []byte(sig[:30] + "\n" + sig[30:] + "\n")

	parsed, err := ParseAll(p.Bytes())
	require.NoError(t, err)
	_, err = Verify(parsed[0], nil)
	assert.NoError(t, err)
}

func TestScanner_Streams(t *testing.T) {
	own := newID(t, "")
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		buf.Write(signedTrust(t, own, High, newID(t, "").PubID()).Bytes())
	}

	s := NewScanner(&buf)
	n := 0
	for s.Scan() {
		n++
		assert.Equal(t, KindTrust, s.Proof().Kind)
	}
	require.NoError(t, s.Err())
	assert.Equal(t, 3, n)
}
