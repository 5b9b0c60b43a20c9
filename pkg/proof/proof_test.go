package proof

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crev-dev/cargo-crev-sub001/pkg/digest"
	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
)

var signedAt = time.Date(2024, 3, 9, 18, 4, 5, 123456789, time.FixedZone("PST", -8*3600))

func newID(t *testing.T, url string) *identity.OwnID {
	t.Helper()
	own, err := identity.Generate(url, nil)
	require.NoError(t, err)
	return own
}

func signedTrust(t *testing.T, signer *identity.OwnID, level Level, ids ...identity.PubID) *Proof {
	t.Helper()
	c := NewTrust(ids...)
	c.Trust = level
	p, err := SignAt(signer, c, signedAt)
	require.NoError(t, err)
	return p
}

func TestLevel_OrderingAndNames(t *testing.T) {
	assert.True(t, None < Low && Low < Medium && Medium < High)
	assert.True(t, High.AtLeast(Medium))
	assert.False(t, Low.AtLeast(Medium))
	assert.Equal(t, Medium, DefaultTrustLevel)
	assert.Equal(t, None, DefaultDistrustLevel)

	for _, l := range []Level{None, Low, Medium, High} {
		parsed, err := ParseLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
	}
	_, err := ParseLevel("extreme")
	assert.ErrorIs(t, err, ErrMalformedContent)
}

func TestSign_CodeReviewRoundTrip(t *testing.T) {
	reviewer := newID(t, "https://example.com/reviewer")
	target := digest.File([]byte("fn main() {}"))

	p, err := SignAt(reviewer, &CodeReview{
		Digest:  target,
		Path:    "src/main.rs",
		Review:  Review{Thoroughness: Low, Understanding: Medium, Trust: High},
		Comment: "looks fine",
	}, signedAt)
	require.NoError(t, err)
	assert.Equal(t, KindCodeReview, p.Kind)
	assert.True(t, bytes.HasSuffix(p.Body, []byte("\n")))
	assert.True(t, bytes.HasSuffix(p.Signature, []byte("\n")))

	id := reviewer.ID()
	c, err := Verify(p, &id)
	require.NoError(t, err)

	r, ok := c.(*CodeReview)
	require.True(t, ok)
	assert.Equal(t, target, r.Digest)
	assert.Equal(t, "src/main.rs", r.Path)
	assert.Equal(t, Review{Thoroughness: Low, Understanding: Medium, Trust: High}, r.Review)
	assert.Equal(t, "looks fine", r.Comment)
	assert.Equal(t, reviewer.PubID(), r.From)
	assert.True(t, signedAt.Equal(r.Date.Time))
	assert.Equal(t, ContentVersion, r.Version)

	got, ok := Target(c)
	assert.True(t, ok)
	assert.Equal(t, target, got)
}

func TestSign_PackageReviewRoundTrip(t *testing.T) {
	reviewer := newID(t, "")
	projectID := digest.File([]byte("project"))
	content := digest.File([]byte("package content"))

	p, err := Sign(reviewer, &PackageReview{
		Package: Package{
			Source:  "https://crates.io",
			Name:    "serde",
			ID:      &projectID,
			Version: semver.MustParse("1.0.188"),
		},
		Digest: content,
		Review: Review{Thoroughness: High, Understanding: High, Trust: Medium, Distrust: Low},
	})
	require.NoError(t, err)

	c, err := Verify(p, nil)
	require.NoError(t, err)
	r := c.(*PackageReview)
	assert.Equal(t, "serde", r.Package.Name)
	assert.Equal(t, "https://crates.io", r.Package.Source)
	require.NotNil(t, r.Package.ID)
	assert.Equal(t, projectID, *r.Package.ID)
	require.NotNil(t, r.Package.Version)
	assert.Equal(t, "1.0.188", r.Package.Version.String())
	assert.Equal(t, Low, r.Review.Distrust)
	assert.Equal(t, content, r.Digest)
}

func TestSign_TrustRoundTrip(t *testing.T) {
	truster := newID(t, "https://example.com/a")
	b := newID(t, "https://example.com/b")
	c := newID(t, "")

	p := signedTrust(t, truster, High, b.PubID(), c.PubID())
	content, err := Verify(p, nil)
	require.NoError(t, err)

	tr := content.(*Trust)
	assert.Equal(t, []identity.PubID{b.PubID(), c.PubID()}, tr.IDs)
	assert.Equal(t, High, tr.Trust)
	assert.False(t, tr.IsDistrust())
	_, hasTarget := Target(tr)
	assert.False(t, hasTarget)
}

func TestSign_OverwritesAuthorAndDate(t *testing.T) {
	real := newID(t, "")
	impostor := newID(t, "")

	c := NewTrust(newID(t, "").PubID())
	c.From = impostor.PubID()
	c.Date = Timestamp{Time: time.Unix(0, 0)}

	p, err := SignAt(real, c, signedAt)
	require.NoError(t, err)

	got, err := Verify(p, nil)
	require.NoError(t, err)
	assert.Equal(t, real.ID(), Signer(got))
	assert.True(t, signedAt.Equal(got.Header().Date.Time))
}

func TestSign_RejectsIncompleteContent(t *testing.T) {
	own := newID(t, "")
	_, err := Sign(own, &Trust{Trust: High})
	assert.ErrorIs(t, err, ErrMalformedContent)

	_, err = Sign(own, &PackageReview{Digest: digest.File([]byte("x"))})
	assert.ErrorIs(t, err, ErrMalformedContent)

	_, err = Sign(own, &CodeReview{})
	assert.ErrorIs(t, err, ErrMalformedContent)
}

func TestMarshal_IsDeterministicAndOmitsDefaults(t *testing.T) {
	own := newID(t, "https://example.com/me")
	p := signedTrust(t, own, Medium, newID(t, "").PubID())

	c, err := Verify(p, nil)
	require.NoError(t, err)
	again, err := Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, string(p.Body), string(again))

	body := string(p.Body)
	assert.True(t, strings.HasPrefix(body, "version: -1\ndate: "))
	assert.Contains(t, body, "-08:00")
	assert.Contains(t, body, "trust: medium\n")
	assert.NotContains(t, body, "distrust")
	assert.NotContains(t, body, "id-type")
	assert.NotContains(t, body, "url-type")
}

func TestSign_NormalizesFreeText(t *testing.T) {
	own := newID(t, "")
	decomposed := "cafe\u0301"
	p, err := SignAt(own, &CodeReview{
		Digest:  digest.File([]byte("x")),
		Review:  Review{Trust: Low},
		Comment: decomposed,
	}, signedAt)
	require.NoError(t, err)

	c, err := Verify(p, nil)
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", c.(*CodeReview).Comment)
}

func TestVerify_TamperSensitivity(t *testing.T) {
	own := newID(t, "https://example.com/x")
	orig := signedTrust(t, own, High, newID(t, "").PubID())
	id := own.ID()

	for i := range orig.Body {
		p := &Proof{Kind: orig.Kind, Body: append([]byte{}, orig.Body...), Signature: orig.Signature}
		p.Body[i] ^= 0x01
		for _, claimed := range []*identity.ID{&id, nil} {
			_, err := Verify(p, claimed)
			require.Errorf(t, err, "body byte %d", i)
			assert.Truef(t, IsSignatureError(err), "body byte %d: %v", i, err)
		}
	}

	sigText := len(orig.Signature) - 1 // keep the terminating newline
	for i := 0; i < sigText; i++ {
		p := &Proof{Kind: orig.Kind, Body: orig.Body, Signature: append([]byte{}, orig.Signature...)}
		p.Signature[i] ^= 0x01
		_, err := Verify(p, nil)
		require.Errorf(t, err, "signature byte %d", i)
		assert.Truef(t, errors.Is(err, ErrSignatureInvalid), "signature byte %d: %v", i, err)
	}
}

func TestVerify_ClaimedSignerMismatch(t *testing.T) {
	author := newID(t, "")
	other := newID(t, "")
	p := signedTrust(t, author, Low, newID(t, "").PubID())

	otherID := other.ID()
	_, err := Verify(p, &otherID)
	assert.True(t, IsSignatureError(err))
}

func TestVerify_UnknownKindIsTerminal(t *testing.T) {
	own := newID(t, "")
	p := signedTrust(t, own, Low, newID(t, "").PubID())
	p.Kind = "CODE AUDIT"

	_, err := Verify(p, nil)
	assert.ErrorIs(t, err, ErrUnsupportedContentType)

	_, err = Unmarshal("CODE AUDIT", p.Body)
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
}
