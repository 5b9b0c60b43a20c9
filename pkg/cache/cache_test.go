package cache

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crev-dev/cargo-crev-sub001/pkg/digest"
	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
	"github.com/crev-dev/cargo-crev-sub001/pkg/proof"
	"github.com/crev-dev/cargo-crev-sub001/pkg/trust"
	"github.com/crev-dev/cargo-crev-sub001/pkg/verifier"
)

type fixture struct {
	self, reviewer *identity.OwnID
	target         digest.Digest
	proofs         *verifier.Collection
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	self, err := identity.FromSeed(bytes.Repeat([]byte{1}, 32), "https://example.com/self")
	require.NoError(t, err)
	reviewer, err := identity.FromSeed(bytes.Repeat([]byte{2}, 32), "https://example.com/reviewer")
	require.NoError(t, err)
	target := digest.File([]byte("fn main() {}"))
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tr := proof.NewTrust(reviewer.PubID())
	tr.Trust = proof.High
	review := &proof.CodeReview{Digest: target, Review: proof.Review{Thoroughness: proof.Low, Understanding: proof.Medium, Trust: proof.Medium}}

	var contents []proof.Content
	for _, s := range []struct {
		by *identity.OwnID
		c  proof.Content
	}{{self, tr}, {reviewer, review}} {
		p, err := proof.SignAt(s.by, s.c, at)
		require.NoError(t, err)
		c, err := proof.Verify(p, nil)
		require.NoError(t, err)
		contents = append(contents, c)
	}
	return fixture{self: self, reviewer: reviewer, target: target, proofs: verifier.NewCollection(contents)}
}

func TestKey_Canonical(t *testing.T) {
	f := newFixture(t)
	key := Key{Target: f.target, Start: f.self.ID(), Fingerprint: digest.File(nil), Policy: trust.DefaultPolicy()}

	canon, err := key.Canonical()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(canon), `{"fingerprint":`), string(canon))
	assert.Contains(t, string(canon), `"min_trust_level":"medium"`)
	assert.NotContains(t, string(canon), " ")

	id1, err := key.ID()
	require.NoError(t, err)
	id2, err := key.ID()
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	key.Policy.Budget++
	id3, err := key.ID()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestMemory_Miss(t *testing.T) {
	_, err := NewMemory().Get(context.Background(), Key{})
	assert.ErrorIs(t, err, ErrMiss)
}

func TestVerify_UsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := verifier.New(trust.DefaultPolicy())
	require.NoError(t, err)
	c := NewMemory()
	fp := digest.File([]byte("fingerprint"))

	first, hit, err := Verify(ctx, c, v, f.proofs, fp, f.self.ID(), f.target)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, first.Sufficient)
	assert.Equal(t, 1, c.Len())

	second, hit, err := Verify(ctx, c, v, f.proofs, fp, f.self.ID(), f.target)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.Sufficient, second.Sufficient)
	assert.Equal(t, first.Explanation, second.Explanation)
	assert.Equal(t, first.ContributingIDs(), second.ContributingIDs())
	require.Len(t, second.Contributing, 1)
	assert.Equal(t, proof.Medium, second.Contributing[0].Review.Trust)
	assert.Equal(t, 1, second.Contributing[0].Path.Hops())

	// a different index fingerprint is a different key
	_, hit, err = Verify(ctx, c, v, f.proofs, digest.File([]byte("other")), f.self.ID(), f.target)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, c.Len())
}

func TestVerifyMany_MixesHitsAndMisses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := verifier.New(trust.DefaultPolicy(), verifier.WithWorkers(2))
	require.NoError(t, err)
	c := NewMemory()
	fp := digest.File([]byte("fingerprint"))
	unreviewed := digest.File([]byte("unreviewed"))

	_, hit, err := Verify(ctx, c, v, f.proofs, fp, f.self.ID(), f.target)
	require.NoError(t, err)
	require.False(t, hit)

	verdicts, hits, err := VerifyMany(ctx, c, v, f.proofs, fp, f.self.ID(), []digest.Digest{unreviewed, f.target, unreviewed})
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
	require.Len(t, verdicts, 3)
	assert.False(t, verdicts[0].Sufficient)
	assert.True(t, verdicts[1].Sufficient)
	assert.Equal(t, unreviewed, verdicts[2].Target)
	assert.Equal(t, 2, c.Len())

	verdicts, hits, err = VerifyMany(ctx, c, v, f.proofs, fp, f.self.ID(), []digest.Digest{f.target, unreviewed})
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
	assert.True(t, verdicts[0].Sufficient)
	assert.Equal(t, "no reviews of target", verdicts[1].Explanation)
}

// TestRedis_Integration requires a running Redis and skips otherwise.
func TestRedis_Integration(t *testing.T) {
	r := NewRedis("localhost:6379", "", 0, time.Minute)
	defer func() { _ = r.Close() }()
	ctx := context.Background()
	if err := r.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	f := newFixture(t)
	v, err := verifier.New(trust.DefaultPolicy())
	require.NoError(t, err)
	fp := digest.File([]byte(t.Name() + time.Now().String()))

	_, err = r.Get(ctx, Key{Target: f.target, Start: f.self.ID(), Fingerprint: fp, Policy: v.Policy()})
	assert.ErrorIs(t, err, ErrMiss)

	first, hit, err := Verify(ctx, r, v, f.proofs, fp, f.self.ID(), f.target)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := Verify(ctx, r, v, f.proofs, fp, f.self.ID(), f.target)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.ContributingIDs(), second.ContributingIDs())
}
