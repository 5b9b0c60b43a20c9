package trust

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
	"github.com/crev-dev/cargo-crev-sub001/pkg/proof"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func ids(t *testing.T, n int) []identity.ID {
	t.Helper()
	out := make([]identity.ID, n)
	for i := range out {
		own, err := identity.FromSeed(bytes.Repeat([]byte{byte(i + 1)}, 32), "")
		require.NoError(t, err)
		out[i] = own.ID()
	}
	return out
}

func stmt(from identity.ID, at int, level proof.Level, to ...identity.ID) *proof.Trust {
	t := &proof.Trust{
		Common: proof.Common{
			Version: proof.ContentVersion,
			Date:    proof.Timestamp{Time: epoch.Add(time.Duration(at) * time.Hour)},
			From:    identity.NewPubID(from, ""),
		},
		Trust: level,
	}
	for _, id := range to {
		t.IDs = append(t.IDs, identity.NewPubID(id, ""))
	}
	return t
}

func distrust(from identity.ID, at int, level proof.Level, to ...identity.ID) *proof.Trust {
	t := stmt(from, at, proof.None, to...)
	t.Distrust = level
	return t
}

func compute(t *testing.T, start identity.ID, p Policy, statements ...*proof.Trust) *Set {
	t.Helper()
	s, err := Compute(NewGraph(statements), start, p)
	require.NoError(t, err)
	return s
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 10, p.MaxDepth)
	assert.Equal(t, 10, p.Budget)
	assert.Equal(t, Costs{High: 0, Medium: 1, Low: 5}, p.Costs)
	assert.Equal(t, proof.Medium, p.MinTrustLevel)
	require.NoError(t, p.Validate())

	_, ok := p.Cost(proof.None)
	assert.False(t, ok)
	c, ok := p.Cost(proof.Low)
	assert.True(t, ok)
	assert.Equal(t, 5, c)
}

func TestPolicy_Validate(t *testing.T) {
	bad := []Policy{
		{MaxDepth: -1, MinTrustLevel: proof.Low},
		{Budget: -1, MinTrustLevel: proof.Low},
		{Costs: Costs{Low: -2}, MinTrustLevel: proof.Low},
		{MinTrustLevel: proof.None},
		{MinTrustLevel: proof.Level(9)},
	}
	for _, p := range bad {
		assert.ErrorIs(t, p.Validate(), ErrInvalidPolicy, "%+v", p)
	}
	_, err := Compute(NewGraph(nil), ids(t, 1)[0], bad[0])
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestCompute_CostBudgetBound(t *testing.T) {
	n := ids(t, 4)
	self, a, b, c := n[0], n[1], n[2], n[3]
	chain := []*proof.Trust{
		stmt(self, 0, proof.Medium, a),
		stmt(a, 0, proof.Medium, b),
		stmt(b, 0, proof.Low, c),
	}

	p := DefaultPolicy()
	p.Budget = 7
	s := compute(t, self, p, chain...)
	require.True(t, s.Contains(c))
	label, _ := s.Label(c)
	assert.Equal(t, Label{Budget: 0, Hops: 3}, label)

	p.Budget = 6
	s = compute(t, self, p, chain...)
	assert.True(t, s.Contains(b))
	assert.False(t, s.Contains(c))
}

func TestCompute_MaxDepthCapsHops(t *testing.T) {
	n := ids(t, 6)
	var chain []*proof.Trust
	for i := 0; i < 5; i++ {
		chain = append(chain, stmt(n[i], 0, proof.High, n[i+1]))
	}
	p := DefaultPolicy()
	p.MaxDepth = 3

	s := compute(t, n[0], p, chain...)
	assert.True(t, s.Contains(n[3]))
	assert.False(t, s.Contains(n[4]))
	assert.Equal(t, 4, s.Len())
}

func TestCompute_NoneIsNotTraversable(t *testing.T) {
	n := ids(t, 2)
	s := compute(t, n[0], DefaultPolicy(), stmt(n[0], 0, proof.None, n[1]))
	assert.False(t, s.Contains(n[1]))
	assert.True(t, s.Contains(n[0]))
}

func TestNewGraph_LatestStatementWins(t *testing.T) {
	n := ids(t, 2)
	self, a := n[0], n[1]
	older := stmt(self, 0, proof.High, a)
	newer := stmt(self, 1, proof.None, a)

	for _, order := range [][]*proof.Trust{{older, newer}, {newer, older}} {
		g := NewGraph(order)
		e, ok := g.Edge(self, a)
		require.True(t, ok)
		assert.Equal(t, proof.None, e.Trust)
		assert.Equal(t, 1, g.EdgeCount())

		s, err := Compute(g, self, DefaultPolicy())
		require.NoError(t, err)
		assert.False(t, s.Contains(a))
	}
}

func TestNewGraph_IgnoresSelfTrust(t *testing.T) {
	n := ids(t, 1)
	g := NewGraph([]*proof.Trust{stmt(n[0], 0, proof.High, n[0])})
	assert.Equal(t, 0, g.EdgeCount())
	assert.Empty(t, g.Signers())
}

func TestCompute_DistrustPoisonsReachableTarget(t *testing.T) {
	n := ids(t, 3)
	self, a, b := n[0], n[1], n[2]

	s := compute(t, self, DefaultPolicy(),
		stmt(self, 0, proof.High, a, b),
		distrust(b, 1, proof.High, a),
	)
	assert.True(t, s.IsPoisoned(a))
	assert.False(t, s.Contains(a))
	assert.True(t, s.Contains(b))
	assert.Equal(t, []identity.ID{a}, s.Poisoned())
}

func TestCompute_DistrustFromUntrustedIsIgnored(t *testing.T) {
	n := ids(t, 3)
	self, a, stranger := n[0], n[1], n[2]

	s := compute(t, self, DefaultPolicy(),
		stmt(self, 0, proof.High, a),
		distrust(stranger, 1, proof.High, a),
	)
	assert.True(t, s.Contains(a))
	assert.Empty(t, s.Poisoned())
}

func TestCompute_PoisonedIdentityCannotRelayTrust(t *testing.T) {
	n := ids(t, 4)
	self, a, b, c := n[0], n[1], n[2], n[3]

	s := compute(t, self, DefaultPolicy(),
		stmt(self, 0, proof.High, a, b),
		stmt(a, 0, proof.High, c),
		distrust(b, 0, proof.Low, a),
	)
	assert.False(t, s.Contains(a))
	assert.False(t, s.Contains(c))
	assert.False(t, s.IsPoisoned(c))
}

func TestCompute_DistrustOutlivesItsAuthorsPath(t *testing.T) {
	n := ids(t, 6)
	self, a, b, x, y := n[0], n[1], n[2], n[3], n[4]

	// b cuts x's only path, but x was reachable through trust and still poisons y
	s := compute(t, self, DefaultPolicy(),
		stmt(self, 0, proof.High, a, b, y),
		stmt(a, 0, proof.High, x),
		distrust(b, 1, proof.High, a),
		distrust(x, 1, proof.High, y),
	)
	assert.True(t, s.IsPoisoned(a))
	assert.True(t, s.IsPoisoned(y))
	assert.False(t, s.Contains(x))
	assert.False(t, s.Contains(y))
	assert.True(t, s.Contains(b))
	assert.ElementsMatch(t, []identity.ID{a, y}, s.Poisoned())
}

func TestCompute_MutualDistrustPoisonsBoth(t *testing.T) {
	n := ids(t, 3)
	self, a, b := n[0], n[1], n[2]

	s := compute(t, self, DefaultPolicy(),
		stmt(self, 0, proof.High, a, b),
		distrust(a, 1, proof.High, b),
		distrust(b, 1, proof.High, a),
	)
	assert.False(t, s.Contains(a))
	assert.False(t, s.Contains(b))
	assert.Equal(t, []identity.ID{self}, s.Members())
}

func TestCompute_StartIsNeverPoisoned(t *testing.T) {
	n := ids(t, 2)
	self, a := n[0], n[1]
	s := compute(t, self, DefaultPolicy(),
		stmt(self, 0, proof.High, a),
		distrust(a, 0, proof.High, self),
	)
	assert.True(t, s.Contains(self))
	assert.True(t, s.Contains(a))
	assert.Empty(t, s.Poisoned())
}

func TestCompute_RevisitsWithMoreBudget(t *testing.T) {
	n := ids(t, 6)
	self, x, y, a, b, c := n[0], n[1], n[2], n[3], n[4], n[5]

	// self reaches a directly at low cost, or through x and y for free.
	s := compute(t, self, DefaultPolicy(),
		stmt(self, 0, proof.Low, a),
		stmt(self, 0, proof.High, x),
		stmt(x, 0, proof.High, y),
		stmt(y, 0, proof.High, a),
		stmt(a, 0, proof.Low, b),
		stmt(b, 0, proof.Low, c),
	)
	require.True(t, s.Contains(c))
	label, _ := s.Label(a)
	assert.Equal(t, Label{Budget: 10, Hops: 3}, label)

	path, ok := s.PathTo(a)
	require.True(t, ok)
	assert.Equal(t, []identity.ID{self, a}, path.IDs)
	assert.Equal(t, 5, path.Cost)

	path, ok = s.PathTo(c)
	require.True(t, ok)
	assert.Equal(t, []identity.ID{self, x, y, a, b, c}, path.IDs)
	assert.Equal(t, 10, path.Cost)
}

func TestPathTo_FewestHopsThenLowestCost(t *testing.T) {
	n := ids(t, 6)
	self, a, b, c, d, target := n[0], n[1], n[2], n[3], n[4], n[5]

	s := compute(t, self, DefaultPolicy(),
		stmt(self, 0, proof.Medium, a),
		stmt(a, 0, proof.Medium, target),
		stmt(self, 0, proof.High, b, d),
		stmt(b, 0, proof.High, c),
		stmt(c, 0, proof.High, target),
		stmt(d, 0, proof.Low, target),
	)
	path, ok := s.PathTo(target)
	require.True(t, ok)
	assert.Equal(t, []identity.ID{self, a, target}, path.IDs)
	assert.Equal(t, 2, path.Cost)
	assert.Equal(t, 2, path.Hops())

	self0, ok := s.PathTo(self)
	require.True(t, ok)
	assert.Equal(t, 0, self0.Hops())

	_, ok = s.PathTo(ids(t, 7)[6])
	assert.False(t, ok)
}

func TestCompute_CyclesTerminate(t *testing.T) {
	n := ids(t, 3)
	s := compute(t, n[0], DefaultPolicy(),
		stmt(n[0], 0, proof.High, n[1]),
		stmt(n[1], 0, proof.High, n[2]),
		stmt(n[2], 0, proof.High, n[0], n[1]),
	)
	assert.Equal(t, 3, s.Len())
	assert.ElementsMatch(t, n, s.Members())
}
