package trust

import (
	"slices"
	"sort"
	"time"

	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
	"github.com/crev-dev/cargo-crev-sub001/pkg/proof"
)

// Edge is the current trust one identity places in another.
type Edge struct {
	From     identity.ID
	To       identity.ID
	Trust    proof.Level
	Distrust proof.Level
	Date     time.Time
}

// IsDistrust reports whether the edge poisons its target.
func (e Edge) IsDistrust() bool {
	return e.Distrust > proof.None
}

// Graph is an immutable adjacency structure built from trust proofs. It is
// safe for concurrent readers.
type Graph struct {
	out   map[identity.ID][]Edge
	urls  map[identity.ID]string
	edges int
}

// NewGraph folds trust statements into per-pair edges. When a pair is
// asserted more than once the latest statement wins; statements are ordered
// by date, then by signer id, and otherwise keep their input order.
func NewGraph(statements []*proof.Trust) *Graph {
	ordered := slices.Clone(statements)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date.Time)
		}
		return a.From.ID.Compare(b.From.ID) < 0
	})

	type pair struct{ from, to identity.ID }
	latest := make(map[pair]Edge)
	urls := make(map[identity.ID]string)

	for _, t := range ordered {
		from := t.From.ID
		if t.From.URL != "" {
			urls[from] = t.From.URL
		}
		for _, target := range t.IDs {
			if target.ID == from {
				continue
			}
			if target.URL != "" {
				if _, known := urls[target.ID]; !known {
					urls[target.ID] = target.URL
				}
			}
			latest[pair{from, target.ID}] = Edge{
				From:     from,
				To:       target.ID,
				Trust:    t.Trust,
				Distrust: t.Distrust,
				Date:     t.Date.Time,
			}
		}
	}

	g := &Graph{
		out:   make(map[identity.ID][]Edge),
		urls:  urls,
		edges: len(latest),
	}
	for _, e := range latest {
		g.out[e.From] = append(g.out[e.From], e)
	}
	for from := range g.out {
		edges := g.out[from]
		sort.Slice(edges, func(i, j int) bool { return edges[i].To.Compare(edges[j].To) < 0 })
	}
	return g
}

// Edges returns the outgoing edges of id ordered by target id. The slice must
// not be modified.
func (g *Graph) Edges(id identity.ID) []Edge {
	return g.out[id]
}

// Edge returns the current edge between from and to.
func (g *Graph) Edge(from, to identity.ID) (Edge, bool) {
	edges := g.out[from]
	i := sort.Search(len(edges), func(i int) bool { return edges[i].To.Compare(to) >= 0 })
	if i < len(edges) && edges[i].To == to {
		return edges[i], true
	}
	return Edge{}, false
}

// URL returns the proof repository url last announced for id, if any.
func (g *Graph) URL(id identity.ID) string {
	return g.urls[id]
}

// EdgeCount is the number of distinct (truster, trustee) pairs.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// Signers lists every identity with outgoing edges, ordered by id.
func (g *Graph) Signers() []identity.ID {
	ids := make([]identity.ID, 0, len(g.out))
	for id := range g.out {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids
}
