package trust

import (
	"sort"

	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
)

// Label is how an identity was reached: the budget left on arrival and the
// number of hops taken.
type Label struct {
	Budget int
	Hops   int
}

func (l Label) dominates(o Label) bool {
	return l.Budget >= o.Budget && l.Hops <= o.Hops
}

// Set is the outcome of a traversal: the effective trust set of start plus
// the identities poisoned by distrust.
type Set struct {
	start    identity.ID
	policy   Policy
	graph    *Graph
	reached  map[identity.ID]Label
	poisoned map[identity.ID]struct{}
	paths    map[identity.ID]Path
}

// Compute walks g from start under policy p. Trust edges are followed
// breadth-first while their cost fits the remaining budget and the hop count
// stays within MaxDepth. Poisoning is a separate pass over that walk: every
// distrust edge leaving an identity reachable through trust edges alone
// poisons its target regardless of cost, even when the author is itself
// poisoned. Poisoned identities are then removed and the walk repeats. The
// start identity is never poisoned.
func Compute(g *Graph, start identity.ID, p Policy) (*Set, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Set{
		start:    start,
		policy:   p,
		graph:    g,
		poisoned: make(map[identity.ID]struct{}),
	}

	// Removing identities only shrinks the walk, so the unpoisoned walk
	// already holds every author whose distrust can apply.
	for _, id := range sortedIDs(s.reach()) {
		for _, e := range g.Edges(id) {
			if e.IsDistrust() && e.To != start {
				s.poisoned[e.To] = struct{}{}
			}
		}
	}
	s.reached = s.reach()
	s.paths = s.shortestPaths()
	return s, nil
}

// reach returns the best labels of every identity trusted from start,
// skipping poisoned identities.
func (s *Set) reach() map[identity.ID]Label {
	frontier := map[identity.ID][]Label{
		s.start: {{Budget: s.policy.Budget}},
	}
	type item struct {
		id identity.ID
		Label
	}
	queue := []item{{id: s.start, Label: Label{Budget: s.policy.Budget}}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.Hops >= s.policy.MaxDepth {
			continue
		}
		for _, e := range s.graph.Edges(cur.id) {
			if e.IsDistrust() {
				continue
			}
			cost, ok := s.policy.Cost(e.Trust)
			if !ok || cost > cur.Budget {
				continue
			}
			if _, bad := s.poisoned[e.To]; bad {
				continue
			}
			next := Label{Budget: cur.Budget - cost, Hops: cur.Hops + 1}
			if !admit(frontier, e.To, next) {
				continue
			}
			queue = append(queue, item{id: e.To, Label: next})
		}
	}

	best := make(map[identity.ID]Label, len(frontier))
	for id, labels := range frontier {
		b := labels[0]
		for _, l := range labels[1:] {
			if l.Budget > b.Budget || (l.Budget == b.Budget && l.Hops < b.Hops) {
				b = l
			}
		}
		best[id] = b
	}
	return best
}

// admit records l for id unless an existing label is at least as good in
// both budget and hops.
func admit(frontier map[identity.ID][]Label, id identity.ID, l Label) bool {
	kept := frontier[id][:0:0]
	for _, old := range frontier[id] {
		if old.dominates(l) {
			return false
		}
		if !l.dominates(old) {
			kept = append(kept, old)
		}
	}
	frontier[id] = append(kept, l)
	return true
}

// Start returns the verifying identity.
func (s *Set) Start() identity.ID {
	return s.start
}

// Policy returns the policy the set was computed under.
func (s *Set) Policy() Policy {
	return s.policy
}

// Graph returns the graph the set was computed from.
func (s *Set) Graph() *Graph {
	return s.graph
}

// Contains reports whether id is trusted: reachable and not poisoned.
func (s *Set) Contains(id identity.ID) bool {
	_, ok := s.reached[id]
	return ok && !s.IsPoisoned(id)
}

// IsPoisoned reports whether a distrust edge from an identity reachable
// through trust edges names id.
func (s *Set) IsPoisoned(id identity.ID) bool {
	_, ok := s.poisoned[id]
	return ok
}

// Label returns the best label id was reached with.
func (s *Set) Label(id identity.ID) (Label, bool) {
	if !s.Contains(id) {
		return Label{}, false
	}
	return s.reached[id], true
}

// Members lists the trusted identities, start included, ordered by id.
func (s *Set) Members() []identity.ID {
	return sortedIDs(s.reached)
}

// Poisoned lists the poisoned identities ordered by id.
func (s *Set) Poisoned() []identity.ID {
	return sortedIDs(s.poisoned)
}

// Len is the number of trusted identities, start included.
func (s *Set) Len() int {
	return len(s.reached)
}

func sortedIDs[V any](m map[identity.ID]V) []identity.ID {
	ids := make([]identity.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids
}
