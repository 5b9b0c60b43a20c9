package trust

import (
	"strings"

	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
)

// Path is a chain of trust edges from the verifying identity. IDs starts with
// the verifying identity and ends with the trusted one.
type Path struct {
	IDs  []identity.ID `json:"ids"`
	Cost int           `json:"cost"`
}

// Hops is the number of edges on the path.
func (p Path) Hops() int {
	if len(p.IDs) == 0 {
		return 0
	}
	return len(p.IDs) - 1
}

func (p Path) String() string {
	parts := make([]string, len(p.IDs))
	for i, id := range p.IDs {
		parts[i] = id.String()
	}
	return strings.Join(parts, " -> ")
}

// PathTo returns the shortest admissible trust path to id: fewest hops, then
// lowest total cost.
func (s *Set) PathTo(id identity.ID) (Path, bool) {
	if !s.Contains(id) {
		return Path{}, false
	}
	p, ok := s.paths[id]
	return p, ok
}

// shortestPaths runs a hop-layered relaxation: layer h holds the cheapest
// cost of reaching each identity in exactly h hops within the budget. The
// first layer an identity appears in fixes its hop count.
func (s *Set) shortestPaths() map[identity.ID]Path {
	type step struct {
		cost   int
		parent identity.ID
	}
	layers := []map[identity.ID]step{{s.start: {}}}
	firstLayer := map[identity.ID]int{s.start: 0}

	for h := 1; h <= s.policy.MaxDepth; h++ {
		prev := layers[h-1]
		next := make(map[identity.ID]step)
		for _, from := range sortedIDs(prev) {
			base := prev[from].cost
			for _, e := range s.graph.Edges(from) {
				if e.IsDistrust() || s.IsPoisoned(e.To) {
					continue
				}
				cost, ok := s.policy.Cost(e.Trust)
				if !ok || base+cost > s.policy.Budget {
					continue
				}
				if cur, seen := next[e.To]; seen && cur.cost <= base+cost {
					continue
				}
				next[e.To] = step{cost: base + cost, parent: from}
			}
		}
		if len(next) == 0 {
			break
		}
		layers = append(layers, next)
		for id := range next {
			if _, ok := firstLayer[id]; !ok {
				firstLayer[id] = h
			}
		}
	}

	paths := make(map[identity.ID]Path, len(firstLayer))
	for id, h := range firstLayer {
		ids := make([]identity.ID, h+1)
		cur := id
		for i := h; i >= 0; i-- {
			ids[i] = cur
			cur = layers[i][cur].parent
		}
		paths[id] = Path{IDs: ids, Cost: layers[h][id].cost}
	}
	return paths
}
