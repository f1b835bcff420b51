// Package toposort computes a node execution order from a set of
// connections using the depth-first, permanent/temporary-mark algorithm
// (Cormen, Leiserson, Rivest & Stein §22.4), rather than the in-degree/BFS
// (Kahn's algorithm) style the teacher's own pkg/graph uses — this engine's
// original implementation walks the graph this way, and the predecessor
// map it also needs to produce falls out naturally from the same DFS pass.
package toposort

import "github.com/kestrelflow/dagflow/pkg/types"

// Order is the result of sorting a connection set: a linear execution order
// where every node appears after all of its predecessors, and a map from
// each node name to the set of node names that must run before it (present,
// possibly empty, for every node that appears in order).
type Order struct {
	Linear       []string
	Predecessors map[string][]string
}

// Sort computes an Order over the adjacency view built from conns. It
// returns a CyclicGraph error naming the node at which a cycle was detected
// if the connections are not acyclic.
//
// nodeNames lists every node currently in the graph, but only those that
// appear in at least one connection (as either endpoint) are reachable from
// the edge set and make it into Order.Linear; a node absent from every edge
// is pruned from the output entirely, not merely sorted first.
func Sort(nodeNames []string, conns []types.Connection) (Order, error) {
	connected := make(map[string]bool, len(nodeNames))
	adj := make(map[string][]string, len(nodeNames))
	pred := make(map[string][]string, len(nodeNames))
	for _, c := range conns {
		connected[c.Src.NodeName] = true
		connected[c.Dst.NodeName] = true
		adj[c.Src.NodeName] = append(adj[c.Src.NodeName], c.Dst.NodeName)
		if _, ok := pred[c.Dst.NodeName]; !ok {
			pred[c.Dst.NodeName] = nil
		}
		pred[c.Dst.NodeName] = append(pred[c.Dst.NodeName], c.Src.NodeName)
		if _, ok := pred[c.Src.NodeName]; !ok {
			pred[c.Src.NodeName] = nil
		}
	}
	for n := range adj {
		sortStrings(adj[n])
	}
	for n := range pred {
		sortStrings(pred[n])
	}

	permanent := make(map[string]bool, len(nodeNames))
	temporary := make(map[string]bool, len(nodeNames))
	var sorted []string

	var visit func(n string) error
	visit = func(n string) error {
		if permanent[n] {
			return nil
		}
		if temporary[n] {
			return types.ErrorCyclicGraph(n)
		}
		temporary[n] = true
		for _, next := range adj[n] {
			if err := visit(next); err != nil {
				return err
			}
		}
		temporary[n] = false
		permanent[n] = true
		sorted = append(sorted, n)
		return nil
	}

	ordered := make([]string, 0, len(nodeNames))
	for _, n := range nodeNames {
		if connected[n] {
			ordered = append(ordered, n)
		}
	}
	sortStrings(ordered)

	for _, n := range ordered {
		if !permanent[n] {
			if err := visit(n); err != nil {
				return Order{}, err
			}
		}
	}

	// visit appends in post-order (a node only after everything
	// downstream of it), so reverse to get dependencies-first order.
	linear := make([]string, len(sorted))
	for i, n := range sorted {
		linear[len(sorted)-1-i] = n
	}

	return Order{Linear: linear, Predecessors: pred}, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
