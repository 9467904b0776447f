package domain

// NetworkState is an immutable snapshot of every known node. Updates return a
// new snapshot; existing snapshots are never modified. The zero value is an
// empty state.
type NetworkState struct {
	nodes map[Node]NodeState
	order []Node
}

func (s NetworkState) Len() int {
	return len(s.order)
}

func (s NetworkState) Get(node Node) (NodeState, bool) {
	ns, ok := s.nodes[node]
	return ns, ok
}

// Nodes returns every node state in first-seen order.
func (s NetworkState) Nodes() []NodeState {
	out := make([]NodeState, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.nodes[n])
	}
	return out
}

// Filter returns the node states matching keep, in first-seen order.
func (s NetworkState) Filter(keep func(NodeState) bool) []NodeState {
	var out []NodeState
	for _, n := range s.order {
		if ns := s.nodes[n]; keep(ns) {
			out = append(out, ns)
		}
	}
	return out
}

// With returns a copy of s in which ns replaces (or adds) the entry for ns.Node.
func (s NetworkState) With(ns NodeState) NetworkState {
	nodes := make(map[Node]NodeState, len(s.nodes)+1)
	for k, v := range s.nodes {
		nodes[k] = v
	}

	order := s.order
	if _, exists := s.nodes[ns.Node]; !exists {
		order = make([]Node, len(s.order), len(s.order)+1)
		copy(order, s.order)
		order = append(order, ns.Node)
	}
	nodes[ns.Node] = ns

	return NetworkState{nodes: nodes, order: order}
}
