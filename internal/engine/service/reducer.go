package service

import (
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
)

// Reduce folds one action into the network state. It is pure and total:
// actions it does not care about return state unchanged.
func Reduce(state domain.NetworkState, action domain.Action) domain.NetworkState {
	if na, ok := action.(domain.NodeAction); ok {
		if _, known := state.Get(na.Target()); !known {
			state = state.With(domain.NodeState{Node: na.Target(), Status: domain.StatusDisconnected})
		}
	}

	switch a := action.(type) {
	case domain.NodesDiscoveredAction:
		return reduceDiscovered(state, a.Nodes)

	case domain.ConnectAction:
		ns, _ := state.Get(a.Node)
		if ns.Status != domain.StatusDisconnected {
			return state
		}
		ns.Status = domain.StatusConnecting
		return state.With(ns)

	case domain.CloseConnectionAction:
		ns, _ := state.Get(a.Node)
		if ns.Status != domain.StatusConnected && ns.Status != domain.StatusConnecting {
			return state
		}
		ns.Status = domain.StatusClosing
		return state.With(ns)

	case domain.ConnectionStatusChangedAction:
		ns, _ := state.Get(a.Node)
		if ns.Status == a.Status {
			return state
		}
		ns.Status = a.Status
		return state.With(ns)

	case domain.GetNodeInfoResultAction:
		ns, _ := state.Get(a.Node)
		space := a.Info.ShardSpace
		ns.ShardSpace = &space
		return state.With(ns)

	case domain.GetNetworkConfigResultAction:
		ns, _ := state.Get(a.Node)
		cfg := a.Config
		ns.Config = &cfg
		return state.With(ns)
	}

	return state
}

func reduceDiscovered(state domain.NetworkState, nodes []domain.DiscoveredNode) domain.NetworkState {
	for _, d := range nodes {
		ns, known := state.Get(d.Node)
		if !known {
			ns = domain.NodeState{Node: d.Node, Status: domain.StatusDisconnected}
		}

		changed := !known
		if ns.ShardSpace == nil && d.ShardSpace != nil {
			space := *d.ShardSpace
			ns.ShardSpace = &space
			changed = true
		}
		if ns.Config == nil && d.Config != nil {
			cfg := *d.Config
			ns.Config = &cfg
			changed = true
		}

		if changed {
			state = state.With(ns)
		}
	}
	return state
}
