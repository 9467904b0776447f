package service

import (
	"testing"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
	"github.com/stretchr/testify/require"
)

func reduceAll(actions ...domain.Action) domain.NetworkState {
	var state domain.NetworkState
	for _, a := range actions {
		state = Reduce(state, a)
	}
	return state
}

func statusOf(t *testing.T, state domain.NetworkState, node domain.Node) domain.ConnectionStatus {
	t.Helper()
	ns, ok := state.Get(node)
	require.True(t, ok, "node %s not in state", node)
	return ns.Status
}

func TestReduce_UnknownNodeIsAddedDisconnected(t *testing.T) {
	state := reduceAll(domain.GetNodeInfoRequestAction{Node: nodeA})

	require.Equal(t, 1, state.Len())
	require.Equal(t, domain.StatusDisconnected, statusOf(t, state, nodeA))
}

func TestReduce_ConnectOnlyFromDisconnected(t *testing.T) {
	tests := []struct {
		name string
		from domain.ConnectionStatus
		want domain.ConnectionStatus
	}{
		{"disconnected", domain.StatusDisconnected, domain.StatusConnecting},
		{"failed", domain.StatusFailed, domain.StatusFailed},
		{"connected", domain.StatusConnected, domain.StatusConnected},
		{"closing", domain.StatusClosing, domain.StatusClosing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := reduceAll(
				domain.ConnectionStatusChangedAction{Node: nodeA, Status: tt.from},
				domain.ConnectAction{Node: nodeA},
			)
			require.Equal(t, tt.want, statusOf(t, state, nodeA))
		})
	}
}

func TestReduce_CloseThenConfirmation(t *testing.T) {
	state := reduceAll(
		domain.ConnectionStatusChangedAction{Node: nodeA, Status: domain.StatusConnected},
		domain.CloseConnectionAction{Node: nodeA},
	)
	require.Equal(t, domain.StatusClosing, statusOf(t, state, nodeA))

	state = Reduce(state, domain.ConnectionStatusChangedAction{Node: nodeA, Status: domain.StatusDisconnected})
	require.Equal(t, domain.StatusDisconnected, statusOf(t, state, nodeA))

	// Closing an idle node changes nothing.
	state = Reduce(state, domain.CloseConnectionAction{Node: nodeA})
	require.Equal(t, domain.StatusDisconnected, statusOf(t, state, nodeA))
}

func TestReduce_InfoResultsLeaveOtherFieldsAlone(t *testing.T) {
	space := shard.Range{Low: 0, High: 10}
	state := reduceAll(
		domain.ConnectionStatusChangedAction{Node: nodeA, Status: domain.StatusConnected},
		domain.GetNodeInfoResultAction{Node: nodeA, Info: domain.NodeInfo{ShardSpace: space}},
	)

	ns, _ := state.Get(nodeA)
	require.Equal(t, domain.StatusConnected, ns.Status)
	require.Equal(t, &space, ns.ShardSpace)
	require.Nil(t, ns.Config)

	state = Reduce(state, domain.GetNetworkConfigResultAction{Node: nodeA, Config: testUniverse})
	ns, _ = state.Get(nodeA)
	require.Equal(t, &testUniverse, ns.Config)
	require.Equal(t, &space, ns.ShardSpace)
	require.True(t, ns.HasInfo())
}

func TestReduce_DiscoveryNeverOverwritesLearntInfo(t *testing.T) {
	learnt := shard.Range{Low: 0, High: 10}
	state := reduceAll(
		domain.GetNodeInfoResultAction{Node: nodeA, Info: domain.NodeInfo{ShardSpace: learnt}},
		domain.NodesDiscoveredAction{Nodes: []domain.DiscoveredNode{
			known(nodeA, 100, 200, otherUniverse),
			bare(nodeB),
		}},
	)

	require.Equal(t, 2, state.Len())
	a, _ := state.Get(nodeA)
	require.Equal(t, learnt, *a.ShardSpace)
	require.Equal(t, otherUniverse, *a.Config)

	b, _ := state.Get(nodeB)
	require.Equal(t, domain.StatusDisconnected, b.Status)
	require.False(t, b.HasInfo())

	order := state.Nodes()
	require.Equal(t, nodeA, order[0].Node)
	require.Equal(t, nodeB, order[1].Node)
}

func TestReduce_IrrelevantActionsAreNoops(t *testing.T) {
	before := reduceAll(domain.ConnectionStatusChangedAction{Node: nodeA, Status: domain.StatusConnected})

	after := Reduce(before, domain.DiscoverMoreNodesAction{})
	after = Reduce(after, findAction("x", 1))
	after = Reduce(after, domain.SubmitAtomCompletedAction{ID: "x"})

	require.Equal(t, before.Nodes(), after.Nodes())
}

func TestReduce_DoesNotMutatePreviousSnapshot(t *testing.T) {
	before := reduceAll(domain.NodesDiscoveredAction{Nodes: []domain.DiscoveredNode{bare(nodeA)}})
	_ = Reduce(before, domain.ConnectAction{Node: nodeA})

	require.Equal(t, domain.StatusDisconnected, statusOf(t, before, nodeA))
}
