package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/service/mocks"
	"github.com/anthanhphan/ledger-netengine/pkg/gossip"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestStaticDiscovery(t *testing.T) {
	d, err := NewStaticDiscovery([]string{"ws://node-a:8080", "wss://node-c:8443"})
	require.NoError(t, err)

	nodes, err := d.LoadNodes(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.DiscoveredNode{bare(nodeA), bare(nodeC)}, nodes)

	_, err = NewStaticDiscovery([]string{"http://node-a"})
	require.Error(t, err)
}

func TestMultiDiscovery(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(first, second *mocks.MockNodeDiscovery)
		want    []domain.DiscoveredNode
		wantErr bool
	}{
		{
			name: "MergesAndDeduplicates",
			setup: func(first, second *mocks.MockNodeDiscovery) {
				first.EXPECT().LoadNodes(gomock.Any()).Return([]domain.DiscoveredNode{known(nodeA, 0, 10, testUniverse), bare(nodeB)}, nil)
				second.EXPECT().LoadNodes(gomock.Any()).Return([]domain.DiscoveredNode{bare(nodeA), bare(nodeC)}, nil)
			},
			want: []domain.DiscoveredNode{known(nodeA, 0, 10, testUniverse), bare(nodeB), bare(nodeC)},
		},
		{
			name: "OneSourceFailing",
			setup: func(first, second *mocks.MockNodeDiscovery) {
				first.EXPECT().LoadNodes(gomock.Any()).Return(nil, errors.New("seed unreachable"))
				second.EXPECT().LoadNodes(gomock.Any()).Return([]domain.DiscoveredNode{bare(nodeC)}, nil)
			},
			want: []domain.DiscoveredNode{bare(nodeC)},
		},
		{
			name: "AllSourcesFailing",
			setup: func(first, second *mocks.MockNodeDiscovery) {
				first.EXPECT().LoadNodes(gomock.Any()).Return(nil, errors.New("seed unreachable"))
				second.EXPECT().LoadNodes(gomock.Any()).Return(nil, errors.New("gossip empty"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			first := mocks.NewMockNodeDiscovery(ctrl)
			second := mocks.NewMockNodeDiscovery(ctrl)
			tt.setup(first, second)

			got, err := NewMultiDiscovery(first, second).LoadNodes(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "seed unreachable")
				require.Contains(t, err.Error(), "gossip empty")
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

type stubPeers []gossip.Peer

func (s stubPeers) Peers() []gossip.Peer { return s }

func TestMembershipDiscovery(t *testing.T) {
	space := shard.Range{Low: 0, High: 10}
	d := NewMembershipDiscovery(stubPeers{
		{Name: "a", Host: "node-a", Meta: gossip.Meta{Role: gossip.RoleNode, RPCPort: 8080, ShardSpace: &space, UniverseMagic: 42, UniverseName: "localnet"}},
		{Name: "c", Host: "node-c", Meta: gossip.Meta{Role: gossip.RoleNode, RPCPort: 8443, Secure: true}},
	})

	nodes, err := d.LoadNodes(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.DiscoveredNode{known(nodeA, 0, 10, testUniverse), bare(nodeC)}, nodes)

	_, err = NewMembershipDiscovery(stubPeers{}).LoadNodes(context.Background())
	require.Error(t, err)
}

func TestDiscoveryEpic_EmitsDiscoveredNodes(t *testing.T) {
	ctrl := gomock.NewController(t)
	discovery := mocks.NewMockNodeDiscovery(ctrl)
	discovery.EXPECT().LoadNodes(gomock.Any()).Return([]domain.DiscoveredNode{bare(nodeA)}, nil)

	h := startEpic(t, NewDiscoveryEpic(discovery, time.Second))
	h.feed(domain.ConnectAction{Node: nodeB}, domain.DiscoverMoreNodesAction{})

	got := h.rec.waitN(t, 1)
	require.Equal(t, domain.NodesDiscoveredAction{Nodes: []domain.DiscoveredNode{bare(nodeA)}}, got[0])
}

func TestDiscoveryEpic_ReportsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	discovery := mocks.NewMockNodeDiscovery(ctrl)
	failure := errors.New("no seeds answered")
	discovery.EXPECT().LoadNodes(gomock.Any()).Return(nil, failure)

	h := startEpic(t, NewDiscoveryEpic(discovery, time.Second))
	h.feed(domain.DiscoverMoreNodesAction{})

	got := h.rec.waitN(t, 1)
	require.Equal(t, domain.DiscoverMoreNodesErrorAction{Err: failure}, got[0])
}

func TestDiscoveryEpic_OneLookupInFlight(t *testing.T) {
	ctrl := gomock.NewController(t)
	discovery := mocks.NewMockNodeDiscovery(ctrl)
	release := make(chan struct{})
	discovery.EXPECT().LoadNodes(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]domain.DiscoveredNode, error) {
		<-release
		return []domain.DiscoveredNode{bare(nodeA)}, nil
	}).Times(1)

	h := startEpic(t, NewDiscoveryEpic(discovery, time.Second))
	h.feed(domain.DiscoverMoreNodesAction{}, domain.DiscoverMoreNodesAction{}, domain.DiscoverMoreNodesAction{})
	time.Sleep(50 * time.Millisecond)
	close(release)

	h.rec.waitN(t, 1)
	h.rec.settle(t, 1)
}
