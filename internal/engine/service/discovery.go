package service

import (
	"context"
	"fmt"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/port"
	"github.com/anthanhphan/ledger-netengine/pkg/gossip"
	"github.com/hashicorp/go-multierror"
)

// StaticDiscovery returns a fixed node list.
type StaticDiscovery struct {
	nodes []domain.DiscoveredNode
}

// NewStaticDiscovery parses node addresses such as "wss://host:443".
func NewStaticDiscovery(addrs []string) (*StaticDiscovery, error) {
	nodes := make([]domain.DiscoveredNode, 0, len(addrs))
	for _, addr := range addrs {
		node, err := domain.ParseNode(addr)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, domain.DiscoveredNode{Node: node})
	}
	return &StaticDiscovery{nodes: nodes}, nil
}

func (d *StaticDiscovery) LoadNodes(context.Context) ([]domain.DiscoveredNode, error) {
	return append([]domain.DiscoveredNode(nil), d.nodes...), nil
}

// MultiDiscovery merges several sources, keeping the first entry seen for
// each node. It fails only when every source fails.
type MultiDiscovery struct {
	sources []port.NodeDiscovery
}

func NewMultiDiscovery(sources ...port.NodeDiscovery) *MultiDiscovery {
	return &MultiDiscovery{sources: sources}
}

func (d *MultiDiscovery) LoadNodes(ctx context.Context) ([]domain.DiscoveredNode, error) {
	var (
		out    []domain.DiscoveredNode
		errs   error
		failed int
	)
	seen := make(map[domain.Node]struct{})

	for _, src := range d.sources {
		nodes, err := src.LoadNodes(ctx)
		if err != nil {
			errs = multierror.Append(errs, err)
			failed++
			continue
		}
		for _, n := range nodes {
			if _, dup := seen[n.Node]; dup {
				continue
			}
			seen[n.Node] = struct{}{}
			out = append(out, n)
		}
	}

	if failed > 0 && failed == len(d.sources) {
		return nil, errs
	}
	return out, nil
}

// PeerSource lists ledger nodes known to a gossip membership.
type PeerSource interface {
	Peers() []gossip.Peer
}

// MembershipDiscovery turns gossip peers into candidates, carrying the shard
// space and universe they advertise.
type MembershipDiscovery struct {
	peers PeerSource
}

func NewMembershipDiscovery(peers PeerSource) *MembershipDiscovery {
	return &MembershipDiscovery{peers: peers}
}

func (d *MembershipDiscovery) LoadNodes(context.Context) ([]domain.DiscoveredNode, error) {
	peers := d.peers.Peers()
	if len(peers) == 0 {
		return nil, fmt.Errorf("gossip membership has no ledger nodes")
	}

	out := make([]domain.DiscoveredNode, 0, len(peers))
	for _, p := range peers {
		dn := domain.DiscoveredNode{Node: domain.NewNode(p.Host, p.Meta.RPCPort, p.Meta.Secure)}
		if p.Meta.ShardSpace != nil && p.Meta.ShardSpace.Valid() {
			space := *p.Meta.ShardSpace
			dn.ShardSpace = &space
		}
		if p.Meta.UniverseName != "" {
			dn.Config = &domain.NetworkConfig{Magic: p.Meta.UniverseMagic, Name: p.Meta.UniverseName}
		}
		out = append(out, dn)
	}
	return out, nil
}
