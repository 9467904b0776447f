package gossip

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
	"github.com/hashicorp/memberlist"
)

// Member roles advertised in node metadata.
const (
	RoleNode     = "node"
	RoleObserver = "observer"
)

// Meta is what a member advertises about itself.
type Meta struct {
	Role          string       `json:"role"`
	RPCPort       int          `json:"rpc_port,omitempty"`
	Secure        bool         `json:"secure,omitempty"`
	ShardSpace    *shard.Range `json:"shard_space,omitempty"`
	UniverseMagic int64        `json:"universe_magic,omitempty"`
	UniverseName  string       `json:"universe_name,omitempty"`
}

// Peer is a ledger node learnt through gossip.
type Peer struct {
	Name string
	Host string
	Meta Meta
}

// Membership joins a memberlist cluster and tracks the ledger nodes in it.
type Membership struct {
	list *memberlist.Memberlist
	conf *memberlist.Config
	meta Meta

	mu    sync.RWMutex
	peers map[string]Peer
}

var (
	_ memberlist.Delegate      = (*Membership)(nil)
	_ memberlist.EventDelegate = (*Membership)(nil)
)

// NewMembership creates a member advertising meta. Observers use a meta with
// RoleObserver so that other observers ignore them.
func NewMembership(name string, bindAddr string, bindPort int, meta Meta) (*Membership, error) {
	config := memberlist.DefaultLANConfig()
	config.Name = name
	config.BindAddr = bindAddr
	config.BindPort = bindPort
	config.AdvertisePort = bindPort
	config.LogOutput = io.Discard

	m := &Membership{
		conf:  config,
		meta:  meta,
		peers: make(map[string]Peer),
	}
	config.Events = m
	config.Delegate = m

	list, err := memberlist.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	m.list = list
	return m, nil
}

// Join joins the cluster using seed members.
func (m *Membership) Join(seeds []string) error {
	if len(seeds) == 0 {
		return nil
	}
	if _, err := m.list.Join(seeds); err != nil {
		return fmt.Errorf("failed to join cluster: %w", err)
	}
	return nil
}

// Leave leaves the cluster gracefully and shuts the member down.
func (m *Membership) Leave() error {
	if err := m.list.Leave(5 * time.Second); err != nil {
		return err
	}
	return m.list.Shutdown()
}

// Peers returns the known ledger nodes sorted by name.
func (m *Membership) Peers() []Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Membership) NodeMeta(limit int) []byte {
	data, err := json.Marshal(m.meta)
	if err != nil {
		logger.Warnw("failed to marshal gossip node meta", "error", err.Error())
		return nil
	}
	if len(data) > limit {
		logger.Warnw("gossip node meta exceeds limit", "size", len(data), "limit", limit)
		return nil
	}
	return data
}

// NotifyMsg, GetBroadcasts, LocalState, MergeRemoteState are required by Delegate.
func (m *Membership) NotifyMsg([]byte)                           {}
func (m *Membership) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (m *Membership) LocalState(join bool) []byte                { return nil }
func (m *Membership) MergeRemoteState(buf []byte, join bool)     {}

func (m *Membership) NotifyJoin(node *memberlist.Node) {
	peer, ok := peerOf(node)
	if !ok {
		return
	}

	m.mu.Lock()
	m.peers[peer.Name] = peer
	m.mu.Unlock()

	logger.Infow("Ledger node joined", "name", peer.Name, "host", peer.Host, "rpc_port", peer.Meta.RPCPort)
}

func (m *Membership) NotifyLeave(node *memberlist.Node) {
	m.mu.Lock()
	_, known := m.peers[node.Name]
	delete(m.peers, node.Name)
	m.mu.Unlock()

	if known {
		logger.Infow("Ledger node left", "name", node.Name)
	}
}

func (m *Membership) NotifyUpdate(node *memberlist.Node) {
	if _, ok := peerOf(node); !ok {
		m.NotifyLeave(node)
		return
	}
	m.NotifyJoin(node)
}

// peerOf maps a member to a ledger node. Members that are not ledger nodes or
// advertise no RPC port are skipped.
func peerOf(node *memberlist.Node) (Peer, bool) {
	meta, ok := decodeMeta(node.Meta)
	if !ok || meta.Role != RoleNode || meta.RPCPort <= 0 {
		return Peer{}, false
	}
	host := ""
	if node.Addr != nil {
		host = node.Addr.String()
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		return Peer{}, false
	}
	return Peer{Name: node.Name, Host: host, Meta: meta}, true
}

func decodeMeta(raw []byte) (Meta, bool) {
	if len(raw) == 0 {
		return Meta{}, false
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		logger.Warnw("failed to decode node metadata", "error", err.Error())
		return Meta{}, false
	}
	return meta, true
}
