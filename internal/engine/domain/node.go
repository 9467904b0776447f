package domain

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/anthanhphan/ledger-netengine/pkg/shard"
)

// Scheme is the transport scheme used to reach a node.
type Scheme string

const (
	SchemeWS  Scheme = "ws"
	SchemeWSS Scheme = "wss"
)

// Node identifies a reachable endpoint. Nodes are compared by value and are
// safe to use as map keys.
type Node struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Scheme Scheme `json:"scheme"`
}

// NewNode builds a node, choosing wss when secure is set.
func NewNode(host string, port int, secure bool) Node {
	scheme := SchemeWS
	if secure {
		scheme = SchemeWSS
	}
	return Node{Host: host, Port: port, Scheme: scheme}
}

// ParseNode accepts "ws://host:port", "wss://host:port" or bare "host:port".
func ParseNode(raw string) (Node, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Node{}, fmt.Errorf("empty node address")
	}
	if !strings.Contains(raw, "://") {
		raw = string(SchemeWS) + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Node{}, fmt.Errorf("invalid node address %q: %w", raw, err)
	}

	scheme := Scheme(u.Scheme)
	if scheme != SchemeWS && scheme != SchemeWSS {
		return Node{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Node{}, fmt.Errorf("missing host in %q", raw)
	}

	port := 80
	if scheme == SchemeWSS {
		port = 443
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Node{}, fmt.Errorf("invalid port in %q", raw)
		}
	}

	return Node{Host: host, Port: port, Scheme: scheme}, nil
}

// Addr returns host:port.
func (n Node) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// URL returns the endpoint URL for the given path.
func (n Node) URL(path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return string(n.Scheme) + "://" + n.Addr() + path
}

func (n Node) String() string {
	return n.URL("")
}

// ConnectionStatus is the lifecycle of a node's duplex connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusClosing      ConnectionStatus = "closing"
	StatusFailed       ConnectionStatus = "failed"
)

// Terminal reports whether the connection instance is finished.
func (s ConnectionStatus) Terminal() bool {
	return s == StatusDisconnected || s == StatusFailed
}

// NetworkConfig identifies the network ("universe") a node belongs to.
type NetworkConfig struct {
	Magic int64  `json:"magic"`
	Name  string `json:"name"`
}

func (c NetworkConfig) String() string {
	return fmt.Sprintf("%s(%d)", c.Name, c.Magic)
}

// NodeInfo is what a node reports about itself.
type NodeInfo struct {
	ShardSpace shard.Range `json:"shardSpace"`
}

// NodeState is everything known about one node at a point in time.
type NodeState struct {
	Node       Node             `json:"node"`
	Status     ConnectionStatus `json:"status"`
	ShardSpace *shard.Range     `json:"shardSpace,omitempty"`
	Config     *NetworkConfig   `json:"networkConfig,omitempty"`
}

// HasInfo reports whether both shard space and network config are known.
func (s NodeState) HasInfo() bool {
	return s.ShardSpace != nil && s.Config != nil
}

// DiscoveredNode is a candidate supplied by a discovery source, optionally
// carrying metadata advertised out of band.
type DiscoveredNode struct {
	Node       Node
	ShardSpace *shard.Range
	Config     *NetworkConfig
}
