package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
)

// Node RPC methods.
const (
	MethodGetInfo             = "Network.getInfo"
	MethodGetUniverse         = "Universe.getUniverse"
	MethodSubscribeAtomStatus = "Atoms.subscribeAtomStatusNotifications"
	MethodCancelAtomStatus    = "Atoms.closeAtomStatusNotifications"
	MethodSubmitAtom          = "Universe.submitAtom"
	NotificationAtomStatus    = "Atoms.nextStatusEvent"
)

var ErrNotConnected = errors.New("node not connected")

const statusEventBuffer = 16

// InfoClient queries what a node serves.
type InfoClient interface {
	GetNodeInfo(ctx context.Context, node domain.Node) (domain.NodeInfo, error)
	GetNetworkConfig(ctx context.Context, node domain.Node) (domain.NetworkConfig, error)
}

// AtomClient speaks the submission protocol over a node's live connection.
type AtomClient interface {
	// SubscribeAtomStatus starts status notifications for atomID. The stream
	// is closed by CancelAtomStatus or when the connection ends.
	SubscribeAtomStatus(ctx context.Context, node domain.Node, atomID domain.AtomID, subscriberID string) (<-chan domain.AtomStatusEvent, error)
	CancelAtomStatus(ctx context.Context, node domain.Node, subscriberID string) error
	SubmitAtom(ctx context.Context, node domain.Node, atom domain.Atom) error
}

type subscribeParams struct {
	AtomID       domain.AtomID `json:"atomId"`
	SubscriberID string        `json:"subscriberId"`
}

type cancelParams struct {
	SubscriberID string `json:"subscriberId"`
}

type statusNotification struct {
	SubscriberID string            `json:"subscriberId"`
	Status       domain.AtomStatus `json:"status"`
	Data         json.RawMessage   `json:"data,omitempty"`
}

type statusStream struct {
	stop func()
	done chan struct{}
	once sync.Once
}

func (s *statusStream) close() {
	s.once.Do(func() {
		s.stop()
		close(s.done)
	})
}

// NodeClient implements InfoClient and AtomClient over the connections held
// by a ConnLookup.
type NodeClient struct {
	conns ConnLookup

	mu      sync.Mutex
	streams map[string]*statusStream
}

func NewNodeClient(conns ConnLookup) *NodeClient {
	return &NodeClient{
		conns:   conns,
		streams: make(map[string]*statusStream),
	}
}

func (c *NodeClient) GetNodeInfo(ctx context.Context, node domain.Node) (domain.NodeInfo, error) {
	var info domain.NodeInfo
	if err := c.call(ctx, node, MethodGetInfo, nil, &info); err != nil {
		return domain.NodeInfo{}, err
	}
	if !info.ShardSpace.Valid() {
		return domain.NodeInfo{}, fmt.Errorf("node %s reported invalid shard space %s", node, info.ShardSpace)
	}
	return info, nil
}

func (c *NodeClient) GetNetworkConfig(ctx context.Context, node domain.Node) (domain.NetworkConfig, error) {
	var cfg domain.NetworkConfig
	if err := c.call(ctx, node, MethodGetUniverse, nil, &cfg); err != nil {
		return domain.NetworkConfig{}, err
	}
	return cfg, nil
}

func (c *NodeClient) SubscribeAtomStatus(ctx context.Context, node domain.Node, atomID domain.AtomID, subscriberID string) (<-chan domain.AtomStatusEvent, error) {
	conn, ok := c.conns.Conn(node)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, node)
	}

	// Route notifications before subscribing so the first event is not lost.
	raw, stop := conn.Notifications(NotificationAtomStatus, subscriberID)
	stream := &statusStream{stop: stop, done: make(chan struct{})}

	c.mu.Lock()
	c.streams[subscriberID] = stream
	c.mu.Unlock()

	if err := conn.Call(ctx, MethodSubscribeAtomStatus, subscribeParams{AtomID: atomID, SubscriberID: subscriberID}, nil); err != nil {
		c.dropStream(subscriberID)
		return nil, fmt.Errorf("subscribe atom status: %w", err)
	}

	out := make(chan domain.AtomStatusEvent, statusEventBuffer)
	go decodeStatusEvents(raw, stream.done, out)
	return out, nil
}

func (c *NodeClient) CancelAtomStatus(ctx context.Context, node domain.Node, subscriberID string) error {
	c.dropStream(subscriberID)

	conn, ok := c.conns.Conn(node)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, node)
	}
	if err := conn.Call(ctx, MethodCancelAtomStatus, cancelParams{SubscriberID: subscriberID}, nil); err != nil {
		return fmt.Errorf("cancel atom status: %w", err)
	}
	return nil
}

func (c *NodeClient) SubmitAtom(ctx context.Context, node domain.Node, atom domain.Atom) error {
	if err := c.call(ctx, node, MethodSubmitAtom, atom, nil); err != nil {
		return fmt.Errorf("submit atom: %w", err)
	}
	return nil
}

func (c *NodeClient) call(ctx context.Context, node domain.Node, method string, params, result any) error {
	conn, ok := c.conns.Conn(node)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, node)
	}
	return conn.Call(ctx, method, params, result)
}

func (c *NodeClient) dropStream(subscriberID string) {
	c.mu.Lock()
	stream, ok := c.streams[subscriberID]
	delete(c.streams, subscriberID)
	c.mu.Unlock()

	if ok {
		stream.close()
	}
}

func decodeStatusEvents(raw <-chan json.RawMessage, done <-chan struct{}, out chan<- domain.AtomStatusEvent) {
	defer close(out)
	for {
		select {
		case <-done:
			return
		case msg, ok := <-raw:
			if !ok {
				return
			}
			var n statusNotification
			if err := json.Unmarshal(msg, &n); err != nil {
				logger.Warnw("Dropping malformed atom status notification", "error", err.Error())
				continue
			}
			select {
			case out <- domain.AtomStatusEvent{Status: n.Status, Reason: n.Data}:
			case <-done:
				return
			}
		}
	}
}
