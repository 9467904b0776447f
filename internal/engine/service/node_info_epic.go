package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/pkg/resilience"
)

const (
	defaultInfoTimeout = 5 * time.Second
	defaultInfoWorkers = 4
)

// NodeInfoConfig bounds lookups. Zero values take defaults; QueueSize
// defaults to 16 slots per worker.
type NodeInfoConfig struct {
	Timeout   time.Duration
	Workers   int
	QueueSize int
}

type infoKey struct {
	node   domain.Node
	method string
}

// NodeInfoEpic answers info and config requests over the node's live
// connection, keeping at most one call in flight per node and method.
type NodeInfoEpic struct {
	client InfoClient
	cfg    NodeInfoConfig

	mu      sync.Mutex
	pending map[infoKey]struct{}
}

// infoCall is one lookup; id is the correlation id of the request that
// started it.
type infoCall struct {
	infoKey
	id domain.CorrelationID
}

// NewNodeInfoEpic returns an epic calling client for lookups.
func NewNodeInfoEpic(client InfoClient, cfg NodeInfoConfig) *NodeInfoEpic {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultInfoTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultInfoWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 16
	}
	return &NodeInfoEpic{
		client:  client,
		cfg:     cfg,
		pending: make(map[infoKey]struct{}),
	}
}

func (e *NodeInfoEpic) Name() string { return "node_info" }

func (e *NodeInfoEpic) Run(ctx context.Context, updates <-chan Update, emit Emitter) error {
	pool := resilience.NewWorkerPool(e.cfg.Workers, e.cfg.QueueSize)
	defer func() {
		pool.Close()
		pool.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			switch a := u.Action.(type) {
			case domain.GetNodeInfoRequestAction:
				e.enqueue(ctx, pool, emit, infoCall{infoKey{node: a.Node, method: MethodGetInfo}, a.ID})
			case domain.GetNetworkConfigRequestAction:
				e.enqueue(ctx, pool, emit, infoCall{infoKey{node: a.Node, method: MethodGetUniverse}, a.ID})
			}
		}
	}
}

func (e *NodeInfoEpic) enqueue(ctx context.Context, pool *resilience.WorkerPool, emit Emitter, call infoCall) {
	key := call.infoKey
	e.mu.Lock()
	if _, busy := e.pending[key]; busy {
		e.mu.Unlock()
		return
	}
	e.pending[key] = struct{}{}
	e.mu.Unlock()

	err := pool.TrySubmit(func() {
		defer e.release(key)
		emit(e.fetch(ctx, call))
	})
	if err != nil {
		e.release(key)
		logger.Warnw("Node info request rejected", "node", key.node.String(), "method", key.method, "error", err.Error())
		emit(domain.NodeRequestFailedAction{ID: call.id, Node: key.node, Method: key.method, Err: err})
	}
}

func (e *NodeInfoEpic) fetch(ctx context.Context, call infoCall) domain.Action {
	key := call.infoKey
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	var err error
	switch key.method {
	case MethodGetInfo:
		var info domain.NodeInfo
		if info, err = e.client.GetNodeInfo(callCtx, key.node); err == nil {
			return domain.GetNodeInfoResultAction{ID: call.id, Node: key.node, Info: info}
		}
	case MethodGetUniverse:
		var cfg domain.NetworkConfig
		if cfg, err = e.client.GetNetworkConfig(callCtx, key.node); err == nil {
			return domain.GetNetworkConfigResultAction{ID: call.id, Node: key.node, Config: cfg}
		}
	default:
		err = fmt.Errorf("unsupported method %s", key.method)
	}

	logger.Warnw("Node info request failed", "node", key.node.String(), "method", key.method, "error", err.Error())
	return domain.NodeRequestFailedAction{ID: call.id, Node: key.node, Method: key.method, Err: err}
}

func (e *NodeInfoEpic) release(key infoKey) {
	e.mu.Lock()
	delete(e.pending, key)
	e.mu.Unlock()
}
