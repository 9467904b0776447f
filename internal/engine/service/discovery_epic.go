package service

import (
	"context"
	"sync"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/port"
	"go.uber.org/atomic"
)

const defaultDiscoveryTimeout = 10 * time.Second

// DiscoveryEpic answers DiscoverMoreNodesAction with NodesDiscoveredAction or
// DiscoverMoreNodesErrorAction. Requests arriving while a lookup is running
// are folded into it.
type DiscoveryEpic struct {
	discovery port.NodeDiscovery
	timeout   time.Duration
	inFlight  *atomic.Bool
}

func NewDiscoveryEpic(discovery port.NodeDiscovery, timeout time.Duration) *DiscoveryEpic {
	if timeout <= 0 {
		timeout = defaultDiscoveryTimeout
	}
	return &DiscoveryEpic{
		discovery: discovery,
		timeout:   timeout,
		inFlight:  atomic.NewBool(false),
	}
}

func (e *DiscoveryEpic) Name() string { return "discovery" }

func (e *DiscoveryEpic) Run(ctx context.Context, updates <-chan Update, emit Emitter) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if _, ok := u.Action.(domain.DiscoverMoreNodesAction); !ok {
				continue
			}
			if !e.inFlight.CompareAndSwap(false, true) {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.load(ctx, emit)
			}()
		}
	}
}

func (e *DiscoveryEpic) load(ctx context.Context, emit Emitter) {
	lookupCtx, cancel := context.WithTimeout(ctx, e.timeout)
	nodes, err := e.discovery.LoadNodes(lookupCtx)
	cancel()

	e.inFlight.Store(false)

	if err != nil {
		logger.Warnw("Node discovery failed", "error", err.Error())
		emit(domain.DiscoverMoreNodesErrorAction{Err: err})
		return
	}
	logger.Debugw("Nodes discovered", "count", len(nodes))
	emit(domain.NodesDiscoveredAction{Nodes: nodes})
}
