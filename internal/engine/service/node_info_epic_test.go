package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type fakeInfoClient struct {
	mu        sync.Mutex
	info      map[domain.Node]domain.NodeInfo
	configs   map[domain.Node]domain.NetworkConfig
	err       error
	gate      chan struct{}
	infoCalls *atomic.Int32
}

func newFakeInfoClient() *fakeInfoClient {
	return &fakeInfoClient{
		info:      make(map[domain.Node]domain.NodeInfo),
		configs:   make(map[domain.Node]domain.NetworkConfig),
		infoCalls: atomic.NewInt32(0),
	}
}

func (f *fakeInfoClient) wait(ctx context.Context) error {
	if f.gate == nil {
		return nil
	}
	select {
	case <-f.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeInfoClient) GetNodeInfo(ctx context.Context, node domain.Node) (domain.NodeInfo, error) {
	f.infoCalls.Inc()
	if err := f.wait(ctx); err != nil {
		return domain.NodeInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.NodeInfo{}, f.err
	}
	return f.info[node], nil
}

func (f *fakeInfoClient) GetNetworkConfig(ctx context.Context, node domain.Node) (domain.NetworkConfig, error) {
	if err := f.wait(ctx); err != nil {
		return domain.NetworkConfig{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.NetworkConfig{}, f.err
	}
	return f.configs[node], nil
}

func TestNodeInfoEpic_AnswersRequests(t *testing.T) {
	client := newFakeInfoClient()
	client.info[nodeA] = domain.NodeInfo{ShardSpace: shard.Range{Low: 0, High: 10}}
	client.configs[nodeA] = testUniverse

	h := startEpic(t, NewNodeInfoEpic(client, NodeInfoConfig{}))
	h.feed(domain.GetNodeInfoRequestAction{ID: "info-1", Node: nodeA})
	got := h.rec.waitN(t, 1)
	require.Equal(t, domain.GetNodeInfoResultAction{ID: "info-1", Node: nodeA, Info: client.info[nodeA]}, got[0])

	h.feed(domain.GetNetworkConfigRequestAction{ID: "info-2", Node: nodeA})
	got = h.rec.waitN(t, 2)
	require.Equal(t, domain.GetNetworkConfigResultAction{ID: "info-2", Node: nodeA, Config: testUniverse}, got[1])
	require.Equal(t, domain.CorrelationID("info-2"), got[1].(domain.Correlated).Correlation())
}

func TestNodeInfoEpic_FailureIsReported(t *testing.T) {
	client := newFakeInfoClient()
	client.err = errors.New("method not found")

	h := startEpic(t, NewNodeInfoEpic(client, NodeInfoConfig{}))
	h.feed(domain.GetNetworkConfigRequestAction{ID: "lookup", Node: nodeB})

	got := h.rec.waitN(t, 1)
	failed, ok := got[0].(domain.NodeRequestFailedAction)
	require.True(t, ok, "got %T", got[0])
	require.Equal(t, domain.CorrelationID("lookup"), failed.ID)
	require.Equal(t, nodeB, failed.Node)
	require.Equal(t, MethodGetUniverse, failed.Method)
	require.ErrorIs(t, failed.Err, client.err)
}

func TestNodeInfoEpic_CollapsesDuplicateRequests(t *testing.T) {
	client := newFakeInfoClient()
	client.gate = make(chan struct{})
	client.info[nodeA] = domain.NodeInfo{ShardSpace: shard.Range{Low: 0, High: 10}}

	h := startEpic(t, NewNodeInfoEpic(client, NodeInfoConfig{}))
	h.feed(
		domain.GetNodeInfoRequestAction{ID: "first", Node: nodeA},
		domain.GetNodeInfoRequestAction{ID: "second", Node: nodeA},
		domain.GetNodeInfoRequestAction{ID: "third", Node: nodeA},
	)
	require.Eventually(t, func() bool { return client.infoCalls.Load() == 1 }, waitTimeout, 5*time.Millisecond)
	close(client.gate)

	got := h.rec.waitN(t, 1)
	h.rec.settle(t, 1)
	require.Equal(t, domain.CorrelationID("first"), got[0].(domain.GetNodeInfoResultAction).ID)
	require.Equal(t, int32(1), client.infoCalls.Load())
}

func TestNodeInfoEpic_TimesOut(t *testing.T) {
	client := newFakeInfoClient()
	client.gate = make(chan struct{})

	h := startEpic(t, NewNodeInfoEpic(client, NodeInfoConfig{Timeout: 20 * time.Millisecond}))
	h.feed(domain.GetNodeInfoRequestAction{Node: nodeA})

	got := h.rec.waitN(t, 1)
	failed, ok := got[0].(domain.NodeRequestFailedAction)
	require.True(t, ok, "got %T", got[0])
	require.ErrorIs(t, failed.Err, context.DeadlineExceeded)
	close(client.gate)
}
