package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/port"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const waitTimeout = 3 * time.Second

var (
	testUniverse  = domain.NetworkConfig{Magic: 42, Name: "localnet"}
	otherUniverse = domain.NetworkConfig{Magic: 7, Name: "betanet"}

	nodeA = domain.NewNode("node-a", 8080, false)
	nodeB = domain.NewNode("node-b", 8080, false)
	nodeC = domain.NewNode("node-c", 8443, true)
)

// known returns a discovered node advertising a shard space and universe.
func known(node domain.Node, low, high int64, cfg domain.NetworkConfig) domain.DiscoveredNode {
	space := shard.Range{Low: shard.Shard(low), High: shard.Shard(high)}
	return domain.DiscoveredNode{Node: node, ShardSpace: &space, Config: &cfg}
}

func bare(node domain.Node) domain.DiscoveredNode {
	return domain.DiscoveredNode{Node: node}
}

func findAction(id string, shards ...shard.Shard) domain.FindANodeRequestAction {
	cfg := testUniverse
	return domain.FindANodeRequestAction{
		ID:             domain.CorrelationID(id),
		RequiredShards: shard.NewSet(shards...),
		ExpectedConfig: &cfg,
	}
}

// recorder is an Emitter that keeps every emitted action.
type recorder struct {
	mu      sync.Mutex
	actions []domain.Action
	hook    func(domain.Action)
}

// emit runs the hook before recording, so anything the hook logs is visible
// once the action is.
func (r *recorder) emit(a domain.Action) {
	r.mu.Lock()
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(a)
	}

	r.mu.Lock()
	r.actions = append(r.actions, a)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []domain.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Action(nil), r.actions...)
}

func (r *recorder) waitN(t *testing.T, n int) []domain.Action {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.snapshot()) >= n }, waitTimeout, 5*time.Millisecond,
		"expected at least %d emitted actions", n)
	return r.snapshot()
}

// settle waits briefly and asserts no further actions were emitted.
func (r *recorder) settle(t *testing.T, n int) {
	t.Helper()
	time.Sleep(100 * time.Millisecond)
	require.Len(t, r.snapshot(), n, "unexpected extra actions: %v", kinds(r.snapshot()))
}

func kinds(actions []domain.Action) []domain.Kind {
	out := make([]domain.Kind, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Kind())
	}
	return out
}

// epicHarness runs one epic against a locally reduced state. Emitted actions
// are recorded, not fed back, so tests decide what the environment does.
type epicHarness struct {
	t       *testing.T
	state   domain.NetworkState
	updates chan Update
	rec     *recorder
}

func startEpic(t *testing.T, epic Epic) *epicHarness {
	t.Helper()
	h := &epicHarness{t: t, updates: make(chan Update, 64), rec: &recorder{}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- epic.Run(ctx, h.updates, h.rec.emit) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitTimeout):
			t.Errorf("epic %s did not stop", epic.Name())
		}
	})
	return h
}

func (h *epicHarness) feed(actions ...domain.Action) {
	for _, a := range actions {
		h.state = Reduce(h.state, a)
		h.updates <- Update{Action: a, State: h.state}
	}
}

// environmentEpic plays the network: it answers actions with scripted ones.
type environmentEpic struct {
	react func(domain.Action) []domain.Action
}

func (e *environmentEpic) Name() string { return "environment" }

func (e *environmentEpic) Run(ctx context.Context, updates <-chan Update, emit Emitter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			for _, a := range e.react(u.Action) {
				emit(a)
			}
		}
	}
}

func runController(t *testing.T, ctrl *Controller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitTimeout):
			t.Error("controller did not stop")
		}
	})
}

// collect reads actions until n of them pass keep.
func collect(t *testing.T, actions <-chan domain.Action, n int, keep func(domain.Action) bool) []domain.Action {
	t.Helper()
	var out []domain.Action
	deadline := time.After(waitTimeout)
	for len(out) < n {
		select {
		case a, ok := <-actions:
			require.True(t, ok, "action stream closed early")
			if keep(a) {
				out = append(out, a)
			}
		case <-deadline:
			t.Fatalf("timed out after collecting %v", kinds(out))
		}
	}
	return out
}

func ofKind(ks ...domain.Kind) func(domain.Action) bool {
	return func(a domain.Action) bool {
		for _, k := range ks {
			if a.Kind() == k {
				return true
			}
		}
		return false
	}
}

type counterIDs struct {
	n *atomic.Int64
}

func newCounterIDs() counterIDs {
	return counterIDs{n: atomic.NewInt64(1000)}
}

func (c counterIDs) NextString() (string, error) {
	return strconv.FormatInt(c.n.Inc(), 36), nil
}

// fakeConn is a port.Conn whose lifetime tests control.
type fakeConn struct {
	mu     sync.Mutex
	calls  []string
	params []any
	result map[string]any
	errs   map[string]error
	routes map[string]chan json.RawMessage

	done      chan struct{}
	err       error
	closeOnce sync.Once
	closes    *atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		result: make(map[string]any),
		errs:   make(map[string]error),
		routes: make(map[string]chan json.RawMessage),
		done:   make(chan struct{}),
		closes: atomic.NewInt32(0),
	}
}

var _ port.Conn = (*fakeConn)(nil)

func (c *fakeConn) Call(_ context.Context, method string, params any, result any) error {
	c.mu.Lock()
	c.calls = append(c.calls, method)
	c.params = append(c.params, params)
	res, err := c.result[method], c.errs[method]
	c.mu.Unlock()

	if err != nil {
		return err
	}
	if result != nil && res != nil {
		raw, err := json.Marshal(res)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, result)
	}
	return nil
}

func (c *fakeConn) Notifications(method, subscriberID string) (<-chan json.RawMessage, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan json.RawMessage, 8)
	c.routes[method+"/"+subscriberID] = ch
	return ch, func() {}
}

func (c *fakeConn) notify(t *testing.T, method, subscriberID string, params any) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	c.mu.Lock()
	ch := c.routes[method+"/"+subscriberID]
	c.mu.Unlock()
	require.NotNil(t, ch, "no route for %s/%s", method, subscriberID)
	ch <- raw
}

func (c *fakeConn) methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) Close() error {
	c.closes.Inc()
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// drop ends the connection as if the remote went away.
func (c *fakeConn) drop(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
}

type staticLookup map[domain.Node]port.Conn

func (l staticLookup) Conn(node domain.Node) (port.Conn, bool) {
	c, ok := l[node]
	return c, ok
}
