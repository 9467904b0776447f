package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/metrics"
)

// TimeoutPolicy decides what a find-node request does when its wait elapses
// without a suitable connected node.
type TimeoutPolicy string

const (
	// TimeoutRetryDiscovery starts a new round with fresh discovery until
	// MaxAttempts rounds have elapsed.
	TimeoutRetryDiscovery TimeoutPolicy = "retry_discovery"
	// TimeoutFail fails once a discovery has completed and at least one
	// candidate was dialled. Until then it rediscovers like
	// TimeoutRetryDiscovery.
	TimeoutFail TimeoutPolicy = "fail"
)

// ParseTimeoutPolicy maps a config value to a TimeoutPolicy. Empty selects
// TimeoutRetryDiscovery.
func ParseTimeoutPolicy(s string) (TimeoutPolicy, error) {
	switch TimeoutPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", TimeoutRetryDiscovery:
		return TimeoutRetryDiscovery, nil
	case TimeoutFail:
		return TimeoutFail, nil
	}
	return "", fmt.Errorf("unknown find-node timeout policy %q", s)
}

const (
	defaultWaitForConnection = 5 * time.Second
	defaultFindMaxAttempts   = 3
)

// FindNodeConfig bounds the find-node rounds. Zero values take defaults.
type FindNodeConfig struct {
	// WaitForConnection bounds one round of connection attempts.
	WaitForConnection time.Duration
	OnTimeout         TimeoutPolicy
	// MaxAttempts is the number of rounds before giving up.
	MaxAttempts int
	// MaxParallelConnects caps candidates connecting at once; 0 is unlimited.
	MaxParallelConnects int
}

// FindNodeEpic resolves FindANodeRequestActions into a connected, suitable
// node. The first node to become connected and suitable wins; the other
// candidates it connected to are closed.
type FindNodeEpic struct {
	cfg      FindNodeConfig
	policy   SuitabilityPolicy
	selector PeerSelector
	metrics  *metrics.Collector
}

// NewFindNodeEpic returns the epic with defaults applied. A nil selector
// picks the first suitable node.
func NewFindNodeEpic(cfg FindNodeConfig, policy SuitabilityPolicy, selector PeerSelector, m *metrics.Collector) *FindNodeEpic {
	if cfg.WaitForConnection <= 0 {
		cfg.WaitForConnection = defaultWaitForConnection
	}
	if cfg.OnTimeout == "" {
		cfg.OnTimeout = TimeoutRetryDiscovery
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultFindMaxAttempts
	}
	if selector == nil {
		selector = FirstSelector{}
	}
	return &FindNodeEpic{cfg: cfg, policy: policy, selector: selector, metrics: m}
}

func (e *FindNodeEpic) Name() string { return "find_node" }

func (e *FindNodeEpic) Run(ctx context.Context, updates <-chan Update, emit Emitter) error {
	r := &findRun{
		epic:    e,
		ctx:     ctx,
		emit:    emit,
		active:  make(map[domain.CorrelationID]*findRequest),
		expired: make(chan expiry),
	}
	defer r.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			r.handle(u)
		case ex := <-r.expired:
			r.expire(ex)
		}
	}
}

type expiry struct {
	id  domain.CorrelationID
	gen int
}

type findRequest struct {
	req domain.FindANodeRequestAction

	// candidates are the nodes this request issued ConnectAction for.
	candidates     map[domain.Node]struct{}
	candidateOrder []domain.Node
	// progress marks candidates seen connecting or connected, so a stale
	// disconnected status is not mistaken for a failed attempt.
	progress        map[domain.Node]bool
	excluded        map[domain.Node]struct{}
	infoRequested   map[domain.Node]struct{}
	configRequested map[domain.Node]struct{}

	discoveryRequested bool
	discovered         bool
	// dialled survives rounds: at least one ConnectAction was issued.
	dialled  bool
	attempts int

	timer *time.Timer
	gen   int
}

func newFindRequest(req domain.FindANodeRequestAction) *findRequest {
	r := &findRequest{req: req}
	r.resetRound()
	return r
}

func (r *findRequest) resetRound() {
	r.candidates = make(map[domain.Node]struct{})
	r.candidateOrder = nil
	r.progress = make(map[domain.Node]bool)
	r.excluded = make(map[domain.Node]struct{})
	r.infoRequested = make(map[domain.Node]struct{})
	r.configRequested = make(map[domain.Node]struct{})
	r.discoveryRequested = false
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *findRequest) addCandidate(node domain.Node) {
	r.candidates[node] = struct{}{}
	r.candidateOrder = append(r.candidateOrder, node)
}

func (r *findRequest) dropCandidate(node domain.Node) {
	delete(r.candidates, node)
}

func (r *findRequest) isCandidate(node domain.Node) bool {
	_, ok := r.candidates[node]
	return ok
}

func (r *findRequest) isExcluded(node domain.Node) bool {
	_, ok := r.excluded[node]
	return ok
}

// findRun is the state of one Run invocation. It is only touched by the Run
// goroutine.
type findRun struct {
	epic    *FindNodeEpic
	ctx     context.Context
	emit    Emitter
	active  map[domain.CorrelationID]*findRequest
	order   []domain.CorrelationID
	expired chan expiry
}

func (f *findRun) handle(u Update) {
	switch a := u.Action.(type) {
	case domain.FindANodeRequestAction:
		if _, dup := f.active[a.ID]; dup {
			return
		}
		logger.Debugw("Find-node request started", "correlation_id", string(a.ID), "shards", a.RequiredShards.String())
		f.active[a.ID] = newFindRequest(a)
		f.order = append(f.order, a.ID)

	case domain.NodesDiscoveredAction, domain.DiscoverMoreNodesErrorAction:
		for _, r := range f.active {
			if r.discoveryRequested {
				r.discovered = true
			}
		}

	case domain.NodeRequestFailedAction:
		for _, r := range f.active {
			if _, ok := r.excluded[a.Node]; ok {
				continue
			}
			r.excluded[a.Node] = struct{}{}
			if r.isCandidate(a.Node) {
				r.dropCandidate(a.Node)
				f.closeUnlessHeld(a.Node, r)
			}
		}
	}

	for _, id := range append([]domain.CorrelationID(nil), f.order...) {
		if r, ok := f.active[id]; ok {
			f.step(r, u.State)
		}
	}
}

func (f *findRun) step(r *findRequest, state domain.NetworkState) {
	policy := f.epic.policy

	if state.Len() == 0 {
		f.requestDiscovery(r)
		f.arm(r, false)
		return
	}

	var suitable []domain.Node
	for _, ns := range state.Nodes() {
		if ns.Status == domain.StatusConnected && !r.isExcluded(ns.Node) && policy.IsSuitable(ns, r.req) {
			suitable = append(suitable, ns.Node)
		}
	}
	if len(suitable) > 0 {
		f.resolve(r, f.epic.selector.Select(suitable, r.req))
		return
	}

	for _, node := range r.candidateOrder {
		if !r.isCandidate(node) {
			continue
		}
		ns, _ := state.Get(node)
		switch ns.Status {
		case domain.StatusConnecting:
			r.progress[node] = true
		case domain.StatusConnected:
			r.progress[node] = true
			if !policy.MayBeSuitable(ns, r.req) {
				logger.Debugw("Candidate turned out unsuitable", "correlation_id", string(r.req.ID), "node", node.String())
				r.excluded[node] = struct{}{}
				r.dropCandidate(node)
				f.closeUnlessHeld(node, r)
			}
		case domain.StatusFailed, domain.StatusDisconnected:
			if r.progress[node] {
				logger.Debugw("Candidate connection failed", "correlation_id", string(r.req.ID), "node", node.String())
				r.excluded[node] = struct{}{}
				r.dropCandidate(node)
			}
		}
	}

	awaitingInfo := false
	for _, ns := range state.Nodes() {
		if ns.Status != domain.StatusConnected || r.isExcluded(ns.Node) || !policy.MayBeSuitable(ns, r.req) {
			continue
		}
		if !policy.NeedsMoreInfo(ns) {
			continue
		}
		awaitingInfo = true
		f.requestInfo(r, ns)
	}

	// While a connected node is being asked for its info, only dial nodes
	// whose own info is already complete.
	connected := f.connectCandidates(r, state, awaitingInfo)

	othersConnecting := false
	for _, ns := range state.Nodes() {
		if ns.Status == domain.StatusConnecting && !r.isCandidate(ns.Node) && !r.isExcluded(ns.Node) && policy.MayBeSuitable(ns, r.req) {
			othersConnecting = true
			break
		}
	}

	if awaitingInfo || len(r.candidates) > 0 || othersConnecting {
		f.arm(r, connected)
		return
	}

	f.requestDiscovery(r)
	f.arm(r, false)
}

func (f *findRun) requestInfo(r *findRequest, ns domain.NodeState) {
	if ns.ShardSpace == nil {
		if _, sent := r.infoRequested[ns.Node]; !sent {
			r.infoRequested[ns.Node] = struct{}{}
			f.emit(domain.GetNodeInfoRequestAction{ID: r.req.ID, Node: ns.Node})
		}
	}
	if ns.Config == nil {
		if _, sent := r.configRequested[ns.Node]; !sent {
			r.configRequested[ns.Node] = struct{}{}
			f.emit(domain.GetNetworkConfigRequestAction{ID: r.req.ID, Node: ns.Node})
		}
	}
}

// connectCandidates issues ConnectAction for reachable-looking nodes in state
// order and reports whether any was issued. With knownOnly set, nodes still
// missing info are skipped.
func (f *findRun) connectCandidates(r *findRequest, state domain.NetworkState, knownOnly bool) bool {
	limit := f.epic.cfg.MaxParallelConnects
	issued := false

	for _, ns := range state.Nodes() {
		if limit > 0 && len(r.candidates) >= limit {
			break
		}
		if r.isCandidate(ns.Node) || r.isExcluded(ns.Node) {
			continue
		}
		if ns.Status != domain.StatusDisconnected && ns.Status != domain.StatusFailed {
			continue
		}
		if !f.epic.policy.MayBeSuitable(ns, r.req) {
			continue
		}
		if knownOnly && f.epic.policy.NeedsMoreInfo(ns) {
			continue
		}

		r.addCandidate(ns.Node)
		r.dialled = true
		issued = true
		f.emit(domain.ConnectAction{Node: ns.Node})
	}
	return issued
}

func (f *findRun) resolve(r *findRequest, winner domain.Node) {
	logger.Infow("Find-node resolved", "correlation_id", string(r.req.ID), "node", winner.String())
	f.emit(domain.FindANodeResultAction{Node: winner, Request: r.req})

	f.finish(r)

	// The winner now belongs to the caller; no other request may close it.
	for _, other := range f.active {
		if other.isCandidate(winner) {
			other.dropCandidate(winner)
		}
	}

	for _, node := range r.candidateOrder {
		if node == winner || !r.isCandidate(node) {
			continue
		}
		f.closeUnlessHeld(node, r)
	}
	f.epic.metrics.FindNodeFinished(metrics.FindFound)
}

func (f *findRun) expire(ex expiry) {
	r, ok := f.active[ex.id]
	if !ok || ex.gen != r.gen {
		return
	}
	r.timer = nil
	r.attempts++

	for _, node := range r.candidateOrder {
		if r.isCandidate(node) {
			f.closeUnlessHeld(node, r)
		}
	}

	cfg := f.epic.cfg
	if (cfg.OnTimeout == TimeoutFail && r.discovered && r.dialled) || r.attempts >= cfg.MaxAttempts {
		logger.Warnw("Find-node failed", "correlation_id", string(r.req.ID), "attempts", r.attempts)
		f.finish(r)
		f.emit(domain.FindANodeErrorAction{Request: r.req, Err: domain.ErrNoSuitableNode})
		f.epic.metrics.FindNodeFinished(metrics.FindNotFound)
		return
	}

	logger.Infow("Find-node round timed out, rediscovering", "correlation_id", string(r.req.ID), "attempt", r.attempts)
	r.resetRound()
	f.requestDiscovery(r)
	f.arm(r, false)
}

func (f *findRun) finish(r *findRequest) {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	delete(f.active, r.req.ID)
	for i, id := range f.order {
		if id == r.req.ID {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

func (f *findRun) requestDiscovery(r *findRequest) {
	if r.discoveryRequested {
		return
	}
	r.discoveryRequested = true
	f.emit(domain.DiscoverMoreNodesAction{})
}

// arm starts the round timer, restarting it when restart is set.
func (f *findRun) arm(r *findRequest, restart bool) {
	if r.timer != nil && !restart {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}

	r.gen++
	ex := expiry{id: r.req.ID, gen: r.gen}
	r.timer = time.AfterFunc(f.epic.cfg.WaitForConnection, func() {
		select {
		case f.expired <- ex:
		case <-f.ctx.Done():
		}
	})
}

// closeUnlessHeld closes a candidate unless another active request is still
// waiting on it.
func (f *findRun) closeUnlessHeld(node domain.Node, owner *findRequest) {
	for _, other := range f.active {
		if other != owner && other.isCandidate(node) {
			return
		}
	}
	f.emit(domain.CloseConnectionAction{Node: node})
}

func (f *findRun) stopTimers() {
	for _, r := range f.active {
		if r.timer != nil {
			r.timer.Stop()
		}
	}
}
