package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/metrics"
	"github.com/anthanhphan/ledger-netengine/internal/engine/port"
	"github.com/anthanhphan/ledger-netengine/pkg/resilience"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/atomic"
)

const (
	defaultDialTimeout      = 10 * time.Second
	defaultBreakerCacheSize = 256
	watcherBuffer           = 8
)

// Connector opens and closes node connections on behalf of epics.
type Connector interface {
	// Connect attaches to the node's connection, starting one if none is live.
	// opened reports whether this call started the attempt.
	Connect(node domain.Node) (sub *StatusSubscription, opened bool)
	// Close tears the node's connection down. It is a no-op without one.
	Close(node domain.Node)
}

// ConnLookup returns the live connection of a connected node.
type ConnLookup interface {
	Conn(node domain.Node) (port.Conn, bool)
}

// StatusSubscription streams the status of one connection instance: the
// current status first, then every transition. C is closed after the
// connection reaches a terminal status or Cancel is called.
type StatusSubscription struct {
	C      <-chan domain.ConnectionStatus
	cancel func()
	once   sync.Once
}

func (s *StatusSubscription) Cancel() {
	s.once.Do(s.cancel)
}

type ConnectionManagerConfig struct {
	DialTimeout      time.Duration
	BreakerCacheSize int
	Breaker          resilience.CircuitBreakerConfig
}

// ConnectionManager keeps at most one connection per node. It does no
// reference counting: whoever decides a connection is no longer needed calls
// Close. Every status transition is emitted as ConnectionStatusChangedAction.
type ConnectionManager struct {
	transport port.Transport
	emit      Emitter
	cfg       ConnectionManagerConfig
	metrics   *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[domain.Node]*managedConn

	breakerMu sync.Mutex
	breakers  *lru.Cache[domain.Node, *resilience.CircuitBreaker]
}

func NewConnectionManager(transport port.Transport, emit Emitter, cfg ConnectionManagerConfig, m *metrics.Collector) (*ConnectionManager, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.BreakerCacheSize <= 0 {
		cfg.BreakerCacheSize = defaultBreakerCacheSize
	}

	breakers, err := lru.New[domain.Node, *resilience.CircuitBreaker](cfg.BreakerCacheSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		transport: transport,
		emit:      emit,
		cfg:       cfg,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		conns:     make(map[domain.Node]*managedConn),
		breakers:  breakers,
	}, nil
}

func (m *ConnectionManager) Connect(node domain.Node) (*StatusSubscription, bool) {
	m.mu.Lock()
	mc, ok := m.conns[node]
	opened := false
	if !ok || mc.replaceable() {
		if ok {
			mc.superseded.Store(true)
		}
		mc = newManagedConn(node, m.emit)
		m.conns[node] = mc
		mc.setStatus(domain.StatusConnecting)
		opened = true
	}
	sub := mc.watch()
	m.mu.Unlock()

	if opened {
		logger.Infow("Connecting to node", "node", node.String())
		go m.dial(mc)
	}
	return sub, opened
}

func (m *ConnectionManager) Close(node domain.Node) {
	m.mu.Lock()
	mc, ok := m.conns[node]
	m.mu.Unlock()
	if !ok {
		return
	}

	if conn := mc.requestClose(); conn != nil {
		logger.Infow("Closing node connection", "node", node.String())
		if err := conn.Close(); err != nil {
			logger.Warnw("Failed to close node connection", "node", node.String(), "error", err.Error())
		}
	}
}

func (m *ConnectionManager) Conn(node domain.Node) (port.Conn, bool) {
	m.mu.Lock()
	mc, ok := m.conns[node]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.status != domain.StatusConnected || mc.conn == nil {
		return nil, false
	}
	return mc.conn, true
}

// Shutdown closes every connection and stops pending dials.
func (m *ConnectionManager) Shutdown() error {
	m.cancel()

	m.mu.Lock()
	conns := make([]*managedConn, 0, len(m.conns))
	for _, mc := range m.conns {
		conns = append(conns, mc)
	}
	m.mu.Unlock()

	var result error
	for _, mc := range conns {
		if conn := mc.requestClose(); conn != nil {
			if err := conn.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result
}

func (m *ConnectionManager) dial(mc *managedConn) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.DialTimeout)
	defer cancel()
	mc.setDialCancel(cancel)

	var conn port.Conn
	err := m.breakerFor(mc.node).Execute(ctx, func(ctx context.Context) error {
		c, err := m.transport.Dial(ctx, mc.node)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})

	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			m.metrics.Dial(metrics.DialRefused)
		} else {
			m.metrics.Dial(metrics.DialFailure)
		}

		if mc.closeRequested.Load() {
			mc.setStatus(domain.StatusDisconnected)
			return
		}
		logger.Warnw("Failed to connect to node", "node", mc.node.String(), "error", err.Error())
		mc.setStatus(domain.StatusFailed)
		return
	}

	m.metrics.Dial(metrics.DialSuccess)
	if !mc.attach(conn) {
		_ = conn.Close()
		mc.setStatus(domain.StatusDisconnected)
		return
	}

	logger.Infow("Connected to node", "node", mc.node.String())
	go m.watchConn(mc, conn)
}

func (m *ConnectionManager) watchConn(mc *managedConn, conn port.Conn) {
	<-conn.Done()

	if mc.closeRequested.Load() || conn.Err() == nil {
		logger.Infow("Node connection closed", "node", mc.node.String())
		mc.setStatus(domain.StatusDisconnected)
		return
	}
	logger.Warnw("Node connection lost", "node", mc.node.String(), "error", conn.Err().Error())
	mc.setStatus(domain.StatusFailed)
}

func (m *ConnectionManager) breakerFor(node domain.Node) *resilience.CircuitBreaker {
	m.breakerMu.Lock()
	defer m.breakerMu.Unlock()

	if cb, ok := m.breakers.Get(node); ok {
		return cb
	}
	cfg := m.cfg.Breaker
	cfg.Name = node.String()
	cb := resilience.NewCircuitBreaker(cfg)
	m.breakers.Add(node, cb)
	return cb
}

// managedConn is one connection instance for a node.
type managedConn struct {
	node domain.Node
	emit Emitter

	mu          sync.Mutex
	status      domain.ConnectionStatus
	conn        port.Conn
	dialCancel  context.CancelFunc
	watchers    map[uint64]chan domain.ConnectionStatus
	nextWatcher uint64

	closeRequested *atomic.Bool
	// superseded instances stop reporting to the controller so that a late
	// terminal status cannot overwrite the replacement's.
	superseded *atomic.Bool
}

func newManagedConn(node domain.Node, emit Emitter) *managedConn {
	return &managedConn{
		node:           node,
		emit:           emit,
		status:         domain.StatusDisconnected,
		watchers:       make(map[uint64]chan domain.ConnectionStatus),
		closeRequested: atomic.NewBool(false),
		superseded:     atomic.NewBool(false),
	}
}

func (mc *managedConn) replaceable() bool {
	if mc.closeRequested.Load() {
		return true
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.status.Terminal()
}

func (mc *managedConn) watch() *StatusSubscription {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	ch := make(chan domain.ConnectionStatus, watcherBuffer)
	ch <- mc.status
	if mc.status.Terminal() {
		close(ch)
		return &StatusSubscription{C: ch, cancel: func() {}}
	}

	mc.nextWatcher++
	id := mc.nextWatcher
	mc.watchers[id] = ch

	return &StatusSubscription{C: ch, cancel: func() {
		mc.mu.Lock()
		defer mc.mu.Unlock()
		if w, ok := mc.watchers[id]; ok {
			delete(mc.watchers, id)
			close(w)
		}
	}}
}

func (mc *managedConn) setStatus(status domain.ConnectionStatus) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.setStatusLocked(status)
}

func (mc *managedConn) setStatusLocked(status domain.ConnectionStatus) {
	if mc.status == status || (mc.status.Terminal() && status != domain.StatusConnecting) {
		return
	}
	mc.status = status

	if mc.emit != nil && !mc.superseded.Load() {
		mc.emit(domain.ConnectionStatusChangedAction{Node: mc.node, Status: status})
	}

	for id, w := range mc.watchers {
		select {
		case w <- status:
		default:
		}
		if status.Terminal() {
			delete(mc.watchers, id)
			close(w)
		}
	}
}

func (mc *managedConn) setDialCancel(cancel context.CancelFunc) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.dialCancel = cancel
}

// attach stores the dialled connection unless a close was requested while
// dialling.
func (mc *managedConn) attach(conn port.Conn) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.closeRequested.Load() {
		return false
	}
	mc.conn = conn
	mc.setStatusLocked(domain.StatusConnected)
	return true
}

// requestClose marks the instance closing and returns the connection to close,
// nil when it is still dialling or already finished.
func (mc *managedConn) requestClose() port.Conn {
	if !mc.closeRequested.CompareAndSwap(false, true) {
		return nil
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.status.Terminal() {
		return nil
	}
	mc.setStatusLocked(domain.StatusClosing)
	if mc.conn == nil && mc.dialCancel != nil {
		mc.dialCancel()
	}
	return mc.conn
}
