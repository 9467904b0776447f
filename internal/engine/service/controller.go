package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/metrics"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

var ErrAlreadyRunning = errors.New("network controller already running")

// Update is one reduced action as seen by an epic. State is the snapshot
// produced by folding Action into the previous state.
type Update struct {
	Action domain.Action
	State  domain.NetworkState
}

// Emitter feeds an action back into the controller. It never blocks.
type Emitter func(domain.Action)

// Epic is one unit of orchestration. Run consumes every reduced action until
// ctx is done or updates is closed, and emits follow-up actions through emit.
// Epics never reference the controller or each other.
type Epic interface {
	Name() string
	Run(ctx context.Context, updates <-chan Update, emit Emitter) error
}

type subscriber struct {
	push  func(Update)
	close func()
}

// Controller owns the network state. Every dispatched action is reduced on a
// single goroutine and then fanned out, with the resulting snapshot, to every
// epic and observer. Epic output re-enters through Dispatch.
type Controller struct {
	inbound *mailbox[domain.Action]
	metrics *metrics.Collector

	mu      sync.RWMutex
	state   domain.NetworkState
	epics   []Epic
	subs    map[uint64]subscriber
	nextSub uint64

	running *atomic.Bool
	stopped *atomic.Bool
}

// NewController creates an idle controller. Register epics, then call Run.
func NewController(m *metrics.Collector) *Controller {
	return &Controller{
		inbound: newMailbox[domain.Action](),
		metrics: m,
		subs:    make(map[uint64]subscriber),
		running: atomic.NewBool(false),
		stopped: atomic.NewBool(false),
	}
}

// Register adds epics. It must be called before Run.
func (c *Controller) Register(epics ...Epic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epics = append(c.epics, epics...)
}

// Run drives the reducer and every registered epic until ctx is done or an
// epic fails. Actions dispatched before Run are processed once it starts.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.shutdown()

	c.mu.RLock()
	epics := append([]Epic(nil), c.epics...)
	c.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, epic := range epics {
		box := newMailbox[Update]()
		id := c.subscribe(subscriber{push: box.push, close: box.close})

		g.Go(func() error {
			defer c.unsubscribe(id)

			logger.Debugw("Epic started", "epic", epic.Name())
			err := epic.Run(gctx, box.C(), c.Dispatch)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorw("Epic failed", "epic", epic.Name(), "error", err.Error())
				return fmt.Errorf("epic %s: %w", epic.Name(), err)
			}
			return nil
		})
	}

	g.Go(func() error {
		c.reduceLoop(gctx)
		return nil
	})

	logger.Infow("Network controller started", "epics", len(epics))
	err := g.Wait()
	logger.Infow("Network controller stopped")
	return err
}

// Dispatch enqueues an action. It never blocks; actions dispatched after the
// controller stopped are dropped.
func (c *Controller) Dispatch(action domain.Action) {
	if action == nil {
		return
	}
	if c.stopped.Load() {
		logger.Debugw("Action dropped after stop", "kind", string(action.Kind()))
		return
	}
	c.inbound.push(action)
}

// State returns the current snapshot.
func (c *Controller) State() domain.NetworkState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ObserveActions streams every action reduced after the call, in order. The
// returned func unsubscribes and closes the channel.
func (c *Controller) ObserveActions() (<-chan domain.Action, func()) {
	box := newMailbox[domain.Action]()
	id := c.subscribe(subscriber{
		push:  func(u Update) { box.push(u.Action) },
		close: box.close,
	})
	return box.C(), func() { c.unsubscribe(id) }
}

// ObserveState streams the current snapshot followed by every later one.
func (c *Controller) ObserveState() (<-chan domain.NetworkState, func()) {
	box := newMailbox[domain.NetworkState]()

	c.mu.Lock()
	box.push(c.state)
	id := c.subscribeLocked(subscriber{
		push:  func(u Update) { box.push(u.State) },
		close: box.close,
	})
	c.mu.Unlock()

	return box.C(), func() { c.unsubscribe(id) }
}

func (c *Controller) reduceLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case action, ok := <-c.inbound.C():
			if !ok {
				return
			}
			c.apply(action)
		}
	}
}

func (c *Controller) apply(action domain.Action) {
	c.mu.Lock()
	c.state = Reduce(c.state, action)
	update := Update{Action: action, State: c.state}
	for _, s := range c.subs {
		s.push(update)
	}
	known := c.state.Len()
	c.mu.Unlock()

	c.metrics.ActionReduced(string(action.Kind()), known)
	logAction(action)
}

func (c *Controller) subscribe(s subscriber) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeLocked(s)
}

func (c *Controller) subscribeLocked(s subscriber) uint64 {
	if c.stopped.Load() {
		s.close()
		return 0
	}
	c.nextSub++
	c.subs[c.nextSub] = s
	c.metrics.SubscriberAdded()
	return c.nextSub
}

func (c *Controller) unsubscribe(id uint64) {
	c.mu.Lock()
	s, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()

	if ok {
		s.close()
		c.metrics.SubscriberRemoved()
	}
}

func (c *Controller) shutdown() {
	c.stopped.Store(true)
	c.inbound.close()

	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[uint64]subscriber)
	c.mu.Unlock()

	for _, s := range subs {
		s.close()
		c.metrics.SubscriberRemoved()
	}
}

func logAction(action domain.Action) {
	fields := []interface{}{"kind", string(action.Kind())}
	if na, ok := action.(domain.NodeAction); ok {
		fields = append(fields, "node", na.Target().String())
	}
	if ca, ok := action.(domain.Correlated); ok {
		fields = append(fields, "correlation_id", string(ca.Correlation()))
	}
	logger.Debugw("Action reduced", fields...)
}
