package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/metrics"
	"github.com/stretchr/testify/require"
)

// watchEpic forwards every update it sees.
type watchEpic struct {
	seen chan Update
}

func (p *watchEpic) Name() string { return "watch" }

func (p *watchEpic) Run(ctx context.Context, updates <-chan Update, _ Emitter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			p.seen <- u
		}
	}
}

type failingEpic struct{ err error }

func (f failingEpic) Name() string { return "failing" }

func (f failingEpic) Run(context.Context, <-chan Update, Emitter) error { return f.err }

func TestController_EpicsSeeStateAfterReduction(t *testing.T) {
	watch := &watchEpic{seen: make(chan Update, 16)}
	ctrl := NewController(metrics.New())
	ctrl.Register(watch)
	runController(t, ctrl)

	ctrl.Dispatch(domain.ConnectAction{Node: nodeA})

	select {
	case u := <-watch.seen:
		require.Equal(t, domain.ConnectAction{Node: nodeA}, u.Action)
		ns, ok := u.State.Get(nodeA)
		require.True(t, ok)
		require.Equal(t, domain.StatusConnecting, ns.Status)
	case <-time.After(waitTimeout):
		t.Fatal("epic did not receive the update")
	}

	require.Eventually(t, func() bool {
		ns, ok := ctrl.State().Get(nodeA)
		return ok && ns.Status == domain.StatusConnecting
	}, waitTimeout, 5*time.Millisecond)
}

func TestController_EpicOutputLoopsBack(t *testing.T) {
	ctrl := NewController(nil)
	ctrl.Register(&environmentEpic{react: func(a domain.Action) []domain.Action {
		if c, ok := a.(domain.ConnectAction); ok {
			return []domain.Action{statusChanged(c.Node, domain.StatusConnected)}
		}
		return nil
	}})

	actions, stop := ctrl.ObserveActions()
	defer stop()
	runController(t, ctrl)

	ctrl.Dispatch(domain.ConnectAction{Node: nodeA})

	got := collect(t, actions, 2, func(domain.Action) bool { return true })
	require.Equal(t, domain.ConnectAction{Node: nodeA}, got[0])
	require.Equal(t, statusChanged(nodeA, domain.StatusConnected), got[1])
}

func TestController_ActionsDispatchedBeforeRunAreProcessed(t *testing.T) {
	ctrl := NewController(nil)
	actions, stop := ctrl.ObserveActions()
	defer stop()

	ctrl.Dispatch(domain.DiscoverMoreNodesAction{})
	runController(t, ctrl)

	got := collect(t, actions, 1, func(domain.Action) bool { return true })
	require.Equal(t, domain.DiscoverMoreNodesAction{}, got[0])
}

func TestController_ObserveStateStartsWithCurrentSnapshot(t *testing.T) {
	ctrl := NewController(nil)
	runController(t, ctrl)

	ctrl.Dispatch(domain.NodesDiscoveredAction{Nodes: []domain.DiscoveredNode{bare(nodeA)}})
	require.Eventually(t, func() bool { return ctrl.State().Len() == 1 }, waitTimeout, 5*time.Millisecond)

	states, stop := ctrl.ObserveState()
	defer stop()

	first := <-states
	require.Equal(t, 1, first.Len())

	ctrl.Dispatch(domain.NodesDiscoveredAction{Nodes: []domain.DiscoveredNode{bare(nodeB)}})
	select {
	case next := <-states:
		require.Equal(t, 2, next.Len())
	case <-time.After(waitTimeout):
		t.Fatal("no state update")
	}
}

func TestController_UnsubscribeClosesStream(t *testing.T) {
	ctrl := NewController(nil)
	actions, stop := ctrl.ObserveActions()
	stop()

	select {
	case _, ok := <-actions:
		require.False(t, ok)
	case <-time.After(waitTimeout):
		t.Fatal("stream not closed")
	}
}

func TestController_RunTwiceFails(t *testing.T) {
	ctrl := NewController(nil)
	runController(t, ctrl)

	require.Eventually(t, ctrl.running.Load, waitTimeout, time.Millisecond)
	require.ErrorIs(t, ctrl.Run(context.Background()), ErrAlreadyRunning)
}

func TestController_EpicFailureStopsController(t *testing.T) {
	boom := errors.New("boom")
	ctrl := NewController(nil)
	ctrl.Register(failingEpic{err: boom}, &watchEpic{seen: make(chan Update, 1)})

	actions, _ := ctrl.ObserveActions()

	err := ctrl.Run(context.Background())
	require.ErrorIs(t, err, boom)

	// Streams end and later dispatches are dropped.
	for range actions {
	}
	ctrl.Dispatch(domain.DiscoverMoreNodesAction{})
	_, stop := ctrl.ObserveActions()
	stop()
}
