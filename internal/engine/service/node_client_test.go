package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
	"github.com/stretchr/testify/require"
)

func TestNodeClient_InfoCalls(t *testing.T) {
	conn := newFakeConn()
	conn.result[MethodGetInfo] = map[string]any{"shardSpace": map[string]any{"low": -5, "high": 5}}
	conn.result[MethodGetUniverse] = map[string]any{"magic": 42, "name": "localnet"}
	client := NewNodeClient(staticLookup{nodeA: conn})

	info, err := client.GetNodeInfo(context.Background(), nodeA)
	require.NoError(t, err)
	require.Equal(t, shard.Range{Low: -5, High: 5}, info.ShardSpace)

	cfg, err := client.GetNetworkConfig(context.Background(), nodeA)
	require.NoError(t, err)
	require.Equal(t, testUniverse, cfg)

	require.Equal(t, []string{MethodGetInfo, MethodGetUniverse}, conn.methods())
}

func TestNodeClient_RejectsInvalidShardSpace(t *testing.T) {
	conn := newFakeConn()
	conn.result[MethodGetInfo] = map[string]any{"shardSpace": map[string]any{"low": 5, "high": -5}}
	client := NewNodeClient(staticLookup{nodeA: conn})

	_, err := client.GetNodeInfo(context.Background(), nodeA)
	require.Error(t, err)
}

func TestNodeClient_NotConnected(t *testing.T) {
	client := NewNodeClient(staticLookup{})

	_, err := client.GetNodeInfo(context.Background(), nodeA)
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = client.SubscribeAtomStatus(context.Background(), nodeA, "atom", "sub")
	require.ErrorIs(t, err, ErrNotConnected)

	require.ErrorIs(t, client.SubmitAtom(context.Background(), nodeA, domain.Atom{}), ErrNotConnected)
}

func TestNodeClient_StatusSubscriptionLifecycle(t *testing.T) {
	conn := newFakeConn()
	client := NewNodeClient(staticLookup{nodeA: conn})

	events, err := client.SubscribeAtomStatus(context.Background(), nodeA, "atom-1", "sub-1")
	require.NoError(t, err)
	require.NoError(t, client.SubmitAtom(context.Background(), nodeA, domain.Atom{Payload: []byte("x")}))

	conn.notify(t, NotificationAtomStatus, "sub-1", map[string]any{
		"subscriberId": "sub-1",
		"status":       "CONFLICT_LOSER",
		"data":         map[string]any{"pointerToIssue": "/particles/0"},
	})

	select {
	case ev := <-events:
		require.Equal(t, domain.AtomConflictLoser, ev.Status)
		require.JSONEq(t, `{"pointerToIssue":"/particles/0"}`, string(ev.Reason))
	case <-time.After(waitTimeout):
		t.Fatal("no status event")
	}

	require.NoError(t, client.CancelAtomStatus(context.Background(), nodeA, "sub-1"))
	select {
	case _, ok := <-events:
		require.False(t, ok)
	case <-time.After(waitTimeout):
		t.Fatal("status stream not closed after cancel")
	}

	require.Equal(t, []string{MethodSubscribeAtomStatus, MethodSubmitAtom, MethodCancelAtomStatus}, conn.methods())
	require.Equal(t, subscribeParams{AtomID: "atom-1", SubscriberID: "sub-1"}, conn.params[0])
	require.Equal(t, cancelParams{SubscriberID: "sub-1"}, conn.params[2])
}

func TestNodeClient_SubscribeFailureReleasesRoute(t *testing.T) {
	conn := newFakeConn()
	conn.errs[MethodSubscribeAtomStatus] = errors.New("unknown atom")
	client := NewNodeClient(staticLookup{nodeA: conn})

	_, err := client.SubscribeAtomStatus(context.Background(), nodeA, "atom-1", "sub-1")
	require.Error(t, err)
	require.Empty(t, client.streams)
}
