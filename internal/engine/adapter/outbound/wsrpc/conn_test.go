package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 3 * time.Second

type rpcRequest struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// fakeNode answers a handful of methods the way a ledger node would.
func fakeNode(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultPath {
			http.NotFound(w, r)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		for {
			var req rpcRequest
			if err := ws.ReadJSON(&req); err != nil {
				return
			}

			switch req.Method {
			case "Network.getInfo":
				_ = ws.WriteJSON(map[string]any{
					"jsonrpc": "2.0",
					"id":      req.ID,
					"result":  map[string]any{"shardSpace": map[string]any{"low": -1, "high": 1}},
				})
			case "Atoms.subscribeAtomStatusNotifications":
				var p struct {
					SubscriberID string `json:"subscriberId"`
				}
				_ = json.Unmarshal(req.Params, &p)
				_ = ws.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{}})
				_ = ws.WriteJSON(map[string]any{
					"jsonrpc": "2.0",
					"method":  "Atoms.nextStatusEvent",
					"params":  map[string]any{"subscriberId": "someone-else", "status": "STORED"},
				})
				_ = ws.WriteJSON(map[string]any{
					"jsonrpc": "2.0",
					"method":  "Atoms.nextStatusEvent",
					"params":  map[string]any{"subscriberId": p.SubscriberID, "status": "STORED"},
				})
			case "Test.hang":
			case "Test.drop":
				_ = ws.UnderlyingConn().Close()
				return
			default:
				_ = ws.WriteJSON(map[string]any{
					"jsonrpc": "2.0",
					"id":      req.ID,
					"error":   map[string]any{"code": -32601, "message": "method not found"},
				})
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func nodeOf(t *testing.T, srv *httptest.Server) domain.Node {
	t.Helper()
	node, err := domain.ParseNode("ws://" + strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	return node
}

func dial(t *testing.T, srv *httptest.Server) *Conn {
	t.Helper()
	conn, err := NewTransport(Config{}).Dial(context.Background(), nodeOf(t, srv))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn.(*Conn)
}

func TestConn_CallDecodesResult(t *testing.T) {
	conn := dial(t, fakeNode(t))

	var info domain.NodeInfo
	require.NoError(t, conn.Call(context.Background(), "Network.getInfo", nil, &info))
	require.EqualValues(t, -1, info.ShardSpace.Low)
	require.EqualValues(t, 1, info.ShardSpace.High)
}

func TestConn_CallReturnsRPCError(t *testing.T) {
	conn := dial(t, fakeNode(t))

	err := conn.Call(context.Background(), "Nope.nothing", nil, nil)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	require.Equal(t, -32601, rpcErr.Code)
}

func TestConn_CallHonoursContext(t *testing.T) {
	conn := dial(t, fakeNode(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, conn.Call(ctx, "Test.hang", nil, nil), context.DeadlineExceeded)

	// The connection is still usable afterwards.
	require.NoError(t, conn.Call(context.Background(), "Network.getInfo", nil, nil))
}

func TestConn_NotificationsAreRoutedBySubscriber(t *testing.T) {
	conn := dial(t, fakeNode(t))

	ch, stop := conn.Notifications("Atoms.nextStatusEvent", "sub-1")
	defer stop()
	require.NoError(t, conn.Call(context.Background(), "Atoms.subscribeAtomStatusNotifications",
		map[string]string{"atomId": "a", "subscriberId": "sub-1"}, nil))

	select {
	case raw := <-ch:
		require.JSONEq(t, `{"subscriberId":"sub-1","status":"STORED"}`, string(raw))
	case <-time.After(waitTimeout):
		t.Fatal("notification not delivered")
	}
}

func TestConn_LocalClose(t *testing.T) {
	conn := dial(t, fakeNode(t))
	ch, _ := conn.Notifications("Atoms.nextStatusEvent", "sub-1")

	require.NoError(t, conn.Close())

	select {
	case <-conn.Done():
	case <-time.After(waitTimeout):
		t.Fatal("Done not closed")
	}
	require.NoError(t, conn.Err())
	require.ErrorIs(t, conn.Call(context.Background(), "Network.getInfo", nil, nil), ErrClosed)

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(waitTimeout):
		t.Fatal("notification channel not closed")
	}
}

func TestConn_RemoteDropIsAnError(t *testing.T) {
	conn := dial(t, fakeNode(t))

	err := conn.Call(context.Background(), "Test.drop", nil, nil)
	require.ErrorIs(t, err, ErrClosed)

	select {
	case <-conn.Done():
	case <-time.After(waitTimeout):
		t.Fatal("Done not closed")
	}
	require.Error(t, conn.Err())
}

func TestTransport_DialFailure(t *testing.T) {
	srv := fakeNode(t)
	node := nodeOf(t, srv)
	srv.Close()

	_, err := NewTransport(Config{HandshakeTimeout: time.Second}).Dial(context.Background(), node)
	require.Error(t, err)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{PingPeriod: time.Minute, PongWait: 30 * time.Second}.withDefaults()
	require.Equal(t, DefaultPath, cfg.Path)
	require.Equal(t, 27*time.Second, cfg.PingPeriod)
	require.Equal(t, DefaultWriteWait, cfg.WriteWait)
}
