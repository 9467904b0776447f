package wsrpc

import (
	"context"
	"fmt"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/port"
	"github.com/gorilla/websocket"
)

const (
	DefaultPath             = "/rpc"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPongWait         = 60 * time.Second
	DefaultWriteWait        = 10 * time.Second
)

type Config struct {
	// Path is the RPC endpoint on every node.
	Path             string
	HandshakeTimeout time.Duration
	// PingPeriod must be shorter than PongWait.
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	return c
}

// Transport dials nodes over websocket and speaks JSON-RPC 2.0 on the
// resulting connection.
type Transport struct {
	cfg    Config
	dialer *websocket.Dialer
}

var _ port.Transport = (*Transport)(nil)

func NewTransport(cfg Config) *Transport {
	cfg = cfg.withDefaults()
	return &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

func (t *Transport) Dial(ctx context.Context, node domain.Node) (port.Conn, error) {
	url := node.URL(t.cfg.Path)
	ws, resp, err := t.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	logger.Debugw("Websocket connection established", "node", node.String())
	return newConn(ws, t.cfg), nil
}
