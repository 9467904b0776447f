package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/ledger-netengine/internal/engine/port"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
)

const (
	jsonrpcVersion     = "2.0"
	notificationBuffer = 16
)

var ErrClosed = errors.New("connection closed")

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) == 0 {
		return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, string(e.Data))
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// message is anything the node sends: a response carries an id, a
// notification carries a method.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type routeKey struct {
	method       string
	subscriberID string
}

type route struct {
	ch   chan json.RawMessage
	done chan struct{}
	once sync.Once
}

func (r *route) stop() {
	r.once.Do(func() { close(r.done) })
}

// Conn is one websocket connection to a node. A single reader goroutine
// dispatches responses to callers and notifications to routes; the reader is
// the only sender on route channels and closes them when the connection ends.
type Conn struct {
	ws  *websocket.Conn
	cfg Config

	writeMu sync.Mutex
	nextID  *atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan message
	routes  map[routeKey]*route

	done      chan struct{}
	err       error
	closeOnce sync.Once
}

var _ port.Conn = (*Conn)(nil)

func newConn(ws *websocket.Conn, cfg Config) *Conn {
	c := &Conn{
		ws:      ws,
		cfg:     cfg,
		nextID:  atomic.NewUint64(0),
		pending: make(map[uint64]chan message),
		routes:  make(map[routeKey]*route),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	go c.keepalive()
	return c
}

func (c *Conn) Call(ctx context.Context, method string, params any, result any) error {
	id := c.nextID.Inc()
	reply := make(chan message, 1)

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return c.closedErr()
	default:
	}
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.closedErr()
	case msg := <-reply:
		if msg.Error != nil {
			return msg.Error
		}
		if result == nil || len(msg.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

func (c *Conn) Notifications(method, subscriberID string) (<-chan json.RawMessage, func()) {
	key := routeKey{method: method, subscriberID: subscriberID}
	r := &route{ch: make(chan json.RawMessage, notificationBuffer), done: make(chan struct{})}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		close(r.ch)
		return r.ch, func() {}
	default:
	}
	if old, ok := c.routes[key]; ok {
		old.stop()
	}
	c.routes[key] = r
	c.mu.Unlock()

	return r.ch, func() {
		r.stop()
		c.mu.Lock()
		if c.routes[key] == r {
			delete(c.routes, key)
		}
		c.mu.Unlock()
	}
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the connection. Err stays nil afterwards.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteWait))
	c.writeMu.Unlock()

	c.finish(nil)
	return nil
}

func (c *Conn) finish(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		close(c.done)
		c.mu.Unlock()
		_ = c.ws.Close()
	})
}

func (c *Conn) closedErr() error {
	if err := c.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return ErrClosed
}

func (c *Conn) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func (c *Conn) readLoop() {
	defer c.closeRoutes()

	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnw("Dropping malformed rpc message", "error", err.Error())
			continue
		}

		switch {
		case msg.Method != "":
			c.deliverNotification(msg)
		case msg.ID != nil:
			c.deliverResponse(msg)
		}
	}
}

func (c *Conn) deliverResponse(msg message) {
	c.mu.Lock()
	reply, ok := c.pending[*msg.ID]
	c.mu.Unlock()
	if !ok {
		logger.Debugw("Dropping response for unknown request", "id", *msg.ID)
		return
	}
	select {
	case reply <- msg:
	default:
		logger.Warnw("Dropping duplicate response", "id", *msg.ID)
	}
}

func (c *Conn) deliverNotification(msg message) {
	var head struct {
		SubscriberID string `json:"subscriberId"`
	}
	if err := json.Unmarshal(msg.Params, &head); err != nil {
		logger.Warnw("Dropping notification without subscriber", "method", msg.Method, "error", err.Error())
		return
	}

	c.mu.Lock()
	r, ok := c.routes[routeKey{method: msg.Method, subscriberID: head.SubscriberID}]
	c.mu.Unlock()
	if !ok {
		logger.Debugw("Dropping unrouted notification", "method", msg.Method, "subscriber_id", head.SubscriberID)
		return
	}

	select {
	case r.ch <- msg.Params:
	case <-r.done:
	case <-c.done:
	}
}

func (c *Conn) closeRoutes() {
	c.mu.Lock()
	routes := c.routes
	c.routes = make(map[routeKey]*route)
	c.mu.Unlock()

	for _, r := range routes {
		close(r.ch)
	}
}

func (c *Conn) keepalive() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
				var closeErr *websocket.CloseError
				if !errors.As(err, &closeErr) {
					err = fmt.Errorf("send ping: %w", err)
				}
				c.finish(err)
				return
			}
		}
	}
}
