package port

import (
	"context"
	"encoding/json"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
)

//go:generate mockgen -destination=../service/mocks/transport_mock.go -package=mocks -source=transport.go

// Transport opens duplex connections to nodes. The wire encoding is the
// implementation's concern.
type Transport interface {
	// Dial opens a connection, blocking until it is usable or fails.
	Dial(ctx context.Context, node domain.Node) (Conn, error)
}

// Conn is one live duplex connection to a node.
type Conn interface {
	// Call performs a request/response exchange and decodes the result into
	// result when it is non-nil.
	Call(ctx context.Context, method string, params any, result any) error

	// Notifications routes server-pushed notifications of method whose
	// subscriberId equals subscriberID to the returned channel until stop is
	// called or the connection ends.
	Notifications(method, subscriberID string) (ch <-chan json.RawMessage, stop func())

	// Done is closed when the connection has ended.
	Done() <-chan struct{}

	// Err is the reason the connection ended, nil after a local Close.
	Err() error

	Close() error
}
