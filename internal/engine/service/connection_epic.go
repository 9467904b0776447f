package service

import (
	"context"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
)

// ConnectionEpic turns ConnectAction and CloseConnectionAction into calls on
// the connector. Status changes come back from the connector itself.
type ConnectionEpic struct {
	connector Connector
}

func NewConnectionEpic(connector Connector) *ConnectionEpic {
	return &ConnectionEpic{connector: connector}
}

func (e *ConnectionEpic) Name() string { return "connection" }

func (e *ConnectionEpic) Run(ctx context.Context, updates <-chan Update, _ Emitter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			switch a := u.Action.(type) {
			case domain.ConnectAction:
				sub, _ := e.connector.Connect(a.Node)
				sub.Cancel()
			case domain.CloseConnectionAction:
				e.connector.Close(a.Node)
			}
		}
	}
}
