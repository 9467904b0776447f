package port

import (
	"context"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
)

//go:generate mockgen -destination=../service/mocks/service_mock.go -package=mocks -source=service.go

// NetworkService is the caller-facing surface of the engine.
type NetworkService interface {
	// Submit sends an atom and waits for its terminal outcome.
	Submit(ctx context.Context, atom domain.Atom, opts domain.SubmitOptions) (domain.SubmitResult, error)

	// FindNode resolves a node able to serve the given shards.
	FindNode(ctx context.Context, shards shard.Set) (domain.Node, error)

	// Nodes returns the current network state.
	Nodes() []domain.NodeState
}
