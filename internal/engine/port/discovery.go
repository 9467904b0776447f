package port

import (
	"context"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
)

//go:generate mockgen -destination=../service/mocks/discovery_mock.go -package=mocks -source=discovery.go

// NodeDiscovery supplies candidate peers.
type NodeDiscovery interface {
	// LoadNodes returns the currently known candidates.
	LoadNodes(ctx context.Context) ([]domain.DiscoveredNode, error)
}
