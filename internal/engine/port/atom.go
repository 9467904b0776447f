package port

import (
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
)

//go:generate mockgen -destination=../service/mocks/atom_mock.go -package=mocks -source=atom.go

// AtomInspector derives the identifier and required shards of an atom from
// its canonical encoding.
type AtomInspector interface {
	Identifier(atom domain.Atom) (domain.AtomID, error)
	RequiredShards(atom domain.Atom) (shard.Set, error)
}

// IDGenerator produces unique ids for correlation and status subscriptions.
type IDGenerator interface {
	NextString() (string, error)
}
