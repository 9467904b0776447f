package atomcodec

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/port"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
)

var (
	ErrEmptyAtom      = errors.New("atom payload is empty")
	ErrNoDestinations = errors.New("atom has no destinations")
)

// Inspector identifies atoms by the SHA-256 of their signed payload and maps
// every destination address to its shard.
type Inspector struct{}

var _ port.AtomInspector = Inspector{}

func (Inspector) Identifier(atom domain.Atom) (domain.AtomID, error) {
	if len(atom.Payload) == 0 {
		return "", ErrEmptyAtom
	}
	sum := sha256.Sum256(atom.Payload)
	return domain.AtomID(hex.EncodeToString(sum[:])), nil
}

func (Inspector) RequiredShards(atom domain.Atom) (shard.Set, error) {
	if len(atom.Destinations) == 0 {
		return nil, ErrNoDestinations
	}
	set := make(shard.Set, len(atom.Destinations))
	for _, dest := range atom.Destinations {
		set.Add(shard.Of(dest))
	}
	return set, nil
}
