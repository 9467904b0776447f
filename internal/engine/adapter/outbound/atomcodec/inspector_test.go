package atomcodec

import (
	"testing"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
	"github.com/stretchr/testify/require"
)

func TestInspector_Identifier(t *testing.T) {
	var in Inspector

	id, err := in.Identifier(domain.Atom{Payload: []byte("abc")})
	require.NoError(t, err)
	require.Equal(t, domain.AtomID("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"), id)

	_, err = in.Identifier(domain.Atom{})
	require.ErrorIs(t, err, ErrEmptyAtom)
}

func TestInspector_RequiredShards(t *testing.T) {
	var in Inspector
	alice, bob := []byte("alice"), []byte("bob")

	set, err := in.RequiredShards(domain.Atom{Destinations: [][]byte{alice, bob, alice}})
	require.NoError(t, err)
	require.Equal(t, shard.NewSet(shard.Of(alice), shard.Of(bob)), set)

	_, err = in.RequiredShards(domain.Atom{Payload: []byte("x")})
	require.ErrorIs(t, err, ErrNoDestinations)
}
