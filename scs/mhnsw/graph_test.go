package mhnsw_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/scs/mhnsw"
)

func TestInsertAndSearchReturnsNearest(t *testing.T) {
	g := mhnsw.New(4, 1)
	g.Insert(mhnsw.Vector{0, 0}, []byte("origin"))
	g.Insert(mhnsw.Vector{10, 10}, []byte("far"))
	g.Insert(mhnsw.Vector{0.1, 0.1}, []byte("near-origin"))

	res, err := g.Search(mhnsw.Vector{0, 0})
	require.NoError(t, err)
	require.Contains(t, []string{"origin", "near-origin"}, string(res.Payload))
}

func TestSearchWithProofBindsEntryPointHash(t *testing.T) {
	g := mhnsw.New(4, 2)
	g.Insert(mhnsw.Vector{1, 1}, []byte("a"))
	g.Insert(mhnsw.Vector{2, 2}, []byte("b"))

	_, proof, err := g.SearchWithProof(mhnsw.Vector{1.5, 1.5})
	require.NoError(t, err)
	require.NotEqual(t, [32]byte{}, proof.EntryPointHash)
}

func TestDeleteRemovesNodeFromRoot(t *testing.T) {
	g := mhnsw.New(4, 3)
	id := g.Insert(mhnsw.Vector{5, 5}, []byte("solo"))
	rootBefore := g.Root()

	require.NoError(t, g.Delete(id))
	require.Equal(t, 0, g.Len())
	require.NotEqual(t, rootBefore, g.Root())
}

func TestDeleteUnknownNodeErrors(t *testing.T) {
	g := mhnsw.New(4, 4)
	require.Error(t, g.Delete(999))
}

func TestRootIsDeterministicAcrossEquivalentGraphs(t *testing.T) {
	g1 := mhnsw.New(4, 9)
	g1.Insert(mhnsw.Vector{1, 2}, []byte("x"))
	g1.Insert(mhnsw.Vector{3, 4}, []byte("y"))

	g2 := mhnsw.New(4, 9)
	g2.Insert(mhnsw.Vector{1, 2}, []byte("x"))
	g2.Insert(mhnsw.Vector{3, 4}, []byte("y"))

	require.Equal(t, g1.Root(), g2.Root())
}
