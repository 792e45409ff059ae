package state_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/state"
)

func TestExistenceProofVerifies(t *testing.T) {
	tree := newTree(t)
	require.NoError(t, tree.Insert([]byte("alpha"), []byte("1")))
	require.NoError(t, tree.Insert([]byte("bravo"), []byte("2")))
	require.NoError(t, tree.Insert([]byte("charlie"), []byte("3")))

	value, exists, proof, _, err := tree.GetWithProof([]byte("bravo"))
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, []byte("2"), value)
	require.NoError(t, proof.Verify(tree.RootHash(), []byte("bravo"), []byte("2")))
}

func TestNonExistenceProofVerifies(t *testing.T) {
	tree := newTree(t)
	require.NoError(t, tree.Insert([]byte("alpha"), []byte("1")))
	require.NoError(t, tree.Insert([]byte("charlie"), []byte("3")))

	_, exists, _, nonExistence, err := tree.GetWithProof([]byte("bravo"))
	require.NoError(t, err)
	require.False(t, exists)
	require.NotNil(t, nonExistence)
	require.NoError(t, nonExistence.Verify(tree.RootHash()))
}

func TestExistenceProofRejectsWrongValue(t *testing.T) {
	tree := newTree(t)
	require.NoError(t, tree.Insert([]byte("alpha"), []byte("1")))

	_, _, proof, _, err := tree.GetWithProof([]byte("alpha"))
	require.NoError(t, err)
	require.Error(t, proof.Verify(tree.RootHash(), []byte("alpha"), []byte("wrong")))
}

func TestICS23Conversion(t *testing.T) {
	tree := newTree(t)
	require.NoError(t, tree.Insert([]byte("alpha"), []byte("1")))
	require.NoError(t, tree.Insert([]byte("bravo"), []byte("2")))

	_, _, proof, _, err := tree.GetWithProof([]byte("alpha"))
	require.NoError(t, err)
	commitmentProof := proof.ToCommitmentProof()
	root := tree.RootHash()
	require.True(t, state.VerifyCommitmentProof(commitmentProof, root[:], []byte("alpha"), []byte("1")))
}
