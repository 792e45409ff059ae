package state_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/internal/testutil"
	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/storage"
)

func newTree(t *testing.T) *state.Tree {
	t.Helper()
	backend := storage.NewKVAdapter(testutil.NewMemDB())
	return state.NewTree(state.NewKVNodeStore(backend))
}

func TestInsertGetDelete(t *testing.T) {
	tree := newTree(t)
	require.NoError(t, tree.Insert([]byte("a"), []byte("1")))
	require.NoError(t, tree.Insert([]byte("b"), []byte("2")))
	require.NoError(t, tree.Insert([]byte("c"), []byte("3")))

	v, ok, err := tree.Get([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)

	removed, err := tree.Delete([]byte("b"))
	require.NoError(t, err)
	require.True(t, removed)

	_, ok, err = tree.Get([]byte("b"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCommitVersionIsReloadable(t *testing.T) {
	backend := storage.NewKVAdapter(testutil.NewMemDB())
	store := state.NewKVNodeStore(backend)
	tree := state.NewTree(store)

	require.NoError(t, tree.Insert([]byte("x"), []byte("1")))
	require.NoError(t, tree.Insert([]byte("y"), []byte("2")))
	root, version, err := tree.CommitVersion()
	require.NoError(t, err)
	require.Equal(t, uint64(1), version)

	reloaded, err := state.LoadAt(store, root, version)
	require.NoError(t, err)
	v, ok, err := reloaded.Get([]byte("x"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestPrefixScan(t *testing.T) {
	tree := newTree(t)
	require.NoError(t, tree.Insert([]byte("account::1"), []byte("a")))
	require.NoError(t, tree.Insert([]byte("account::2"), []byte("b")))
	require.NoError(t, tree.Insert([]byte("other::1"), []byte("c")))

	pairs, err := tree.PrefixScan([]byte("account::"))
	require.NoError(t, err)
	require.Len(t, pairs, 2)
}

func TestRootHashChangesDeterministically(t *testing.T) {
	t1 := newTree(t)
	require.NoError(t, t1.Insert([]byte("a"), []byte("1")))
	require.NoError(t, t1.Insert([]byte("b"), []byte("2")))

	t2 := newTree(t)
	require.NoError(t, t2.Insert([]byte("b"), []byte("2")))
	require.NoError(t, t2.Insert([]byte("a"), []byte("1")))

	require.Equal(t, t1.RootHash(), t2.RootHash(), "root hash must not depend on insertion order")
}
