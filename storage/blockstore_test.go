package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/internal/testutil"
	"github.com/ioi-foundation/kernel/storage"
	"github.com/ioi-foundation/kernel/types"
)

func TestBlockStoreRoundTrip(t *testing.T) {
	db := testutil.NewMemDB()
	store := storage.NewBlockStore(db)

	block := &types.Block{Header: types.BlockHeader{Height: 7}}
	require.NoError(t, store.PutBlock(block))
	require.NoError(t, store.SetTip(block.Header.HashHex()))

	tip, err := store.GetTip()
	require.NoError(t, err)
	require.Equal(t, block.Header.HashHex(), tip)

	got, err := store.GetBlockByHeight(7)
	require.NoError(t, err)
	require.Equal(t, block.Header.Height, got.Header.Height)
}

func TestBlockStoreGetTipEmptyChain(t *testing.T) {
	store := storage.NewBlockStore(testutil.NewMemDB())
	tip, err := store.GetTip()
	require.NoError(t, err)
	require.Equal(t, "", tip)
}
