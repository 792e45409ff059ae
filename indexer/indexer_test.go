package indexer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/events"
	"github.com/ioi-foundation/kernel/indexer"
	"github.com/ioi-foundation/kernel/internal/testutil"
	"github.com/ioi-foundation/kernel/types"
)

func TestIndexerRecordsTransactionsByAccount(t *testing.T) {
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter)

	emitter.Publish(types.KernelEvent{
		Kind:   types.EventTransactionExecuted,
		Height: 1,
		Data: map[string]any{
			"tx_hash":    "aabbcc",
			"account_id": "acct-1",
			"service_id": "settlement",
			"method":     "transfer",
		},
	})

	txs, err := idx.GetTransactionsByAccount("acct-1")
	require.NoError(t, err)
	require.Equal(t, []string{"aabbcc"}, txs)
}

func TestIndexerIgnoresSemanticTransactions(t *testing.T) {
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter)

	emitter.Publish(types.KernelEvent{
		Kind:   types.EventTransactionExecuted,
		Height: 1,
		Data: map[string]any{
			"tx_hash":    "",
			"account_id": "",
			"service_id": "timing",
			"method":     "tick",
		},
	})

	txs, err := idx.GetTransactionsByAccount("")
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestIndexerUnknownAccountReturnsEmptyList(t *testing.T) {
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter)

	txs, err := idx.GetTransactionsByAccount("nobody")
	require.NoError(t, err)
	require.Empty(t, txs)
}
