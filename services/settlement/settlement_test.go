package settlement

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/internal/testutil"
	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/storage"
	"github.com/ioi-foundation/kernel/types"
)

func newTestStore(t *testing.T, svc *Service) (*state.Tree, *execution.NamespacedStore) {
	t.Helper()
	backend := storage.NewKVAdapter(testutil.NewMemDB())
	tree := state.NewTree(state.NewKVNodeStore(backend))
	return tree, execution.NewNamespacedStore(tree, svc.Manifest())
}

func TestTransferMovesBalance(t *testing.T) {
	svc := New()
	tree, store := newTestStore(t, svc)

	var from, to types.AccountId
	from[0], to[0] = 1, 2
	require.NoError(t, svc.writeBalance(store, from, 100))

	req, _ := json.Marshal(TransferRequest{From: from, To: to, Amount: 40})
	_, err := svc.Execute(store, "transfer", req)
	require.NoError(t, err)

	fromBal, _ := svc.readBalance(store, from)
	toBal, _ := svc.readBalance(store, to)
	require.Equal(t, uint64(60), fromBal)
	require.Equal(t, uint64(40), toBal)
	_ = tree
}

func TestTransferRejectsInsufficientBalance(t *testing.T) {
	svc := New()
	_, store := newTestStore(t, svc)

	var from, to types.AccountId
	from[0], to[0] = 1, 2
	req, _ := json.Marshal(TransferRequest{From: from, To: to, Amount: 5})
	_, err := svc.Execute(store, "transfer", req)
	require.Error(t, err)
}
