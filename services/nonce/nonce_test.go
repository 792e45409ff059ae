package nonce_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/internal/testutil"
	"github.com/ioi-foundation/kernel/services/nonce"
	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/storage"
	"github.com/ioi-foundation/kernel/types"
)

func TestQueryReturnsZeroForUnknownAccount(t *testing.T) {
	tree := state.NewTree(state.NewKVNodeStore(storage.NewKVAdapter(testutil.NewMemDB())))
	svc := nonce.New()
	store := execution.NewNamespacedStore(tree, svc.Manifest())

	acct := types.AccountId{0x01}
	req, err := json.Marshal(nonce.QueryRequest{AccountID: acct})
	require.NoError(t, err)

	raw, err := svc.Execute(store, "query", req)
	require.NoError(t, err)

	var resp nonce.QueryResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Equal(t, uint64(0), resp.Nonce)
}

func TestQueryReflectsAdvancedNonce(t *testing.T) {
	tree := state.NewTree(state.NewKVNodeStore(storage.NewKVAdapter(testutil.NewMemDB())))
	svc := nonce.New()
	store := execution.NewNamespacedStore(tree, svc.Manifest())

	acct := types.AccountId{0x02}
	require.NoError(t, tree.Insert([]byte(types.AccountNonceKey(acct)), []byte{0, 0, 0, 0, 0, 0, 0, 5}))

	req, err := json.Marshal(nonce.QueryRequest{AccountID: acct})
	require.NoError(t, err)
	raw, err := svc.Execute(store, "query", req)
	require.NoError(t, err)

	var resp nonce.QueryResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Equal(t, uint64(5), resp.Nonce)
}
