package rpc_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/events"
	"github.com/ioi-foundation/kernel/firewall"
	"github.com/ioi-foundation/kernel/indexer"
	"github.com/ioi-foundation/kernel/internal/testutil"
	"github.com/ioi-foundation/kernel/mempool"
	"github.com/ioi-foundation/kernel/rpc"
	"github.com/ioi-foundation/kernel/services/settlement"
	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/storage"
	"github.com/ioi-foundation/kernel/types"
)

type fixedNonces struct{}

func (fixedNonces) AccountNonce(types.AccountId) (uint64, error) { return 0, nil }

type allowAllLookup struct{}

func (allowAllLookup) AccountNonce(types.AccountId) (uint64, bool, error) { return 0, true, nil }

func newTestHandler(t *testing.T) (*rpc.Handler, *storage.BlockStore) {
	t.Helper()
	handler, blocks, _, _ := newTestHandlerWithState(t)
	return handler, blocks
}

func newTestHandlerWithState(t *testing.T) (*rpc.Handler, *storage.BlockStore, *state.Tree, *state.VersionIndex) {
	t.Helper()
	db := testutil.NewMemDB()
	backend := storage.NewKVAdapter(db)
	nodeStore := state.NewKVNodeStore(backend)
	versions := state.NewVersionIndex(backend)
	tree := state.NewTree(nodeStore)
	blocks := storage.NewBlockStore(db)
	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	pool := mempool.New(fixedNonces{})
	policy := firewall.NewPolicyEngine(firewall.Policy{Defaults: firewall.AllowAll})
	scrubber := firewall.NewScrubber(nil)
	fw := firewall.New(allowAllLookup{}, policy, scrubber, emitter, func() int64 { return 0 }, settlement.ServiceID)
	handler := rpc.NewHandler(blocks, tree, nodeStore, versions, pool, fw, idx, "test-chain")
	return handler, blocks, tree, versions
}

func signedTransfer(t *testing.T, chainID types.ChainId) *types.Transaction {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	from := types.DeriveAccountId(types.SuiteEd25519, pub)
	to := types.DeriveAccountId(types.SuiteEd25519, pub)

	payload, err := json.Marshal(settlement.TransferRequest{From: from, To: to, Amount: 10})
	require.NoError(t, err)

	tx := &types.Transaction{
		Kind: types.TxApplication,
		Header: &types.SignHeader{
			AccountID: from,
			Nonce:     0,
			ChainID:   chainID,
			TxVersion: 1,
		},
		ServiceID: settlement.ServiceID,
		Method:    "transfer",
		Payload:   payload,
	}
	sig := priv.Sign(tx.SigningBytes())
	tx.Proof = &types.SignatureProof{Suite: types.SuiteEd25519, PublicKey: pub, Signature: sig}
	return tx
}

func TestGetChainHeightReturnsTreeVersion(t *testing.T) {
	handler, _ := newTestHandler(t)
	resp := handler.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 1, Method: "getChainHeight"})
	require.Nil(t, resp.Error)
	require.EqualValues(t, 0, resp.Result)
}

func TestSendTxAcceptsValidSignedTransaction(t *testing.T) {
	handler, _ := newTestHandler(t)
	tx := signedTransfer(t, "test-chain")
	raw, err := json.Marshal(tx)
	require.NoError(t, err)

	resp := handler.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 1, Method: "sendTx", Params: raw})
	require.Nil(t, resp.Error)

	sizeResp := handler.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 2, Method: "getMempoolSize"})
	require.Nil(t, sizeResp.Error)
	require.EqualValues(t, 1, sizeResp.Result)
}

func TestSendTxRejectsWrongChainID(t *testing.T) {
	handler, _ := newTestHandler(t)
	tx := signedTransfer(t, "other-chain")
	raw, err := json.Marshal(tx)
	require.NoError(t, err)

	resp := handler.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 1, Method: "sendTx", Params: raw})
	require.NotNil(t, resp.Error)
	require.Equal(t, rpc.CodeInvalidParams, resp.Error.Code)
}

func TestDispatchUnknownMethod(t *testing.T) {
	handler, _ := newTestHandler(t)
	resp := handler.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 1, Method: "doesNotExist"})
	require.NotNil(t, resp.Error)
	require.Equal(t, rpc.CodeMethodNotFound, resp.Error.Code)
}

func TestGetBlockWithNoChainReturnsError(t *testing.T) {
	handler, _ := newTestHandler(t)
	resp := handler.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 1, Method: "getBlock", Params: json.RawMessage(`{}`)})
	require.NotNil(t, resp.Error)
}

func TestQueryStateReportsAbsentKey(t *testing.T) {
	handler, _ := newTestHandler(t)
	params, err := json.Marshal(map[string]string{"key": "balance::does-not-exist"})
	require.NoError(t, err)
	resp := handler.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 1, Method: "queryState", Params: params})
	require.Nil(t, resp.Error)
	m, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	require.Equal(t, false, m["found"])
	require.NotNil(t, m["proof"])
}

func TestQueryStateServesHistoricalHeightAgainstEarlierRoot(t *testing.T) {
	handler, _, tree, versions := newTestHandlerWithState(t)

	require.NoError(t, tree.Insert([]byte("balance::alice"), []byte("1")))
	root1, v1, err := tree.CommitVersion()
	require.NoError(t, err)
	require.NoError(t, versions.Record(v1, root1))

	require.NoError(t, tree.Insert([]byte("balance::alice"), []byte("2")))
	_, v2, err := tree.CommitVersion()
	require.NoError(t, err)
	require.NoError(t, versions.Record(v2, tree.RootHash()))

	params, err := json.Marshal(map[string]any{"key": "balance::alice", "height": v1})
	require.NoError(t, err)
	resp := handler.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 1, Method: "queryState", Params: params})
	require.Nil(t, resp.Error)
	m, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, m["found"])
	require.Equal(t, []byte("1"), m["value"])

	current := handler.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 2, Method: "queryState",
		Params: json.RawMessage(`{"key":"balance::alice"}`)})
	require.Nil(t, current.Error)
	cm := current.Result.(map[string]any)
	require.Equal(t, []byte("2"), cm["value"])
}
