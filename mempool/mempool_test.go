package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/types"
)

type fixedNonces struct{ n uint64 }

func (f fixedNonces) AccountNonce(types.AccountId) (uint64, error) { return f.n, nil }

func settlementTx(acct types.AccountId, nonce uint64) types.Transaction {
	return types.Transaction{
		Kind: types.TxSettlement,
		Header: &types.SignHeader{
			AccountID: acct,
			Nonce:     nonce,
			ChainID:   "test",
			TxVersion: 1,
		},
		ServiceID: "settlement",
		Method:    "transfer",
		Payload:   []byte("payload"),
		Proof: &types.SignatureProof{
			Suite:     types.SuiteEd25519,
			PublicKey: []byte("pub"),
			Signature: []byte("sig"),
		},
	}
}

func TestSubmitOutOfOrderPromotesOnGapClose(t *testing.T) {
	var acct types.AccountId
	acct[0] = 1
	m := New(fixedNonces{n: 0})

	require.NoError(t, m.Submit(settlementTx(acct, 1)))
	require.Equal(t, 0, len(m.ReadyTransactions(0)), "nonce 1 is future while pendingNonce is 0")

	require.NoError(t, m.Submit(settlementTx(acct, 0)))
	ready := m.ReadyTransactions(0)
	require.Len(t, ready, 2)
	require.Equal(t, uint64(0), ready[0].Header.Nonce)
	require.Equal(t, uint64(1), ready[1].Header.Nonce)
}

func TestSubmitRejectsStaleNonce(t *testing.T) {
	var acct types.AccountId
	acct[0] = 2
	m := New(fixedNonces{n: 5})
	err := m.Submit(settlementTx(acct, 3))
	require.Error(t, err)
}

func TestAdvanceNoncesDropsExecuted(t *testing.T) {
	var acct types.AccountId
	acct[0] = 3
	m := New(fixedNonces{n: 0})
	require.NoError(t, m.Submit(settlementTx(acct, 0)))
	require.NoError(t, m.Submit(settlementTx(acct, 1)))
	require.Equal(t, 2, m.Count())

	m.AdvanceNonces([]NonceUpdate{{AccountID: acct, NewNonce: 1}})
	require.Equal(t, 1, m.Count())
	ready := m.ReadyTransactions(0)
	require.Len(t, ready, 1)
	require.Equal(t, uint64(1), ready[0].Header.Nonce)
}

func TestSemanticTransactionsFIFO(t *testing.T) {
	m := New(fixedNonces{n: 0})
	tx1 := types.Transaction{Kind: types.TxSemantic, ServiceID: "ctxstore", Method: "index", Payload: []byte("a")}
	tx2 := types.Transaction{Kind: types.TxSemantic, ServiceID: "ctxstore", Method: "index", Payload: []byte("b")}
	require.NoError(t, m.Submit(tx1))
	require.NoError(t, m.Submit(tx2))
	ready := m.ReadyTransactions(0)
	require.Len(t, ready, 2)
	require.Equal(t, tx1.Hash(), ready[0].Hash())
	require.Equal(t, tx2.Hash(), ready[1].Hash())
}
