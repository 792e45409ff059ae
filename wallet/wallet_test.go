package wallet_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/types"
	"github.com/ioi-foundation/kernel/wallet"
)

func TestTransferBuildsVerifiableSignature(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)

	to, err := wallet.Generate()
	require.NoError(t, err)

	tx, err := w.Transfer(types.ChainId("test-chain"), to.AccountID(), 100, 0)
	require.NoError(t, err)
	require.NoError(t, tx.VerifySignature())
	require.Equal(t, w.AccountID(), tx.Header.AccountID)
}

func TestNewTxEncodesArbitraryPayload(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)

	tx, err := w.NewTx(types.ChainId("test-chain"), 3, "identity", "register", map[string]string{"label": "validator-a"})
	require.NoError(t, err)
	require.NoError(t, tx.VerifySignature())
	require.Equal(t, uint64(3), tx.Header.Nonce)
	require.JSONEq(t, `{"label":"validator-a"}`, string(tx.Payload))
}
