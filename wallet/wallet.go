// Package wallet holds a validator or client key pair and builds signed
// kernel transactions from it.
package wallet

import (
	"encoding/json"
	"fmt"

	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/services/settlement"
	"github.com/ioi-foundation/kernel/types"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address (first 20 bytes of SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// AccountID returns the AccountId this wallet's key derives, the identity
// every signed transaction's SignHeader carries.
func (w *Wallet) AccountID() types.AccountId {
	return types.DeriveAccountId(types.SuiteEd25519, w.pub)
}

// NewTx builds and signs a transaction against serviceID.method. nonce must
// match the account's current on-chain nonce (see execution.NonceDecorator).
func (w *Wallet) NewTx(chainID types.ChainId, nonce uint64, serviceID, method string, payload any) (*types.Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wallet: encode payload: %w", err)
	}
	tx := &types.Transaction{
		Kind: types.TxApplication,
		Header: &types.SignHeader{
			AccountID: w.AccountID(),
			Nonce:     nonce,
			ChainID:   chainID,
			TxVersion: 1,
		},
		ServiceID: serviceID,
		Method:    method,
		Payload:   raw,
	}
	sig := w.priv.Sign(tx.SigningBytes())
	tx.Proof = &types.SignatureProof{
		Suite:     types.SuiteEd25519,
		PublicKey: w.pub,
		Signature: sig,
	}
	return tx, nil
}

// Transfer builds a signed settlement.transfer transaction moving amount
// from this wallet's account to to.
func (w *Wallet) Transfer(chainID types.ChainId, to types.AccountId, amount, nonce uint64) (*types.Transaction, error) {
	return w.NewTx(chainID, nonce, settlement.ServiceID, "transfer", settlement.TransferRequest{
		From:   w.AccountID(),
		To:     to,
		Amount: amount,
	})
}
