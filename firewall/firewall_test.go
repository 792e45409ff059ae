package firewall

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/services/agentic"
	"github.com/ioi-foundation/kernel/types"
)

type memAccounts struct{ nonce uint64 }

func (m memAccounts) AccountNonce(types.AccountId) (uint64, bool, error) { return m.nonce, true, nil }

type memEvents struct{ events []types.KernelEvent }

func (m *memEvents) Publish(e types.KernelEvent) { m.events = append(m.events, e) }

func signedTx(t *testing.T, priv crypto.PrivateKey, acct types.AccountId, service, method string) *types.Transaction {
	tx := &types.Transaction{
		Kind:      types.TxApplication,
		Header:    &types.SignHeader{AccountID: acct, Nonce: 0, ChainID: "test", TxVersion: 1},
		ServiceID: service,
		Method:    method,
		Payload:   []byte("contact me at a@b.com"),
	}
	sig := priv.Sign(tx.SigningBytes())
	tx.Proof = &types.SignatureProof{Suite: types.SuiteEd25519, PublicKey: priv.Public(), Signature: sig}
	return tx
}

func TestFirewallAllowsMatchingRule(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	acct := types.DeriveAccountId(types.SuiteEd25519, pub)

	policy := NewPolicyEngine(Policy{Defaults: DenyAll, Rules: []Rule{{ServiceID: "desktop_agent", Method: "start_agent", Verdict: types.VerdictAllow}}})
	sink := &memEvents{}
	fw := New(memAccounts{nonce: 0}, policy, NewScrubber(DefaultPatterns), sink, func() int64 { return 0 }, "desktop_agent")

	tx := signedTx(t, priv, acct, "desktop_agent", "start_agent")
	dec, err := fw.Evaluate(tx)
	require.NoError(t, err)
	require.Equal(t, types.VerdictAllow, dec.Verdict)
	require.Contains(t, string(dec.ScrubbedPayload), "[REDACTED]")
	require.Empty(t, sink.events)
}

func TestFirewallSkipsPolicyForNonAgentClassServices(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	acct := types.DeriveAccountId(types.SuiteEd25519, pub)

	// settlement is not in the agent-class service set, so the firewall's
	// deny-by-default policy never runs against it: the transfer is allowed
	// once signature/authorization/nonce pass, matching spec.md §4.5's
	// "policy evaluation (only for agent-class services)".
	policy := NewPolicyEngine(Policy{Defaults: DenyAll})
	sink := &memEvents{}
	fw := New(memAccounts{nonce: 0}, policy, NewScrubber(nil), sink, func() int64 { return 0 }, "desktop_agent")

	tx := signedTx(t, priv, acct, "settlement", "transfer")
	dec, err := fw.Evaluate(tx)
	require.NoError(t, err)
	require.Equal(t, types.VerdictAllow, dec.Verdict)
	require.Empty(t, sink.events)
}

func TestFirewallBlocksByDefault(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	acct := types.DeriveAccountId(types.SuiteEd25519, pub)

	policy := NewPolicyEngine(Policy{Defaults: DenyAll})
	sink := &memEvents{}
	fw := New(memAccounts{nonce: 0}, policy, NewScrubber(nil), sink, func() int64 { return 0 }, "desktop_agent")

	tx := signedTx(t, priv, acct, "desktop_agent", "take_action")
	dec, err := fw.Evaluate(tx)
	require.NoError(t, err)
	require.Equal(t, types.VerdictBlock, dec.Verdict)
	require.Len(t, sink.events, 1)
}

func TestFirewallInstallsAndClearsSessionPolicy(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	acct := types.DeriveAccountId(types.SuiteEd25519, pub)

	policy := NewPolicyEngine(Policy{Defaults: DenyAll, Rules: []Rule{
		{ServiceID: "desktop_agent", Method: "start_agent", Verdict: types.VerdictAllow},
		{ServiceID: "desktop_agent", Method: "close_agent", Verdict: types.VerdictAllow},
	}})
	fw := New(memAccounts{nonce: 0}, policy, NewScrubber(nil), nil, func() int64 { return 0 }, "desktop_agent")

	var sessionID [32]byte
	sessionID[0] = 0x42
	startPayload, err := json.Marshal(agentic.StartAgentRequest{
		SessionID:     sessionID,
		Owner:         acct,
		InitialBudget: 1000,
		Policy:        &Policy{Defaults: AllowAll},
	})
	require.NoError(t, err)

	start := &types.Transaction{
		Kind:      types.TxApplication,
		Header:    &types.SignHeader{AccountID: acct, Nonce: 0, ChainID: "test", TxVersion: 1},
		ServiceID: "desktop_agent",
		Method:    "start_agent",
		Payload:   startPayload,
	}
	start.Proof = &types.SignatureProof{Suite: types.SuiteEd25519, PublicKey: pub, Signature: priv.Sign(start.SigningBytes())}
	dec, err := fw.Evaluate(start)
	require.NoError(t, err)
	require.Equal(t, types.VerdictAllow, dec.Verdict)

	// An action tagged with that session's hex id is now evaluated under the
	// session's own AllowAll override instead of the node-wide DenyAll.
	sessionTx := &types.Transaction{
		Kind:      types.TxApplication,
		Header:    &types.SignHeader{AccountID: acct, Nonce: 1, ChainID: "test", TxVersion: 1, SessionAuth: agentic.HexSessionID(sessionID)},
		ServiceID: "desktop_agent",
		Method:    "take_action",
	}
	sessionTx.Proof = &types.SignatureProof{Suite: types.SuiteEd25519, PublicKey: pub, Signature: priv.Sign(sessionTx.SigningBytes())}
	dec, err = fw.Evaluate(sessionTx)
	require.NoError(t, err)
	require.Equal(t, types.VerdictAllow, dec.Verdict)

	closePayload, err := json.Marshal(agentic.CloseAgentRequest{SessionID: sessionID})
	require.NoError(t, err)
	closeTx := &types.Transaction{
		Kind:      types.TxApplication,
		Header:    &types.SignHeader{AccountID: acct, Nonce: 2, ChainID: "test", TxVersion: 1},
		ServiceID: "desktop_agent",
		Method:    "close_agent",
		Payload:   closePayload,
	}
	closeTx.Proof = &types.SignatureProof{Suite: types.SuiteEd25519, PublicKey: pub, Signature: priv.Sign(closeTx.SigningBytes())}
	dec, err = fw.Evaluate(closeTx)
	require.NoError(t, err)
	require.Equal(t, types.VerdictAllow, dec.Verdict)

	// Once closed, a later action tagged with the same session id falls back
	// to the node-wide DenyAll policy since there's no matching rule for
	// "take_action".
	dec, err = fw.Evaluate(sessionTx)
	require.NoError(t, err)
	require.Equal(t, types.VerdictBlock, dec.Verdict)
}

func TestFirewallRejectsBadSignature(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	acct := types.DeriveAccountId(types.SuiteEd25519, pub)

	policy := NewPolicyEngine(Policy{Defaults: AllowAll})
	fw := New(memAccounts{nonce: 0}, policy, NewScrubber(nil), nil, func() int64 { return 0 })

	tx := signedTx(t, priv, acct, "settlement", "transfer")
	tx.Proof.Signature[0] ^= 0xFF
	_, err = fw.Evaluate(tx)
	require.Error(t, err)
}
