// Package firewall implements the kernel's Agency Firewall: a deny-by-default
// pipeline every transaction passes through before it reaches execution.
// Stages run in a fixed order — signature, authorization, nonce, policy,
// scrubbing — and the first stage to reject short-circuits the rest.
package firewall

import (
	"encoding/json"
	"fmt"

	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/services/agentic"
	"github.com/ioi-foundation/kernel/types"
)

// AccountLookup resolves an account's current nonce and whether it's known
// to the chain, the stateful half of the authorization check.
type AccountLookup interface {
	AccountNonce(id types.AccountId) (uint64, bool, error)
}

// Firewall is the kernel's single authorization gate, sitting between the
// mempool/RPC ingress and execution.
type Firewall struct {
	accounts      AccountLookup
	policy        *PolicyEngine
	scrubber      *Scrubber
	events        EventSink
	nowUnix       func() int64
	agentServices map[string]bool // service IDs policy evaluation applies to
}

// EventSink receives FirewallInterception events for UI consent gating.
type EventSink interface {
	Publish(types.KernelEvent)
}

// New builds a Firewall. agentClassServices names the service IDs spec.md
// §4.5 scopes policy evaluation to ("only for agent-class services"); a
// transaction targeting any other service skips the policy stage entirely
// and is implicitly allowed once signature/authorization/nonce pass.
func New(accounts AccountLookup, policy *PolicyEngine, scrubber *Scrubber, events EventSink, nowUnix func() int64, agentClassServices ...string) *Firewall {
	agents := make(map[string]bool, len(agentClassServices))
	for _, id := range agentClassServices {
		agents[id] = true
	}
	return &Firewall{accounts: accounts, policy: policy, scrubber: scrubber, events: events, nowUnix: nowUnix, agentServices: agents}
}

// Decision is the end-to-end outcome of running tx through the firewall.
type Decision struct {
	Verdict types.FirewallVerdict
	Reason  string
	// ScrubbedPayload replaces tx.Payload when the scrubber redacted PII;
	// callers that accepted the decision must substitute it before handing
	// the transaction to execution.
	ScrubbedPayload []byte
}

// Evaluate runs tx through every stage in order. A non-nil error means the
// transaction is rejected outright (stateless failure); a returned Decision
// with VerdictBlock or VerdictRequireApproval means it was structurally
// fine but the policy engine wants it stopped or escalated.
func (f *Firewall) Evaluate(tx *types.Transaction) (Decision, error) {
	if err := f.checkSignature(tx); err != nil {
		return Decision{}, fmt.Errorf("firewall: signature stage: %w", err)
	}
	if err := f.checkAuthorization(tx); err != nil {
		return Decision{}, fmt.Errorf("firewall: authorization stage: %w", err)
	}
	if err := f.checkNonce(tx); err != nil {
		return Decision{}, fmt.Errorf("firewall: nonce stage: %w", err)
	}

	target := types.ActionTarget{ServiceID: tx.ServiceID, Method: tx.Method}
	if tx.Header != nil {
		target.AccountID = tx.Header.AccountID
	}

	requestHash := crypto.Hash32(tx.SigningBytes())
	verdict, reason := types.VerdictAllow, ""
	if f.agentServices[target.ServiceID] {
		sessionID := f.sessionIDFor(tx)
		verdict, reason = f.policy.Evaluate(sessionID, target)
		if verdict == types.VerdictRequireApproval {
			if tok, ok := f.approvalFor(tx); ok && tok.Fresh(f.nowUnix()) && tok.ScopedTo(requestHash) {
				verdict = types.VerdictAllow
			}
		}
	}

	if verdict != types.VerdictAllow {
		f.emitInterception(verdict, target, requestHash, tx, reason)
		return Decision{Verdict: verdict, Reason: reason}, nil
	}

	if target.ServiceID == agentic.ServiceID {
		f.syncSessionPolicy(target.Method, tx.Payload)
	}

	scrubbed, changed := f.scrubber.Scrub(tx.Payload)
	dec := Decision{Verdict: types.VerdictAllow}
	if changed {
		dec.ScrubbedPayload = scrubbed
	}
	return dec, nil
}

func (f *Firewall) approvalFor(tx *types.Transaction) (*types.ApprovalToken, bool) {
	if tx.Header == nil || tx.Header.SessionAuth == "" {
		return nil, false
	}
	tok, ok := decodeApprovalToken(tx.Header.SessionAuth)
	return tok, ok
}

// syncSessionPolicy keeps PolicyEngine's per-session overrides in step with
// the agentic service's own session lifecycle: an accepted start_agent
// carrying a Policy installs it for every later action tagged with that
// session; an accepted close_agent clears it, so an ended session's
// actions (should any arrive late) fall back to the node-wide policy.
func (f *Firewall) syncSessionPolicy(method string, payload []byte) {
	switch method {
	case "start_agent":
		var req agentic.StartAgentRequest
		if err := json.Unmarshal(payload, &req); err != nil || req.Policy == nil {
			return
		}
		f.policy.SetSessionPolicy(agentic.HexSessionID(req.SessionID), *req.Policy)
	case "close_agent":
		var req agentic.CloseAgentRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return
		}
		f.policy.ClearSessionPolicy(agentic.HexSessionID(req.SessionID))
	}
}

// sessionIDFor recovers the agentic session an action is acting under, so
// PolicyEngine can apply that session's policy override instead of the
// node-wide default. SessionAuth carries a full ApprovalToken once the
// session has sought approval at least once; before that it's treated as a
// bare session identifier the client tagged the transaction with.
func (f *Firewall) sessionIDFor(tx *types.Transaction) string {
	if tx.Header == nil || tx.Header.SessionAuth == "" {
		return ""
	}
	if tok, ok := decodeApprovalToken(tx.Header.SessionAuth); ok {
		return tok.SessionID
	}
	return tx.Header.SessionAuth
}

func (f *Firewall) emitInterception(verdict types.FirewallVerdict, target types.ActionTarget, requestHash [32]byte, tx *types.Transaction, reason string) {
	if f.events == nil {
		return
	}
	f.events.Publish(types.KernelEvent{
		Kind: types.EventFirewallInterception,
		Data: types.FirewallInterception{
			Verdict:     verdict,
			Target:      fmt.Sprintf("%s.%s", target.ServiceID, target.Method),
			RequestHash: requestHash,
			SessionID:   f.sessionIDFor(tx),
			Reason:      reason,
		},
	})
}

// checkSignature is the stateless check: it requires nothing but the
// transaction bytes themselves.
func (f *Firewall) checkSignature(tx *types.Transaction) error {
	if tx.Kind == types.TxSemantic {
		return nil // semantic txs carry no signature by design
	}
	return tx.VerifySignature()
}

// checkAuthorization looks up the signing account's nonce entry and fails
// only if that lookup errors. An account with no nonce entry yet passes,
// since DeriveAccountId is deterministic and accounts are created on first
// use rather than via a separate registration step; no credential or
// session authorization is checked here.
func (f *Firewall) checkAuthorization(tx *types.Transaction) error {
	if tx.Kind == types.TxSemantic {
		return nil
	}
	_, _, err := f.accounts.AccountNonce(tx.Header.AccountID)
	return err
}

// checkNonce requires the transaction's nonce to be at or ahead of the
// account's current on-chain nonce; anything strictly behind can never
// execute and is rejected here rather than parked in the mempool.
func (f *Firewall) checkNonce(tx *types.Transaction) error {
	if tx.Kind == types.TxSemantic {
		return nil
	}
	current, _, err := f.accounts.AccountNonce(tx.Header.AccountID)
	if err != nil {
		return err
	}
	if tx.Header.Nonce < current {
		return fmt.Errorf("nonce %d is behind current account nonce %d", tx.Header.Nonce, current)
	}
	return nil
}
