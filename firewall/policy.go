package firewall

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ioi-foundation/kernel/types"
)

// Rule, PolicyDefault, and Policy are defined in package types (see
// types/policy.go) so services/agentic can store a Policy on Session
// without importing firewall; these aliases keep the familiar
// firewall.Rule / firewall.Policy / firewall.DenyAll spelling at every
// existing call site.
type (
	Rule          = types.Rule
	PolicyDefault = types.PolicyDefault
	Policy        = types.Policy
)

const (
	DenyAll  = types.DenyAll
	AllowAll = types.AllowAll
)

func evaluate(p Policy, t types.ActionTarget) (types.FirewallVerdict, string) {
	for _, r := range p.Rules {
		if r.Matches(t) {
			return r.Verdict, r.Reason
		}
	}
	verdict := types.VerdictBlock
	if p.Defaults == AllowAll {
		verdict = types.VerdictAllow
	}
	return verdict, fmt.Sprintf("no rule matched; policy defaults to %s", p.Defaults)
}

// PolicyEngine evaluates an ActionTarget against a global Policy, or a
// per-session Policy override when the acting session has set one (spec.md
// §3.4's Session.policy) — the agentic equivalent of a per-tenant firewall
// profile layered over the node-wide default.
type PolicyEngine struct {
	mu       sync.RWMutex
	global   Policy
	sessions map[string]Policy
}

func NewPolicyEngine(policy Policy) *PolicyEngine {
	return &PolicyEngine{global: policy, sessions: make(map[string]Policy)}
}

// Evaluate returns the verdict and reason for t under sessionID's policy, if
// one has been set via SetSessionPolicy, or the node-wide policy otherwise.
// An empty sessionID always evaluates against the node-wide policy.
func (p *PolicyEngine) Evaluate(sessionID string, t types.ActionTarget) (types.FirewallVerdict, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if sessionID != "" {
		if policy, ok := p.sessions[sessionID]; ok {
			return evaluate(policy, t)
		}
	}
	return evaluate(p.global, t)
}

// SetPolicy atomically replaces the node-wide policy.
func (p *PolicyEngine) SetPolicy(policy Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.global = policy
}

// SetSessionPolicy installs a policy override scoped to one agent session,
// consulted ahead of the node-wide policy for every action that session
// takes until ClearSessionPolicy removes it. Typically seeded from the
// Policy a Session was started with (services/agentic.Session.Policy).
func (p *PolicyEngine) SetSessionPolicy(sessionID string, policy Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[sessionID] = policy
}

// ClearSessionPolicy removes sessionID's policy override, falling back to
// the node-wide policy for any further actions from that session.
func (p *PolicyEngine) ClearSessionPolicy(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, sessionID)
}

// decodeApprovalToken parses the JSON-encoded ApprovalToken a client embeds
// in SignHeader.SessionAuth after a user grants consent for a previously
// RequireApproval-gated action.
func decodeApprovalToken(sessionAuth string) (*types.ApprovalToken, bool) {
	var tok types.ApprovalToken
	if err := json.Unmarshal([]byte(sessionAuth), &tok); err != nil {
		return nil, false
	}
	return &tok, true
}
