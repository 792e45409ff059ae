package types

// PolicyDefault names the verdict a Policy falls back to once no Rule in
// its list matches an action — spec.md §4.5's `defaults ∈ {DenyAll,
// AllowAll}`. Defined here rather than in package firewall so
// services/agentic can store a Policy on Session without importing
// firewall, mirroring FirewallVerdict.
type PolicyDefault string

const (
	DenyAll  PolicyDefault = "DenyAll"
	AllowAll PolicyDefault = "AllowAll"
)

// Rule matches a target and names the verdict it carries. Rules are
// evaluated in order; the first match wins. An empty ServiceID/Method/
// AccountID field on a rule acts as a wildcard for that field.
type Rule struct {
	AccountID AccountId       `json:"account_id,omitempty"`
	ServiceID string          `json:"service_id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Verdict   FirewallVerdict `json:"verdict"`
	Reason    string          `json:"reason,omitempty"`
}

// Matches reports whether t satisfies every non-empty field on r.
func (r Rule) Matches(t ActionTarget) bool {
	if r.ServiceID != "" && r.ServiceID != t.ServiceID {
		return false
	}
	if r.Method != "" && r.Method != t.Method {
		return false
	}
	if r.AccountID != (AccountId{}) && r.AccountID != t.AccountID {
		return false
	}
	return true
}

// Policy is the agent-class action gate spec.md §4.5 names:
// `{defaults, rules[]}`, evaluated against an ActionRequest/ActionTarget by
// package firewall. A Session (spec.md §3.4) may carry its own Policy,
// consulted ahead of the node-wide one for actions taken under that
// session.
type Policy struct {
	Defaults PolicyDefault `json:"defaults"`
	Rules    []Rule        `json:"rules,omitempty"`
}
