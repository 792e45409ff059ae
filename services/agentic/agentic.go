// Package agentic is the chain-side counterpart of an agent session: it
// registers a session's token budget when an agent starts, lets the IPC
// workload path charge against that budget as inference runs, and closes
// the session when the agent finishes or the budget is exhausted. The
// agent's actual tool execution (GUI/terminal/browser/MCP drivers) lives
// entirely off-chain in the workload process; this service only tracks the
// budget and session lifecycle the firewall's ApprovalToken checks against.
package agentic

import (
	"encoding/json"
	"fmt"

	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/types"
)

const ServiceID = "desktop_agent"

// ErrBudgetExceeded is returned when a charge would overrun a session's
// initial budget. It is never bypassable — the spec's LeakageController
// invariant — so no caller, including governance, can raise a session's
// spend mid-flight; a new session must be started instead.
var ErrBudgetExceeded = fmt.Errorf("agentic: session budget exceeded")

type SessionState string

const (
	SessionActive SessionState = "active"
	SessionClosed SessionState = "closed"
)

// Session tracks one agent run's budget consumption. ParentSessionID is set
// for a sub-agent spawned by another agent, so a swarm's aggregate spend can
// be audited by walking the parent chain. Policy, when set, is the firewall
// policy this session's own actions are evaluated under in place of the
// node-wide default (spec.md §3.4's `policy?` field) — the firewall installs
// it on its PolicyEngine as a session override when start_agent is accepted
// and clears it again on close_agent.
type Session struct {
	SessionID       [32]byte        `json:"session_id"`
	Owner           types.AccountId `json:"owner"`
	Goal            string          `json:"goal"`
	MaxSteps        uint32          `json:"max_steps"`
	StepsTaken      uint32          `json:"steps_taken"`
	ParentSessionID *[32]byte       `json:"parent_session_id,omitempty"`
	InitialBudget   uint64          `json:"initial_budget"`
	SpentTokens     uint64          `json:"spent_tokens"`
	State           SessionState    `json:"state"`
	Policy          *types.Policy   `json:"policy,omitempty"`
}

// HexSessionID returns the stable hex representation of a session id, used
// by the firewall's PolicyEngine to key per-session policy overrides so
// both sides derive the same string from the same [32]byte.
func HexSessionID(id [32]byte) string {
	return fmt.Sprintf("%x", id)
}

func (s *Session) RemainingBudget() uint64 {
	if s.SpentTokens >= s.InitialBudget {
		return 0
	}
	return s.InitialBudget - s.SpentTokens
}

type StartAgentRequest struct {
	SessionID       [32]byte        `json:"session_id"`
	Owner           types.AccountId `json:"owner"`
	Goal            string          `json:"goal"`
	MaxSteps        uint32          `json:"max_steps"`
	ParentSessionID *[32]byte       `json:"parent_session_id,omitempty"`
	InitialBudget   uint64          `json:"initial_budget"`
	Policy          *types.Policy   `json:"policy,omitempty"`
}

// ChargeRequest is submitted by the workload's IPC path (as an Internal
// call, never a user transaction) each time inference consumes tokens
// against a session's budget.
type ChargeRequest struct {
	SessionID [32]byte `json:"session_id"`
	Tokens    uint64   `json:"tokens"`
}

type CloseAgentRequest struct {
	SessionID [32]byte `json:"session_id"`
}

type Service struct {
	manifest *types.ServiceManifest
}

func New() *Service {
	return &Service{
		manifest: &types.ServiceManifest{
			ID:          ServiceID,
			ABIVersion:  1,
			StateSchema: "desktop_agent.v1",
			Runtime:     "native",
			Methods: map[string]types.MethodVisibility{
				"start_agent": types.MethodUser,
				"charge":      types.MethodInternal,
				"close_agent": types.MethodUser,
			},
		},
	}
}

func (s *Service) Manifest() *types.ServiceManifest { return s.manifest }

func (s *Service) Execute(store *execution.NamespacedStore, method string, payload []byte) ([]byte, error) {
	switch method {
	case "start_agent":
		return s.startAgent(store, payload)
	case "charge":
		return s.charge(store, payload)
	case "close_agent":
		return s.closeAgent(store, payload)
	default:
		return nil, fmt.Errorf("agentic: unknown method %q", method)
	}
}

func (s *Service) startAgent(store *execution.NamespacedStore, payload []byte) ([]byte, error) {
	var req StartAgentRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("agentic: decode start_agent request: %w", err)
	}
	if _, ok, err := s.load(store, req.SessionID); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("agentic: session %x already exists", req.SessionID)
	}
	session := &Session{
		SessionID:       req.SessionID,
		Owner:           req.Owner,
		Goal:            req.Goal,
		MaxSteps:        req.MaxSteps,
		ParentSessionID: req.ParentSessionID,
		InitialBudget:   req.InitialBudget,
		State:           SessionActive,
		Policy:          req.Policy,
	}
	if err := s.save(store, session); err != nil {
		return nil, err
	}
	return json.Marshal(session)
}

func (s *Service) charge(store *execution.NamespacedStore, payload []byte) ([]byte, error) {
	var req ChargeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("agentic: decode charge request: %w", err)
	}
	session, ok, err := s.load(store, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("agentic: session %x not found", req.SessionID)
	}
	if session.State != SessionActive {
		return nil, fmt.Errorf("agentic: session %x is not active", req.SessionID)
	}
	if req.Tokens > session.RemainingBudget() {
		return nil, ErrBudgetExceeded
	}
	session.SpentTokens += req.Tokens
	session.StepsTaken++
	if session.StepsTaken >= session.MaxSteps || session.RemainingBudget() == 0 {
		session.State = SessionClosed
	}
	if err := s.save(store, session); err != nil {
		return nil, err
	}
	return json.Marshal(session)
}

func (s *Service) closeAgent(store *execution.NamespacedStore, payload []byte) ([]byte, error) {
	var req CloseAgentRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("agentic: decode close_agent request: %w", err)
	}
	session, ok, err := s.load(store, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("agentic: session %x not found", req.SessionID)
	}
	session.State = SessionClosed
	return nil, s.save(store, session)
}

func (s *Service) sessionKey(id [32]byte) string {
	return fmt.Sprintf("session::%x", id)
}

func (s *Service) load(store *execution.NamespacedStore, id [32]byte) (*Session, bool, error) {
	raw, ok, err := store.Get(store.Own(s.sessionKey(id)))
	if err != nil {
		return nil, false, fmt.Errorf("agentic: read session %x: %w", id, err)
	}
	if !ok {
		return nil, false, nil
	}
	session := &Session{}
	if err := json.Unmarshal(raw, session); err != nil {
		return nil, false, fmt.Errorf("agentic: decode session %x: %w", id, err)
	}
	return session, true, nil
}

func (s *Service) save(store *execution.NamespacedStore, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("agentic: encode session %x: %w", session.SessionID, err)
	}
	return store.Set(store.Own(s.sessionKey(session.SessionID)), raw)
}
