package browserkernel

import "github.com/nextlevelbuilder/goclaw/internal/browsertypes"

// AgentContext carries the browser context accompanying a submitted
// request (spec §6).
type AgentContext struct {
	Session      *browsertypes.SessionId `json:"session,omitempty"`
	Page         *browsertypes.PageId    `json:"page,omitempty"`
	CurrentUrl   string                  `json:"current_url,omitempty"`
	Preferences  map[string]string       `json:"preferences,omitempty"`
	MemoryHints  []string                `json:"memory_hints,omitempty"`
	Metadata     map[string]string       `json:"metadata,omitempty"` // "frame_id" recognised
}

// TurnRole tags a conversation Turn.
type TurnRole string

const (
	TurnSystem TurnRole = "system"
	TurnUser   TurnRole = "user"
)

// Turn is one entry of the planner conversation history the replan
// controller appends to (spec §4.9).
type Turn struct {
	Role TurnRole `json:"role"`
	Text string   `json:"text"`
}

// AgentRequest is the planner's input: goal, history, constraints, intent
// metadata, and browser context (glossary).
type AgentRequest struct {
	TaskId      browsertypes.TaskId `json:"task_id"`
	Prompt      string              `json:"prompt"`
	Constraints []string            `json:"constraints"`
	Context     AgentContext        `json:"context"`
	History     []Turn              `json:"history,omitempty"`
	Metadata    map[string]string   `json:"metadata,omitempty"`
}

// clone returns a deep-enough copy for the replan controller to mutate
// without aliasing the caller's slices/maps.
func (r AgentRequest) clone() AgentRequest {
	out := r
	out.Constraints = append([]string(nil), r.Constraints...)
	out.History = append([]Turn(nil), r.History...)
	out.Metadata = make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		out.Metadata[k] = v
	}
	return out
}
