// Package planner wraps an LLM provider (internal/providers) to turn a
// browser-automation goal into an executable plan (spec C6 entry) or, in
// agent-loop mode, a single next batch of actions (spec C8's llm.decide).
package planner

// ActionKind is the agent loop's action vocabulary (spec §4.8), mapping
// 1:1 onto browserkernel.ToolKindTag.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionClick    ActionKind = "click"
	ActionTypeText ActionKind = "type_text"
	ActionSelect   ActionKind = "select"
	ActionScroll   ActionKind = "scroll"
	ActionWait     ActionKind = "wait"
	ActionDone     ActionKind = "done"
)

// Action is one LLM-proposed step. ElementIndex, when set, refers to the
// index of an entry in the selector_map supplied to Decide; callers resolve
// it to a concrete locator (CSS > ARIA > visible text priority).
type Action struct {
	Kind ActionKind `json:"action"`

	ElementIndex *int `json:"element_index,omitempty"`

	// Navigate
	Url string `json:"url,omitempty"`

	// TypeText
	Text   string `json:"text,omitempty"`
	Submit bool   `json:"submit,omitempty"`

	// Select
	Value  string `json:"value,omitempty"`
	Method string `json:"method,omitempty"`

	// Scroll
	ScrollTarget string `json:"scroll_target,omitempty"`

	// Wait
	WaitMs int `json:"wait_ms,omitempty"`

	// Done
	DoneSuccess bool   `json:"success,omitempty"`
	DoneText    string `json:"text_result,omitempty"`
}

// Decision is llm.decide's output: an ordered batch of actions (spec §4.8
// caps consumption at max_actions_per_step; Decision itself is uncapped).
type Decision struct {
	Actions []Action `json:"actions"`
}

// SelectorRef is the minimal shape Decide needs of an observation's
// selector_map entry — just enough to describe it to the LLM. The
// perception service's concrete type (pkg/browser.SelectorEntry) satisfies
// this by field name; planner never imports pkg/browser.
type SelectorRef struct {
	Index    int    `json:"index"`
	Css      string `json:"css,omitempty"`
	AriaRole string `json:"aria_role,omitempty"`
	AriaName string `json:"aria_name,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Observation is the subset of an agent-loop observation the planner needs
// to decide the next action (spec §4.8 "state").
type Observation struct {
	Url         string        `json:"url"`
	Title       string        `json:"title"`
	SelectorMap []SelectorRef `json:"selector_map,omitempty"`
}

// PlanStep mirrors browserkernel.Step closely enough for GeneratePlan's
// JSON output without importing browserkernel here — keeping planner
// decoupled lets browserkernel avoid ever importing an LLM client.
type PlanStep struct {
	Title        string            `json:"title"`
	Action       Action            `json:"action"`
	ExpectedUrl  string            `json:"expected_url,omitempty"`
	WaitForDom   bool              `json:"wait_for_dom,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Plan is GeneratePlan's output.
type Plan struct {
	Title string     `json:"title"`
	Steps []PlanStep `json:"steps"`
}
