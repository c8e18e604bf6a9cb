package browserkernel

import (
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

// LocatorKind tags the Locator union (spec §3).
type LocatorKind string

const (
	LocatorCss  LocatorKind = "css"
	LocatorAria LocatorKind = "aria"
	LocatorText LocatorKind = "text"
)

// Locator addresses an element within a page. Exactly the fields relevant
// to Kind are populated; the rest are zero.
type Locator struct {
	Kind LocatorKind `json:"kind"`

	Css string `json:"css,omitempty"`

	AriaRole string `json:"aria_role,omitempty"`
	AriaName string `json:"aria_name,omitempty"`

	TextContent string `json:"text_content,omitempty"`
	TextExact   bool   `json:"text_exact,omitempty"`
}

// WaitMode is projected into the action payload as wait_tier (spec §4.6.2).
type WaitMode string

const (
	WaitNone     WaitMode = "none"
	WaitDomReady WaitMode = "domready"
	WaitIdle     WaitMode = "idle"
)

// ToolKindTag tags the ToolKind union (spec §3).
type ToolKindTag string

const (
	ToolNavigate ToolKindTag = "navigate"
	ToolClick    ToolKindTag = "click"
	ToolTypeText ToolKindTag = "type_text"
	ToolSelect   ToolKindTag = "select"
	ToolScroll   ToolKindTag = "scroll"
	ToolWait     ToolKindTag = "wait"
	ToolCustom   ToolKindTag = "custom"
)

// ToolKind is the tagged union of step actions. DispatchTool reports the
// dotted executor tool id this kind maps to for dispatch purposes.
type ToolKind struct {
	Tag ToolKindTag `json:"tag"`

	// Navigate
	Url string `json:"url,omitempty"`

	// Click, TypeText, Select
	Locator Locator `json:"locator,omitempty"`

	// TypeText
	Text   string `json:"text,omitempty"`
	Submit bool   `json:"submit,omitempty"`

	// Select
	Value  string `json:"value,omitempty"`
	Method string `json:"method,omitempty"`

	// Scroll
	ScrollTarget string `json:"scroll_target,omitempty"`

	// Wait
	WaitCondition AgentWaitCondition `json:"wait_condition,omitempty"`

	// Custom
	CustomName    string          `json:"custom_name,omitempty"`
	CustomPayload json.RawMessage `json:"custom_payload,omitempty"`
}

// IsObservationStep reports whether this is the data.extract-site custom
// step the spec singles out for URL-override patching.
func (k ToolKind) IsObservationStep() bool {
	return k.Tag == ToolCustom && k.CustomName == "data.extract-site"
}

// IsNoteStep reports whether this is a synchronous note step (spec §4.6
// step 1): agent.note or any *Note custom name.
func (k ToolKind) IsNoteStep() bool {
	if k.Tag != ToolCustom {
		return false
	}
	if k.CustomName == "agent.note" {
		return true
	}
	return len(k.CustomName) > 4 && k.CustomName[len(k.CustomName)-4:] == "Note"
}

// DispatchTool maps a ToolKind to the dotted tool id the executor (C4)
// understands.
func (k ToolKind) DispatchTool() string {
	switch k.Tag {
	case ToolNavigate:
		return "navigate-to-url"
	case ToolClick:
		return "browser.click"
	case ToolTypeText:
		return "browser.type-text"
	case ToolSelect:
		return "browser.select"
	case ToolScroll:
		return "browser.scroll"
	case ToolWait:
		return "browser.wait"
	case ToolCustom:
		return k.CustomName
	default:
		return "unknown"
	}
}

// AgentWaitConditionKind tags AgentWaitCondition.
type AgentWaitConditionKind string

const (
	CondElementVisible AgentWaitConditionKind = "element_visible"
	CondElementHidden  AgentWaitConditionKind = "element_hidden"
	CondNetworkIdle    AgentWaitConditionKind = "network_idle"
	CondDuration       AgentWaitConditionKind = "duration"
	CondUrlMatches     AgentWaitConditionKind = "url_matches"
	CondUrlEquals      AgentWaitConditionKind = "url_equals"
	CondTitleMatches   AgentWaitConditionKind = "title_matches"
)

// AgentWaitCondition is the tagged union carried by a Validation (spec §3).
type AgentWaitCondition struct {
	Kind AgentWaitConditionKind `json:"kind"`

	Locator Locator `json:"locator,omitempty"` // ElementVisible, ElementHidden
	Ms      int     `json:"ms,omitempty"`       // NetworkIdle, Duration
	Value   string  `json:"value,omitempty"`    // UrlMatches, UrlEquals, TitleMatches
}

// schedulerKnown reports whether the scheduler/plan-executor knows how to
// express this condition as a validation dispatch spec (spec §4.6 step 2);
// conditions outside this set are skipped with a warning.
func (c AgentWaitCondition) schedulerKnown() bool {
	switch c.Kind {
	case CondUrlMatches, CondUrlEquals, CondElementVisible, CondElementHidden, CondNetworkIdle, CondDuration, CondTitleMatches:
		return true
	default:
		return false
	}
}

// Validation pairs a wait condition with the step it guards.
type Validation struct {
	Condition AgentWaitCondition `json:"condition"`
}

// Step is one entry of an AgentPlan.
type Step struct {
	Id          string            `json:"id"`
	Title       string            `json:"title"`
	Tool        ToolKind          `json:"tool"`
	WaitMode    WaitMode          `json:"wait_mode"`
	Timeout     time.Duration     `json:"timeout,omitempty"`
	Validations []Validation      `json:"validations,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// AgentPlan is the ordered sequence of steps a planner produced from a goal
// and context (spec §3, glossary).
type AgentPlan struct {
	TaskId browsertypes.TaskId `json:"task_id"`
	Title  string              `json:"title"`
	Steps  []Step              `json:"steps"`
}

// Artifact is extracted from any tool output field named bytes (spec §3,
// §4.6 step 5, P4).
type Artifact struct {
	Label       string `json:"label"`
	ContentType string `json:"content_type"`
	DataBase64  string `json:"data_base64"`
	ByteLen     int    `json:"byte_len"`
	Filename    string `json:"filename,omitempty"`
}

// DispatchRecord is a single scheduler-mediated tool invocation within a
// step's execution (spec §3).
type DispatchRecord struct {
	Label     string                   `json:"label"`
	ActionId  string                   `json:"action_id"`
	Route     browsertypes.ExecRoute   `json:"route"`
	WaitMs    int64                    `json:"wait_ms"`
	RunMs     int64                    `json:"run_ms"`
	Output    json.RawMessage          `json:"output,omitempty"`
	Artifacts []Artifact               `json:"artifacts,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// StepStatus is the terminal outcome of one step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
)

// StepExecutionReport summarises one step's execution across all its
// attempts and dispatches (spec §3).
type StepExecutionReport struct {
	StepId             string         `json:"step_id"`
	Title              string         `json:"title"`
	ToolKind           ToolKindTag    `json:"tool_kind"`
	ToolName           string         `json:"tool_name,omitempty"`
	Status             StepStatus     `json:"status"`
	Attempts           int            `json:"attempts"`
	Error              string         `json:"error,omitempty"`
	Dispatches         []DispatchRecord `json:"dispatches"`
	TotalWaitMs        int64          `json:"total_wait_ms"`
	TotalRunMs         int64          `json:"total_run_ms"`
	ObservationSummary string         `json:"observation_summary,omitempty"`
	BlockerKind        BlockerKind    `json:"blocker_kind,omitempty"`
	AgentState         string         `json:"agent_state,omitempty"`
}

// UserResultKind tags a UserResult.
type UserResultKind string

const (
	UserResultText     UserResultKind = "text"
	UserResultStruct   UserResultKind = "structured"
	UserResultArtifact UserResultKind = "artifact"
)

// UserResult is a structured or textual artefact surfaced to the caller
// after a plan completes (spec §4.6 "User results", glossary).
type UserResult struct {
	Kind   UserResultKind  `json:"kind"`
	Text   string          `json:"text,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Schema string          `json:"schema,omitempty"`
	Path   string          `json:"path,omitempty"`
}

// FlowExecutionReport is execute_plan's return value (spec §4.6).
type FlowExecutionReport struct {
	TaskId           browsertypes.TaskId   `json:"task_id"`
	Success          bool                  `json:"success"`
	Steps            []StepExecutionReport `json:"steps"`
	UserResults      []UserResult          `json:"user_results"`
	MissingUserResult bool                 `json:"missing_user_result"`
	Error            string                `json:"error,omitempty"`
}

// FlowRuntimeState is carried across the plan executor's step loop (spec
// §3). Destinations is keyed by the session id a macro step resolved a
// canonical destination URL for (e.g. a weather search); PendingObservationURL
// is a one-shot override consumed by the next observation step.
type FlowRuntimeState struct {
	Destinations           map[browsertypes.SessionId]string
	PendingObservationURL  string
}

// NewFlowRuntimeState returns an empty runtime state.
func NewFlowRuntimeState() *FlowRuntimeState {
	return &FlowRuntimeState{Destinations: make(map[browsertypes.SessionId]string)}
}

// TakeObservationOverride consumes and clears the one-shot observation URL
// override, if any.
func (s *FlowRuntimeState) TakeObservationOverride() (string, bool) {
	if s.PendingObservationURL == "" {
		return "", false
	}
	url := s.PendingObservationURL
	s.PendingObservationURL = ""
	return url, true
}
