package browserkernel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
	"github.com/nextlevelbuilder/goclaw/internal/scheduler"
	"github.com/nextlevelbuilder/goclaw/internal/taskstream"
)

// previewCapturingTools is the set of action tools that additionally
// trigger a best-effort screenshot dispatch (spec §4.6 step 5).
var previewCapturingTools = map[string]bool{
	"navigate-to-url":   true,
	"browser.click":     true,
	"browser.type-text": true,
	"browser.select":    true,
	"browser.scroll":    true,
	"weather.search":    true,
}

const defaultValidationBackoff = 200 * time.Millisecond
const previewTimeout = 5 * time.Second

// ExecuteOptions configures one execute_plan call (spec §4.6).
type ExecuteOptions struct {
	MaxRetries   int
	RoutingHint  *browsertypes.RoutingHint
	WeatherIntent bool
}

// PlanExecutor is spec component C6: drives one AgentPlan step by step,
// submitting dispatches through the scheduler, normalising outputs,
// evaluating guardrails, and folding results into a FlowExecutionReport.
type PlanExecutor struct {
	sched    *scheduler.Scheduler
	registry *Registry
	stream   *taskstream.Stream // optional; nil disables event emission
	log      *slog.Logger
}

// NewPlanExecutor builds a plan executor over sched and registry. stream
// may be nil if the caller doesn't want task-stream events.
func NewPlanExecutor(sched *scheduler.Scheduler, registry *Registry, stream *taskstream.Stream, log *slog.Logger) *PlanExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &PlanExecutor{sched: sched, registry: registry, stream: stream, log: log}
}

type dispatchSpec struct {
	Label       string
	Tool        string
	Payload     json.RawMessage
	Timeout     time.Duration
	ValidationOf *AgentWaitCondition
}

// ExecutePlan is execute_plan (spec §4.6): the top-level entry point.
func (e *PlanExecutor) ExecutePlan(ctx context.Context, request AgentRequest, plan AgentPlan, opts ExecuteOptions, driver Driver) (FlowExecutionReport, error) {
	if err := e.preflight(plan, driver); err != nil {
		return FlowExecutionReport{TaskId: plan.TaskId, Success: false, Error: err.Error()}, err
	}

	hint := e.deriveHint(request, opts)
	state := NewFlowRuntimeState()

	report := FlowExecutionReport{TaskId: plan.TaskId}
	if e.stream != nil {
		e.stream.MarkRunning(plan.TaskId)
	}

	terminatedEarly := false
	for _, step := range plan.Steps {
		if e.stream != nil {
			e.stream.StepStarted(plan.TaskId, step.Id, step.Title)
		}

		stepReport, earlyNote := e.executeStep(ctx, plan.TaskId, step, opts, hint, state, opts.WeatherIntent)
		report.Steps = append(report.Steps, stepReport)

		if e.stream != nil {
			if stepReport.Status == StepSuccess {
				e.stream.StepCompleted(plan.TaskId, step.Id, step.Title)
			} else {
				e.stream.StepFailed(plan.TaskId, step.Id, step.Title, stepReport.Error)
			}
		}

		if earlyNote != nil {
			report.Steps = append(report.Steps, *earlyNote)
			terminatedEarly = true
			break
		}

		if stepReport.Status != StepSuccess {
			report.Success = false
			report.Error = stepReport.Error
			if e.stream != nil {
				e.stream.MarkStatus(plan.TaskId, taskstream.TaskFailed)
			}
			return e.finalize(report, false), nil
		}
	}

	_ = terminatedEarly
	report.Success = true
	if e.stream != nil {
		e.stream.MarkStatus(plan.TaskId, taskstream.TaskSuccess)
	}
	return e.finalize(report, true), nil
}

// preflight implements spec §4.6's "if any step's tool kind requires DOM
// interaction and the driver is known to be in a non-interactive mode, fail
// fast before submitting anything".
func (e *PlanExecutor) preflight(plan AgentPlan, driver Driver) error {
	if driver == nil || !driver.Stub() {
		return nil
	}
	for _, step := range plan.Steps {
		if RequiresDom(step.Tool.DispatchTool()) {
			return fmt.Errorf("%w: step %q", ErrDomUnavailable, step.Title)
		}
	}
	return nil
}

// deriveHint builds the routing hint the whole plan uses (spec §4.6): the
// request's context if present, else create a default "agent-runtime"
// session if none exist.
func (e *PlanExecutor) deriveHint(request AgentRequest, opts ExecuteOptions) *browsertypes.RoutingHint {
	if opts.RoutingHint != nil {
		return opts.RoutingHint
	}
	if request.Context.Session != nil {
		sess := *request.Context.Session
		if e.registry != nil {
			found := false
			for _, sc := range e.registry.SessionList() {
				if sc.Session == sess {
					found = true
					if sc.FocusedPage == nil {
						if pid, err := e.registry.PageOpen(sess); err == nil {
							_ = e.registry.PageFocus(pid)
						}
					}
					break
				}
			}
			_ = found
		}
		return &browsertypes.RoutingHint{Session: &sess, Page: request.Context.Page, Prefer: browsertypes.PreferFocused}
	}
	if e.registry != nil && len(e.registry.SessionList()) == 0 {
		e.registry.SessionCreate("agent-runtime")
	}
	return &browsertypes.RoutingHint{Prefer: browsertypes.PreferFocused}
}

// executeStep runs one step to a terminal outcome, implementing the
// per-attempt loop of spec §4.6. It returns the step's report and,
// exactly in the weather-parse-failure special case, a synthetic note
// step appended after it (spec §4.6 "Special step: weather parse
// failure").
func (e *PlanExecutor) executeStep(ctx context.Context, taskID browsertypes.TaskId, step Step, opts ExecuteOptions, hint *browsertypes.RoutingHint, state *FlowRuntimeState, weatherIntent bool) (StepExecutionReport, *StepExecutionReport) {
	if step.Tool.IsNoteStep() {
		return e.executeNoteStep(step), nil
	}

	specs := e.buildDispatchSpecs(step, state)
	maxAttempts := opts.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if step.Tool.IsObservationStep() {
		maxAttempts++
	}

	report := StepExecutionReport{StepId: step.Id, Title: step.Title, ToolKind: step.Tool.Tag, ToolName: step.Tool.DispatchTool()}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		report.Attempts = attempt
		succeeded, stepErr := e.runAttempt(ctx, taskID, step, specs, hint, state, weatherIntent, &report)
		if succeeded {
			report.Status = StepSuccess
			report.Error = ""
			e.absorbSideEffects(step, hint, state, &report)
			return report, nil
		}
		report.Error = stepErr

		if step.Tool.DispatchTool() == "data.parse.weather" {
			note := e.weatherParseFailureNote(state)
			report.Status = StepFailed
			return report, &note
		}
	}

	report.Status = StepFailed
	return report, nil
}

func (e *PlanExecutor) executeNoteStep(step Step) StepExecutionReport {
	text := step.Tool.CustomName
	if len(step.Tool.CustomPayload) > 0 {
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(step.Tool.CustomPayload, &p); err == nil && p.Text != "" {
			text = p.Text
		}
	}
	return StepExecutionReport{
		StepId:   step.Id,
		Title:    step.Title,
		ToolKind: step.Tool.Tag,
		Status:   StepSuccess,
		Attempts: 0,
		Dispatches: []DispatchRecord{{
			Label:  "note",
			Output: mustMarshal(map[string]string{"text": text}),
		}},
	}
}

// weatherParseFailureNote implements spec §4.6's weather-parse-failure
// special case: inject a note step summarising the latest observation
// snippet and a search fallback link.
func (e *PlanExecutor) weatherParseFailureNote(state *FlowRuntimeState) StepExecutionReport {
	snippet := "no observation available"
	for _, dest := range state.Destinations {
		snippet = "last known destination: " + dest
		break
	}
	text := fmt.Sprintf("天气信息获取失败 (%s). Try https://www.baidu.com/s?wd=weather", snippet)
	return StepExecutionReport{
		StepId:   "weather-parse-failure-note",
		Title:    "天气信息获取失败",
		ToolKind: ToolCustom,
		Status:   StepSuccess,
		Dispatches: []DispatchRecord{{
			Label:  "note",
			Output: mustMarshal(map[string]string{"text": text}),
		}},
	}
}

// buildDispatchSpecs builds the action spec followed by one validation spec
// per schedulable condition (spec §4.6 step 2), patching an observation
// step's payload url with a pending runtime-state override (step 3).
func (e *PlanExecutor) buildDispatchSpecs(step Step, state *FlowRuntimeState) []dispatchSpec {
	actionPayload := e.buildActionPayload(step)
	if step.Tool.IsObservationStep() {
		if url, ok := state.TakeObservationOverride(); ok {
			actionPayload = patchUrl(actionPayload, url)
		}
	}

	specs := []dispatchSpec{{
		Label:   "action",
		Tool:    step.Tool.DispatchTool(),
		Payload: withWaitTier(actionPayload, step.WaitMode),
		Timeout: stepTimeout(step),
	}}

	n := 0
	for _, v := range step.Validations {
		if !v.Condition.schedulerKnown() {
			e.log.Warn("skipping unschedulable validation", "step", step.Id, "condition", v.Condition.Kind)
			continue
		}
		cond := v.Condition
		payload, _ := json.Marshal(map[string]any{"condition": cond})
		specs = append(specs, dispatchSpec{
			Label:        fmt.Sprintf("validation-%d", n),
			Tool:         "browser.wait",
			Payload:      payload,
			Timeout:      stepTimeout(step),
			ValidationOf: &cond,
		})
		n++
	}
	return specs
}

func stepTimeout(step Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return defaultDispatchTimeout
}

func (e *PlanExecutor) buildActionPayload(step Step) json.RawMessage {
	k := step.Tool
	switch k.Tag {
	case ToolNavigate:
		return mustMarshal(map[string]any{"url": k.Url})
	case ToolClick:
		return mustMarshal(map[string]any{"locator": k.Locator})
	case ToolTypeText:
		return mustMarshal(map[string]any{"locator": k.Locator, "text": k.Text, "submit": k.Submit})
	case ToolSelect:
		return mustMarshal(map[string]any{"locator": k.Locator, "value": k.Value, "method": k.Method})
	case ToolScroll:
		return mustMarshal(map[string]any{"target": k.ScrollTarget})
	case ToolWait:
		return mustMarshal(map[string]any{"condition": k.WaitCondition})
	case ToolCustom:
		if len(k.CustomPayload) > 0 {
			return k.CustomPayload
		}
		return json.RawMessage(`{}`)
	default:
		return json.RawMessage(`{}`)
	}
}

func patchUrl(payload json.RawMessage, url string) json.RawMessage {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil || m == nil {
		m = map[string]any{}
	}
	m["url"] = url
	return mustMarshal(m)
}

// runAttempt runs every dispatch spec for one attempt in order, handling
// URL-fallback and preview capture, and reports whether the attempt
// succeeded.
func (e *PlanExecutor) runAttempt(ctx context.Context, taskID browsertypes.TaskId, step Step, specs []dispatchSpec, hint *browsertypes.RoutingHint, state *FlowRuntimeState, weatherIntent bool, report *StepExecutionReport) (bool, string) {
	expectedUrl := step.Metadata["expected_url"]
	attemptFailed := false
	var lastErr string
	var actionOutput json.RawMessage

	for _, spec := range specs {
		out, err := e.submitAndWait(ctx, taskID, step, spec, hint, report)
		if err != nil {
			if spec.ValidationOf != nil && expectedUrl != "" && isUrlCondition(spec.ValidationOf.Kind) {
				if e.tryUrlFallback(ctx, taskID, step, expectedUrl, hint, report) {
					continue // fallback replaces this validation's failure with success
				}
			}
			attemptFailed = true
			lastErr = err.Error()
			break
		}
		if spec.Label == "action" {
			actionOutput = out
			if previewCapturingTools[spec.Tool] {
				e.submitPreview(ctx, taskID, hint, report)
			}
		}
	}

	if attemptFailed {
		return false, lastErr
	}

	if step.Tool.IsObservationStep() {
		violation, _ := EvaluateGuardrails(actionOutput, expectedUrl, weatherIntent || isWeatherStep(step))
		if violation != nil {
			report.BlockerKind = BlockerForGuardrail(violation)
			if violation.TriggersRecovery {
				e.submitRecovery(ctx, taskID, hint, state, report)
				return false, violation.Reason
			}
			return false, violation.Reason
		}
	}

	return true, ""
}

func isUrlCondition(kind AgentWaitConditionKind) bool {
	return kind == CondUrlMatches || kind == CondUrlEquals
}

func isWeatherStep(step Step) bool {
	return step.Metadata["intent"] == "weather" || step.Tool.DispatchTool() == "data.parse.weather"
}

func (e *PlanExecutor) submitAndWait(ctx context.Context, taskID browsertypes.TaskId, step Step, spec dispatchSpec, hint *browsertypes.RoutingHint, report *StepExecutionReport) (json.RawMessage, error) {
	req := scheduler.DispatchRequest{
		ToolCall: browsertypes.ToolCall{TaskId: taskID, Tool: spec.Tool, Payload: spec.Payload},
		Options: scheduler.CallOptions{
			Timeout: spec.Timeout,
			Retry:   scheduler.RetryOpt{Max: 0, Backoff: defaultValidationBackoff},
		},
		RoutingHint: hint,
	}
	h, err := e.sched.Submit(ctx, req)
	if err != nil {
		report.Dispatches = append(report.Dispatches, DispatchRecord{Label: spec.Label, Error: err.Error()})
		return nil, err
	}
	out, err := h.Wait(ctx)
	if err != nil {
		report.Dispatches = append(report.Dispatches, DispatchRecord{Label: spec.Label, ActionId: h.ActionId, Error: err.Error()})
		return nil, err
	}

	record := DispatchRecord{
		Label:    spec.Label,
		ActionId: h.ActionId,
		Route:    out.Route,
		WaitMs:   out.Timeline.WaitMs(),
		RunMs:    out.Timeline.RunMs(),
	}
	report.TotalWaitMs += record.WaitMs
	report.TotalRunMs += record.RunMs

	if out.Status != scheduler.StatusSuccess {
		record.Error = out.Error
		if record.Error == "" {
			record.Error = string(out.Status)
		}
		report.Dispatches = append(report.Dispatches, record)
		return nil, fmt.Errorf("%s: %s", spec.Label, record.Error)
	}

	normalised, artifacts := extractArtifacts(spec.Label, out.Output)
	record.Output = normalised
	record.Artifacts = artifacts
	report.Dispatches = append(report.Dispatches, record)
	return normalised, nil
}

// tryUrlFallback implements spec §4.6 step 5's URL-fallback: submit a
// synthetic navigate-to-url dispatch toward expectedUrl; success replaces
// the failing validation's outcome with success.
func (e *PlanExecutor) tryUrlFallback(ctx context.Context, taskID browsertypes.TaskId, step Step, expectedUrl string, hint *browsertypes.RoutingHint, report *StepExecutionReport) bool {
	spec := dispatchSpec{Label: "fallback-navigate", Tool: "navigate-to-url", Payload: mustMarshal(map[string]any{"url": expectedUrl}), Timeout: stepTimeout(step)}
	_, err := e.submitAndWait(ctx, taskID, step, spec, hint, report)
	return err == nil
}

// submitPreview submits a best-effort screenshot dispatch; failures are
// swallowed (spec §4.6 step 5).
func (e *PlanExecutor) submitPreview(ctx context.Context, taskID browsertypes.TaskId, hint *browsertypes.RoutingHint, report *StepExecutionReport) {
	spec := dispatchSpec{Label: "preview", Tool: "take-screenshot", Payload: json.RawMessage(`{}`), Timeout: previewTimeout}
	out, err := e.submitAndWait(ctx, taskID, Step{}, spec, hint, report)
	if err == nil && e.stream != nil {
		e.stream.PushEvidence(taskID, out)
	}
}

// submitRecovery submits the weather.search macro recovery dispatch and
// folds its output into FlowRuntimeState (spec §4.6 step 6, §4.7).
func (e *PlanExecutor) submitRecovery(ctx context.Context, taskID browsertypes.TaskId, hint *browsertypes.RoutingHint, state *FlowRuntimeState, report *StepExecutionReport) {
	spec := dispatchSpec{Label: "weather-search-macro", Tool: "weather.search", Payload: json.RawMessage(`{}`), Timeout: defaultDispatchTimeout}
	out, err := e.submitAndWait(ctx, taskID, Step{}, spec, hint, report)
	if err != nil {
		return
	}
	var result struct {
		Status         string `json:"status"`
		DestinationUrl string `json:"destination_url"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return
	}
	if result.Status == "weather_ready" && result.DestinationUrl != "" {
		if hint != nil && hint.Session != nil {
			state.Destinations[*hint.Session] = result.DestinationUrl
		}
		state.PendingObservationURL = result.DestinationUrl
	}
}

// absorbSideEffects folds a successfully completed step's effects into
// FlowRuntimeState (spec §4.6 step 7).
func (e *PlanExecutor) absorbSideEffects(step Step, hint *browsertypes.RoutingHint, state *FlowRuntimeState, report *StepExecutionReport) {
	if !step.Tool.IsObservationStep() || hint == nil || hint.Session == nil {
		return
	}
	if dest, ok := state.Destinations[*hint.Session]; ok {
		report.ObservationSummary = "resolved destination: " + dest
	}
}

// finalize scans step reports for user-results (spec §4.6 "User results").
func (e *PlanExecutor) finalize(report FlowExecutionReport, success bool) FlowExecutionReport {
	report.Success = success
	for _, s := range report.Steps {
		for _, d := range s.Dispatches {
			if d.Label != "note" && d.Label != "action" {
				continue
			}
			if ur, ok := userResultFor(s, d); ok {
				report.UserResults = append(report.UserResults, ur)
			}
		}
	}
	report.MissingUserResult = success && len(report.UserResults) == 0
	if e.stream != nil {
		summary := "plan completed successfully"
		if !success {
			summary = "plan failed: " + report.Error
		}
		e.stream.SetJudgeVerdict(report.TaskId, taskstream.JudgeVerdict{Passed: success, Summary: summary})
	}
	return report
}

func userResultFor(step StepExecutionReport, d DispatchRecord) (UserResult, bool) {
	if d.Label == "note" {
		var p struct {
			Text string `json:"text"`
		}
		if json.Unmarshal(d.Output, &p) == nil && p.Text != "" {
			return UserResult{Kind: UserResultText, Text: p.Text}, true
		}
		return UserResult{}, false
	}
	switch {
	case hasPrefix(step.ToolName, "data.parse."):
		return UserResult{Kind: UserResultStruct, Data: d.Output, Schema: step.ToolName}, true
	case hasPrefix(step.ToolName, "data.deliver."):
		var p struct {
			Path string `json:"path"`
		}
		path := ""
		if json.Unmarshal(d.Output, &p) == nil {
			path = p.Path
		}
		return UserResult{Kind: UserResultArtifact, Data: d.Output, Path: path}, true
	}
	return UserResult{}, false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
