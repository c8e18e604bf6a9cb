package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// Planner turns goals into plans (spec C6 entry) or single decide calls
// (spec C8) against any internal/providers.Provider.
type Planner struct {
	provider providers.Provider
	model    string
	log      *slog.Logger
}

// New builds a Planner over provider. model overrides provider.DefaultModel()
// when non-empty.
func New(provider providers.Provider, model string, log *slog.Logger) *Planner {
	if log == nil {
		log = slog.Default()
	}
	return &Planner{provider: provider, model: model, log: log}
}

func (p *Planner) resolvedModel() string {
	if p.model != "" {
		return p.model
	}
	return p.provider.DefaultModel()
}

const planSystemPrompt = `You control a web browser to accomplish a user's goal.
Respond with a JSON object: {"title": "...", "steps": [{"title": "...", "action": {...}, "expected_url": "...", "wait_for_dom": true}]}.
Each step's "action" uses the same shape as the navigate/click/type_text/select/scroll/wait/done tools.
Keep the plan short: only the steps needed to reach the goal.`

// GeneratePlan asks the LLM for a complete upfront plan (spec C6 entry
// point, used outside agent-loop mode).
func (p *Planner) GeneratePlan(ctx context.Context, prompt string, constraints []string, currentUrl string) (Plan, error) {
	messages := []providers.Message{
		{Role: "system", Content: planSystemPrompt},
		{Role: "user", Content: buildPlanUserContent(prompt, constraints, currentUrl)},
	}

	resp, err := p.provider.Chat(ctx, providers.ChatRequest{
		Messages: messages,
		Model:    p.resolvedModel(),
	})
	if err != nil {
		return Plan{}, fmt.Errorf("planner: generate plan: %w", err)
	}

	var plan Plan
	if err := json.Unmarshal([]byte(resp.Content), &plan); err != nil {
		return Plan{}, fmt.Errorf("planner: parse plan response: %w", err)
	}
	if len(plan.Steps) == 0 {
		return Plan{}, fmt.Errorf("planner: model returned an empty plan")
	}
	return plan, nil
}

func buildPlanUserContent(prompt string, constraints []string, currentUrl string) string {
	out := "Goal: " + prompt
	if currentUrl != "" {
		out += "\nCurrent URL: " + currentUrl
	}
	for _, c := range constraints {
		out += "\nConstraint: " + c
	}
	return out
}

const decideSystemPrompt = `You control a web browser one step at a time. You are given the current
observation (url, title, selector_map of addressable elements) and recent history.
Call one or more of the navigate/click/type_text/select/scroll/wait/done tools to
propose the next actions, in the order they should run. Call "done" when the
goal is complete or cannot be completed, and nothing else in that case.`

// Decide implements spec §4.8's llm.decide: given the current request,
// observation, and prior-step history, return the next action batch.
func (p *Planner) Decide(ctx context.Context, goal string, obs Observation, history []string) (Decision, error) {
	messages := []providers.Message{
		{Role: "system", Content: decideSystemPrompt},
		{Role: "user", Content: buildDecideUserContent(goal, obs, history)},
	}

	resp, err := p.provider.Chat(ctx, providers.ChatRequest{
		Messages: messages,
		Tools:    actionTools(),
		Model:    p.resolvedModel(),
	})
	if err != nil {
		return Decision{}, fmt.Errorf("planner: decide: %w", err)
	}

	if len(resp.ToolCalls) == 0 {
		return Decision{}, fmt.Errorf("planner: model returned no tool calls")
	}

	actions := make([]Action, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		kind := actionKindFromToolName(tc.Name)
		if kind == "" {
			p.log.Warn("planner: ignoring unknown tool call", "name", tc.Name)
			continue
		}
		action, err := decodeAction(kind, tc.Arguments)
		if err != nil {
			return Decision{}, fmt.Errorf("planner: decode %q arguments: %w", tc.Name, err)
		}
		actions = append(actions, action)
	}
	if len(actions) == 0 {
		return Decision{}, fmt.Errorf("planner: no recognised tool calls among model output")
	}
	return Decision{Actions: actions}, nil
}

func decodeAction(kind ActionKind, args map[string]interface{}) (Action, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Action{}, err
	}
	var a Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return Action{}, err
	}
	a.Kind = kind
	return a, nil
}

func buildDecideUserContent(goal string, obs Observation, history []string) string {
	raw, _ := json.Marshal(obs)
	out := "Goal: " + goal + "\nObservation: " + string(raw)
	for _, h := range history {
		out += "\nHistory: " + h
	}
	return out
}
