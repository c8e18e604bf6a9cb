package planner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

type fakeProvider struct {
	chatResp *providers.ChatResponse
	chatErr  error
	model    string
}

func (f *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return f.chatResp, f.chatErr
}
func (f *fakeProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return f.chatResp, f.chatErr
}
func (f *fakeProvider) DefaultModel() string { return f.model }
func (f *fakeProvider) Name() string         { return "fake" }

func TestGeneratePlanParsesJsonContent(t *testing.T) {
	plan := Plan{Title: "open quote", Steps: []PlanStep{
		{Title: "navigate", Action: Action{Kind: ActionNavigate, Url: "https://quote.eastmoney.com/600519.html"}},
	}}
	raw, _ := json.Marshal(plan)
	p := New(&fakeProvider{chatResp: &providers.ChatResponse{Content: string(raw)}, model: "m1"}, "", nil)

	got, err := p.GeneratePlan(context.Background(), "open the quote page", nil, "")
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if got.Title != "open quote" || len(got.Steps) != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestGeneratePlanRejectsEmptyPlan(t *testing.T) {
	p := New(&fakeProvider{chatResp: &providers.ChatResponse{Content: `{"title":"x","steps":[]}`}}, "", nil)
	if _, err := p.GeneratePlan(context.Background(), "goal", nil, ""); err == nil {
		t.Fatal("expected an error for an empty plan")
	}
}

func TestDecideConvertsToolCallsToActions(t *testing.T) {
	resp := &providers.ChatResponse{
		ToolCalls: []providers.ToolCall{
			{ID: "1", Name: "navigate", Arguments: map[string]interface{}{"url": "https://example.com"}},
			{ID: "2", Name: "click", Arguments: map[string]interface{}{"element_index": 3}},
		},
	}
	p := New(&fakeProvider{chatResp: resp}, "", nil)

	decision, err := p.Decide(context.Background(), "goal", Observation{Url: "https://example.com"}, nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(decision.Actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(decision.Actions))
	}
	if decision.Actions[0].Kind != ActionNavigate || decision.Actions[0].Url != "https://example.com" {
		t.Fatalf("action[0] = %+v", decision.Actions[0])
	}
	if decision.Actions[1].Kind != ActionClick || decision.Actions[1].ElementIndex == nil || *decision.Actions[1].ElementIndex != 3 {
		t.Fatalf("action[1] = %+v", decision.Actions[1])
	}
}

func TestDecideIgnoresUnknownToolNames(t *testing.T) {
	resp := &providers.ChatResponse{
		ToolCalls: []providers.ToolCall{
			{ID: "1", Name: "teleport", Arguments: map[string]interface{}{}},
			{ID: "2", Name: "done", Arguments: map[string]interface{}{"success": true}},
		},
	}
	p := New(&fakeProvider{chatResp: resp}, "", nil)

	decision, err := p.Decide(context.Background(), "goal", Observation{}, nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(decision.Actions) != 1 || decision.Actions[0].Kind != ActionDone {
		t.Fatalf("expected only the done action to survive, got %+v", decision.Actions)
	}
}

func TestDecideErrorsWhenNoToolCallsSurvive(t *testing.T) {
	resp := &providers.ChatResponse{ToolCalls: []providers.ToolCall{{Name: "unknown"}}}
	p := New(&fakeProvider{chatResp: resp}, "", nil)
	if _, err := p.Decide(context.Background(), "goal", Observation{}, nil); err == nil {
		t.Fatal("expected an error when no tool calls are recognised")
	}
}
