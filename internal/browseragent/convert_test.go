package browseragent

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/browserkernel"
	"github.com/nextlevelbuilder/goclaw/internal/planner"
	"github.com/nextlevelbuilder/goclaw/pkg/browser"
)

func idx(i int) *int { return &i }

func TestResolveElementIndexPrefersCss(t *testing.T) {
	snap := browser.Snapshot{SelectorMap: []browser.SelectorEntry{
		{Index: 0, Css: "#submit", AriaRole: "button", Text: "Submit"},
	}}
	loc, err := resolveElementIndex(idx(0), snap)
	if err != nil {
		t.Fatalf("resolveElementIndex: %v", err)
	}
	if loc.Kind != browserkernel.LocatorCss || loc.Css != "#submit" {
		t.Fatalf("got %+v, want css locator", loc)
	}
}

func TestResolveElementIndexFallsBackToAriaThenText(t *testing.T) {
	snap := browser.Snapshot{SelectorMap: []browser.SelectorEntry{
		{Index: 0, AriaRole: "button"},
		{Index: 1, Text: "Learn more"},
	}}
	loc0, _ := resolveElementIndex(idx(0), snap)
	if loc0.Kind != browserkernel.LocatorAria {
		t.Fatalf("entry 0: got %+v, want aria locator", loc0)
	}
	loc1, _ := resolveElementIndex(idx(1), snap)
	if loc1.Kind != browserkernel.LocatorText || loc1.TextContent != "Learn more" {
		t.Fatalf("entry 1: got %+v, want text locator", loc1)
	}
}

func TestResolveElementIndexOutOfRangeErrors(t *testing.T) {
	snap := browser.Snapshot{SelectorMap: []browser.SelectorEntry{{Index: 0}}}
	if _, err := resolveElementIndex(idx(5), snap); err == nil {
		t.Fatal("expected an out-of-range error")
	}
	if _, err := resolveElementIndex(nil, snap); err == nil {
		t.Fatal("expected an error for a nil element_index")
	}
}

func TestActionsToStepsMapsVocabularyOneToOne(t *testing.T) {
	snap := browser.Snapshot{SelectorMap: []browser.SelectorEntry{{Index: 0, Css: "#field"}}}
	actions := []planner.Action{
		{Kind: planner.ActionNavigate, Url: "https://example.com"},
		{Kind: planner.ActionTypeText, ElementIndex: idx(0), Text: "hello", Submit: true},
		{Kind: planner.ActionScroll, ScrollTarget: "down"},
		{Kind: planner.ActionWait, WaitMs: 500},
	}

	steps, err := actionsToSteps(1, actions, snap)
	if err != nil {
		t.Fatalf("actionsToSteps: %v", err)
	}
	if len(steps) != 4 {
		t.Fatalf("got %d steps, want 4", len(steps))
	}
	if steps[0].Tool.Tag != browserkernel.ToolNavigate || steps[0].Tool.Url != "https://example.com" {
		t.Fatalf("step 0 = %+v", steps[0])
	}
	if steps[1].Tool.Tag != browserkernel.ToolTypeText || steps[1].Tool.Text != "hello" || !steps[1].Tool.Submit {
		t.Fatalf("step 1 = %+v", steps[1])
	}
	if steps[3].Tool.WaitCondition.Kind != browserkernel.CondDuration || steps[3].Tool.WaitCondition.Ms != 500 {
		t.Fatalf("step 3 = %+v", steps[3])
	}
}

func TestActionsToStepsRejectsNavigateWithoutUrl(t *testing.T) {
	_, err := actionsToSteps(1, []planner.Action{{Kind: planner.ActionNavigate}}, browser.Snapshot{})
	if err == nil {
		t.Fatal("expected an error for a navigate action missing url")
	}
}

func TestSplitAtDoneStopsAtFirstDone(t *testing.T) {
	actions := []planner.Action{
		{Kind: planner.ActionClick, ElementIndex: idx(0)},
		{Kind: planner.ActionDone, DoneSuccess: true, DoneText: "ok"},
		{Kind: planner.ActionScroll},
	}
	prefix, done, doneAction := splitAtDone(actions)
	if len(prefix) != 1 || !done || doneAction.DoneText != "ok" {
		t.Fatalf("prefix=%+v done=%v doneAction=%+v", prefix, done, doneAction)
	}
}

func TestSplitAtDoneNoneFound(t *testing.T) {
	actions := []planner.Action{{Kind: planner.ActionScroll}}
	prefix, done, _ := splitAtDone(actions)
	if len(prefix) != 1 || done {
		t.Fatalf("expected no Done found, got prefix=%+v done=%v", prefix, done)
	}
}
