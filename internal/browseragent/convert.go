package browseragent

import (
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/browserkernel"
	"github.com/nextlevelbuilder/goclaw/internal/planner"
	"github.com/nextlevelbuilder/goclaw/pkg/browser"
)

// toPlannerObservation projects a perception snapshot into the narrower
// shape planner.Decide needs, keeping internal/planner free of a pkg/browser
// dependency.
func toPlannerObservation(snap browser.Snapshot) planner.Observation {
	refs := make([]planner.SelectorRef, len(snap.SelectorMap))
	for i, e := range snap.SelectorMap {
		refs[i] = planner.SelectorRef{Index: e.Index, Css: e.Css, AriaRole: e.AriaRole, AriaName: e.AriaName, Text: e.Text}
	}
	return planner.Observation{Url: snap.Url, Title: snap.Title, SelectorMap: refs}
}

// actionsToSteps converts the LLM's action vocabulary 1:1 onto
// browserkernel.ToolKind (spec §4.8), resolving element_index against the
// observation's selector_map (CSS > ARIA > visible text priority).
func actionsToSteps(stepNumber int, actions []planner.Action, snap browser.Snapshot) ([]browserkernel.Step, error) {
	steps := make([]browserkernel.Step, 0, len(actions))
	for i, a := range actions {
		id := fmt.Sprintf("loop-%d-%d", stepNumber, i)
		var kind browserkernel.ToolKind
		waitMode := browserkernel.WaitDomReady

		switch a.Kind {
		case planner.ActionNavigate:
			if a.Url == "" {
				return nil, fmt.Errorf("navigate action missing url")
			}
			kind = browserkernel.ToolKind{Tag: browserkernel.ToolNavigate, Url: a.Url}
		case planner.ActionClick:
			loc, err := resolveElementIndex(a.ElementIndex, snap)
			if err != nil {
				return nil, err
			}
			kind = browserkernel.ToolKind{Tag: browserkernel.ToolClick, Locator: loc}
		case planner.ActionTypeText:
			loc, err := resolveElementIndex(a.ElementIndex, snap)
			if err != nil {
				return nil, err
			}
			kind = browserkernel.ToolKind{Tag: browserkernel.ToolTypeText, Locator: loc, Text: a.Text, Submit: a.Submit}
		case planner.ActionSelect:
			loc, err := resolveElementIndex(a.ElementIndex, snap)
			if err != nil {
				return nil, err
			}
			kind = browserkernel.ToolKind{Tag: browserkernel.ToolSelect, Locator: loc, Value: a.Value, Method: a.Method}
		case planner.ActionScroll:
			waitMode = browserkernel.WaitNone
			kind = browserkernel.ToolKind{Tag: browserkernel.ToolScroll, ScrollTarget: a.ScrollTarget}
		case planner.ActionWait:
			waitMode = browserkernel.WaitNone
			kind = browserkernel.ToolKind{Tag: browserkernel.ToolWait, WaitCondition: browserkernel.AgentWaitCondition{
				Kind: browserkernel.CondDuration, Ms: a.WaitMs,
			}}
		default:
			return nil, fmt.Errorf("unsupported agent-loop action kind %q", a.Kind)
		}

		steps = append(steps, browserkernel.Step{
			Id:       id,
			Title:    fmt.Sprintf("agent action %s", a.Kind),
			Tool:     kind,
			WaitMode: waitMode,
		})
	}
	return steps, nil
}

// resolveElementIndex looks element_index up in snap's selector_map and
// builds a Locator preferring CSS, then ARIA, then visible text.
func resolveElementIndex(index *int, snap browser.Snapshot) (browserkernel.Locator, error) {
	if index == nil {
		return browserkernel.Locator{}, fmt.Errorf("action missing element_index")
	}
	if *index < 0 || *index >= len(snap.SelectorMap) {
		return browserkernel.Locator{}, fmt.Errorf("element_index %d out of range (selector_map has %d entries)", *index, len(snap.SelectorMap))
	}
	entry := snap.SelectorMap[*index]
	switch {
	case entry.Css != "":
		return browserkernel.Locator{Kind: browserkernel.LocatorCss, Css: entry.Css}, nil
	case entry.AriaRole != "" || entry.AriaName != "":
		return browserkernel.Locator{Kind: browserkernel.LocatorAria, AriaRole: entry.AriaRole, AriaName: entry.AriaName}, nil
	default:
		return browserkernel.Locator{Kind: browserkernel.LocatorText, TextContent: entry.Text}, nil
	}
}
