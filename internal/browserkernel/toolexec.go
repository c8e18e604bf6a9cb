package browserkernel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

// Driver is the capability interface a Tool Executor drives (spec's
// "Browser Driver" external collaborator, §1). pkg/browser's rod-backed
// implementation satisfies this structurally; browserkernel never imports
// pkg/browser, avoiding a cycle (spec §9 "dynamic dispatch" design note).
type Driver interface {
	Navigate(ctx context.Context, route browsertypes.ExecRoute, url string) error
	Click(ctx context.Context, route browsertypes.ExecRoute, loc Locator) error
	TypeText(ctx context.Context, route browsertypes.ExecRoute, loc Locator, text string, submit bool) error
	Select(ctx context.Context, route browsertypes.ExecRoute, loc Locator, value, method string) error
	Scroll(ctx context.Context, route browsertypes.ExecRoute, target string) error
	Wait(ctx context.Context, route browsertypes.ExecRoute, cond AgentWaitCondition) error
	Screenshot(ctx context.Context, route browsertypes.ExecRoute) ([]byte, error)
	Eval(ctx context.Context, route browsertypes.ExecRoute, script string) (json.RawMessage, error)
	CurrentURL(ctx context.Context, route browsertypes.ExecRoute) (string, error)
	Title(ctx context.Context, route browsertypes.ExecRoute) (string, error)

	// Stub reports whether the driver is in a non-interactive mode, used
	// for the DOM-unavailable pre-flight check (spec §4.6).
	Stub() bool
}

// ToolHandler implements one dotted tool id against a Driver.
type ToolHandler func(ctx context.Context, d Driver, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error)

// ToolExecutor is spec component C4: a single entry point that looks a tool
// up by name, enforces preconditions, and runs it against a resolved route.
// It implements scheduler.ToolExecutor.
type ToolExecutor struct {
	driver Driver
	tools  map[string]ToolHandler
}

// NewToolExecutor builds a tool executor over driver with the standard
// browser tool table plus any extras supplied.
func NewToolExecutor(driver Driver, extra map[string]ToolHandler) *ToolExecutor {
	e := &ToolExecutor{driver: driver, tools: standardTools()}
	for name, h := range extra {
		e.tools[name] = h
	}
	return e
}

// domTools is the set of tool ids that require live DOM interaction and
// therefore fail fast under a stub driver (spec §4.6 pre-flight).
var domTools = map[string]bool{
	"navigate-to-url":  true,
	"browser.click":    true,
	"browser.type-text": true,
	"browser.select":   true,
	"browser.scroll":   true,
	"browser.wait":     true,
}

// RequiresDom reports whether tool is one of the DOM-interaction tools.
func RequiresDom(tool string) bool { return domTools[tool] }

type waitTierPayload struct {
	WaitTier string `json:"wait_tier,omitempty"`
}

// Execute implements scheduler.ToolExecutor (spec §4.4).
func (e *ToolExecutor) Execute(ctx context.Context, tool string, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error) {
	handler, ok := e.tools[tool]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}
	if domTools[tool] && e.driver.Stub() {
		return nil, fmt.Errorf("%w: tool %q", ErrDomUnavailable, tool)
	}
	out, err := handler(ctx, e.driver, route, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolRuntime, err)
	}
	return out, nil
}

func standardTools() map[string]ToolHandler {
	return map[string]ToolHandler{
		"navigate-to-url": func(ctx context.Context, d Driver, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error) {
			var p struct {
				Url string `json:"url"`
			}
			if err := json.Unmarshal(payload, &p); err != nil || p.Url == "" {
				return nil, fmt.Errorf("%w: navigate-to-url requires url", ErrMalformedPayload)
			}
			if err := d.Navigate(ctx, route, p.Url); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"navigated_to": p.Url})
		},
		"browser.click": func(ctx context.Context, d Driver, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error) {
			var p struct {
				Locator Locator `json:"locator"`
			}
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
			if err := d.Click(ctx, route, p.Locator); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"clicked": true})
		},
		"browser.type-text": func(ctx context.Context, d Driver, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error) {
			var p struct {
				Locator Locator `json:"locator"`
				Text    string  `json:"text"`
				Submit  bool    `json:"submit"`
			}
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
			if err := d.TypeText(ctx, route, p.Locator, p.Text, p.Submit); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"typed": true})
		},
		"browser.select": func(ctx context.Context, d Driver, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error) {
			var p struct {
				Locator Locator `json:"locator"`
				Value   string  `json:"value"`
				Method  string  `json:"method"`
			}
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
			if err := d.Select(ctx, route, p.Locator, p.Value, p.Method); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"selected": p.Value})
		},
		"browser.scroll": func(ctx context.Context, d Driver, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error) {
			var p struct {
				Target string `json:"target"`
			}
			_ = json.Unmarshal(payload, &p)
			if err := d.Scroll(ctx, route, p.Target); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"scrolled": true})
		},
		"browser.wait": func(ctx context.Context, d Driver, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error) {
			var p struct {
				Condition AgentWaitCondition `json:"condition"`
			}
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
			if err := d.Wait(ctx, route, p.Condition); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"waited": true})
		},
		"take-screenshot": func(ctx context.Context, d Driver, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error) {
			img, err := d.Screenshot(ctx, route)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"bytes": img, "content_type": "image/png"})
		},
		"weather.search": func(ctx context.Context, d Driver, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error) {
			if err := d.Navigate(ctx, route, "https://www.moji.com"); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"status": "weather_ready", "destination_url": "https://www.moji.com"})
		},
		"browser.close-modal": func(ctx context.Context, d Driver, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error) {
			if err := d.Wait(ctx, route, AgentWaitCondition{Kind: CondDuration, Ms: 50}); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"closed": true})
		},
		"browser.send-esc": func(ctx context.Context, d Driver, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error) {
			return json.Marshal(map[string]any{"sent": "esc"})
		},
		"data.extract-site": func(ctx context.Context, d Driver, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error) {
			var in struct {
				Url string `json:"url"`
			}
			_ = json.Unmarshal(payload, &in)
			if in.Url != "" {
				if err := d.Navigate(ctx, route, in.Url); err != nil {
					return nil, err
				}
			}
			url, err := d.CurrentURL(ctx, route)
			if err != nil {
				return nil, err
			}
			title, err := d.Title(ctx, route)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"observation": map[string]any{"url": url, "title": title}})
		},
		"data.validate-target": func(ctx context.Context, d Driver, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error) {
			url, err := d.CurrentURL(ctx, route)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]any{"current_url": url})
		},
	}
}

// waitTierFor projects a WaitMode onto the wait_tier field embedded in an
// action payload (spec §4.6 step 2).
func waitTierFor(mode WaitMode) string {
	switch mode {
	case WaitDomReady:
		return "domready"
	case WaitIdle:
		return "idle"
	default:
		return ""
	}
}

// withWaitTier merges wait_tier into an existing JSON payload object.
func withWaitTier(payload json.RawMessage, mode WaitMode) json.RawMessage {
	tier := waitTierFor(mode)
	if tier == "" {
		return payload
	}
	var m map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &m); err != nil {
			m = nil
		}
	}
	if m == nil {
		m = map[string]any{}
	}
	m["wait_tier"] = tier
	out, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return out
}

// defaultDispatchTimeout is used when a step/validation spec names none
// (spec §4.6 step 5).
const defaultDispatchTimeout = 30 * time.Second
