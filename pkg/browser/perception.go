package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

// interactiveSelector lists the element kinds the perception service
// considers candidates for the agent loop's element_index vocabulary.
const interactiveSelector = "a, button, input, select, textarea, [role], [onclick]"

// SelectorEntry is one addressable element in an Observation's selector_map.
// Index is stable for the lifetime of a single Observe call; a later
// Observe call may renumber elements as the DOM changes.
type SelectorEntry struct {
	Index    int    `json:"index"`
	Css      string `json:"css,omitempty"`
	AriaRole string `json:"aria_role,omitempty"`
	AriaName string `json:"aria_name,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Locator converts a selector_map entry into the JSON form of a
// browserkernel.Locator (as a map), preferring CSS over ARIA over visible
// text (spec §4.8).
func (s SelectorEntry) Locator() map[string]any {
	switch {
	case s.Css != "":
		return map[string]any{"kind": "css", "css": s.Css}
	case s.AriaRole != "" || s.AriaName != "":
		return map[string]any{"kind": "aria", "aria_role": s.AriaRole, "aria_name": s.AriaName}
	default:
		return map[string]any{"kind": "text", "text_content": s.Text}
	}
}

// Snapshot is the Perception Service's output: enough of the DOM/AX tree to
// let the planner pick an element_index without seeing raw HTML.
type Snapshot struct {
	Url         string
	Title       string
	SelectorMap []SelectorEntry
}

// Observe builds a Snapshot for page. It assumes the caller has already
// waited for the CDP session and DOM to be ready (spec §4.8 observe steps
// 1-2); Observe itself does no polling.
func Observe(ctx context.Context, page *rod.Page) (Snapshot, error) {
	page = page.Context(ctx)
	info, err := page.Info()
	if err != nil {
		return Snapshot{}, fmt.Errorf("browser: observe info: %w", err)
	}

	els, err := page.Elements(interactiveSelector)
	if err != nil {
		return Snapshot{}, fmt.Errorf("browser: observe elements: %w", err)
	}

	entries := make([]SelectorEntry, 0, len(els))
	for i, el := range els {
		entry := SelectorEntry{Index: i}
		if role, err := el.Attribute("role"); err == nil && role != nil {
			entry.AriaRole = *role
		}
		if label, err := el.Attribute("aria-label"); err == nil && label != nil {
			entry.AriaName = *label
		}
		if text, err := el.Text(); err == nil {
			entry.Text = text
		}
		if id, err := el.Attribute("id"); err == nil && id != nil && *id != "" {
			entry.Css = "#" + *id
		}
		entries = append(entries, entry)
	}

	return Snapshot{Url: info.URL, Title: info.Title, SelectorMap: entries}, nil
}

// Observe is a small convenience so callers that only have a
// browsertypes.ExecRoute (not a live *rod.Page) can still ask a Manager to
// observe it.
func (m *Manager) Observe(ctx context.Context, route browsertypes.ExecRoute) (Snapshot, error) {
	page, err := m.resolvePage(route)
	if err != nil {
		return Snapshot{}, err
	}
	return Observe(ctx, page)
}
