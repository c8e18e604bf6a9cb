package planner

import "github.com/nextlevelbuilder/goclaw/internal/providers"

// actionTools describes the agent loop's action vocabulary as function-call
// tools, grounded on the teacher's ToolDefinition/ToolFunctionSchema shape
// (internal/providers) rather than inventing a bespoke schema format.
func actionTools() []providers.ToolDefinition {
	str := map[string]any{"type": "string"}
	intType := map[string]any{"type": "integer"}
	boolType := map[string]any{"type": "boolean"}

	def := func(name, desc string, props map[string]any, required []string) providers.ToolDefinition {
		return providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        name,
				Description: desc,
				Parameters: map[string]any{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		}
	}

	return []providers.ToolDefinition{
		def("navigate", "Navigate the current page to an absolute URL.",
			map[string]any{"url": str}, []string{"url"}),
		def("click", "Click the element at element_index in the current selector_map.",
			map[string]any{"element_index": intType}, []string{"element_index"}),
		def("type_text", "Type text into the element at element_index, optionally submitting.",
			map[string]any{"element_index": intType, "text": str, "submit": boolType},
			[]string{"element_index", "text"}),
		def("select", "Choose an option on the select element at element_index.",
			map[string]any{"element_index": intType, "value": str, "method": str},
			[]string{"element_index", "value"}),
		def("scroll", "Scroll the page. scroll_target is up/down/top/bottom or a CSS selector.",
			map[string]any{"scroll_target": str}, nil),
		def("wait", "Pause before the next action.",
			map[string]any{"wait_ms": intType}, []string{"wait_ms"}),
		def("done", "Stop the loop and report the outcome to the user.",
			map[string]any{"success": boolType, "text_result": str}, []string{"success"}),
	}
}

func actionKindFromToolName(name string) ActionKind {
	switch name {
	case "navigate":
		return ActionNavigate
	case "click":
		return ActionClick
	case "type_text":
		return ActionTypeText
	case "select":
		return ActionSelect
	case "scroll":
		return ActionScroll
	case "wait":
		return ActionWait
	case "done":
		return ActionDone
	default:
		return ""
	}
}
