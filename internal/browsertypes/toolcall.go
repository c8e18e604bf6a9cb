package browsertypes

import "encoding/json"

// ToolCall names a tool and carries its opaque JSON payload. CallId and
// TaskId are optional: requests without a task id are "orphan" dispatches
// (ad-hoc tool invocations outside any plan).
type ToolCall struct {
	CallId  string          `json:"call_id,omitempty"`
	TaskId  TaskId          `json:"task_id,omitempty"`
	Tool    string          `json:"tool"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
