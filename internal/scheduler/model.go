// Package scheduler implements the admission-controlled dispatcher (spec
// component C5): it accepts DispatchRequests, resolves them against a
// routing registry, runs them through a tool executor under a wall-clock
// deadline, retries according to a per-request budget, and records a
// dispatch timeline. It has no notion of plans or steps — that's the plan
// executor's job (internal/browserkernel) — and no notion of what a tool
// actually does — that's the tool executor's job (also browserkernel, via
// pkg/browser). The scheduler only knows how to admit, route, run, retry,
// and time a single dispatch.
package scheduler

import (
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

// Priority names a dispatch's priority band; the scheduler does not read it.
// Only Standard is defined by the spec today; the type leaves room for
// future bands without an API break.
type Priority int

const (
	PriorityStandard Priority = iota
)

// RetryOpt configures per-dispatch retry behavior. Max of zero means one
// attempt (no retries).
type RetryOpt struct {
	Max     int
	Backoff time.Duration
}

// CallOptions configures a single dispatch.
type CallOptions struct {
	Timeout       time.Duration
	Priority      Priority
	Interruptible bool
	Retry         RetryOpt
}

// DispatchRequest is what callers submit to the scheduler.
type DispatchRequest struct {
	ToolCall    browsertypes.ToolCall
	Options     CallOptions
	RoutingHint *browsertypes.RoutingHint
}

// DispatchTimeline records the three monotonic instants of one dispatch
// attempt sequence. WaitMs and RunMs are derived, never stored directly, so
// they can never drift from the instants that produced them.
type DispatchTimeline struct {
	EnqueuedAt time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// WaitMs returns started_at − enqueued_at in milliseconds, or zero if the
// dispatch never started.
func (t DispatchTimeline) WaitMs() int64 {
	if t.StartedAt == nil {
		return 0
	}
	return t.StartedAt.Sub(t.EnqueuedAt).Milliseconds()
}

// RunMs returns finished_at − started_at in milliseconds, or zero if the
// dispatch never finished (or never started).
func (t DispatchTimeline) RunMs() int64 {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt).Milliseconds()
}

// Status is the terminal state machine value for one dispatch.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// DispatchOutput is the result of a completed (or terminated) dispatch.
type DispatchOutput struct {
	Route    browsertypes.ExecRoute
	Output   json.RawMessage
	Error    string
	Status   Status
	Timeline DispatchTimeline
	Attempts int
}

// DispatchEvent is what the scheduler hands to its EventSink on completion
// (spec §4.5 "Reporting" and §6 "Dispatch events").
type DispatchEvent struct {
	Tool           string
	Route          browsertypes.ExecRoute
	Attempts       int
	WaitMs         int64
	RunMs          int64
	Pending        int
	SlotsAvailable int
	Status         Status
	Error          string
	RecordedAt     time.Time
}
