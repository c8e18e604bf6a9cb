package scheduler

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

// ToolExecutor is the capability the scheduler dispatches work to. It knows
// nothing about plans, steps, or retries — only how to run one named tool
// against one resolved route. Spec component C4 (internal/browserkernel,
// backed by pkg/browser) implements this.
type ToolExecutor interface {
	Execute(ctx context.Context, tool string, route browsertypes.ExecRoute, payload json.RawMessage) (json.RawMessage, error)
}

// RouteResolver resolves a (possibly partial) RoutingHint into a concrete
// ExecRoute. Spec component C1 (the routing registry) implements this.
type RouteResolver interface {
	Resolve(hint *browsertypes.RoutingHint) (browsertypes.ExecRoute, error)
}

// EventSink receives a DispatchEvent once a dispatch reaches a terminal
// state. Spec component C2 (the state center) implements this.
type EventSink interface {
	RecordDispatch(ev DispatchEvent)
}

// Limits is a read-mostly snapshot of the scheduler-relevant policy knobs
// (spec §4.3's scheduler/retry defaults, projected into this package's
// vocabulary).
type Limits struct {
	GlobalSlots    int
	PerTaskLimit   int
	QueueCapacity  int
	DefaultRetry   RetryOpt
}

// LimitsProvider supplies the current Limits. Spec component C3 (the policy
// snapshot) implements this; the scheduler re-reads it on every admission
// decision so updates take effect without restarting in-flight dispatches.
type LimitsProvider interface {
	Snapshot() Limits
}

// StaticLimits is a LimitsProvider that never changes, useful for tests and
// for callers that don't need hot-reload.
type StaticLimits struct{ L Limits }

func (s StaticLimits) Snapshot() Limits { return s.L }
