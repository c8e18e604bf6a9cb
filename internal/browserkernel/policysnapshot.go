package browserkernel

import (
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/scheduler"
)

// RetryDefaults mirrors spec §4.3's retry_defaults block.
type RetryDefaults struct {
	MaxAttempts int
	BackoffMs   int
}

// ToolTimeouts maps a tool category (e.g. "dom", "navigation", "extract")
// to its default timeout.
type ToolTimeouts map[string]time.Duration

// FeatureFlags is the small set of boolean toggles the policy snapshot
// fans out (spec §4.2, §4.3).
type FeatureFlags struct {
	StateCenterPersistence bool
}

// Override is a single runtime knob override with provenance and optional
// expiry (spec §4.3).
type Override struct {
	Path   string
	Owner  string
	Reason string
	Value  any
	TTL    *time.Time
}

// PolicyValues is the read-mostly snapshot content (spec §4.3).
type PolicyValues struct {
	SchedulerLimits        scheduler.Limits
	RetryDefaults          RetryDefaults
	ToolTimeouts           ToolTimeouts
	RegistryProbeInterval  time.Duration
	Features               FeatureFlags
}

// PolicySnapshot is spec component C3: a hot-reloadable, clone-cheap view of
// scheduler/retry/feature limits with a watch channel for subscribers. It
// implements scheduler.LimitsProvider directly, so the scheduler always
// reads the live values.
type PolicySnapshot struct {
	mu        sync.RWMutex
	values    PolicyValues
	overrides map[string]Override
	watchers  []chan struct{}
}

// NewPolicySnapshot builds a policy snapshot seeded with values.
func NewPolicySnapshot(values PolicyValues) *PolicySnapshot {
	return &PolicySnapshot{values: values, overrides: make(map[string]Override)}
}

// DefaultPolicyValues returns a reasonable starting configuration.
func DefaultPolicyValues() PolicyValues {
	return PolicyValues{
		SchedulerLimits: scheduler.Limits{
			GlobalSlots:   8,
			PerTaskLimit:  2,
			QueueCapacity: 64,
			DefaultRetry:  scheduler.RetryOpt{Max: 1, Backoff: 200 * time.Millisecond},
		},
		RetryDefaults:         RetryDefaults{MaxAttempts: 1, BackoffMs: 200},
		ToolTimeouts:          ToolTimeouts{"dom": 10 * time.Second, "navigation": 15 * time.Second, "extract": 20 * time.Second},
		RegistryProbeInterval: 5 * time.Second,
		Features:              FeatureFlags{StateCenterPersistence: false},
	}
}

// Snapshot returns the current scheduler limits, implementing
// scheduler.LimitsProvider.
func (p *PolicySnapshot) Snapshot() scheduler.Limits {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values.SchedulerLimits
}

// Values returns a copy of the full policy snapshot, with expired overrides
// reaped first.
func (p *PolicySnapshot) Values() PolicyValues {
	p.reapExpired()
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values
}

// Update replaces the snapshot wholesale and notifies watchers. New
// capacities take effect on the scheduler's next admission decision;
// in-flight dispatches are unaffected (spec §4.3).
func (p *PolicySnapshot) Update(values PolicyValues) {
	p.mu.Lock()
	p.values = values
	watchers := append([]chan struct{}(nil), p.watchers...)
	p.mu.Unlock()
	for _, w := range watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

// SetOverride installs a dotted-path override with provenance and an
// optional TTL.
func (p *PolicySnapshot) SetOverride(o Override) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[o.Path] = o
}

// reapExpired drops overrides whose TTL has passed, per spec §4.3 ("expired
// overrides are reaped on next read").
func (p *PolicySnapshot) reapExpired() {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for path, o := range p.overrides {
		if o.TTL != nil && now.After(*o.TTL) {
			delete(p.overrides, path)
		}
	}
}

// Watch returns a channel that receives a notification (best-effort,
// non-blocking) on every Update call. Nothing in this module subscribes to
// it outside the tests.
func (p *PolicySnapshot) Watch() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan struct{}, 1)
	p.watchers = append(p.watchers, ch)
	return ch
}
