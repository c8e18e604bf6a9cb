package browserkernel

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/scheduler"
)

func TestPolicySnapshotImplementsLimitsProvider(t *testing.T) {
	values := DefaultPolicyValues()
	values.SchedulerLimits.GlobalSlots = 6
	p := NewPolicySnapshot(values)

	var lp scheduler.LimitsProvider = p
	if lp.Snapshot().GlobalSlots != 6 {
		t.Fatalf("GlobalSlots = %d, want 6", lp.Snapshot().GlobalSlots)
	}
}

func TestPolicySnapshotUpdateNotifiesWatchers(t *testing.T) {
	p := NewPolicySnapshot(DefaultPolicyValues())
	ch := p.Watch()

	updated := DefaultPolicyValues()
	updated.SchedulerLimits.GlobalSlots = 99
	p.Update(updated)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a notification on the watch channel after Update")
	}
	if p.Snapshot().GlobalSlots != 99 {
		t.Fatalf("GlobalSlots = %d, want 99 after update", p.Snapshot().GlobalSlots)
	}
}

func TestPolicySnapshotUpdateDoesNotBlockOnFullWatcher(t *testing.T) {
	p := NewPolicySnapshot(DefaultPolicyValues())
	p.Watch() // never drained

	done := make(chan struct{})
	go func() {
		p.Update(DefaultPolicyValues())
		p.Update(DefaultPolicyValues())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Update should never block on a slow/undrained watcher")
	}
}

func TestPolicySnapshotReapsExpiredOverrides(t *testing.T) {
	p := NewPolicySnapshot(DefaultPolicyValues())
	past := time.Now().Add(-time.Hour)
	p.SetOverride(Override{Path: "scheduler.global_slots", Value: 1, TTL: &past})

	p.reapExpired()
	p.mu.RLock()
	_, ok := p.overrides["scheduler.global_slots"]
	p.mu.RUnlock()
	if ok {
		t.Fatal("expected expired override to be reaped")
	}
}
