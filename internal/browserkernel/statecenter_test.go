package browserkernel

import (
	"os"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/scheduler"
)

func TestStateCenterSnapshotOrderBeforeWrap(t *testing.T) {
	c := NewStateCenter(4, nil)
	for i := 0; i < 3; i++ {
		c.RecordRegistry(RegistryEvent{Action: RegistryPageOpened, Page: "p"})
	}
	snap := c.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("got %d events, want 3", len(snap))
	}
	for i, ev := range snap {
		if int(ev.Sequence) != i+1 {
			t.Fatalf("snap[%d].Sequence = %d, want %d", i, ev.Sequence, i+1)
		}
	}
}

func TestStateCenterRingOverwritesOldestAtCapacity(t *testing.T) {
	c := NewStateCenter(3, nil)
	for i := 0; i < 5; i++ {
		c.RecordRegistry(RegistryEvent{Action: RegistryPageOpened, Page: "p"})
	}
	snap := c.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("got %d events, want 3 (bounded)", len(snap))
	}
	// Oldest surviving event should be sequence 3 (1 and 2 overwritten).
	if snap[0].Sequence != 3 {
		t.Fatalf("snap[0].Sequence = %d, want 3", snap[0].Sequence)
	}
	if snap[2].Sequence != 5 {
		t.Fatalf("snap[2].Sequence = %d, want 5", snap[2].Sequence)
	}
}

func TestStateCenterRecordDispatchImplementsEventSink(t *testing.T) {
	c := NewStateCenter(8, nil)
	var sink scheduler.EventSink = c
	sink.RecordDispatch(scheduler.DispatchEvent{Tool: "click", Status: scheduler.StatusSuccess})

	snap := c.Snapshot()
	if len(snap) != 1 || snap[0].Kind != StateEventDispatch {
		t.Fatalf("expected one dispatch event, got %+v", snap)
	}
}

func TestStateCenterPersistSnapshotWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	c := NewStateCenter(4, nil).WithPersistence(dir)
	c.RecordRegistry(RegistryEvent{Action: RegistrySessionCreated, Session: "s1"})
	c.PersistSnapshot()

	data, err := os.ReadFile(dir + "/state-center.json")
	if err != nil {
		t.Fatalf("expected snapshot file to exist: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty snapshot file")
	}
}
