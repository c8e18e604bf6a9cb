package taskstream

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

func TestMonotoneStreamIds(t *testing.T) {
	s := New("", nil)
	taskID := browsertypes.TaskId("t1")

	s.MarkRunning(taskID)
	s.Log(taskID, LogInfo, "hello")
	s.Log(taskID, LogInfo, "world")

	hist := s.HistorySince(taskID, 0)
	var last uint64
	for _, env := range hist {
		if env.Id <= last {
			t.Fatalf("event ids not strictly increasing: %d after %d", env.Id, last)
		}
		last = env.Id
	}
	if len(hist) != 3 {
		t.Fatalf("got %d events, want 3", len(hist))
	}
}

func TestHistoryReplayFromCursor(t *testing.T) {
	s := New("", nil)
	taskID := browsertypes.TaskId("t1")

	s.MarkRunning(taskID)
	s.Log(taskID, LogInfo, "a")
	s.Log(taskID, LogInfo, "b")

	all := s.HistorySince(taskID, 0)
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}
	suffix := s.HistorySince(taskID, all[0].Id)
	if len(suffix) != 2 {
		t.Fatalf("got %d events after cursor, want 2", len(suffix))
	}
	if suffix[0].Id != all[1].Id {
		t.Fatalf("suffix[0].Id = %d, want %d", suffix[0].Id, all[1].Id)
	}
}

func TestSubscribeReplayThenLiveSeesEverything(t *testing.T) {
	s := New("", nil)
	taskID := browsertypes.TaskId("t1")

	s.MarkRunning(taskID)

	live, backlog, unsubscribe := s.Subscribe(taskID, uint64Ptr(0))
	defer unsubscribe()
	if len(backlog) != 1 {
		t.Fatalf("backlog len = %d, want 1", len(backlog))
	}

	s.Log(taskID, LogInfo, "after-subscribe")
	env := <-live
	if env.Event.Event != EventLog {
		t.Fatalf("event kind = %s, want log", env.Event.Event)
	}
}

func TestAlertRingIsBounded(t *testing.T) {
	s := New("", nil)
	taskID := browsertypes.TaskId("t1")
	for i := 0; i < AlertCapacity+5; i++ {
		s.PushAlert(taskID, Alert{Severity: WatchdogWarn, Message: "x"})
	}
	rec := s.Snapshot(taskID)
	if len(rec.Alerts) != AlertCapacity {
		t.Fatalf("alerts len = %d, want %d", len(rec.Alerts), AlertCapacity)
	}
}

func TestFetchLogsRespectsCursorAndLimit(t *testing.T) {
	s := New("", nil)
	taskID := browsertypes.TaskId("t1")
	for i := 0; i < 10; i++ {
		s.Log(taskID, LogInfo, "entry")
	}
	logs := s.FetchLogs(taskID, nil, nil, 3)
	if len(logs) != 3 {
		t.Fatalf("got %d logs, want 3", len(logs))
	}
	cursor := logs[len(logs)-1].Cursor
	next := s.FetchLogs(taskID, nil, &cursor, 100)
	if len(next) != 7 {
		t.Fatalf("got %d logs after cursor, want 7", len(next))
	}
}

func uint64Ptr(v uint64) *uint64 { return &v }
