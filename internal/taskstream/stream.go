package taskstream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

// pushBounded appends v to s, trimming from the front once len(s) exceeds
// capN. Used for every ring in Record except the strictly-ordered history
// ring, which needs id-based replay and so gets its own implementation
// below.
func pushBounded[T any](s []T, v T, capN int) []T {
	s = append(s, v)
	if len(s) > capN {
		s = s[len(s)-capN:]
	}
	return s
}

type subscription struct {
	id int
	ch chan Envelope
}

type taskState struct {
	mu sync.Mutex

	record *Record

	seq     uint64
	history []Envelope // ring, capacity StreamHistoryCapacity
	next    int
	size    int

	subs    []subscription
	nextSub int
}

func newTaskState(id browsertypes.TaskId) *taskState {
	return &taskState{
		record:  &Record{TaskId: id, Status: TaskPending, StartedAt: time.Now().UTC()},
		history: make([]Envelope, StreamHistoryCapacity),
	}
}

// appendEvent assigns the next monotonic id, stores the event in the
// history ring, and broadcasts to all live subscribers. Slow subscribers
// that can't keep up are silently skipped (spec §6 "broadcast lag over
// history capacity is silently skipped by the server").
func (t *taskState) appendEvent(kind EventKind, payload any) Envelope {
	t.mu.Lock()
	t.seq++
	env := Envelope{Id: t.seq, Event: StreamEvent{Event: kind, Payload: payload, Timestamp: time.Now().UTC()}}
	t.history[t.next] = env
	t.next = (t.next + 1) % StreamHistoryCapacity
	if t.size < StreamHistoryCapacity {
		t.size++
	}
	subs := append([]subscription(nil), t.subs...)
	t.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- env:
		default:
		}
	}
	return env
}

// since returns every history entry with id > cursor, oldest first (P2).
func (t *taskState) since(cursor uint64) []Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ordered []Envelope
	if t.size < StreamHistoryCapacity {
		ordered = t.history[:t.size]
	} else {
		ordered = make([]Envelope, StreamHistoryCapacity)
		copy(ordered, t.history[t.next:])
		copy(ordered[StreamHistoryCapacity-t.next:], t.history[:t.next])
	}
	out := make([]Envelope, 0, len(ordered))
	for _, e := range ordered {
		if e.Id > cursor {
			out = append(out, e)
		}
	}
	return out
}

// Stream is spec component C10: a per-task pub/sub event feed with bounded,
// replayable history, owned by an application-context handle (spec §9 "no
// ambient globals") rather than a package-level singleton.
type Stream struct {
	mu    sync.Mutex
	tasks map[browsertypes.TaskId]*taskState

	webhook *alertForwarder
	log     *slog.Logger
}

// New builds a Stream. webhookURL may be empty to disable alert
// forwarding.
func New(webhookURL string, log *slog.Logger) *Stream {
	if log == nil {
		log = slog.Default()
	}
	return &Stream{
		tasks:   make(map[browsertypes.TaskId]*taskState),
		webhook: newAlertForwarder(webhookURL, log),
		log:     log,
	}
}

func (s *Stream) task(id browsertypes.TaskId) *taskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		t = newTaskState(id)
		s.tasks[id] = t
	}
	return t
}

// MarkRunning transitions a task to Running and emits a status event.
func (s *Stream) MarkRunning(id browsertypes.TaskId) {
	s.MarkStatus(id, TaskRunning)
}

// MarkStatus sets the task's top-level status and emits a status event.
func (s *Stream) MarkStatus(id browsertypes.TaskId, status Status) {
	t := s.task(id)
	t.mu.Lock()
	t.record.Status = status
	if status == TaskSuccess || status == TaskFailed {
		now := time.Now().UTC()
		t.record.FinishedAt = &now
	}
	t.mu.Unlock()
	t.appendEvent(EventStatus, map[string]any{"status": status})
}

// StepStarted records the current step and emits a log event.
func (s *Stream) StepStarted(id browsertypes.TaskId, stepID, title string) {
	t := s.task(id)
	t.mu.Lock()
	t.record.CurrentStepTitle = title
	t.mu.Unlock()
	s.Log(id, LogInfo, "step started: "+title)
	t.appendEvent(EventContext, map[string]any{"step_id": stepID, "title": title, "phase": "started"})
}

// StepCompleted emits a completion log + context event.
func (s *Stream) StepCompleted(id browsertypes.TaskId, stepID, title string) {
	s.Log(id, LogInfo, "step completed: "+title)
	s.task(id).appendEvent(EventContext, map[string]any{"step_id": stepID, "title": title, "phase": "completed"})
}

// StepFailed emits an error log + alert (spec §7 "every failure produces a
// log event at error level and, for severity ≥ warn, an alert event").
func (s *Stream) StepFailed(id browsertypes.TaskId, stepID, title, errText string) {
	s.Log(id, LogError, "step failed: "+title+": "+errText)
	s.task(id).appendEvent(EventContext, map[string]any{"step_id": stepID, "title": title, "phase": "failed", "error": errText})
	s.PushAlert(id, Alert{Severity: WatchdogWarn, Message: "step failed: " + title})
}

// Log appends to the bounded log ring and emits a log event.
func (s *Stream) Log(id browsertypes.TaskId, level LogLevel, message string) {
	t := s.task(id)
	t.mu.Lock()
	t.record.logCursor++
	entry := LogEntry{Cursor: t.record.logCursor, Level: level, Message: message, Timestamp: time.Now().UTC()}
	t.record.Logs = pushBounded(t.record.Logs, entry, LogCapacity)
	t.mu.Unlock()
	t.appendEvent(EventLog, entry)
}

// PushEvidence appends a screenshot/observation artifact to the bounded
// evidence ring, auto-classifying image vs artifact content. Image bytes
// are stored as a base64 JSON string; artifact data is kept as given JSON.
func (s *Stream) PushEvidence(id browsertypes.TaskId, data []byte) {
	kind := EvidenceArtifact
	raw := json.RawMessage(data)
	if looksLikeImage(data) {
		kind = EvidenceImage
		raw, _ = json.Marshal(data)
	}
	ev := Evidence{Kind: kind, Data: raw, Timestamp: time.Now().UTC()}
	t := s.task(id)
	t.mu.Lock()
	t.record.Evidence = pushBounded(t.record.Evidence, ev, EvidenceCapacity)
	t.mu.Unlock()
	t.appendEvent(EventObservation, ev)
	s.runWatchdog(id, ev)
}

func looksLikeImage(data []byte) bool {
	return len(data) >= 4 && (string(data[:4]) == "\x89PNG" || (len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8))
}

// PushExecutionOverlay appends a plan overlay annotation.
func (s *Stream) PushExecutionOverlay(id browsertypes.TaskId, overlay Overlay) {
	t := s.task(id)
	t.mu.Lock()
	t.record.Overlays = pushBounded(t.record.Overlays, overlay, StreamHistoryCapacity)
	t.mu.Unlock()
	t.appendEvent(EventOverlay, overlay)
}

// PushAlert appends to the bounded alert ring and, for alerts above info
// severity, forwards asynchronously to the configured webhook (spec §4.10: "webhook
// failures are logged, never surfaced").
func (s *Stream) PushAlert(id browsertypes.TaskId, a Alert) {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	t := s.task(id)
	t.mu.Lock()
	t.record.Alerts = pushBounded(t.record.Alerts, a, AlertCapacity)
	t.mu.Unlock()
	t.appendEvent(EventAlert, a)
	s.webhook.forward(id, a)
}

// SetJudgeVerdict records the plan-completion verdict (spec §7: "set at
// plan completion regardless of outcome").
func (s *Stream) SetJudgeVerdict(id browsertypes.TaskId, v JudgeVerdict) {
	t := s.task(id)
	t.mu.Lock()
	t.record.JudgeVerdict = &v
	t.mu.Unlock()
	t.appendEvent(EventJudge, v)
}

// PushSelfHealEvent records an automatic recovery attempt (e.g. a guardrail
// recovery dispatch).
func (s *Stream) PushSelfHealEvent(id browsertypes.TaskId, ev SelfHealEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	t := s.task(id)
	t.mu.Lock()
	t.record.SelfHeals = pushBounded(t.record.SelfHeals, ev, SelfHealCapacity)
	t.mu.Unlock()
	t.appendEvent(EventSelfHeal, ev)
}

// PushAgentHistory records one agent-loop step for UI replay.
func (s *Stream) PushAgentHistory(id browsertypes.TaskId, entry AgentHistoryEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	t := s.task(id)
	t.mu.Lock()
	t.record.AgentHistory = pushBounded(t.record.AgentHistory, entry, AgentHistoryCapacity)
	t.mu.Unlock()
	t.appendEvent(EventAgentHistory, entry)
}

// runWatchdog applies a simple heuristic over newly pushed evidence: any
// evidence item (of either kind and any size) pushed while the task already
// holds three or more alerts suggests a stuck loop. The finding is always
// severe and escalates to an alert (spec §4.10).
func (s *Stream) runWatchdog(id browsertypes.TaskId, ev Evidence) {
	t := s.task(id)
	t.mu.Lock()
	alertCount := len(t.record.Alerts)
	t.mu.Unlock()

	if alertCount < 3 {
		return
	}
	finding := WatchdogEvent{Severity: WatchdogSevere, Message: "repeated failures observed alongside evidence capture", Timestamp: time.Now().UTC()}
	t.mu.Lock()
	t.record.Watchdogs = pushBounded(t.record.Watchdogs, finding, WatchdogCapacity)
	t.record.Annotations = pushBounded(t.record.Annotations, Annotation{Source: "watchdog", Message: finding.Message, Timestamp: finding.Timestamp}, StreamHistoryCapacity)
	t.mu.Unlock()
	t.appendEvent(EventWatchdog, finding)
	s.PushAlert(id, Alert{Severity: WatchdogSevere, Message: finding.Message})
}

// Subscribe returns a channel of live events plus any backlog since
// lastEventID (nil means no replay), and an unsubscribe function. Matches
// spec §6's "client may include a last_event_id query parameter for
// resumption".
func (s *Stream) Subscribe(id browsertypes.TaskId, lastEventID *uint64) (<-chan Envelope, []Envelope, func()) {
	t := s.task(id)
	t.mu.Lock()
	sub := subscription{id: t.nextSub, ch: make(chan Envelope, 64)}
	t.nextSub++
	t.subs = append(t.subs, sub)
	t.mu.Unlock()

	var backlog []Envelope
	if lastEventID != nil {
		backlog = t.since(*lastEventID)
	}

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s2 := range t.subs {
			if s2.id == sub.id {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				close(s2.ch)
				break
			}
		}
	}
	return sub.ch, backlog, unsubscribe
}

// HistorySince returns every event with id > cursor (P2).
func (s *Stream) HistorySince(id browsertypes.TaskId, cursor uint64) []Envelope {
	return s.task(id).since(cursor)
}

// FetchLogs paginates the log ring by an optional timestamp floor and
// cursor, capped at limit ≤ 500 (spec §4.10).
func (s *Stream) FetchLogs(id browsertypes.TaskId, since *time.Time, cursor *uint64, limit int) []LogEntry {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	t := s.task(id)
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LogEntry, 0, limit)
	for _, entry := range t.record.Logs {
		if cursor != nil && entry.Cursor <= *cursor {
			continue
		}
		if since != nil && entry.Timestamp.Before(*since) {
			continue
		}
		out = append(out, entry)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Snapshot returns a copy of the task's full status record.
func (s *Stream) Snapshot(id browsertypes.TaskId) Record {
	t := s.task(id)
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.record
}
