package taskstream

import (
	"encoding/json"
	"time"
)

// EventKind tags a StreamEvent (spec §4.10).
type EventKind string

const (
	EventStatus       EventKind = "status"
	EventLog          EventKind = "log"
	EventContext      EventKind = "context"
	EventObservation  EventKind = "observation"
	EventOverlay      EventKind = "overlay"
	EventAnnotation   EventKind = "annotation"
	EventAgentHistory EventKind = "agent_history"
	EventWatchdog     EventKind = "watchdog"
	EventJudge        EventKind = "judge"
	EventSelfHeal     EventKind = "self_heal"
	EventAlert        EventKind = "alert"
)

// StreamEvent is the typed payload inside an Envelope (spec §4.10).
type StreamEvent struct {
	Event     EventKind   `json:"event"`
	Payload   any         `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Envelope is what subscribers receive: a strictly increasing id per task
// plus the event (spec §6 "Task stream").
type Envelope struct {
	Id    uint64      `json:"id"`
	Event StreamEvent `json:"event"`
}

// MarshalJSON matches spec §6's wire shape: {"id": u64, "event": {"event":
// "<kind>", ...}}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type wire struct {
		Id    uint64 `json:"id"`
		Event struct {
			Event     EventKind `json:"event"`
			Payload   any       `json:"payload,omitempty"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"event"`
	}
	var w wire
	w.Id = e.Id
	w.Event.Event = e.Event.Event
	w.Event.Payload = e.Event.Payload
	w.Event.Timestamp = e.Event.Timestamp
	return json.Marshal(w)
}
