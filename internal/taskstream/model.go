// Package taskstream implements spec component C10: a per-task publish/
// subscribe event feed with bounded, replayable history. Producers call
// typed setters on a Handle; subscribers receive strictly-ordered envelopes
// and may resume from a cursor after a disconnect.
package taskstream

import (
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

// Ring capacities named in spec §3.
const (
	EvidenceCapacity     = 8
	ObservationCapacity  = 50
	AgentHistoryCapacity = 40
	WatchdogCapacity     = 40
	SelfHealCapacity     = 40
	AlertCapacity        = 20
	StreamHistoryCapacity = 256
	LogCapacity          = 200
)

// Status is a task's top-level execution status (spec §3).
type Status string

const (
	TaskPending Status = "pending"
	TaskRunning Status = "running"
	TaskSuccess Status = "success"
	TaskFailed  Status = "failed"
)

// LogLevel tags a TaskLogEntry.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is one entry of the per-task log ring, addressable by a
// monotonic cursor independent of the event-id sequence (spec §4.10).
type LogEntry struct {
	Cursor    uint64    `json:"cursor"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentHistoryStatus tags an AgentHistoryEntry.
type AgentHistoryStatus string

const (
	AgentHistorySuccess AgentHistoryStatus = "success"
	AgentHistoryFailure AgentHistoryStatus = "failure"
)

// AgentHistoryEntry records one agent-loop step for UI replay.
type AgentHistoryEntry struct {
	StepNumber int                `json:"step_number"`
	Status     AgentHistoryStatus `json:"status"`
	Summary    string             `json:"summary"`
	Timestamp  time.Time          `json:"timestamp"`
}

// WatchdogSeverity tags a watchdog finding.
type WatchdogSeverity string

const (
	WatchdogInfo WatchdogSeverity = "info"
	WatchdogWarn WatchdogSeverity = "warn"
	WatchdogSevere WatchdogSeverity = "severe"
)

// WatchdogEvent is a heuristic finding over recent evidence/observations
// (spec §4.10).
type WatchdogEvent struct {
	Severity  WatchdogSeverity `json:"severity"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}

// SelfHealEvent records an automatic recovery attempt (e.g. a guardrail
// recovery dispatch) for UI/audit purposes.
type SelfHealEvent struct {
	Kind      string    `json:"kind"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert is a severity≥warn notification, optionally forwarded to an
// external webhook (spec §4.10, §7).
type Alert struct {
	Severity  WatchdogSeverity `json:"severity"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}

// JudgeVerdict is set at plan completion regardless of outcome (spec §7).
type JudgeVerdict struct {
	Passed  bool   `json:"passed"`
	Summary string `json:"summary"`
}

// Overlay is a plan overlay annotation pushed onto the record (e.g. a
// highlighted element or note attached to the current step).
type Overlay struct {
	StepId  string `json:"step_id"`
	Content string `json:"content"`
}

// Annotation is a free-form note attached to the record, often produced by
// watchdog findings.
type Annotation struct {
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// EvidenceKind classifies a pushed evidence artifact (spec §4.10
// "auto-classified (image vs artifact)").
type EvidenceKind string

const (
	EvidenceImage    EvidenceKind = "image"
	EvidenceArtifact EvidenceKind = "artifact"
)

// Evidence is one entry of the bounded evidence ring.
type Evidence struct {
	Kind      EvidenceKind    `json:"kind"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Record is the full per-task status record (spec §3 "Task Status
// Record").
type Record struct {
	TaskId        browsertypes.TaskId
	Status        Status
	CurrentStepIdx int
	CurrentStepTitle string
	StartedAt     time.Time
	FinishedAt    *time.Time

	Logs          []LogEntry
	logCursor     uint64

	Overlays      []Overlay
	Evidence      []Evidence
	Observations  []Evidence
	AgentHistory  []AgentHistoryEntry
	Watchdogs     []WatchdogEvent
	SelfHeals     []SelfHealEvent
	Alerts        []Alert
	Annotations   []Annotation
	JudgeVerdict  *JudgeVerdict
}
