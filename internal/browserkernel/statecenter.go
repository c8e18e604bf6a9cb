package browserkernel

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/scheduler"
)

// StateEventKind tags a StateEvent.
type StateEventKind string

const (
	StateEventDispatch StateEventKind = "dispatch"
	StateEventRegistry StateEventKind = "registry"
)

// RegistryAction tags a registry lifecycle event.
type RegistryAction string

const (
	RegistrySessionCreated RegistryAction = "session_created"
	RegistryPageOpened     RegistryAction = "page_opened"
	RegistryPageFocused    RegistryAction = "page_focused"
	RegistryPageClosed     RegistryAction = "page_closed"
	RegistryFrameAttached  RegistryAction = "frame_attached"
	RegistryFrameFocused   RegistryAction = "frame_focused"
	RegistryFrameDetached  RegistryAction = "frame_detached"
)

// RegistryEvent records a session/page/frame lifecycle transition (spec
// §6 "Registry events").
type RegistryEvent struct {
	Action    RegistryAction `json:"action"`
	Session   string         `json:"session,omitempty"`
	Page      string         `json:"page,omitempty"`
	Frame     string         `json:"frame,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// StateEvent is one entry of the state center's ring (spec §3 and §4.2).
// Exactly one of Dispatch/Registry is populated, selected by Kind.
type StateEvent struct {
	Kind      StateEventKind         `json:"kind"`
	Dispatch  *scheduler.DispatchEvent `json:"dispatch,omitempty"`
	Registry  *RegistryEvent         `json:"registry,omitempty"`
	Sequence  uint64                 `json:"sequence"`
}

// StateCenter is spec component C2: a bounded, append-only log of dispatch
// and registry events. Writes are wait-free up to capacity; beyond that the
// oldest event is overwritten (a ring buffer). Reads return a consistent
// point-in-time copy.
type StateCenter struct {
	mu       sync.Mutex
	buf      []StateEvent
	next     int
	size     int
	capacity int
	seq      uint64

	persistPath string
	log         *slog.Logger
}

// NewStateCenter builds a state center with the given ring capacity (spec
// §4.2 suggests ≈1024 for production, 256 for ephemeral perception rings).
func NewStateCenter(capacity int, log *slog.Logger) *StateCenter {
	if capacity <= 0 {
		capacity = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	return &StateCenter{buf: make([]StateEvent, capacity), capacity: capacity, log: log}
}

// WithPersistence enables periodic snapshot persistence to dir (the
// state_center_persistence feature flag, spec §4.2 and §4.3). Call
// PersistSnapshot on whatever cadence the policy snapshot names.
func (c *StateCenter) WithPersistence(dir string) *StateCenter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistPath = dir
	return c
}

// RecordDispatch appends a dispatch event, implementing
// scheduler.EventSink so the scheduler can be wired directly to the state
// center.
func (c *StateCenter) RecordDispatch(ev scheduler.DispatchEvent) {
	c.append(StateEvent{Kind: StateEventDispatch, Dispatch: &ev})
}

// RecordRegistry appends a registry lifecycle event.
func (c *StateCenter) RecordRegistry(ev RegistryEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	c.append(StateEvent{Kind: StateEventRegistry, Registry: &ev})
}

func (c *StateCenter) append(ev StateEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	ev.Sequence = c.seq
	c.buf[c.next] = ev
	c.next = (c.next + 1) % c.capacity
	if c.size < c.capacity {
		c.size++
	}
}

// Snapshot returns a consistent, time-ordered copy of the ring's current
// contents.
func (c *StateCenter) Snapshot() []StateEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StateEvent, c.size)
	if c.size < c.capacity {
		copy(out, c.buf[:c.size])
		return out
	}
	// Ring is full: oldest entry is at c.next, wrap around from there.
	copy(out, c.buf[c.next:])
	copy(out[c.capacity-c.next:], c.buf[:c.next])
	return out
}

// PersistSnapshot writes the current ring to <dir>/state-center.json.
// Failure to persist is logged but never propagated (spec §4.2).
func (c *StateCenter) PersistSnapshot() {
	c.mu.Lock()
	dir := c.persistPath
	c.mu.Unlock()
	if dir == "" {
		return
	}
	snap := c.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		c.log.Warn("state center snapshot marshal failed", "error", err)
		return
	}
	path := filepath.Join(dir, "state-center.json")
	if err := atomicWriteFile(path, data); err != nil {
		c.log.Warn("state center snapshot persist failed", "path", path, "error", err)
	}
}

// atomicWriteFile writes data to path via a temp file + Sync + rename, so a
// reader never sees a partially written snapshot.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".state-center-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
