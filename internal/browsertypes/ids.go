// Package browsertypes holds the identifiers and addressing primitives shared
// by the scheduler, the browser driver, and the browser-automation kernel.
// Keeping them in their own package (no behavior, just types) lets the
// scheduler resolve routes without importing the kernel that owns the
// routing registry, and lets pkg/browser speak the same addressing language
// without importing either.
package browsertypes

import "github.com/google/uuid"

// TaskId, SessionId, PageId, FrameId, and ActionId are opaque, globally
// unique strings. Comparisons are always byte-exact; callers must not parse
// them for embedded meaning.
type TaskId string
type SessionId string
type PageId string
type FrameId string
type ActionId string

// NewTaskId, NewSessionId, NewPageId, NewFrameId, and NewActionId mint fresh
// ids backed by a random UUIDv4. Production callers that need a caller-chosen
// id (e.g. a resumed task) should construct the typed string directly.
func NewTaskId() TaskId       { return TaskId(uuid.NewString()) }
func NewSessionId() SessionId { return SessionId(uuid.NewString()) }
func NewPageId() PageId       { return PageId(uuid.NewString()) }
func NewFrameId() FrameId     { return FrameId(uuid.NewString()) }
func NewActionId() ActionId   { return ActionId(uuid.NewString()) }
