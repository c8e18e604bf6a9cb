// Package browserkernel implements the core of the agentic browser-
// automation kernel: the routing registry (C1), state center (C2), policy
// snapshot (C3), tool executor (C4), plan executor (C6), guardrail &
// recovery (C7), and replan controller (C9). It depends on internal/scheduler
// for admission-controlled dispatch. It does not import pkg/browser: it
// defines the Driver capability interface, and pkg/browser (which imports
// this package) supplies the concrete driver/perception implementation.
package browserkernel

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

// SessionContext exposes a session's id and its currently focused page, if
// any (spec §4.1).
type SessionContext struct {
	Session     browsertypes.SessionId
	FocusedPage *browsertypes.PageId
}

type frameNode struct {
	id       browsertypes.FrameId
	parent   *browsertypes.FrameId
	isMain   bool
}

type pageNode struct {
	id     browsertypes.PageId
	frames map[browsertypes.FrameId]*frameNode
	mainID browsertypes.FrameId
}

type sessionNode struct {
	id         browsertypes.SessionId
	label      string
	pages      map[browsertypes.PageId]*pageNode
	focusedPg  *browsertypes.PageId
	pageOrder  []browsertypes.PageId
}

// Registry is spec component C1: the directed Session → Page → Frame tree,
// plus route resolution. All mutation happens under a single mutex —
// external events (frame attach/detach) are expected to be serialised by a
// single ingest goroutine upstream, per spec §5, but the registry itself is
// safe for concurrent use regardless.
type Registry struct {
	mu          sync.Mutex
	sessions    map[browsertypes.SessionId]*sessionNode
	sessionOrder []browsertypes.SessionId
}

// NewRegistry builds an empty routing registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[browsertypes.SessionId]*sessionNode)}
}

// SessionCreate registers a new session labelled label and returns its id.
func (r *Registry) SessionCreate(label string) browsertypes.SessionId {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := browsertypes.NewSessionId()
	r.sessions[id] = &sessionNode{id: id, label: label, pages: make(map[browsertypes.PageId]*pageNode)}
	r.sessionOrder = append(r.sessionOrder, id)
	return id
}

// SessionList returns every known session with its focused page, in
// creation order.
func (r *Registry) SessionList() []SessionContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionContext, 0, len(r.sessionOrder))
	for _, id := range r.sessionOrder {
		s, ok := r.sessions[id]
		if !ok {
			continue
		}
		var focused *browsertypes.PageId
		if s.focusedPg != nil {
			p := *s.focusedPg
			focused = &p
		}
		out = append(out, SessionContext{Session: id, FocusedPage: focused})
	}
	return out
}

// PageOpen opens a new page under session and returns its id. The page has
// a main frame already attached.
func (r *Registry) PageOpen(session browsertypes.SessionId) (browsertypes.PageId, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[session]
	if !ok {
		return "", fmt.Errorf("browserkernel: session %q not found", session)
	}
	pageID := browsertypes.NewPageId()
	mainFrame := browsertypes.NewFrameId()
	p := &pageNode{
		id:     pageID,
		frames: map[browsertypes.FrameId]*frameNode{mainFrame: {id: mainFrame, isMain: true}},
		mainID: mainFrame,
	}
	s.pages[pageID] = p
	s.pageOrder = append(s.pageOrder, pageID)
	return pageID, nil
}

// PageFocus marks page as the focused page of its owning session.
func (r *Registry) PageFocus(page browsertypes.PageId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, _, err := r.findPageLocked(page)
	if err != nil {
		return err
	}
	p := page
	s.focusedPg = &p
	return nil
}

// PageClose removes page from its session, clearing focus if it was
// focused.
func (r *Registry) PageClose(page browsertypes.PageId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, _, err := r.findPageLocked(page)
	if err != nil {
		return err
	}
	delete(s.pages, page)
	for i, id := range s.pageOrder {
		if id == page {
			s.pageOrder = append(s.pageOrder[:i], s.pageOrder[i+1:]...)
			break
		}
	}
	if s.focusedPg != nil && *s.focusedPg == page {
		s.focusedPg = nil
	}
	return nil
}

// FrameAttached records frame attaching to page, optionally under parent.
// Re-attaching the same frame id is a no-op (idempotent per spec §4.1) —
// external CDP events name their own frame ids, so frame identity comes
// from the caller rather than being synthesised here.
func (r *Registry) FrameAttached(page browsertypes.PageId, frame browsertypes.FrameId, parent *browsertypes.FrameId, isMain bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, p, err := r.findPageLocked(page)
	if err != nil {
		return err
	}
	return attachFrame(p, frame, parent, isMain)
}

func attachFrame(p *pageNode, frame browsertypes.FrameId, parent *browsertypes.FrameId, isMain bool) error {
	if _, exists := p.frames[frame]; exists {
		return nil // idempotent
	}
	p.frames[frame] = &frameNode{id: frame, parent: parent, isMain: isMain}
	if isMain {
		p.mainID = frame
	}
	return nil
}

// FrameFocus checks that frame is attached to page. Unknown frames return an
// error. No focused-frame state is recorded.
func (r *Registry) FrameFocus(page browsertypes.PageId, frame browsertypes.FrameId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, p, err := r.findPageLocked(page)
	if err != nil {
		return err
	}
	if _, ok := p.frames[frame]; !ok {
		return fmt.Errorf("browserkernel: frame %q not attached to page %q", frame, page)
	}
	return nil
}

// FrameDetached removes frame from page. Detaching an unknown frame is
// ignored (spec §4.1).
func (r *Registry) FrameDetached(page browsertypes.PageId, frame browsertypes.FrameId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, p, err := r.findPageLocked(page)
	if err != nil {
		return err
	}
	delete(p.frames, frame)
	return nil
}

func (r *Registry) findPageLocked(page browsertypes.PageId) (*sessionNode, *pageNode, error) {
	for _, id := range r.sessionOrder {
		s := r.sessions[id]
		if p, ok := s.pages[page]; ok {
			return s, p, nil
		}
	}
	return nil, nil, fmt.Errorf("browserkernel: page %q not found", page)
}

// RouteResolve implements spec §4.1's route_resolve policy: a fully
// populated hint is returned unchanged iff it still exists; otherwise
// missing components are filled in priority order (session, then page, then
// frame), synthesising sessions/pages as needed.
func (r *Registry) RouteResolve(hint *browsertypes.RoutingHint) (browsertypes.ExecRoute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if hint.Complete() {
		if s, p, f, ok := r.lookupLocked(*hint.Session, *hint.Page, *hint.Frame); ok {
			_ = s
			_ = p
			_ = f
			return hint.AsRoute(), nil
		}
	}

	sessID, err := r.resolveSessionLocked(hint)
	if err != nil {
		return browsertypes.ExecRoute{}, err
	}
	s := r.sessions[sessID]

	pageID, err := r.resolvePageLocked(s, hint)
	if err != nil {
		return browsertypes.ExecRoute{}, err
	}
	p := s.pages[pageID]

	frameID := r.resolveFrameLocked(p, hint)

	return browsertypes.ExecRoute{Session: sessID, Page: pageID, Frame: frameID}, nil
}

func (r *Registry) lookupLocked(sess browsertypes.SessionId, page browsertypes.PageId, frame browsertypes.FrameId) (*sessionNode, *pageNode, *frameNode, bool) {
	s, ok := r.sessions[sess]
	if !ok {
		return nil, nil, nil, false
	}
	p, ok := s.pages[page]
	if !ok {
		return nil, nil, nil, false
	}
	f, ok := p.frames[frame]
	if !ok {
		return nil, nil, nil, false
	}
	return s, p, f, true
}

// resolveSessionLocked implements priority (1): the hinted session if
// registered, else the first session with a focused page, else create one.
func (r *Registry) resolveSessionLocked(hint *browsertypes.RoutingHint) (browsertypes.SessionId, error) {
	if hint != nil && hint.Session != nil {
		if _, ok := r.sessions[*hint.Session]; ok {
			return *hint.Session, nil
		}
	}
	for _, id := range r.sessionOrder {
		if s := r.sessions[id]; s.focusedPg != nil {
			return id, nil
		}
	}
	id := browsertypes.NewSessionId()
	r.sessions[id] = &sessionNode{id: id, pages: make(map[browsertypes.PageId]*pageNode)}
	r.sessionOrder = append(r.sessionOrder, id)
	return id, nil
}

// resolvePageLocked implements priority (2): the session's focused page,
// else open and focus a new one.
func (r *Registry) resolvePageLocked(s *sessionNode, hint *browsertypes.RoutingHint) (browsertypes.PageId, error) {
	if s.focusedPg != nil {
		return *s.focusedPg, nil
	}
	pageID := browsertypes.NewPageId()
	mainFrame := browsertypes.NewFrameId()
	s.pages[pageID] = &pageNode{
		id:     pageID,
		frames: map[browsertypes.FrameId]*frameNode{mainFrame: {id: mainFrame, isMain: true}},
		mainID: mainFrame,
	}
	s.pageOrder = append(s.pageOrder, pageID)
	s.focusedPg = &pageID
	return pageID, nil
}

// resolveFrameLocked implements priority (3): the hint's frame if attached
// to page, else the page's main frame.
func (r *Registry) resolveFrameLocked(p *pageNode, hint *browsertypes.RoutingHint) browsertypes.FrameId {
	if hint != nil && hint.Frame != nil {
		if _, ok := p.frames[*hint.Frame]; ok {
			return *hint.Frame
		}
	}
	return p.mainID
}

// Resolve implements scheduler.RouteResolver by delegating to RouteResolve.
func (r *Registry) Resolve(hint *browsertypes.RoutingHint) (browsertypes.ExecRoute, error) {
	return r.RouteResolve(hint)
}

// sortedSessionIds is a small helper kept for diagnostics/tests that want a
// deterministic dump independent of map iteration order.
func (r *Registry) sortedSessionIds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, string(id))
	}
	sort.Strings(out)
	return out
}
