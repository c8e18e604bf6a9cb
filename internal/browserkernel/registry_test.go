package browserkernel

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

func TestRouteResolveFillsFromEmptyRegistry(t *testing.T) {
	r := NewRegistry()

	route, err := r.RouteResolve(&browsertypes.RoutingHint{Prefer: browsertypes.PreferFocused})
	if err != nil {
		t.Fatalf("RouteResolve: %v", err)
	}
	if route.Session == "" || route.Page == "" || route.Frame == "" {
		t.Fatalf("expected a fully populated route, got %+v", route)
	}

	sessions := r.SessionList()
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1 (auto-created)", len(sessions))
	}
	if sessions[0].FocusedPage == nil || *sessions[0].FocusedPage != route.Page {
		t.Fatalf("auto-created session's focused page doesn't match resolved route")
	}
}

func TestSessionCreatePageOpenFocusRouteResolve(t *testing.T) {
	r := NewRegistry()
	sess := r.SessionCreate("agent-runtime")

	page, err := r.PageOpen(sess)
	if err != nil {
		t.Fatalf("PageOpen: %v", err)
	}
	if err := r.PageFocus(page); err != nil {
		t.Fatalf("PageFocus: %v", err)
	}

	route, err := r.RouteResolve(nil)
	if err != nil {
		t.Fatalf("RouteResolve: %v", err)
	}
	if route.Session != sess {
		t.Fatalf("route.Session = %q, want %q", route.Session, sess)
	}
	if route.Page != page {
		t.Fatalf("route.Page = %q, want %q", route.Page, page)
	}
}

func TestRouteResolveHonoursCompleteHint(t *testing.T) {
	r := NewRegistry()
	sess := r.SessionCreate("s")
	page, _ := r.PageOpen(sess)

	frame := browsertypes.NewFrameId()
	if err := r.FrameAttached(page, frame, nil, false); err != nil {
		t.Fatalf("FrameAttached: %v", err)
	}

	hint := &browsertypes.RoutingHint{Session: &sess, Page: &page, Frame: &frame}
	route, err := r.RouteResolve(hint)
	if err != nil {
		t.Fatalf("RouteResolve: %v", err)
	}
	if route.Frame != frame {
		t.Fatalf("route.Frame = %q, want %q", route.Frame, frame)
	}
}

func TestFrameAttachedIsIdempotent(t *testing.T) {
	r := NewRegistry()
	sess := r.SessionCreate("s")
	page, _ := r.PageOpen(sess)
	frame := browsertypes.NewFrameId()

	if err := r.FrameAttached(page, frame, nil, false); err != nil {
		t.Fatalf("first FrameAttached: %v", err)
	}
	if err := r.FrameAttached(page, frame, nil, false); err != nil {
		t.Fatalf("repeat FrameAttached should be a no-op, got: %v", err)
	}
}

func TestFrameDetachedIgnoresUnknownFrame(t *testing.T) {
	r := NewRegistry()
	sess := r.SessionCreate("s")
	page, _ := r.PageOpen(sess)

	if err := r.FrameDetached(page, browsertypes.NewFrameId()); err != nil {
		t.Fatalf("detaching an unknown frame should be ignored, got: %v", err)
	}
}

func TestPageCloseClearsFocus(t *testing.T) {
	r := NewRegistry()
	sess := r.SessionCreate("s")
	page, _ := r.PageOpen(sess)
	if err := r.PageFocus(page); err != nil {
		t.Fatalf("PageFocus: %v", err)
	}
	if err := r.PageClose(page); err != nil {
		t.Fatalf("PageClose: %v", err)
	}

	sessions := r.SessionList()
	if sessions[0].FocusedPage != nil {
		t.Fatalf("expected focus cleared after closing the focused page")
	}
}

func TestPageOpenUnknownSessionErrors(t *testing.T) {
	r := NewRegistry()
	if _, err := r.PageOpen(browsertypes.NewSessionId()); err == nil {
		t.Fatal("expected error opening a page under an unknown session")
	}
}
