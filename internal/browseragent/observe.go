package browseragent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
	"github.com/nextlevelbuilder/goclaw/pkg/browser"
)

// observe implements spec §4.8's state ← observe(route): wait for a ready
// CDP session, wait for the DOM to reach interactive/complete, then take a
// perception snapshot (and, optionally, a screenshot evidence artifact).
func (l *Loop) observe(ctx context.Context, route browsertypes.ExecRoute, taskID browsertypes.TaskId, emitScreenshot bool) (browser.Snapshot, error) {
	if err := l.waitCdpSessionReady(ctx, route); err != nil {
		return browser.Snapshot{}, fmt.Errorf("browseragent: cdp session not ready: %w", err)
	}
	if err := l.waitDomReady(ctx, route); err != nil {
		return browser.Snapshot{}, fmt.Errorf("browseragent: dom not ready: %w", err)
	}

	snap, err := l.driver.Observe(ctx, route)
	if err != nil {
		return browser.Snapshot{}, err
	}

	if emitScreenshot && l.stream != nil {
		if img, err := l.driver.Screenshot(ctx, route); err == nil {
			l.stream.PushEvidence(taskID, img)
		} else {
			l.log.Warn("browseragent: screenshot evidence capture failed", "error", err)
		}
	}

	return snap, nil
}

// waitCdpSessionReady polls CurrentURL (a no-op, low-cost driver call) up to
// 20 × 100 ms until it no longer errors, treating success as "the CDP
// session for this route is attached and responsive".
func (l *Loop) waitCdpSessionReady(ctx context.Context, route browsertypes.ExecRoute) error {
	var lastErr error
	for i := 0; i < cdpReadyPolls; i++ {
		if _, err := l.driver.CurrentURL(ctx, route); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-time.After(cdpReadyPeriod):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("cdp session not ready after %d polls: %w", cdpReadyPolls, lastErr)
}

// waitDomReady polls document.readyState up to 10 × 100 ms for
// interactive|complete.
func (l *Loop) waitDomReady(ctx context.Context, route browsertypes.ExecRoute) error {
	for i := 0; i < domReadyPolls; i++ {
		out, err := l.driver.Eval(ctx, route, `() => document.readyState`)
		if err == nil {
			state := string(out)
			if strings.Contains(state, "interactive") || strings.Contains(state, "complete") {
				return nil
			}
		}
		select {
		case <-time.After(domReadyPeriod):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("dom not interactive/complete after %d polls", domReadyPolls)
}
