// Package browser is the concrete CDP-driven implementation of
// browserkernel.Driver: it owns the go-rod browser/launcher lifecycle and
// maps routing-registry ids onto live rod pages. browserkernel never
// imports this package — Manager satisfies browserkernel.Driver
// structurally, so the dependency only runs this direction.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nextlevelbuilder/goclaw/internal/browserkernel"
	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithHeadless toggles headless mode for the launched Chromium instance.
func WithHeadless(headless bool) Option {
	return func(m *Manager) { m.headless = headless }
}

// WithBinPath pins a specific Chromium/Chrome binary instead of letting the
// launcher download/discover one.
func WithBinPath(path string) Option {
	return func(m *Manager) { m.binPath = path }
}

// WithStub puts the manager in non-interactive stub mode: Stub() reports
// true and no real browser is ever launched. Used for dry runs and for the
// plan executor's DOM-unavailable pre-flight check.
func WithStub() Option {
	return func(m *Manager) { m.stub = true }
}

// Manager is spec's "Browser Driver" external collaborator: it owns one
// Chromium instance and a page per browsertypes.PageId.
type Manager struct {
	mu       sync.Mutex
	headless bool
	binPath  string
	stub     bool

	browser *rod.Browser
	pages   map[browsertypes.PageId]*rod.Page
}

// New builds a Manager. The browser process is launched lazily on first
// use, not at construction time.
func New(opts ...Option) *Manager {
	m := &Manager{headless: true, pages: make(map[browsertypes.PageId]*rod.Page)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Stub implements browserkernel.Driver.
func (m *Manager) Stub() bool { return m.stub }

// Close shuts down the underlying browser process, if one was launched.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser == nil {
		return nil
	}
	err := m.browser.Close()
	m.browser = nil
	m.pages = make(map[browsertypes.PageId]*rod.Page)
	return err
}

func (m *Manager) ensureBrowser() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser != nil {
		return m.browser, nil
	}
	l := launcher.New().Headless(m.headless)
	if m.binPath != "" {
		l = l.Bin(m.binPath)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch chromium: %w", err)
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect to chromium: %w", err)
	}
	m.browser = b
	return b, nil
}

// resolvePage returns the rod.Page backing route.Page, creating a fresh
// blank tab the first time a PageId is seen.
func (m *Manager) resolvePage(route browsertypes.ExecRoute) (*rod.Page, error) {
	if m.stub {
		return nil, fmt.Errorf("browser: manager is in stub mode, no live page for %q", route.Page)
	}
	m.mu.Lock()
	if p, ok := m.pages[route.Page]; ok {
		m.mu.Unlock()
		return p, nil
	}
	m.mu.Unlock()

	b, err := m.ensureBrowser()
	if err != nil {
		return nil, err
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("browser: open page: %w", err)
	}

	m.mu.Lock()
	m.pages[route.Page] = page
	m.mu.Unlock()
	return page, nil
}

// Navigate implements browserkernel.Driver.
func (m *Manager) Navigate(ctx context.Context, route browsertypes.ExecRoute, url string) error {
	page, err := m.resolvePage(route)
	if err != nil {
		return err
	}
	page = page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %q: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %q: %w", url, err)
	}
	return nil
}

// Click implements browserkernel.Driver.
func (m *Manager) Click(ctx context.Context, route browsertypes.ExecRoute, loc browserkernel.Locator) error {
	page, err := m.resolvePage(route)
	if err != nil {
		return err
	}
	el, err := resolveLocator(page.Context(ctx), loc)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click: %w", err)
	}
	return nil
}

// TypeText implements browserkernel.Driver.
func (m *Manager) TypeText(ctx context.Context, route browsertypes.ExecRoute, loc browserkernel.Locator, text string, submit bool) error {
	page, err := m.resolvePage(route)
	if err != nil {
		return err
	}
	el, err := resolveLocator(page.Context(ctx), loc)
	if err != nil {
		return err
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("browser: type text: %w", err)
	}
	if submit {
		if err := el.Type(input.Enter); err != nil {
			return fmt.Errorf("browser: submit via enter: %w", err)
		}
	}
	return nil
}

// Select implements browserkernel.Driver. method distinguishes by-value
// ("value", the default) from by-visible-text ("text") selection.
func (m *Manager) Select(ctx context.Context, route browsertypes.ExecRoute, loc browserkernel.Locator, value, method string) error {
	page, err := m.resolvePage(route)
	if err != nil {
		return err
	}
	el, err := resolveLocator(page.Context(ctx), loc)
	if err != nil {
		return err
	}
	selType := rod.SelectorTypeValue
	if method == "text" {
		selType = rod.SelectorTypeText
	}
	if err := el.Select([]string{value}, true, selType); err != nil {
		return fmt.Errorf("browser: select %q: %w", value, err)
	}
	return nil
}

// Scroll implements browserkernel.Driver. target is either a CSS selector
// (scrolled into view) or one of "up"/"down"/"top"/"bottom".
func (m *Manager) Scroll(ctx context.Context, route browsertypes.ExecRoute, target string) error {
	page, err := m.resolvePage(route)
	if err != nil {
		return err
	}
	page = page.Context(ctx)
	switch target {
	case "", "down":
		return page.Mouse.Scroll(0, 600, 1)
	case "up":
		return page.Mouse.Scroll(0, -600, 1)
	case "top":
		_, err := page.Eval(`() => window.scrollTo(0, 0)`)
		return err
	case "bottom":
		_, err := page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
		return err
	default:
		el, err := page.Element(target)
		if err != nil {
			return fmt.Errorf("browser: scroll target %q: %w", target, err)
		}
		return el.ScrollIntoView()
	}
}

// Wait implements browserkernel.Driver against the AgentWaitCondition
// vocabulary the scheduler knows how to express (see
// AgentWaitCondition.schedulerKnown).
func (m *Manager) Wait(ctx context.Context, route browsertypes.ExecRoute, cond browserkernel.AgentWaitCondition) error {
	page, err := m.resolvePage(route)
	if err != nil {
		return err
	}
	page = page.Context(ctx)

	switch cond.Kind {
	case browserkernel.CondDuration:
		d := time.Duration(cond.Ms) * time.Millisecond
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case browserkernel.CondNetworkIdle:
		return page.WaitIdle(time.Duration(cond.Ms) * time.Millisecond)
	case browserkernel.CondElementVisible:
		el, err := resolveLocator(page, cond.Locator)
		if err != nil {
			return err
		}
		return el.WaitVisible()
	case browserkernel.CondElementHidden:
		el, err := resolveLocator(page, cond.Locator)
		if err != nil {
			return nil // already absent
		}
		return el.WaitInvisible()
	case browserkernel.CondUrlMatches, browserkernel.CondUrlEquals, browserkernel.CondTitleMatches:
		return pollUntil(ctx, 10*time.Second, 200*time.Millisecond, func() (bool, error) {
			info, err := page.Info()
			if err != nil {
				return false, err
			}
			switch cond.Kind {
			case browserkernel.CondUrlEquals:
				return info.URL == cond.Value, nil
			case browserkernel.CondUrlMatches:
				return browserkernel.UrlEquivalent(cond.Value, info.URL), nil
			default:
				return info.Title == cond.Value, nil
			}
		})
	default:
		return fmt.Errorf("browser: unsupported wait condition %q", cond.Kind)
	}
}

// Screenshot implements browserkernel.Driver, returning a PNG.
func (m *Manager) Screenshot(ctx context.Context, route browsertypes.ExecRoute) ([]byte, error) {
	page, err := m.resolvePage(route)
	if err != nil {
		return nil, err
	}
	img, err := page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return Downscale(img, defaultScreenshotMaxWidth)
}

// Eval implements browserkernel.Driver.
func (m *Manager) Eval(ctx context.Context, route browsertypes.ExecRoute, script string) (json.RawMessage, error) {
	page, err := m.resolvePage(route)
	if err != nil {
		return nil, err
	}
	res, err := page.Context(ctx).Eval(script)
	if err != nil {
		return nil, fmt.Errorf("browser: eval: %w", err)
	}
	return json.RawMessage(res.Value.Raw()), nil
}

// CurrentURL implements browserkernel.Driver.
func (m *Manager) CurrentURL(ctx context.Context, route browsertypes.ExecRoute) (string, error) {
	page, err := m.resolvePage(route)
	if err != nil {
		return "", err
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: current url: %w", err)
	}
	return info.URL, nil
}

// Title implements browserkernel.Driver.
func (m *Manager) Title(ctx context.Context, route browsertypes.ExecRoute) (string, error) {
	page, err := m.resolvePage(route)
	if err != nil {
		return "", err
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: title: %w", err)
	}
	return info.Title, nil
}

func pollUntil(ctx context.Context, timeout, interval time.Duration, check func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := check()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("browser: condition not met within %s", timeout)
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
