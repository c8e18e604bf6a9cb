package browser

import (
	"fmt"

	"github.com/go-rod/rod"

	"github.com/nextlevelbuilder/goclaw/internal/browserkernel"
)

// resolveLocator maps a browserkernel.Locator onto a live rod.Element by
// loc.Kind alone (CSS, ARIA or visible text); fields of the other kinds are
// ignored. The CSS > ARIA > text priority of the agent loop's selector_map
// (spec §4.8) is applied earlier, by SelectorEntry.Locator.
func resolveLocator(page *rod.Page, loc browserkernel.Locator) (*rod.Element, error) {
	switch loc.Kind {
	case browserkernel.LocatorCss:
		if loc.Css == "" {
			return nil, fmt.Errorf("browser: css locator missing selector")
		}
		el, err := page.Element(loc.Css)
		if err != nil {
			return nil, fmt.Errorf("browser: css locator %q: %w", loc.Css, err)
		}
		return el, nil
	case browserkernel.LocatorAria:
		sel := ariaSelector(loc)
		el, err := page.Element(sel)
		if err != nil {
			return nil, fmt.Errorf("browser: aria locator %q: %w", sel, err)
		}
		return el, nil
	case browserkernel.LocatorText:
		el, err := page.ElementR("*", loc.TextContent)
		if err != nil {
			return nil, fmt.Errorf("browser: text locator %q: %w", loc.TextContent, err)
		}
		return el, nil
	default:
		return nil, fmt.Errorf("browser: unknown locator kind %q", loc.Kind)
	}
}

// ariaSelector approximates an accessible-name lookup as a CSS attribute
// selector; rod has no dedicated ARIA query so role/name are folded into
// [role=...][aria-label=...] the way a hand-rolled perception layer would.
func ariaSelector(loc browserkernel.Locator) string {
	sel := ""
	if loc.AriaRole != "" {
		sel += fmt.Sprintf("[role=%q]", loc.AriaRole)
	}
	if loc.AriaName != "" {
		sel += fmt.Sprintf("[aria-label=%q]", loc.AriaName)
	}
	if sel == "" {
		sel = "[role]"
	}
	return sel
}
