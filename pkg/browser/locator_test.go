package browser

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/browserkernel"
)

func TestAriaSelectorPrefersRoleAndLabel(t *testing.T) {
	got := ariaSelector(browserkernel.Locator{AriaRole: "button", AriaName: "Submit"})
	want := `[role="button"][aria-label="Submit"]`
	if got != want {
		t.Fatalf("ariaSelector = %q, want %q", got, want)
	}
}

func TestAriaSelectorRoleOnly(t *testing.T) {
	got := ariaSelector(browserkernel.Locator{AriaRole: "button"})
	want := `[role="button"]`
	if got != want {
		t.Fatalf("ariaSelector = %q, want %q", got, want)
	}
}

func TestAriaSelectorFallsBackWhenEmpty(t *testing.T) {
	got := ariaSelector(browserkernel.Locator{})
	if got != "[role]" {
		t.Fatalf("ariaSelector = %q, want %q", got, "[role]")
	}
}
