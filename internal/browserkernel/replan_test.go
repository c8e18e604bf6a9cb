package browserkernel

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

func baseRequest() AgentRequest {
	return AgentRequest{
		TaskId:   browsertypes.TaskId("t1"),
		Prompt:   "look up Kweichow Moutai's stock quote",
		Metadata: map[string]string{},
	}
}

func failedReport(title, errText string, attempts int) FlowExecutionReport {
	return FlowExecutionReport{
		Steps: []StepExecutionReport{
			{StepId: "s1", Title: title, Status: StepFailed, Attempts: attempts, Error: errText},
		},
	}
}

func TestAugmentRequestForReplanAppendsHistoryTurns(t *testing.T) {
	req := baseRequest()
	report := failedReport("open quote page", "observed URL does not match expected_url", 2)

	res := AugmentRequestForReplan(req, report, 1, "landed on homepage", BlockerUrlMismatch, "")

	if len(res.NextRequest.History) < 2 {
		t.Fatalf("expected at least 2 appended turns, got %d", len(res.NextRequest.History))
	}
	last := res.NextRequest.History[len(res.NextRequest.History)-1]
	if last.Role != TurnUser || !strings.Contains(last.Text, "revised plan") {
		t.Fatalf("expected final turn to ask for a revised plan, got %+v", last)
	}
	if !strings.Contains(res.FailureSummary, "open quote page") {
		t.Fatalf("failure summary missing step title: %q", res.FailureSummary)
	}
}

func TestAugmentRequestForReplanDoesNotMutateOriginal(t *testing.T) {
	req := baseRequest()
	req.Metadata["preexisting"] = "keep-me"
	report := failedReport("open quote page", "boom", 1)

	res := AugmentRequestForReplan(req, report, 1, "", BlockerPageNotFound, "")

	if len(req.History) != 0 {
		t.Fatalf("original request's history should be untouched, got %d entries", len(req.History))
	}
	if res.NextRequest.Metadata["preexisting"] != "keep-me" {
		t.Fatal("clone should preserve pre-existing metadata")
	}
}

func TestApplyBlockerGuidanceIsIdempotent(t *testing.T) {
	req := baseRequest()
	report := failedReport("fetch quote", "page not found", 1)

	once := AugmentRequestForReplan(req, report, 1, "", BlockerPageNotFound, "")
	twice := AugmentRequestForReplan(once.NextRequest, report, 2, "", BlockerPageNotFound, "")

	for k, v := range once.NextRequest.Metadata {
		if twice.NextRequest.Metadata[k] != v {
			t.Fatalf("metadata[%q] = %q after second application, want %q (idempotence)", k, twice.NextRequest.Metadata[k], v)
		}
	}
}

func TestApplyBlockerGuidanceClearsStaleKeysOnBlockerChange(t *testing.T) {
	req := baseRequest()
	report := failedReport("fetch quote", "page not found", 1)

	first := AugmentRequestForReplan(req, report, 1, "", BlockerPageNotFound, "")
	if _, ok := first.NextRequest.Metadata["replan.target_site_hint"]; !ok {
		t.Fatal("expected target_site_hint set for page-not-found blocker")
	}

	second := AugmentRequestForReplan(first.NextRequest, report, 2, "", BlockerPopupUnclosed, "")
	if _, ok := second.NextRequest.Metadata["replan.target_site_hint"]; ok {
		t.Fatal("expected target_site_hint cleared when switching to a blocker that doesn't set it")
	}
	if second.NextRequest.Metadata["replan.instruction"] == "" {
		t.Fatal("expected popup-unclosed guidance to set replan.instruction")
	}
}

func TestRecentStepHistoryTruncatesToSix(t *testing.T) {
	var steps []StepExecutionReport
	for i := 0; i < 10; i++ {
		steps = append(steps, StepExecutionReport{Title: "step", Status: StepSuccess})
	}
	report := FlowExecutionReport{Steps: steps}
	hist := recentStepHistory(report)
	if got := strings.Count(hist, "✓"); got != recentHistoryLimit {
		t.Fatalf("got %d rendered steps, want %d", got, recentHistoryLimit)
	}
}
