package browserkernel

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// recentHistoryLimit and summaryTruncateLen match spec §4.9's "up to 6
// entries, truncated to 240 chars each".
const (
	recentHistoryLimit = 6
	summaryTruncateLen = 240
)

// blockerMetadataKeys lists every key applyBlockerGuidance may set, so it
// can clear stale ones when the current blocker doesn't set them (spec
// §4.9 "remove keys when absent so consumers do not see stale state").
var blockerMetadataKeys = []string{
	"replan.target_site_hint",
	"replan.search_hint",
	"replan.precheck",
	"replan.instruction",
}

// ReplanResult is AugmentRequestForReplan's return value: the enriched
// next-attempt request plus a plain-language failure summary.
type ReplanResult struct {
	NextRequest    AgentRequest
	FailureSummary string
}

// AugmentRequestForReplan builds an enriched next-attempt request after a
// step failure or guardrail trip (spec §4.9), grounded on the original
// Rust replan controller: failure summary, observation/evaluation context,
// blocker-specific guidance, and recent-step history are all folded into
// the planner's next conversation turns.
func AugmentRequestForReplan(request AgentRequest, report FlowExecutionReport, attempt int, observationSummary string, blocker BlockerKind, latestEvaluationSummary string) ReplanResult {
	next := request.clone()

	failureSummary := buildFailureSummary(report, attempt)

	var noteParts []string
	if observationSummary != "" {
		noteParts = append(noteParts, "Observation: "+observationSummary)
	}
	if latestEvaluationSummary != "" {
		noteParts = append(noteParts, "Evaluation: "+latestEvaluationSummary)
	}

	next.History = append(next.History, Turn{Role: TurnSystem, Text: failureSummary})
	if len(noteParts) > 0 {
		next.History = append(next.History, Turn{Role: TurnSystem, Text: strings.Join(noteParts, " | ")})
	}

	applyBlockerGuidance(&next, blocker)

	if hist := recentStepHistory(report); hist != "" {
		next.History = append(next.History, Turn{Role: TurnSystem, Text: hist})
	}

	next.History = append(next.History, Turn{Role: TurnUser, Text: "please suggest a revised plan"})

	return ReplanResult{NextRequest: next, FailureSummary: failureSummary}
}

func buildFailureSummary(report FlowExecutionReport, attempt int) string {
	last := lastFailedStep(report)
	if last == nil {
		return fmt.Sprintf("attempt %d failed with no step detail available", attempt)
	}
	errText := last.Error
	if errText == "" {
		errText = "unspecified error"
	}
	return fmt.Sprintf("attempt %d: step %q failed after %d attempt(s): %s", attempt, last.Title, last.Attempts, errText)
}

func lastFailedStep(report FlowExecutionReport) *StepExecutionReport {
	for i := len(report.Steps) - 1; i >= 0; i-- {
		if report.Steps[i].Status == StepFailed {
			return &report.Steps[i]
		}
	}
	return nil
}

// applyBlockerGuidance installs blocker-specific hints into next.Metadata
// (spec §4.9's table). Every call first clears all known blocker metadata
// keys, so a blocker that sets fewer keys than a previous one doesn't leave
// stale values behind — this also makes the transform idempotent (P7):
// applying it twice with the same blocker yields the same metadata.
func applyBlockerGuidance(next *AgentRequest, blocker BlockerKind) {
	for _, key := range blockerMetadataKeys {
		delete(next.Metadata, key)
	}
	delete(next.Metadata, "replan.blocker_kind")
	if blocker != BlockerOther {
		next.Metadata["replan.blocker_kind"] = string(blocker)
	}

	switch blocker {
	case BlockerPageNotFound, BlockerQuoteFetchFailed:
		next.Metadata["replan.target_site_hint"] = "quote.eastmoney.com"
		next.Constraints = enrichSearchTerms(next.Constraints, "东方财富", "新浪财经")
		next.History = append(next.History, Turn{Role: TurnSystem, Text: "try https://www.baidu.com/s?wd=" + searchHint(next)})

	case BlockerSearchNoResults:
		next.Constraints = broadenSearchTerms(next.Constraints)
		next.Metadata["replan.search_hint"] = "fallback search: https://www.baidu.com/s?wd=" + searchHint(next)

	case BlockerPopupUnclosed:
		next.Metadata["replan.instruction"] = "call browser.close-modal, then browser.send-esc, before retrying the step"

	case BlockerUrlMismatch:
		next.Metadata["replan.precheck"] = "data.validate-target"

	case BlockerWeatherResultsMissing:
		next.Metadata["replan.instruction"] = "wait for the weather widget to render, or open weather search directly via weather.search"

	case BlockerAccessBlocked:
		next.Metadata["replan.instruction"] = "source appears blocked; suggest an alternative source via search"

	default:
		if blocker != BlockerOther {
			next.Metadata["replan.instruction"] = fmt.Sprintf("blocker %s observed", blocker)
		}
	}
}

func searchHint(next *AgentRequest) string {
	if goal := goalKeyword(next.Prompt); goal != "" {
		return goal
	}
	return next.Prompt
}

// goalKeyword extracts a short keyword phrase from a free-form goal prompt
// — the first 40 runes with surrounding whitespace trimmed. The cut is not
// moved to a word boundary.
func goalKeyword(prompt string) string {
	const maxLen = 40
	if runewidth.StringWidth(prompt) <= maxLen {
		return strings.TrimSpace(prompt)
	}
	runes := []rune(prompt)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}
	return strings.TrimSpace(string(runes))
}

func enrichSearchTerms(constraints []string, terms ...string) []string {
	out := append([]string(nil), constraints...)
	for _, t := range terms {
		if !contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func broadenSearchTerms(constraints []string) []string {
	out := append([]string(nil), constraints...)
	if !contains(out, "try a broader query") {
		out = append(out, "try a broader query")
	}
	return out
}

func contains(xs []string, needle string) bool {
	for _, x := range xs {
		if x == needle {
			return true
		}
	}
	return false
}

// recentStepHistory renders up to the last 6 step reports as a compact
// block, each summary truncated to 240 chars (spec §4.9).
func recentStepHistory(report FlowExecutionReport) string {
	steps := report.Steps
	if len(steps) == 0 {
		return ""
	}
	start := 0
	if len(steps) > recentHistoryLimit {
		start = len(steps) - recentHistoryLimit
	}
	var b strings.Builder
	b.WriteString("Recent steps:\n")
	for _, s := range steps[start:] {
		icon := "✓"
		if s.Status != StepSuccess {
			icon = "✗"
		}
		summary := s.ObservationSummary
		if summary == "" {
			summary = s.Error
		}
		b.WriteString(fmt.Sprintf("%s %s [%s] %s\n", icon, s.Title, s.ToolKind, truncateHistorySummary(summary)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncateHistorySummary clips s to summaryTruncateLen runes, appending an
// ellipsis, using go-runewidth so CJK-heavy summaries don't split a
// multi-byte rune mid-character.
func truncateHistorySummary(s string) string {
	if runewidth.StringWidth(s) <= summaryTruncateLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= summaryTruncateLen {
		return s
	}
	return string(runes[:summaryTruncateLen]) + "…"
}
