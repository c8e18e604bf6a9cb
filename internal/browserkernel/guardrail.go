package browserkernel

import (
	"encoding/json"
	"net/url"
	"strings"
)

// GuardrailKind tags a tripped guardrail (spec §4.7).
type GuardrailKind string

const (
	GuardrailUrlMismatch     GuardrailKind = "url_mismatch"
	GuardrailWeatherBaiduHome GuardrailKind = "weather_baidu_home"
	GuardrailBlocked         GuardrailKind = "blocked"
)

// BlockerKind is the replan-facing classification of why a step failed
// (spec §4.9). It overlaps with, but is not identical to, GuardrailKind —
// a blocker can also arise from a non-guardrail failure (page not found,
// quote fetch failure, etc).
type BlockerKind string

const (
	BlockerPageNotFound         BlockerKind = "page_not_found"
	BlockerQuoteFetchFailed     BlockerKind = "quote_fetch_failed"
	BlockerSearchNoResults      BlockerKind = "search_no_results"
	BlockerPopupUnclosed        BlockerKind = "popup_unclosed"
	BlockerUrlMismatch          BlockerKind = "url_mismatch"
	BlockerWeatherResultsMissing BlockerKind = "weather_results_missing"
	BlockerAccessBlocked        BlockerKind = "access_blocked"
	BlockerOther                BlockerKind = ""
)

// GuardrailViolation is the result of evaluating one observation.
type GuardrailViolation struct {
	Kind            GuardrailKind
	ExpectedUrl     string
	ActualUrl       string
	Reason          string
	TriggersRecovery bool
}

// observation is the shape of the structured value data.extract-site
// returns (spec §4.7 "the observation object").
type observation struct {
	Url   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

func parseObservation(output json.RawMessage) (observation, bool) {
	var wrapper struct {
		Observation observation `json:"observation"`
	}
	if err := json.Unmarshal(output, &wrapper); err != nil {
		return observation{}, false
	}
	if wrapper.Observation.Url == "" && wrapper.Observation.Title == "" && wrapper.Observation.Text == "" {
		return observation{}, false
	}
	return wrapper.Observation, true
}

// blockMarkers lists the lower-case phrases matchesBlockHeuristic looks for
// in a title/text as access-blocked signals (spec
// §4.7 "title/text matches a block-detection heuristic").
var blockMarkers = []string{"403", "access denied", "forbidden", "verify you are human", "bot check", "captcha"}

func matchesBlockHeuristic(title, text string) (string, bool) {
	hay := strings.ToLower(title + " " + text)
	for _, marker := range blockMarkers {
		if strings.Contains(hay, marker) {
			return marker, true
		}
	}
	return "", false
}

func mentionsBaidu(title, text string) bool {
	hay := strings.ToLower(title + " " + text)
	return strings.Contains(hay, "百度") || strings.Contains(hay, "baidu")
}

// EvaluateGuardrails classifies an observation's output against the step's
// expected_url metadata and the weather-pipeline intent flag (spec §4.7).
// It returns the first tripped guardrail, if any.
func EvaluateGuardrails(output json.RawMessage, expectedUrl string, weatherIntent bool) (*GuardrailViolation, error) {
	obs, ok := parseObservation(output)
	if !ok {
		return nil, nil
	}

	if expectedUrl != "" && !UrlEquivalent(expectedUrl, obs.Url) {
		return &GuardrailViolation{
			Kind:        GuardrailUrlMismatch,
			ExpectedUrl: expectedUrl,
			ActualUrl:   obs.Url,
			Reason:      "observed URL does not match expected_url",
		}, nil
	}

	if weatherIntent {
		u, err := url.Parse(obs.Url)
		isBaiduHome := err == nil && strings.Contains(u.Host, "baidu.com") && (u.Path == "" || u.Path == "/")
		if !isBaiduHome {
			isBaiduHome = mentionsBaidu(obs.Title, obs.Text) && !strings.Contains(obs.Url, "/s")
		}
		if isBaiduHome {
			return &GuardrailViolation{
				Kind:            GuardrailWeatherBaiduHome,
				ActualUrl:       obs.Url,
				Reason:          "weather pipeline stalled on Baidu home page",
				TriggersRecovery: true,
			}, nil
		}
	}

	if marker, blocked := matchesBlockHeuristic(obs.Title, obs.Text); blocked {
		return &GuardrailViolation{
			Kind:            GuardrailBlocked,
			ActualUrl:       obs.Url,
			Reason:          "blocked: matched marker " + marker,
			TriggersRecovery: true,
		}, nil
	}

	return nil, nil
}

// UrlEquivalent implements spec §9 open-question (b): domain equal and
// expected path a prefix of actual, normalising trailing slashes and
// ignoring query/fragment.
func UrlEquivalent(expected, actual string) bool {
	eu, err1 := url.Parse(expected)
	au, err2 := url.Parse(actual)
	if err1 != nil || err2 != nil {
		return expected == actual
	}
	if !strings.EqualFold(eu.Hostname(), au.Hostname()) {
		return false
	}
	ePath := strings.TrimSuffix(eu.Path, "/")
	aPath := strings.TrimSuffix(au.Path, "/")
	return strings.HasPrefix(aPath, ePath)
}

// BlockerForGuardrail maps a tripped guardrail onto the replan controller's
// blocker vocabulary (spec §4.9).
func BlockerForGuardrail(v *GuardrailViolation) BlockerKind {
	if v == nil {
		return BlockerOther
	}
	switch v.Kind {
	case GuardrailUrlMismatch:
		return BlockerUrlMismatch
	case GuardrailWeatherBaiduHome:
		return BlockerWeatherResultsMissing
	case GuardrailBlocked:
		return BlockerAccessBlocked
	default:
		return BlockerOther
	}
}
