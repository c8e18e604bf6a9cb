package browserkernel

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
	"github.com/nextlevelbuilder/goclaw/internal/scheduler"
	"github.com/nextlevelbuilder/goclaw/internal/taskstream"
)

// fakeDriver is a minimal in-memory Driver for plan-executor tests: it
// tracks the current URL/title per route and never touches a real browser.
// titleByUrl lets a test simulate a real page's title changing on navigate,
// the way a live CDP driver's Title() would; Navigate falls back to leaving
// title unchanged when the destination isn't registered.
type fakeDriver struct {
	url, title string
	stub       bool

	titleByUrl map[string]string

	screenshotBytes []byte
	failNavigateTo  string
}

func (d *fakeDriver) Navigate(ctx context.Context, route browsertypes.ExecRoute, url string) error {
	if d.failNavigateTo != "" && url == d.failNavigateTo {
		return errTestNavigate
	}
	d.url = url
	if title, ok := d.titleByUrl[url]; ok {
		d.title = title
	}
	return nil
}
func (d *fakeDriver) Click(ctx context.Context, route browsertypes.ExecRoute, loc Locator) error { return nil }
func (d *fakeDriver) TypeText(ctx context.Context, route browsertypes.ExecRoute, loc Locator, text string, submit bool) error {
	return nil
}
func (d *fakeDriver) Select(ctx context.Context, route browsertypes.ExecRoute, loc Locator, value, method string) error {
	return nil
}
func (d *fakeDriver) Scroll(ctx context.Context, route browsertypes.ExecRoute, target string) error { return nil }
func (d *fakeDriver) Wait(ctx context.Context, route browsertypes.ExecRoute, cond AgentWaitCondition) error {
	switch cond.Kind {
	case CondUrlEquals:
		if d.url != cond.Value {
			return errTestNavigate
		}
	case CondUrlMatches:
		if d.url == "" {
			return errTestNavigate
		}
	}
	return nil
}
func (d *fakeDriver) Screenshot(ctx context.Context, route browsertypes.ExecRoute) ([]byte, error) {
	if d.screenshotBytes == nil {
		return []byte{0x89, 0x50, 0x4e, 0x47}, nil
	}
	return d.screenshotBytes, nil
}
func (d *fakeDriver) Eval(ctx context.Context, route browsertypes.ExecRoute, script string) (json.RawMessage, error) {
	return json.RawMessage(`null`), nil
}
func (d *fakeDriver) CurrentURL(ctx context.Context, route browsertypes.ExecRoute) (string, error) {
	return d.url, nil
}
func (d *fakeDriver) Title(ctx context.Context, route browsertypes.ExecRoute) (string, error) {
	return d.title, nil
}
func (d *fakeDriver) Stub() bool { return d.stub }

var errTestNavigate = &navigateError{}

type navigateError struct{}

func (*navigateError) Error() string { return "simulated navigate failure" }

func newTestExecutor(t *testing.T, driver Driver) (*PlanExecutor, *Registry) {
	t.Helper()
	registry := NewRegistry()
	te := NewToolExecutor(driver, nil)
	sched := scheduler.New(
		scheduler.StaticLimits{L: scheduler.Limits{GlobalSlots: 4, PerTaskLimit: 2, QueueCapacity: 8}},
		registry,
		te,
		nil,
		slog.Default(),
	)
	stream := taskstream.New("", slog.Default())
	return NewPlanExecutor(sched, registry, stream, slog.Default()), registry
}

func navigateStep(id, title, url string) Step {
	return Step{Id: id, Title: title, Tool: ToolKind{Tag: ToolNavigate, Url: url}, WaitMode: WaitDomReady}
}

func observeStep(id, title, expectedUrl string) Step {
	return Step{
		Id:       id,
		Title:    title,
		Tool:     ToolKind{Tag: ToolCustom, CustomName: "data.extract-site"},
		Metadata: map[string]string{"expected_url": expectedUrl},
	}
}

func TestExecutePlanHappyNavigate(t *testing.T) {
	driver := &fakeDriver{url: "https://quote.eastmoney.com/600519.html", title: "贵州茅台"}
	exec, _ := newTestExecutor(t, driver)

	plan := AgentPlan{
		TaskId: "task-1",
		Title:  "open quote",
		Steps: []Step{
			navigateStep("s1", "navigate to quote page", "https://quote.eastmoney.com/600519.html"),
			observeStep("s2", "confirm page", "https://quote.eastmoney.com/600519.html"),
		},
	}

	report, err := exec.ExecutePlan(context.Background(), AgentRequest{TaskId: "task-1"}, plan, ExecuteOptions{MaxRetries: 1}, driver)
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}
	if !report.Success {
		t.Fatalf("expected success, got report: %+v", report)
	}
	if len(report.Steps) != 2 {
		t.Fatalf("got %d step reports, want 2", len(report.Steps))
	}
}

func TestExecutePlanUrlFallbackRecoversValidationFailure(t *testing.T) {
	driver := &fakeDriver{url: "https://quote.eastmoney.com/wrong.html"}
	exec, _ := newTestExecutor(t, driver)

	plan := AgentPlan{
		TaskId: "task-2",
		Steps: []Step{
			{
				Id:    "s1",
				Title: "navigate with url validation",
				Tool:  ToolKind{Tag: ToolNavigate, Url: "https://quote.eastmoney.com/wrong.html"},
				Validations: []Validation{
					{Condition: AgentWaitCondition{Kind: CondUrlEquals, Value: "https://quote.eastmoney.com/600519.html"}},
				},
				Metadata: map[string]string{"expected_url": "https://quote.eastmoney.com/600519.html"},
			},
		},
	}

	report, err := exec.ExecutePlan(context.Background(), AgentRequest{TaskId: "task-2"}, plan, ExecuteOptions{MaxRetries: 1}, driver)
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}
	if !report.Success {
		t.Fatalf("expected the url-fallback navigate to recover the step, got: %+v", report)
	}
	if driver.url != "https://quote.eastmoney.com/600519.html" {
		t.Fatalf("expected fallback navigate to land on the expected url, got %q", driver.url)
	}
}

func TestExecutePlanWeatherGuardrailTriggersRecovery(t *testing.T) {
	driver := &fakeDriver{
		url:   "https://www.baidu.com/",
		title: "百度一下，你就知道",
		titleByUrl: map[string]string{
			"https://www.moji.com": "墨迹天气",
		},
	}
	exec, _ := newTestExecutor(t, driver)

	plan := AgentPlan{
		TaskId: "task-3",
		Steps: []Step{
			navigateStep("s1", "navigate to baidu", "https://www.baidu.com/"),
			observeStep("s2", "observe weather", ""),
		},
	}
	plan.Steps[1].Metadata["intent"] = "weather"

	report, err := exec.ExecutePlan(context.Background(), AgentRequest{TaskId: "task-3"}, plan, ExecuteOptions{MaxRetries: 2, WeatherIntent: true}, driver)
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}

	var sawWeatherBlocker bool
	for _, s := range report.Steps {
		if s.BlockerKind == BlockerWeatherResultsMissing {
			sawWeatherBlocker = true
		}
	}
	if !sawWeatherBlocker {
		t.Fatalf("expected a weather_results_missing blocker recorded somewhere in report: %+v", report)
	}
	if driver.url != "https://www.moji.com" {
		t.Fatalf("expected weather.search recovery to navigate to moji, driver.url = %q", driver.url)
	}
	if !report.Success {
		t.Fatalf("expected the retried observation (now past the guardrail) to succeed overall: %+v", report)
	}
}

func TestExecutePlanWeatherParseFailureYieldsNote(t *testing.T) {
	driver := &fakeDriver{url: "https://www.moji.com", title: "墨迹天气"}
	exec, _ := newTestExecutor(t, driver)

	plan := AgentPlan{
		TaskId: "task-4",
		Steps: []Step{
			{
				Id:    "s1",
				Title: "parse weather",
				Tool:  ToolKind{Tag: ToolCustom, CustomName: "data.parse.weather"},
			},
		},
	}

	report, err := exec.ExecutePlan(context.Background(), AgentRequest{TaskId: "task-4"}, plan, ExecuteOptions{MaxRetries: 1}, driver)
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}
	if !report.Success {
		t.Fatalf("expected the plan to succeed despite the weather-parse failure, got: %+v", report)
	}
	if len(report.Steps) != 2 {
		t.Fatalf("got %d step reports, want 2 (failed step + synthetic note)", len(report.Steps))
	}
	if report.Steps[1].Title != "天气信息获取失败" {
		t.Fatalf("expected synthetic note step, got %+v", report.Steps[1])
	}
	var foundText bool
	for _, ur := range report.UserResults {
		if ur.Kind == UserResultText && ur.Text != "" {
			foundText = true
		}
	}
	if !foundText {
		t.Fatalf("expected a text user-result surfaced from the note step, got %+v", report.UserResults)
	}
}

func TestExecutePlanPreflightFailsOnStubDriverWithDomStep(t *testing.T) {
	driver := &fakeDriver{stub: true}
	exec, _ := newTestExecutor(t, driver)

	plan := AgentPlan{
		TaskId: "task-5",
		Steps:  []Step{navigateStep("s1", "navigate", "https://example.com")},
	}

	report, err := exec.ExecutePlan(context.Background(), AgentRequest{TaskId: "task-5"}, plan, ExecuteOptions{MaxRetries: 1}, driver)
	if err == nil {
		t.Fatal("expected preflight to fail for a stub driver with a DOM-requiring step")
	}
	if report.Success {
		t.Fatal("expected unsuccessful report")
	}
}
