package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/browserkernel"
)

func TestLoadParsesJson5WithComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json5")
	raw := `{
		// headless by default
		enabled: true,
		headless: true,
		scheduler_limits: { global_slots: 4, per_task_limit: 1 },
		retry_defaults: { max_attempts: 3, backoff_ms: 500 },
		tool_timeouts_ms: { navigation: 9000 },
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Enabled || !cfg.Headless {
		t.Fatalf("got %+v, want enabled+headless", cfg)
	}
	if cfg.SchedulerLimits.GlobalSlots != 4 || cfg.SchedulerLimits.PerTaskLimit != 1 {
		t.Fatalf("scheduler limits = %+v", cfg.SchedulerLimits)
	}
}

func TestPolicyValuesOverridesOnlySetFields(t *testing.T) {
	cfg := BrowserToolConfig{}
	cfg.SchedulerLimits.GlobalSlots = 16
	cfg.RetryDefaults.BackoffMs = 750
	cfg.ToolTimeoutsMs = map[string]int{"dom": 3000}

	values := cfg.PolicyValues()
	if values.SchedulerLimits.GlobalSlots != 16 {
		t.Fatalf("global slots = %d, want 16", values.SchedulerLimits.GlobalSlots)
	}
	if values.SchedulerLimits.PerTaskLimit == 0 {
		t.Fatal("per-task limit should fall back to the default, not zero")
	}
	if values.RetryDefaults.BackoffMs != 750 {
		t.Fatalf("backoff = %d, want 750", values.RetryDefaults.BackoffMs)
	}
	if values.ToolTimeouts["dom"] != 3*time.Second {
		t.Fatalf("dom timeout = %v, want 3s", values.ToolTimeouts["dom"])
	}
	if values.ToolTimeouts["navigation"] == 0 {
		t.Fatal("navigation timeout should keep its default")
	}
}

func TestWatchPolicyFileReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json5")
	if err := os.WriteFile(path, []byte(`{scheduler_limits:{global_slots:2}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	initial, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	snapshot := browserkernel.NewPolicySnapshot(initial.PolicyValues())
	watcher, err := WatchPolicyFile(path, snapshot, nil)
	if err != nil {
		t.Fatalf("WatchPolicyFile: %v", err)
	}
	defer watcher.Close()

	if err := os.WriteFile(path, []byte(`{scheduler_limits:{global_slots:9}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snapshot.Snapshot().GlobalSlots == 9 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("policy snapshot never picked up the reload, got %+v", snapshot.Snapshot())
}
