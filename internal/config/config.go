// Package config loads the browser kernel's policy file: scheduler limits,
// retry defaults, tool timeouts, and feature flags (spec §4.3). Channel/chat
// gateway configuration is out of scope here — this package only carries
// what internal/browserkernel's PolicySnapshot needs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/goclaw/internal/browserkernel"
	"github.com/nextlevelbuilder/goclaw/internal/scheduler"
)

// BrowserToolConfig controls the browser automation tool and the policy
// values it seeds the kernel's PolicySnapshot with.
type BrowserToolConfig struct {
	Enabled  bool `json:"enabled"`
	Headless bool `json:"headless,omitempty"`

	SchedulerLimits struct {
		GlobalSlots   int `json:"global_slots,omitempty"`
		PerTaskLimit  int `json:"per_task_limit,omitempty"`
		QueueCapacity int `json:"queue_capacity,omitempty"`
	} `json:"scheduler_limits"`

	RetryDefaults struct {
		MaxAttempts int `json:"max_attempts,omitempty"`
		BackoffMs   int `json:"backoff_ms,omitempty"`
	} `json:"retry_defaults"`

	ToolTimeoutsMs map[string]int `json:"tool_timeouts_ms,omitempty"`

	RegistryProbeIntervalMs int `json:"registry_probe_interval_ms,omitempty"`

	Features struct {
		StateCenterPersistence bool `json:"state_center_persistence,omitempty"`
	} `json:"features"`
}

// Load reads a JSON5 policy file from path, matching the teacher's
// titanous/json5 config format.
func Load(path string) (BrowserToolConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return BrowserToolConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg BrowserToolConfig
	if err := json5.Unmarshal(raw, &cfg); err != nil {
		return BrowserToolConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// PolicyValues converts the loaded config into browserkernel.PolicyValues,
// falling back to browserkernel.DefaultPolicyValues() for any zero field.
func (c BrowserToolConfig) PolicyValues() browserkernel.PolicyValues {
	defaults := browserkernel.DefaultPolicyValues()
	values := defaults

	if c.SchedulerLimits.GlobalSlots > 0 {
		values.SchedulerLimits.GlobalSlots = c.SchedulerLimits.GlobalSlots
	}
	if c.SchedulerLimits.PerTaskLimit > 0 {
		values.SchedulerLimits.PerTaskLimit = c.SchedulerLimits.PerTaskLimit
	}
	if c.SchedulerLimits.QueueCapacity > 0 {
		values.SchedulerLimits.QueueCapacity = c.SchedulerLimits.QueueCapacity
	}

	if c.RetryDefaults.MaxAttempts > 0 {
		values.RetryDefaults.MaxAttempts = c.RetryDefaults.MaxAttempts
		values.SchedulerLimits.DefaultRetry.Max = c.RetryDefaults.MaxAttempts
	}
	if c.RetryDefaults.BackoffMs > 0 {
		values.RetryDefaults.BackoffMs = c.RetryDefaults.BackoffMs
		values.SchedulerLimits.DefaultRetry.Backoff = time.Duration(c.RetryDefaults.BackoffMs) * time.Millisecond
	}

	if len(c.ToolTimeoutsMs) > 0 {
		timeouts := make(browserkernel.ToolTimeouts, len(defaults.ToolTimeouts)+len(c.ToolTimeoutsMs))
		for k, v := range defaults.ToolTimeouts {
			timeouts[k] = v
		}
		for k, ms := range c.ToolTimeoutsMs {
			timeouts[k] = time.Duration(ms) * time.Millisecond
		}
		values.ToolTimeouts = timeouts
	}

	if c.RegistryProbeIntervalMs > 0 {
		values.RegistryProbeInterval = time.Duration(c.RegistryProbeIntervalMs) * time.Millisecond
	}

	values.Features.StateCenterPersistence = c.Features.StateCenterPersistence
	return values
}

// SchedulerLimitsFor is a convenience wrapper for callers that only need the
// scheduler.Limits half of the policy values.
func (c BrowserToolConfig) SchedulerLimitsFor() scheduler.Limits {
	return c.PolicyValues().SchedulerLimits
}
