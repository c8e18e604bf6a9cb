// Package browseragent implements the Agent Loop (spec §4.8, component C8):
// an observe/decide/act cycle that drives the browser one LLM decision at a
// time, plan-executing each decided action batch as a transient C6 plan.
package browseragent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/browserkernel"
	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
	"github.com/nextlevelbuilder/goclaw/internal/planner"
	"github.com/nextlevelbuilder/goclaw/internal/taskstream"
	"github.com/nextlevelbuilder/goclaw/pkg/browser"
)

const (
	defaultMaxSteps          = 20
	defaultMaxActionsPerStep = 4

	cdpReadyPolls  = 20
	cdpReadyPeriod = 100 * time.Millisecond
	domReadyPolls  = 10
	domReadyPeriod = 100 * time.Millisecond

	interStepSleep = 100 * time.Millisecond
)

// Options configures one Loop run.
type Options struct {
	MaxSteps          int
	MaxActionsPerStep int
	EmitScreenshots   bool
	RoutingHint       *browsertypes.RoutingHint
}

func (o Options) withDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = defaultMaxSteps
	}
	if o.MaxActionsPerStep <= 0 {
		o.MaxActionsPerStep = defaultMaxActionsPerStep
	}
	return o
}

// Loop is spec component C8. It owns no state across runs; Run drives one
// task's goal to completion (success, failure, or max_steps exhaustion).
type Loop struct {
	exec     *browserkernel.PlanExecutor
	registry *browserkernel.Registry
	driver   *browser.Manager
	plan     *planner.Planner
	stream   *taskstream.Stream
	log      *slog.Logger
}

// New builds a Loop. stream may be nil to disable task-stream emission.
func New(exec *browserkernel.PlanExecutor, registry *browserkernel.Registry, driver *browser.Manager, plan *planner.Planner, stream *taskstream.Stream, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{exec: exec, registry: registry, driver: driver, plan: plan, stream: stream, log: log}
}

// Result is Run's outcome: either Done was reached (Success/Text set) or
// the loop exhausted max_steps/errored (Error set).
type Result struct {
	Success    bool
	Text       string
	StepsTaken int
	Error      string
}

// Run drives the observe → decide → act cycle for goal until the LLM emits
// Done, a break-the-loop failure occurs, or opts.MaxSteps is exhausted
// (spec §4.8).
func (l *Loop) Run(ctx context.Context, taskID browsertypes.TaskId, goal string, opts Options) (Result, error) {
	opts = opts.withDefaults()

	route, err := l.registry.RouteResolve(opts.RoutingHint)
	if err != nil {
		return Result{}, fmt.Errorf("browseragent: resolve route: %w", err)
	}

	var history []string

	for stepNumber := 1; stepNumber <= opts.MaxSteps; stepNumber++ {
		if err := ctx.Err(); err != nil {
			return Result{Error: err.Error()}, err
		}

		state, err := l.observe(ctx, route, taskID, opts.EmitScreenshots)
		if err != nil {
			return Result{Error: err.Error()}, fmt.Errorf("browseragent: observe: %w", err)
		}

		decision, err := l.plan.Decide(ctx, goal, toPlannerObservation(state), history)
		if err != nil {
			return Result{Error: err.Error()}, fmt.Errorf("browseragent: llm decide: %w", err)
		}

		actions := decision.Actions
		if len(actions) > opts.MaxActionsPerStep {
			actions = actions[:opts.MaxActionsPerStep]
		}
		if len(actions) == 0 {
			err := fmt.Errorf("browseragent: LLM did not provide executable actions")
			return Result{Error: err.Error()}, err
		}

		prefix, done, doneAction := splitAtDone(actions)

		if len(prefix) > 0 {
			steps, err := actionsToSteps(stepNumber, prefix, state)
			if err != nil {
				return Result{Error: err.Error()}, fmt.Errorf("browseragent: convert actions: %w", err)
			}
			report, execErr := l.exec.ExecutePlan(ctx, browserkernel.AgentRequest{TaskId: taskID, Prompt: goal},
				browserkernel.AgentPlan{TaskId: taskID, Title: fmt.Sprintf("agent-loop step %d", stepNumber), Steps: steps},
				browserkernel.ExecuteOptions{MaxRetries: 1}, l.driver)
			if execErr != nil {
				// Construction-level failure (preflight, etc) breaks the loop.
				return Result{Error: execErr.Error()}, fmt.Errorf("browseragent: plan-execute step %d: %w", stepNumber, execErr)
			}
			history = append(history, summarizeStepReport(stepNumber, report))
			if !report.Success {
				l.log.Warn("browseragent: action batch failed, continuing loop", "step", stepNumber, "error", report.Error)
			}
		}

		if done {
			return Result{Success: doneAction.DoneSuccess, Text: doneAction.DoneText, StepsTaken: stepNumber}, nil
		}

		select {
		case <-time.After(interStepSleep):
		case <-ctx.Done():
			return Result{Error: ctx.Err().Error()}, ctx.Err()
		}
	}

	return Result{StepsTaken: opts.MaxSteps, Error: "browseragent: max_steps exhausted without Done"},
		fmt.Errorf("browseragent: max_steps (%d) exhausted without a Done action", opts.MaxSteps)
}

// splitAtDone returns the actions before any Done action (to execute), and
// whether a Done action was present (plus the Done action itself).
func splitAtDone(actions []planner.Action) ([]planner.Action, bool, planner.Action) {
	for i, a := range actions {
		if a.Kind == planner.ActionDone {
			return actions[:i], true, a
		}
	}
	return actions, false, planner.Action{}
}

func summarizeStepReport(stepNumber int, report browserkernel.FlowExecutionReport) string {
	status := "ok"
	if !report.Success {
		status = "failed: " + report.Error
	}
	return fmt.Sprintf("step %d: %s", stepNumber, status)
}
