package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/browseragent"
	"github.com/nextlevelbuilder/goclaw/internal/browserkernel"
	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/planner"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/scheduler"
	"github.com/nextlevelbuilder/goclaw/internal/taskstream"
	"github.com/nextlevelbuilder/goclaw/pkg/browser"
)

func runCmd() *cobra.Command {
	var goal string
	var model string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent loop against a single goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goal == "" {
				return fmt.Errorf("run: --goal is required")
			}
			return runKernelWithGoal(goal, model)
		},
	}
	cmd.Flags().StringVar(&goal, "goal", "", "natural-language goal for the agent loop")
	cmd.Flags().StringVar(&model, "model", "", "override the provider's default model")
	return cmd
}

func runKernel() error {
	return fmt.Errorf("run: pass a goal, e.g. `goclaw-kernel run --goal \"...\"`")
}

func runKernelWithGoal(goal, model string) error {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	policyPath := resolvePolicyPath()
	policyValues := browserkernel.DefaultPolicyValues()
	if cfg, err := config.Load(policyPath); err != nil {
		log.Warn("policy file not loaded, using defaults", "path", policyPath, "error", err)
	} else {
		policyValues = cfg.PolicyValues()
		log.Info("policy file loaded", "path", policyPath)
	}
	snapshot := browserkernel.NewPolicySnapshot(policyValues)
	if watcher, err := config.WatchPolicyFile(policyPath, snapshot, log); err != nil {
		log.Debug("policy hot-reload disabled", "path", policyPath, "error", err)
	} else {
		defer watcher.Close()
	}

	registry := browserkernel.NewRegistry()
	stateCenter := browserkernel.NewStateCenter(1024, log)
	stream := taskstream.New("", log)

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	provider := providers.NewAnthropicProvider(apiKey)
	plan := planner.New(provider, model, log)

	driverOpts := []browser.Option{browser.WithHeadless(true)}
	if apiKey == "" {
		log.Warn("ANTHROPIC_API_KEY not set; LLM planner calls will fail")
	}
	driver := browser.New(driverOpts...)
	defer driver.Close()

	toolExec := browserkernel.NewToolExecutor(driver, nil)
	sched := scheduler.New(snapshot, registry, toolExec, stateCenter, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	planExec := browserkernel.NewPlanExecutor(sched, registry, stream, log)
	loop := browseragent.New(planExec, registry, driver, plan, stream, log)

	taskID := browsertypes.TaskId(uuid.NewString())
	result, err := loop.Run(ctx, taskID, goal, browseragent.Options{})
	if err != nil {
		return fmt.Errorf("run: agent loop: %w", err)
	}

	log.Info("agent loop finished", "task_id", taskID, "success", result.Success, "steps", result.StepsTaken)
	fmt.Println(strings.TrimSpace(result.Text))
	return nil
}
