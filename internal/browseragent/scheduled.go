package browseragent

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// ScheduledTask resubmits goal on a cron schedule (e.g. "check this stock
// quote every weekday at 9:30") via resubmit, until the context passed to
// Scheduler.Run is cancelled.
type ScheduledTask struct {
	Expr     string
	Goal     string
	Resubmit func(ctx context.Context, goal string)
}

// Scheduler runs a small set of cron-triggered task resubmissions. It polls
// once a minute — cron's native resolution — rather than owning a
// per-task timer, matching gronx's stateless IsDue check.
type Scheduler struct {
	tasks []ScheduledTask
	cron  gronx.Gronx
	log   *slog.Logger
}

// NewScheduler builds a cron scheduler over tasks.
func NewScheduler(tasks []ScheduledTask, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{tasks: tasks, cron: gronx.New(), log: log}
}

// Run blocks, firing due tasks once a minute until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	for _, t := range s.tasks {
		due, err := s.cron.IsDue(t.Expr, now)
		if err != nil {
			s.log.Warn("browseragent: invalid cron expression, skipping", "expr", t.Expr, "error", err)
			continue
		}
		if !due {
			continue
		}
		go t.Resubmit(ctx, t.Goal)
	}
}
