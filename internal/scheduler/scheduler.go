package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

const orphanTaskKey = "__orphan__"

// Handle is returned by Submit and resolves once the dispatch reaches a
// terminal state.
type Handle struct {
	ActionId string

	done   chan struct{}
	result DispatchOutput
}

// Wait blocks until the dispatch finishes or ctx is done, whichever comes
// first. A ctx cancellation here does not cancel the dispatch itself — call
// Scheduler.Cancel for that.
func (h *Handle) Wait(ctx context.Context) (DispatchOutput, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return DispatchOutput{}, ctx.Err()
	}
}

type inflight struct {
	cancel context.CancelFunc
	mu     sync.Mutex
	status Status
}

// Scheduler is spec component C5: an admission-controlled dispatcher sitting
// between the agent loop / plan executor and the tool executor. It holds no
// domain knowledge of browsers, plans, or steps — only dispatch bookkeeping.
type Scheduler struct {
	limits   LimitsProvider
	resolver RouteResolver
	executor ToolExecutor
	sink     EventSink
	log      *slog.Logger

	global  *dynamicSem
	limiter *rate.Limiter

	mu          sync.Mutex
	perTask     map[string]*dynamicSem
	queuedCount int

	inflight sync.Map // actionId string -> *inflight
}

// New builds a Scheduler. limits is re-read on every admission decision, so
// a Policy Snapshot swap takes effect without reconstructing the Scheduler.
func New(limits LimitsProvider, resolver RouteResolver, executor ToolExecutor, sink EventSink, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		limits:   limits,
		resolver: resolver,
		executor: executor,
		sink:     sink,
		log:      log,
		perTask:  make(map[string]*dynamicSem),
		limiter:  rate.NewLimiter(rate.Inf, 0),
	}
	s.global = newDynamicSem(func() int { return s.limits.Snapshot().GlobalSlots })
	return s
}

// throttle re-reads the current global slot count and blocks until the
// dispatch-rate limiter admits one more dispatch. It sits underneath the
// two-semaphore admission model (spec §4.3/§5): the semaphores bound
// concurrency, this bounds the rate new dispatches start at, smoothing
// bursts of newly-freed slots (e.g. many retries completing at once) rather
// than firing them all in the same instant.
func (s *Scheduler) throttle(ctx context.Context) error {
	globalSlots := s.limits.Snapshot().GlobalSlots
	if globalSlots <= 0 {
		globalSlots = 1
	}
	s.limiter.SetBurst(globalSlots)
	s.limiter.SetLimit(rate.Limit(globalSlots * 2))
	return s.limiter.Wait(ctx)
}

func (s *Scheduler) perTaskSem(key string) *dynamicSem {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.perTask[key]
	if !ok {
		sem = newDynamicSem(func() int { return s.limits.Snapshot().PerTaskLimit })
		s.perTask[key] = sem
	}
	return sem
}

// Submit admits req into the scheduler. It returns ErrQueueFull immediately
// if the bounded wait queue is already saturated; otherwise it returns a
// Handle that resolves once the dispatch (including retries) reaches a
// terminal state. Queued dispatches are not served in arrival order: after
// a release, whichever waiter re-acquires the semaphore first proceeds.
func (s *Scheduler) Submit(ctx context.Context, req DispatchRequest) (*Handle, error) {
	taskKey := string(req.ToolCall.TaskId)
	if taskKey == "" {
		taskKey = orphanTaskKey
	}
	global := s.global
	perTask := s.perTaskSem(taskKey)

	enqueuedAt := time.Now()
	actionID := uuid.NewString()
	dispatchCtx, cancel := context.WithCancel(ctx)

	inf := &inflight{cancel: cancel}
	s.inflight.Store(actionID, inf)

	h := &Handle{ActionId: actionID, done: make(chan struct{})}

	// Fast path: both slots free right now, no queueing needed.
	if global.tryAcquire() {
		if perTask.tryAcquire() {
			go s.run(dispatchCtx, actionID, req, enqueuedAt, global, perTask, h)
			return h, nil
		}
		global.release()
	}

	limits := s.limits.Snapshot()
	s.mu.Lock()
	if s.queuedCount >= limits.QueueCapacity {
		s.mu.Unlock()
		cancel()
		s.inflight.Delete(actionID)
		return nil, ErrQueueFull
	}
	s.queuedCount++
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.queuedCount--
			s.mu.Unlock()
		}()

		if err := global.acquire(dispatchCtx); err != nil {
			s.finishPreempted(actionID, req, enqueuedAt, h, err)
			return
		}
		if err := perTask.acquire(dispatchCtx); err != nil {
			global.release()
			s.finishPreempted(actionID, req, enqueuedAt, h, err)
			return
		}
		s.run(dispatchCtx, actionID, req, enqueuedAt, global, perTask, h)
	}()

	return h, nil
}

// Cancel requests that an in-flight or still-queued dispatch stop. Queued
// dispatches are removed without ever starting; running dispatches have
// their context cancelled and abort at their next suspension point — any
// result the executor later returns is discarded. Cancel returns
// ErrNotFound if the action id is unknown (never submitted or already
// reaped).
func (s *Scheduler) Cancel(actionID string) error {
	v, ok := s.inflight.Load(actionID)
	if !ok {
		return ErrNotFound
	}
	inf := v.(*inflight)
	inf.mu.Lock()
	inf.status = StatusCancelled
	inf.mu.Unlock()
	inf.cancel()
	return nil
}

func (s *Scheduler) finishPreempted(actionID string, req DispatchRequest, enqueuedAt time.Time, h *Handle, err error) {
	finishedAt := time.Now()
	out := DispatchOutput{
		Error:    err.Error(),
		Status:   StatusCancelled,
		Attempts: 0,
		Timeline: DispatchTimeline{EnqueuedAt: enqueuedAt, StartedAt: nil, FinishedAt: &finishedAt},
	}
	s.complete(actionID, req, h, out)
}

// run executes req to completion (including retries) having already
// acquired both semaphores. It always releases them before returning.
func (s *Scheduler) run(ctx context.Context, actionID string, req DispatchRequest, enqueuedAt time.Time, global, perTask *dynamicSem, h *Handle) {
	defer perTask.release()
	defer global.release()

	startedAt := time.Now()

	maxAttempts := req.Options.Retry.Max + 1
	attempts := 0
	var lastErr error
	var output json.RawMessage
	var status Status
	var route browsertypes.ExecRoute

attemptLoop:
	for attempts < maxAttempts {
		attempts++

		if ctx.Err() != nil {
			status = StatusCancelled
			lastErr = ctx.Err()
			break attemptLoop
		}

		resolved, rerr := s.resolver.Resolve(req.RoutingHint)
		if rerr != nil {
			status = StatusFailure
			lastErr = fmt.Errorf("%w: %v", ErrResolveFailed, rerr)
			break attemptLoop
		}
		route = resolved

		if err := s.throttle(ctx); err != nil {
			status = StatusCancelled
			lastErr = err
			break attemptLoop
		}

		callCtx := ctx
		var cancelTimeout context.CancelFunc
		if req.Options.Timeout > 0 {
			callCtx, cancelTimeout = context.WithTimeout(ctx, req.Options.Timeout)
		}
		out, err := s.executor.Execute(callCtx, req.ToolCall.Tool, route, req.ToolCall.Payload)
		timedOut := callCtx.Err() == context.DeadlineExceeded
		if cancelTimeout != nil {
			cancelTimeout()
		}

		if err == nil {
			if ctx.Err() != nil {
				// Cancel(actionID) landed while the executor was still
				// finishing; discard the result instead of reporting it as
				// Success (spec §5: "if it completes anyway the result is
				// discarded").
				status = StatusCancelled
				lastErr = ctx.Err()
				break attemptLoop
			}
			output = out
			status = StatusSuccess
			lastErr = nil
			break attemptLoop
		}

		lastErr = err
		switch {
		case timedOut:
			status = StatusTimeout
		case ctx.Err() != nil:
			status = StatusCancelled
			break attemptLoop
		default:
			status = StatusFailure
		}

		if attempts >= maxAttempts {
			break attemptLoop
		}
		if req.Options.Retry.Backoff > 0 {
			select {
			case <-time.After(req.Options.Retry.Backoff):
			case <-ctx.Done():
				status = StatusCancelled
				lastErr = ctx.Err()
				break attemptLoop
			}
		}
	}

	finishedAt := time.Now()
	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	out := DispatchOutput{
		Route:    route,
		Output:   output,
		Error:    errMsg,
		Status:   status,
		Attempts: attempts,
		Timeline: DispatchTimeline{EnqueuedAt: enqueuedAt, StartedAt: &startedAt, FinishedAt: &finishedAt},
	}
	s.complete(actionID, req, h, out)
}

func (s *Scheduler) complete(actionID string, req DispatchRequest, h *Handle, out DispatchOutput) {
	s.inflight.Delete(actionID)
	h.result = out
	close(h.done)

	if s.sink == nil {
		return
	}
	s.mu.Lock()
	pending := s.queuedCount
	s.mu.Unlock()
	s.sink.RecordDispatch(DispatchEvent{
		Tool:           req.ToolCall.Tool,
		Route:          out.Route,
		Attempts:       out.Attempts,
		WaitMs:         out.Timeline.WaitMs(),
		RunMs:          out.Timeline.RunMs(),
		Pending:        pending,
		SlotsAvailable: s.global.available(),
		Status:         out.Status,
		Error:          out.Error,
		RecordedAt:     out.Timeline.FinishedAt.UTC(),
	})
}

// dispatchCount reports the number of dispatches currently in flight, for
// diagnostics and tests.
func (s *Scheduler) dispatchCount() int {
	n := 0
	s.inflight.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
