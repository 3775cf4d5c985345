/*
executor.go - Scheduled task executor

PURPOSE:
  Drains the task table: every PollInterval it loads due tasks, dispatches
  each to the handler registered for its type and records the outcome. It
  shares nothing with the request path except the task table.

DESIGN:
  - One cycle runs immediately on start, then one per tick
  - Statistics gate: a cycle returns early when nothing is overdue
  - Handler nil      -> MarkSucceeded
  - Handler error    -> MarkFailed (due again next cycle until MaxRetries)
  - No handler       -> MarkAbandoned, never retried
  - Each task is re-read before its handler runs; one finalized since the
    batch was loaded (e.g. its booking was cancelled) is counted as
    Superseded and left alone. The store refuses to overwrite a finalized
    task, so a cancel racing the handler also ends up Superseded.
  - A cycle that cannot reach the store counts as an error; after
    MaxConsecutiveErrors in a row Run gives up and returns
  - Cycles never overlap, including RunNow from the admin endpoint

CONFIGURATION:
  - PollInterval: How often to check (default: 60s)
  - BatchSize: Max tasks per cycle (default: 100)
  - MaxConsecutiveErrors: Default 5

USAGE:
  exec := worker.NewExecutor(service.Tasks(), logger)
  exec.Register(generic.TaskReminder, handler)
  exec.Start(ctx)
  // ... later
  exec.Stop()

SEE ALSO:
  - generic/tasks.go: State transitions
  - notify/handler.go: Email handler
*/
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/court-engine/generic"
)

const (
	DefaultPollInterval         = 60 * time.Second
	DefaultBatchSize            = 100
	DefaultMaxConsecutiveErrors = 5
)

// Handler executes one task's side effect.
type Handler interface {
	Handle(ctx context.Context, task generic.ScheduledTask) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task generic.ScheduledTask) error

func (f HandlerFunc) Handle(ctx context.Context, task generic.ScheduledTask) error {
	return f(ctx, task)
}

// CycleResult summarizes one processing cycle.
type CycleResult struct {
	CycleID   string
	Skipped   bool // nothing was overdue
	Due       int
	Succeeded int
	Failed    int
	Abandoned int
	// Superseded tasks were finalized elsewhere while the cycle ran.
	Superseded int
}

// Executor polls the task queue and runs due tasks.
type Executor struct {
	Queue                *generic.TaskQueue
	PollInterval         time.Duration
	BatchSize            int
	MaxConsecutiveErrors int

	logger   *zap.Logger
	handlers map[generic.TaskType]Handler

	cycleMu  sync.Mutex
	mu       sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

func NewExecutor(queue *generic.TaskQueue, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		Queue:                queue,
		PollInterval:         DefaultPollInterval,
		BatchSize:            DefaultBatchSize,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		logger:               logger.Named("worker"),
		handlers:             make(map[generic.TaskType]Handler),
		stop:                 make(chan struct{}),
	}
}

// Register sets the handler for a task type. Call before Start.
func (e *Executor) Register(taskType generic.TaskType, h Handler) {
	e.handlers[taskType] = h
}

// Start runs the loop in a background goroutine.
func (e *Executor) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Run(ctx); err != nil {
			e.logger.Error("executor stopped", zap.Error(err))
		}
	}()
	e.logger.Info("executor started", zap.Duration("poll_interval", e.PollInterval))
}

// Stop ends the loop and waits for the current cycle to finish.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
	e.logger.Info("executor stopped")
}

// Run processes due tasks until ctx is done or Stop is called. It returns an
// error only after MaxConsecutiveErrors failed cycles in a row.
func (e *Executor) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.PollInterval)
	defer ticker.Stop()

	consecutive := 0
	for {
		if _, err := e.ProcessDue(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			consecutive++
			e.logger.Error("cycle failed",
				zap.Int("consecutive_errors", consecutive),
				zap.Error(err),
			)
			if consecutive >= e.MaxConsecutiveErrors {
				return fmt.Errorf("giving up after %d consecutive errors: %w", consecutive, err)
			}
		} else {
			consecutive = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-e.stop:
			return nil
		case <-ticker.C:
		}
	}
}

// RunNow triggers an immediate cycle (for admin/testing).
func (e *Executor) RunNow(ctx context.Context) (CycleResult, error) {
	return e.ProcessDue(ctx)
}

// ProcessDue runs one cycle.
func (e *Executor) ProcessDue(ctx context.Context) (CycleResult, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	res := CycleResult{CycleID: uuid.NewString()}
	log := e.logger.With(zap.String("cycle_id", res.CycleID))

	stats, err := e.Queue.Statistics(ctx)
	if err != nil {
		return res, fmt.Errorf("task statistics: %w", err)
	}
	if stats.PendingOverdue == 0 {
		res.Skipped = true
		log.Debug("nothing overdue", zap.Int("pending_future", stats.PendingFuture))
		return res, nil
	}

	due, err := e.Queue.Due(ctx, e.BatchSize)
	if err != nil {
		return res, fmt.Errorf("load due tasks: %w", err)
	}
	res.Due = len(due)

	for _, task := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := e.execute(ctx, log, task, &res); err != nil {
			return res, err
		}
	}

	log.Info("cycle complete",
		zap.Int("due", res.Due),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("abandoned", res.Abandoned),
		zap.Int("superseded", res.Superseded),
	)
	return res, nil
}

// execute runs one task. Only store failures are returned; handler errors
// are recorded on the task.
func (e *Executor) execute(ctx context.Context, log *zap.Logger, task generic.ScheduledTask, res *CycleResult) error {
	tlog := log.With(
		zap.Int64("task_id", int64(task.ID)),
		zap.String("type", string(task.Type)),
	)

	current, err := e.Queue.Get(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("reload task %d: %w", task.ID, err)
	}
	if current.Executed {
		res.Superseded++
		tlog.Info("task finalized elsewhere, skipping", zap.String("outcome", string(current.Outcome)))
		return nil
	}
	task = current

	h, ok := e.handlers[task.Type]
	if !ok {
		reason := fmt.Sprintf("no handler for task type %s", task.Type)
		if _, err := e.Queue.MarkAbandoned(ctx, task, reason); err != nil {
			if superseded(err, res, tlog) {
				return nil
			}
			return fmt.Errorf("abandon task %d: %w", task.ID, err)
		}
		res.Abandoned++
		tlog.Warn("task abandoned", zap.String("reason", reason))
		return nil
	}

	if herr := h.Handle(ctx, task); herr != nil {
		updated, err := e.Queue.MarkFailed(ctx, task, herr)
		if err != nil {
			if superseded(err, res, tlog) {
				return nil
			}
			return fmt.Errorf("record failure of task %d: %w", task.ID, err)
		}
		res.Failed++
		tlog.Warn("task failed",
			zap.Int("retry_count", updated.RetryCount),
			zap.Bool("final", updated.Executed),
			zap.Bool("transient", errors.Is(herr, generic.ErrTransientSend)),
			zap.Error(herr),
		)
		return nil
	}

	if _, err := e.Queue.MarkSucceeded(ctx, task); err != nil {
		if superseded(err, res, tlog) {
			return nil
		}
		return fmt.Errorf("complete task %d: %w", task.ID, err)
	}
	res.Succeeded++
	tlog.Debug("task done")
	return nil
}

// superseded reports whether a state write lost to a concurrent finalization.
func superseded(err error, res *CycleResult, tlog *zap.Logger) bool {
	if !errors.Is(err, generic.ErrConcurrentModification) {
		return false
	}
	res.Superseded++
	tlog.Info("task finalized while running, keeping its state", zap.Error(err))
	return true
}
