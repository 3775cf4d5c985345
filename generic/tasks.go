/*
tasks.go - Durable queue of future-dated side effects

PURPOSE:
  Persists follow-up work (reminders, confirmations, cancellation notices)
  so it survives restarts. The booking path only enqueues; a separate
  executor loop dequeues and runs due tasks. The task table is the only
  channel between the two.

STATE MACHINE:
  PENDING_FUTURE  FireAt > now, not executed
        |  (time passes)
  PENDING_DUE     FireAt <= now, not executed
        |
        +--> EXECUTED_SUCCESS        handler returned nil
        +--> PENDING_DUE             handler failed, RetryCount < MaxRetries
        +--> EXECUTED_FAILED_FINAL   handler failed MaxRetries times
        +--> EXECUTED_CANCELLED      owning booking cancelled before firing

  Retries are polling-driven: a failed task is simply due again on the next
  executor cycle. There is no backoff beyond the poll interval.

CREATION RULE:
  A task whose FireAt is already in the past is rejected, never created to
  fire immediately. For reminders this means a booking made less than
  ReminderLead before its start gets no reminder.

SEE ALSO:
  - worker/executor.go: The polling loop
  - courts/service.go: Enqueues tasks with bookings
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxRetries   = 3
	DefaultReminderLead = 24 * time.Hour

	cancelledTaskNote = "cancelled: booking cancelled before the task fired"
)

// TaskQueue enqueues and transitions scheduled tasks.
type TaskQueue struct {
	store        Store
	clock        Clock
	MaxRetries   int
	ReminderLead time.Duration
}

func NewTaskQueue(store Store, clock Clock) *TaskQueue {
	if clock == nil {
		clock = SystemClock
	}
	return &TaskQueue{
		store:        store,
		clock:        clock,
		MaxRetries:   DefaultMaxRetries,
		ReminderLead: DefaultReminderLead,
	}
}

// In returns a queue bound to the given store, typically a transaction.
func (q *TaskQueue) In(tx Store) *TaskQueue {
	cp := *q
	cp.store = tx
	return &cp
}

// Enqueue persists a new pending task. Returns ErrFireTimePassed when FireAt
// is before now.
func (q *TaskQueue) Enqueue(ctx context.Context, t ScheduledTask) (ScheduledTask, error) {
	now := q.clock.Now()
	if t.FireAt.Before(now) {
		return ScheduledTask{}, fmt.Errorf("%w: %s task at %s", ErrFireTimePassed, t.Type, t.FireAt.Format(time.RFC3339))
	}
	return q.insert(ctx, t, now)
}

// EnqueueNow persists a task that is due immediately (confirmations,
// cancellation notices).
func (q *TaskQueue) EnqueueNow(ctx context.Context, t ScheduledTask) (ScheduledTask, error) {
	now := q.clock.Now()
	t.FireAt = now
	return q.insert(ctx, t, now)
}

func (q *TaskQueue) insert(ctx context.Context, t ScheduledTask, now time.Time) (ScheduledTask, error) {
	t.FireAt = t.FireAt.UTC()
	t.Executed = false
	t.ExecutedAt = nil
	t.RetryCount = 0
	t.LastError = nil
	t.Outcome = OutcomeNone
	t.CreatedAt = now

	id, err := q.store.InsertTask(ctx, t)
	if err != nil {
		return ScheduledTask{}, fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	return t, nil
}

// ScheduleReminder enqueues a reminder ReminderLead before the booking start.
// The bool is false (and nothing is written) when that instant has passed.
func (q *TaskQueue) ScheduleReminder(ctx context.Context, b Booking, payload []byte) (ScheduledTask, bool, error) {
	fireAt := b.Start.Add(-q.ReminderLead)
	if fireAt.Before(q.clock.Now()) {
		return ScheduledTask{}, false, nil
	}
	bookingID := b.ID
	t, err := q.Enqueue(ctx, ScheduledTask{
		UserID:    b.UserID,
		BookingID: &bookingID,
		Type:      TaskReminder,
		FireAt:    fireAt,
		Payload:   payload,
	})
	if err != nil {
		return ScheduledTask{}, false, err
	}
	return t, true, nil
}

// Due returns pending tasks whose fire time has come, oldest first.
func (q *TaskQueue) Due(ctx context.Context, limit int) ([]ScheduledTask, error) {
	return q.store.DueTasks(ctx, q.clock.Now(), limit)
}

// Get returns a task by ID.
func (q *TaskQueue) Get(ctx context.Context, id TaskID) (ScheduledTask, error) {
	return q.store.GetTask(ctx, id)
}

// MarkSucceeded finalizes a task as executed successfully.
func (q *TaskQueue) MarkSucceeded(ctx context.Context, t ScheduledTask) (ScheduledTask, error) {
	now := q.clock.Now()
	t.Executed = true
	t.ExecutedAt = &now
	t.Outcome = OutcomeSucceeded
	return t, q.store.UpdateTaskExecution(ctx, t)
}

// MarkFailed records a failed attempt. The task stays due until RetryCount
// reaches MaxRetries, then it is finalized as failed.
func (q *TaskQueue) MarkFailed(ctx context.Context, t ScheduledTask, cause error) (ScheduledTask, error) {
	msg := cause.Error()
	t.RetryCount++
	t.LastError = &msg
	if t.RetryCount >= q.MaxRetries {
		now := q.clock.Now()
		t.Executed = true
		t.ExecutedAt = &now
		t.Outcome = OutcomeFailed
	}
	return t, q.store.UpdateTaskExecution(ctx, t)
}

// MarkAbandoned finalizes a task as failed without further retries.
func (q *TaskQueue) MarkAbandoned(ctx context.Context, t ScheduledTask, reason string) (ScheduledTask, error) {
	now := q.clock.Now()
	t.Executed = true
	t.ExecutedAt = &now
	t.LastError = &reason
	t.Outcome = OutcomeFailed
	return t, q.store.UpdateTaskExecution(ctx, t)
}

// CancelForBooking moves every pending task of the booking to
// EXECUTED_CANCELLED. Returns how many tasks were cancelled. Idempotent.
func (q *TaskQueue) CancelForBooking(ctx context.Context, booking BookingID) (int, error) {
	tasks, err := q.store.PendingTasksForBooking(ctx, booking)
	if err != nil {
		return 0, fmt.Errorf("load pending tasks: %w", err)
	}
	now := q.clock.Now()
	note := cancelledTaskNote
	cancelled := 0
	for _, t := range tasks {
		t.Executed = true
		t.ExecutedAt = &now
		t.LastError = &note
		t.Outcome = OutcomeCancelled
		err := q.store.UpdateTaskExecution(ctx, t)
		switch {
		case errors.Is(err, ErrConcurrentModification):
			// The executor finished it first
			continue
		case err != nil:
			return 0, fmt.Errorf("cancel task %d: %w", t.ID, err)
		}
		cancelled++
	}
	return cancelled, nil
}

// Statistics summarizes the task table as of now.
func (q *TaskQueue) Statistics(ctx context.Context) (TaskStats, error) {
	return q.store.TaskStatistics(ctx, q.clock.Now())
}
