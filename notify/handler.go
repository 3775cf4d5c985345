/*
handler.go - Notification task handler

PURPOSE:
  Executes email tasks for the worker: decode the payload, render, send and
  record the attempt.

RECORDING RULE:
  Every attempt writes a Notification row, whether or not the send worked.
  A failed send stores the transport error on the row and is reported to
  the executor as *generic.TransientSendError, so the task is retried on
  the next cycle until it runs out of attempts.

  The row is best effort. If InsertNotification fails the attempt is only
  logged and the record is lost: the outcome still follows the send, so a
  delivered email is never sent again just to get its row written.

SEE ALSO:
  - worker/executor.go: Dispatches due tasks to Handle
  - generic/tasks.go: Retry ceiling
*/
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/court-engine/generic"
)

// TaskHandler sends notification emails for scheduled tasks.
type TaskHandler struct {
	store    generic.NotificationStore
	mailer   Mailer
	renderer *Renderer
	clock    generic.Clock
	logger   *zap.Logger
}

func NewTaskHandler(store generic.NotificationStore, mailer Mailer, renderer *Renderer, clock generic.Clock, logger *zap.Logger) *TaskHandler {
	if clock == nil {
		clock = generic.SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandler{store: store, mailer: mailer, renderer: renderer, clock: clock, logger: logger}
}

// Types lists the task types this handler can execute.
func (h *TaskHandler) Types() []generic.TaskType {
	var out []generic.TaskType
	for _, t := range []generic.TaskType{
		generic.TaskConfirmation,
		generic.TaskReminder,
		generic.TaskCancellation,
		generic.TaskPriceUpdate,
	} {
		if h.renderer.Supports(t) {
			out = append(out, t)
		}
	}
	return out
}

// Handle runs one notification task.
func (h *TaskHandler) Handle(ctx context.Context, task generic.ScheduledTask) error {
	payload, err := DecodePayload(task.Payload)
	if err != nil {
		return fmt.Errorf("task %d: %w", task.ID, err)
	}
	subject, body, err := h.renderer.Render(task.Type, payload)
	if err != nil {
		return fmt.Errorf("task %d: %w", task.ID, err)
	}

	sendErr := h.mailer.Send(ctx, payload.Recipient, subject, body)

	now := h.clock.Now()
	taskID := task.ID
	n := generic.Notification{
		UserID:    task.UserID,
		BookingID: task.BookingID,
		TaskID:    &taskID,
		Type:      task.Type,
		Recipient: payload.Recipient,
		Subject:   subject,
		Content:   body,
		CreatedAt: now,
	}
	if sendErr == nil {
		n.Sent = true
		n.SentAt = &now
	} else {
		n.Error = sendErr.Error()
	}
	if _, err := h.store.InsertNotification(ctx, n); err != nil {
		// The email may already be out; a retry would send it twice.
		h.logger.Warn("record notification failed",
			zap.Int64("task_id", int64(task.ID)),
			zap.Error(err),
		)
	}

	if sendErr != nil {
		h.logger.Warn("notification send failed",
			zap.Int64("task_id", int64(task.ID)),
			zap.String("type", string(task.Type)),
			zap.String("recipient", payload.Recipient),
			zap.Int("attempt", task.RetryCount+1),
			zap.Error(sendErr),
		)
		return &generic.TransientSendError{Recipient: payload.Recipient, Err: sendErr}
	}

	h.logger.Info("notification sent",
		zap.Int64("task_id", int64(task.ID)),
		zap.String("type", string(task.Type)),
		zap.String("recipient", payload.Recipient),
	)
	return nil
}
