// Package notification turns domain events into outbound notifications.
// Delivery runs on the dispatcher's async path with bounded retries; a
// notification that still fails after the last attempt is logged and
// dropped, never replayed against the transition that produced it.
package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finstack/docflow/internal/application/dispatcher"
	"github.com/finstack/docflow/internal/application/port"
	"github.com/finstack/docflow/internal/domain/event"
)

const (
	maxAttempts  = 3
	retryBackoff = time.Second
)

// Handler delivers event-driven notifications through a Notifier
type Handler struct {
	notifier  port.Notifier
	recipient string
	logger    *zap.Logger
}

// NewHandler creates a notification handler. recipient is the default
// destination for operational notices, e.g. a finance team inbox.
func NewHandler(notifier port.Notifier, recipient string, logger *zap.Logger) *Handler {
	return &Handler{
		notifier:  notifier,
		recipient: recipient,
		logger:    logger,
	}
}

// Register subscribes the handler to the event types it reports on
func (h *Handler) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeDocumentTransitioned, "notify-transition", h.onTransition)
	d.SubscribeNamed(event.TypeDocumentOverdue, "notify-document-overdue", h.onDocumentOverdue)
	d.SubscribeNamed(event.TypeInstallmentOverdue, "notify-installment-overdue", h.onInstallmentOverdue)
	d.SubscribeNamed(event.TypeScheduleCompleted, "notify-schedule-completed", h.onScheduleCompleted)
}

func (h *Handler) onTransition(ctx context.Context, evt *event.Event) error {
	subject := fmt.Sprintf("Document %s: %s", evt.GetPayloadString("reference"), evt.GetPayloadString("to_status"))
	body := fmt.Sprintf("Document %s moved from %s to %s (%s by %s).",
		evt.GetPayloadString("reference"),
		evt.GetPayloadString("from_status"),
		evt.GetPayloadString("to_status"),
		evt.GetPayloadString("action"),
		evt.GetPayloadString("actor"))
	return h.deliver(ctx, evt, subject, body)
}

func (h *Handler) onDocumentOverdue(ctx context.Context, evt *event.Event) error {
	subject := fmt.Sprintf("Overdue: document %s", evt.GetPayloadString("reference"))
	body := fmt.Sprintf("Document %s has passed its due date without payment.", evt.GetPayloadString("reference"))
	return h.deliver(ctx, evt, subject, body)
}

func (h *Handler) onInstallmentOverdue(ctx context.Context, evt *event.Event) error {
	subject := fmt.Sprintf("Overdue installment on document %d", evt.DocumentID)
	body := fmt.Sprintf("Installment %d of schedule %d was due on %s and is unpaid.",
		evt.GetPayloadInt("sequence"),
		evt.GetPayloadInt("schedule_id"),
		evt.GetPayloadString("due_date"))
	return h.deliver(ctx, evt, subject, body)
}

func (h *Handler) onScheduleCompleted(ctx context.Context, evt *event.Event) error {
	subject := fmt.Sprintf("Payment plan completed for document %d", evt.DocumentID)
	body := fmt.Sprintf("All installments of schedule %d are paid.", evt.GetPayloadInt("schedule_id"))
	return h.deliver(ctx, evt, subject, body)
}

// deliver attempts the notification up to maxAttempts times with
// exponential backoff between attempts
func (h *Handler) deliver(ctx context.Context, evt *event.Event, subject, body string) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = h.notifier.Notify(ctx, h.recipient, subject, body)
		if lastErr == nil {
			return nil
		}

		h.logger.Warn("Notification attempt failed",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type.String()),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff << (attempt - 1)):
		}
	}

	h.logger.Error("Notification dropped after retries",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type.String()),
		zap.Error(lastErr))
	return fmt.Errorf("notification failed after %d attempts: %w", maxAttempts, lastErr)
}
