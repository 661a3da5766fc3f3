package notification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/finstack/docflow/internal/application/dispatcher"
	"github.com/finstack/docflow/internal/domain/event"
)

type recordingNotifier struct {
	failures int
	attempts int
	subjects []string
	bodies   []string
}

func (n *recordingNotifier) Notify(ctx context.Context, recipient, subject, body string) error {
	n.attempts++
	if n.attempts <= n.failures {
		return errors.New("smtp unavailable")
	}
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return nil
}

func TestTransitionNotification(t *testing.T) {
	notifier := &recordingNotifier{}
	handler := NewHandler(notifier, "finance@example.com", zap.NewNop())

	d := dispatcher.NewDispatcher()
	handler.Register(d)

	evt := event.NewEvent(event.TypeDocumentTransitioned, 1, map[string]interface{}{
		"reference":   "EXP-2026-0001",
		"action":      "APPROVE",
		"from_status": "PENDING_APPROVAL",
		"to_status":   "APPROVED",
		"actor":       "ceo-1",
	})
	if err := d.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notifier.subjects) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.subjects))
	}
	if !strings.Contains(notifier.subjects[0], "EXP-2026-0001") {
		t.Errorf("subject missing reference: %q", notifier.subjects[0])
	}
	if !strings.Contains(notifier.bodies[0], "APPROVED") {
		t.Errorf("body missing target status: %q", notifier.bodies[0])
	}
}

func TestOverdueNotifications(t *testing.T) {
	notifier := &recordingNotifier{}
	handler := NewHandler(notifier, "finance@example.com", zap.NewNop())

	d := dispatcher.NewDispatcher()
	handler.Register(d)
	ctx := context.Background()

	docEvt := event.NewEvent(event.TypeDocumentOverdue, 5, map[string]interface{}{
		"reference": "INV-2026-0003",
	})
	instEvt := event.NewEvent(event.TypeInstallmentOverdue, 5, map[string]interface{}{
		"schedule_id": int64(2),
		"sequence":    3,
		"due_date":    "2026-06-01T00:00:00Z",
	})

	if err := d.Dispatch(ctx, docEvt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Dispatch(ctx, instEvt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notifier.subjects) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifier.subjects))
	}
	if !strings.Contains(notifier.subjects[0], "INV-2026-0003") {
		t.Errorf("document subject missing reference: %q", notifier.subjects[0])
	}
	if !strings.Contains(notifier.bodies[1], "schedule 2") {
		t.Errorf("installment body missing schedule: %q", notifier.bodies[1])
	}
}

func TestDeliverRetriesTransientFailure(t *testing.T) {
	notifier := &recordingNotifier{failures: 1}
	handler := NewHandler(notifier, "finance@example.com", zap.NewNop())

	evt := event.NewEvent(event.TypeScheduleCompleted, 7, map[string]interface{}{
		"schedule_id": int64(4),
	})
	if err := handler.onScheduleCompleted(context.Background(), evt); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}

	if notifier.attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", notifier.attempts)
	}
}

func TestDeliverStopsOnCancelledContext(t *testing.T) {
	notifier := &recordingNotifier{failures: maxAttempts}
	handler := NewHandler(notifier, "finance@example.com", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	evt := event.NewEvent(event.TypeScheduleCompleted, 7, nil)
	err := handler.onScheduleCompleted(ctx, evt)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if notifier.attempts != 1 {
		t.Errorf("expected a single attempt before the cancelled backoff, got %d", notifier.attempts)
	}
}
