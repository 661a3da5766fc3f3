// Package scheduler manages recurring payment schedules: applying
// installment payments, pausing and resuming plans, and reporting
// upcoming obligations.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finstack/docflow/internal/application/dispatcher"
	"github.com/finstack/docflow/internal/application/port"
	"github.com/finstack/docflow/internal/domain/document"
	"github.com/finstack/docflow/internal/domain/event"
	"github.com/finstack/docflow/internal/domain/schedule"
)

// Scheduler exposes the installment plan operations
type Scheduler interface {
	// GetByDocument returns the schedule attached to a document, or
	// document.ErrNotFound when none exists
	GetByDocument(ctx context.Context, documentID int64) (*schedule.Schedule, []*schedule.Installment, error)

	// ApplyPayment records the payment of one pending installment. The
	// paid count and next due date are recomputed from installment state;
	// paying the last installment completes the schedule.
	ApplyPayment(ctx context.Context, installmentID int64, paidBy string, paidAt time.Time) (*schedule.Schedule, error)

	// Pause suspends an active schedule
	Pause(ctx context.Context, scheduleID int64) error

	// Resume reactivates a paused schedule
	Resume(ctx context.Context, scheduleID int64) error

	// Cancel closes an active or paused schedule to further payments
	Cancel(ctx context.Context, scheduleID int64) error

	// ListUpcoming returns pending installments due in [from, to)
	ListUpcoming(ctx context.Context, from, to time.Time) ([]*schedule.Installment, error)

	// MarkInstallmentOverdue flags a pending past-due installment. It
	// returns false without side effects when the installment is no
	// longer pending, keeping the overdue sweep idempotent.
	MarkInstallmentOverdue(ctx context.Context, installmentID int64) (bool, error)
}

type schedulerImpl struct {
	schedules    port.ScheduleRepository
	installments port.InstallmentRepository
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	logger       *zap.Logger
}

// Option configures the scheduler
type Option func(*schedulerImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(s *schedulerImpl) {
		s.dispatcher = d
	}
}

// NewScheduler creates a new installment scheduler
func NewScheduler(
	schedules port.ScheduleRepository,
	installments port.InstallmentRepository,
	txManager port.TransactionManager,
	logger *zap.Logger,
	opts ...Option,
) Scheduler {
	s := &schedulerImpl{
		schedules:    schedules,
		installments: installments,
		txManager:    txManager,
		logger:       logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *schedulerImpl) GetByDocument(ctx context.Context, documentID int64) (*schedule.Schedule, []*schedule.Installment, error) {
	sched, err := s.schedules.GetByDocumentID(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if sched == nil {
		return nil, nil, fmt.Errorf("%w: no schedule for document %d", document.ErrNotFound, documentID)
	}

	installments, err := s.installments.GetByScheduleID(ctx, sched.ID)
	if err != nil {
		return nil, nil, err
	}
	return sched, installments, nil
}

func (s *schedulerImpl) ApplyPayment(ctx context.Context, installmentID int64, paidBy string, paidAt time.Time) (*schedule.Schedule, error) {
	inst, err := s.installments.GetByID(ctx, installmentID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: installment %d", document.ErrNotFound, installmentID)
	}
	if inst.Status != schedule.InstallmentPending {
		return nil, fmt.Errorf("%w: installment %d is %s, only pending installments can be paid",
			schedule.ErrSchedule, installmentID, inst.Status)
	}

	sched, err := s.schedules.GetByID(ctx, inst.ScheduleID)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, fmt.Errorf("%w: schedule %d", document.ErrNotFound, inst.ScheduleID)
	}
	if !sched.AcceptsPayments() {
		return nil, fmt.Errorf("%w: schedule %d is %s and accepts no payments",
			schedule.ErrSchedule, sched.ID, sched.Status)
	}

	var completed bool
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.installments.MarkPaid(txCtx, inst.ID, paidBy, paidAt); err != nil {
			return err
		}

		paidCount, err := s.installments.CountPaid(txCtx, sched.ID)
		if err != nil {
			return err
		}
		nextDue, err := s.installments.EarliestPendingDue(txCtx, sched.ID)
		if err != nil {
			return err
		}
		if err := s.schedules.UpdateProgress(txCtx, sched.ID, paidCount, nextDue); err != nil {
			return err
		}

		sched.PaidCount = paidCount
		sched.NextDue = nextDue

		if paidCount >= sched.TotalCount {
			if err := s.schedules.UpdateStatus(txCtx, sched.ID, schedule.StatusActive, schedule.StatusCompleted); err != nil {
				return err
			}
			sched.Status = schedule.StatusCompleted
			completed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, event.NewEvent(event.TypeInstallmentPaid, sched.DocumentID, map[string]interface{}{
		"schedule_id":  sched.ID,
		"sequence":     inst.Sequence,
		"amount_cents": inst.AmountCents,
		"paid_by":      paidBy,
	}))
	if completed {
		s.emit(ctx, event.NewEvent(event.TypeScheduleCompleted, sched.DocumentID, map[string]interface{}{
			"schedule_id": sched.ID,
		}))
	}

	return sched, nil
}

func (s *schedulerImpl) Pause(ctx context.Context, scheduleID int64) error {
	sched, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if !sched.CanBePaused() {
		return fmt.Errorf("%w: schedule %d is %s and cannot be paused",
			schedule.ErrSchedule, scheduleID, sched.Status)
	}
	return s.schedules.UpdateStatus(ctx, scheduleID, schedule.StatusActive, schedule.StatusPaused)
}

func (s *schedulerImpl) Resume(ctx context.Context, scheduleID int64) error {
	sched, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if !sched.CanBeResumed() {
		return fmt.Errorf("%w: schedule %d is %s and cannot be resumed",
			schedule.ErrSchedule, scheduleID, sched.Status)
	}
	return s.schedules.UpdateStatus(ctx, scheduleID, schedule.StatusPaused, schedule.StatusActive)
}

func (s *schedulerImpl) Cancel(ctx context.Context, scheduleID int64) error {
	sched, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if !sched.CanBeCancelled() {
		return fmt.Errorf("%w: schedule %d is %s and cannot be cancelled",
			schedule.ErrSchedule, scheduleID, sched.Status)
	}
	return s.schedules.UpdateStatus(ctx, scheduleID, sched.Status, schedule.StatusCancelled)
}

func (s *schedulerImpl) ListUpcoming(ctx context.Context, from, to time.Time) ([]*schedule.Installment, error) {
	return s.installments.ListDueBetween(ctx, from, to)
}

func (s *schedulerImpl) MarkInstallmentOverdue(ctx context.Context, installmentID int64) (bool, error) {
	flipped, err := s.installments.MarkOverdue(ctx, installmentID)
	if err != nil || !flipped {
		return false, err
	}

	inst, err := s.installments.GetByID(ctx, installmentID)
	if err != nil {
		return true, err
	}
	if inst != nil {
		sched, err := s.schedules.GetByID(ctx, inst.ScheduleID)
		if err == nil && sched != nil {
			s.emit(ctx, event.NewEvent(event.TypeInstallmentOverdue, sched.DocumentID, map[string]interface{}{
				"schedule_id": sched.ID,
				"sequence":    inst.Sequence,
				"due_date":    inst.DueDate.Format(time.RFC3339),
			}))
		}
	}
	return true, nil
}

func (s *schedulerImpl) getSchedule(ctx context.Context, scheduleID int64) (*schedule.Schedule, error) {
	sched, err := s.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, fmt.Errorf("%w: schedule %d", document.ErrNotFound, scheduleID)
	}
	return sched, nil
}

func (s *schedulerImpl) emit(ctx context.Context, evt *event.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, evt)
}
