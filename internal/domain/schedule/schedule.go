// Package schedule holds the payment schedule and installment model plus
// the due-date arithmetic used to materialize installment plans.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// ErrSchedule is returned when an installment math precondition is
// violated, e.g. paying an already-paid installment or paying into a
// cancelled schedule
var ErrSchedule = errors.New("schedule precondition violated")

// Schedule status constants
const (
	StatusActive    = "ACTIVE"
	StatusPaused    = "PAUSED"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
)

// Installment status constants
const (
	InstallmentPending = "PENDING"
	InstallmentPaid    = "PAID"
	InstallmentOverdue = "OVERDUE"
)

// Frequency encodes the spacing between installment due dates. Exactly
// one of Days or Months is positive; months use calendar arithmetic
// anchored to the start day so repeated additions never drift.
type Frequency struct {
	Days   int `json:"days,omitempty"`
	Months int `json:"months,omitempty"`
}

// Monthly returns a calendar-month frequency
func Monthly() Frequency { return Frequency{Months: 1} }

// EveryDays returns a fixed day-count frequency
func EveryDays(days int) Frequency { return Frequency{Days: days} }

// Validate checks that exactly one spacing dimension is set
func (f Frequency) Validate() error {
	if f.Days > 0 && f.Months > 0 {
		return fmt.Errorf("%w: frequency must use days or months, not both", ErrSchedule)
	}
	if f.Days <= 0 && f.Months <= 0 {
		return fmt.Errorf("%w: frequency must be positive", ErrSchedule)
	}
	return nil
}

// DueDate computes the due date of the i-th installment (zero-based) from
// the start date. Month-based frequencies multiply from the anchor rather
// than adding repeatedly, and clamp to the last day of shorter months.
func (f Frequency) DueDate(start time.Time, i int) time.Time {
	if f.Months > 0 {
		return addMonthsClamped(start, i*f.Months)
	}
	return start.AddDate(0, 0, i*f.Days)
}

// addMonthsClamped adds months keeping the anchor day, clamping Jan 31 +
// 1 month to Feb 28/29 instead of rolling into March
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// Schedule owns an ordered list of installments for a document. Paid
// count and next due date are derived from installment state, never
// incremented independently.
type Schedule struct {
	ID         int64 `json:"id"`
	DocumentID int64 `json:"document_id"`

	TotalAmountCents       int64     `json:"total_amount_cents"`
	InstallmentAmountCents int64     `json:"installment_amount_cents"`
	Frequency              Frequency `json:"frequency"`
	StartDate              time.Time `json:"start_date"`

	TotalCount int        `json:"total_count"`
	PaidCount  int        `json:"paid_count"`
	NextDue    *time.Time `json:"next_due,omitempty"`

	Status string `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Installment is one scheduled partial payment within a schedule
type Installment struct {
	ID         int64 `json:"id"`
	ScheduleID int64 `json:"schedule_id"`

	Sequence int       `json:"sequence"`
	DueDate  time.Time `json:"due_date"`

	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`

	PaidDate *time.Time `json:"paid_date,omitempty"`
	PaidBy   string     `json:"paid_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RemainingCount returns the number of installments not yet paid
func (s *Schedule) RemainingCount() int {
	return s.TotalCount - s.PaidCount
}

// RemainingAmountCents returns the unpaid portion of the plan
func (s *Schedule) RemainingAmountCents() int64 {
	return int64(s.RemainingCount()) * s.InstallmentAmountCents
}

// PaidAmountCents returns the already-paid portion of the plan
func (s *Schedule) PaidAmountCents() int64 {
	return int64(s.PaidCount) * s.InstallmentAmountCents
}

// ProgressPercent returns paid progress in percent, rounded to two
// decimals
func (s *Schedule) ProgressPercent() float64 {
	if s.TotalCount == 0 {
		return 0
	}
	return float64(int64(float64(s.PaidCount)/float64(s.TotalCount)*10000)) / 100
}

// IsCompleted returns true once every installment is paid
func (s *Schedule) IsCompleted() bool {
	return s.PaidCount >= s.TotalCount
}

// CanBePaused reports whether the schedule may move to PAUSED
func (s *Schedule) CanBePaused() bool { return s.Status == StatusActive }

// CanBeResumed reports whether the schedule may move back to ACTIVE
func (s *Schedule) CanBeResumed() bool { return s.Status == StatusPaused }

// CanBeCancelled reports whether the schedule may be cancelled
func (s *Schedule) CanBeCancelled() bool {
	return s.Status == StatusActive || s.Status == StatusPaused
}

// AcceptsPayments reports whether new payments may be applied. Cancelled
// and completed schedules are closed to payment, which is the dangling
// state guard for cancelled plans.
func (s *Schedule) AcceptsPayments() bool {
	return s.Status == StatusActive
}

// Plan is the validated result of generating a schedule: the schedule,
// its fixed installment batch, and any warning about an amount mismatch
type Plan struct {
	Schedule     *Schedule
	Installments []*Installment

	// Warning is set when installment_amount * count does not equal the
	// declared total; the mismatch is reported, never silently adjusted
	Warning string
}

// Generate produces a fixed batch of count installments with due dates
// spaced by the frequency starting at start. The batch is created once at
// schedule-activation time and never appended to incrementally.
func Generate(documentID int64, totalCents, perCents int64, start time.Time, freq Frequency, count int) (*Plan, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: installment count must be at least 1", ErrSchedule)
	}
	if perCents <= 0 {
		return nil, fmt.Errorf("%w: installment amount must be positive", ErrSchedule)
	}
	if err := freq.Validate(); err != nil {
		return nil, err
	}

	firstDue := freq.DueDate(start, 0)
	sched := &Schedule{
		DocumentID:             documentID,
		TotalAmountCents:       totalCents,
		InstallmentAmountCents: perCents,
		Frequency:              freq,
		StartDate:              start,
		TotalCount:             count,
		PaidCount:              0,
		NextDue:                &firstDue,
		Status:                 StatusActive,
	}

	installments := make([]*Installment, 0, count)
	for i := 0; i < count; i++ {
		installments = append(installments, &Installment{
			Sequence:    i + 1,
			DueDate:     freq.DueDate(start, i),
			AmountCents: perCents,
			Status:      InstallmentPending,
		})
	}

	plan := &Plan{Schedule: sched, Installments: installments}
	if scheduled := perCents * int64(count); scheduled != totalCents {
		plan.Warning = fmt.Sprintf("scheduled amount %d does not match declared total %d", scheduled, totalCents)
	}
	return plan, nil
}
