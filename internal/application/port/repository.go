package port

import (
	"context"
	"time"

	"github.com/finstack/docflow/internal/domain/approval"
	"github.com/finstack/docflow/internal/domain/audit"
	"github.com/finstack/docflow/internal/domain/document"
	"github.com/finstack/docflow/internal/domain/schedule"
)

// DocumentRepository defines persistence operations for Document.
// UpdateStatus is the compare-and-swap transition primitive: the update
// applies only while the stored status still matches from, otherwise it
// fails with document.ErrConflict. Documents are never blind-overwritten.
type DocumentRepository interface {
	Create(ctx context.Context, doc *document.Document) error
	GetByID(ctx context.Context, id int64) (*document.Document, error)
	GetByReference(ctx context.Context, reference string) (*document.Document, error)
	UpdateStatus(ctx context.Context, id int64, from, to document.Status) error
	Update(ctx context.Context, doc *document.Document) error
	List(ctx context.Context, limit, offset int) ([]*document.Document, error)

	// ListUnpaidPastDue returns non-terminal, unpaid documents whose due
	// date is before asOf and that are not yet flagged overdue
	ListUnpaidPastDue(ctx context.Context, asOf time.Time, limit int) ([]*document.Document, error)

	// MarkOverdue sets the overdue flag; it returns false when the flag
	// was already set, keeping the sweep idempotent
	MarkOverdue(ctx context.Context, id int64) (bool, error)

	// NextReferenceSeq reserves the next per-category, per-year counter
	// used to build document references
	NextReferenceSeq(ctx context.Context, category document.Category, year int) (int64, error)
}

// ApprovalStepRepository defines persistence operations for approval
// steps. Approve is conditional on the step still being pending, which
// makes two concurrent decisions on the same step resolve to one success
// and one document.ErrConflict.
type ApprovalStepRepository interface {
	CreateBatch(ctx context.Context, steps []*approval.Step) error
	GetByDocumentID(ctx context.Context, documentID int64) ([]*approval.Step, error)
	FirstPending(ctx context.Context, documentID int64) (*approval.Step, error)
	CountPending(ctx context.Context, documentID int64) (int, error)
	Approve(ctx context.Context, stepID int64, decidedBy string, comment string, decidedAt time.Time) error
	VoidPending(ctx context.Context, documentID int64) (int64, error)
}

// ScheduleRepository defines persistence operations for payment schedules
type ScheduleRepository interface {
	Create(ctx context.Context, sched *schedule.Schedule) error
	GetByID(ctx context.Context, id int64) (*schedule.Schedule, error)
	GetByDocumentID(ctx context.Context, documentID int64) (*schedule.Schedule, error)
	UpdateStatus(ctx context.Context, id int64, from, to string) error
	UpdateProgress(ctx context.Context, id int64, paidCount int, nextDue *time.Time) error
}

// InstallmentRepository defines persistence operations for installments.
// MarkPaid and MarkOverdue are conditional on the pending status.
type InstallmentRepository interface {
	CreateBatch(ctx context.Context, installments []*schedule.Installment) error
	GetByID(ctx context.Context, id int64) (*schedule.Installment, error)
	GetByScheduleID(ctx context.Context, scheduleID int64) ([]*schedule.Installment, error)
	MarkPaid(ctx context.Context, id int64, paidBy string, paidDate time.Time) error
	MarkOverdue(ctx context.Context, id int64) (bool, error)
	CountPaid(ctx context.Context, scheduleID int64) (int, error)
	EarliestPendingDue(ctx context.Context, scheduleID int64) (*time.Time, error)
	ListPendingDueBefore(ctx context.Context, asOf time.Time, limit int) ([]*schedule.Installment, error)
	ListDueBetween(ctx context.Context, from, to time.Time) ([]*schedule.Installment, error)
}

// AuditRepository defines persistence operations for the audit trail.
// Entries are insert-only.
type AuditRepository interface {
	Create(ctx context.Context, entry *audit.Entry) error
	GetByDocumentID(ctx context.Context, documentID int64) ([]*audit.Entry, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
