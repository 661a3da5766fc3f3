package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finstack/docflow/internal/application/port"
	"github.com/finstack/docflow/internal/domain/document"
)

const documentColumns = `
	id, reference, category, status,
	base_amount_cents, tax_amount_cents, total_amount_cents,
	payment_type, installment_count, installment_amount_cents,
	frequency_days, frequency_months,
	created_by, current_approval_seq,
	approved_by, rejected_by, rejection_reason, rejection_comment,
	overdue, due_date,
	submitted_at, approved_at, rejected_at, paid_at, terminated_at, cancelled_at,
	created_at, updated_at`

// DocumentRepository implements port.DocumentRepository on SQLite
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *document.Document) error {
	query := `
		INSERT INTO documents (
			reference, category, status,
			base_amount_cents, tax_amount_cents, total_amount_cents,
			payment_type, installment_count, installment_amount_cents,
			frequency_days, frequency_months,
			created_by, current_approval_seq, overdue, due_date, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		doc.Reference,
		doc.Category,
		doc.Status,
		doc.BaseAmountCents,
		doc.TaxAmountCents,
		doc.TotalAmountCents,
		doc.PaymentType,
		doc.InstallmentCount,
		doc.InstallmentAmountCents,
		doc.FrequencyDays,
		doc.FrequencyMonths,
		doc.CreatedBy,
		doc.CurrentApprovalSeq,
		doc.Overdue,
		doc.DueDate,
		doc.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	doc.ID = id
	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*document.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`
	return r.scanOne(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
}

// GetByReference retrieves a document by its generated reference
func (r *DocumentRepository) GetByReference(ctx context.Context, reference string) (*document.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE reference = ?`
	return r.scanOne(getExecutor(ctx, r.db).QueryRowContext(ctx, query, reference))
}

// UpdateStatus applies a compare-and-swap status transition. The update
// only lands while the stored status still matches from; a lost race
// surfaces as document.ErrConflict.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id int64, from, to document.Status) error {
	query := `
		UPDATE documents
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query, to, id, from)
	if err != nil {
		r.logger.Error("Failed to update document status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update document status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: document %d is no longer in status %s", document.ErrConflict, id, from)
	}
	return nil
}

// Update persists the document's mutable fields
func (r *DocumentRepository) Update(ctx context.Context, doc *document.Document) error {
	query := `
		UPDATE documents SET
			status = ?,
			base_amount_cents = ?, tax_amount_cents = ?, total_amount_cents = ?,
			current_approval_seq = ?,
			approved_by = ?, rejected_by = ?,
			rejection_reason = ?, rejection_comment = ?,
			overdue = ?, due_date = ?,
			submitted_at = ?, approved_at = ?, rejected_at = ?,
			paid_at = ?, terminated_at = ?, cancelled_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		doc.Status,
		doc.BaseAmountCents,
		doc.TaxAmountCents,
		doc.TotalAmountCents,
		doc.CurrentApprovalSeq,
		doc.ApprovedBy,
		doc.RejectedBy,
		doc.RejectionReason,
		doc.RejectionComment,
		doc.Overdue,
		doc.DueDate,
		doc.SubmittedAt,
		doc.ApprovedAt,
		doc.RejectedAt,
		doc.PaidAt,
		doc.TerminatedAt,
		doc.CancelledAt,
		doc.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update document", zap.Int64("id", doc.ID), zap.Error(err))
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

// List retrieves documents with pagination, newest first
func (r *DocumentRepository) List(ctx context.Context, limit, offset int) ([]*document.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// ListUnpaidPastDue returns non-terminal documents with a due date
// before asOf that are not yet flagged overdue
func (r *DocumentRepository) ListUnpaidPastDue(ctx context.Context, asOf time.Time, limit int) ([]*document.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE status NOT IN (?, ?, ?)
		  AND overdue = 0
		  AND due_date IS NOT NULL
		  AND due_date < ?
		ORDER BY due_date ASC
		LIMIT ?`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query,
		document.StatusPaid, document.StatusTerminated, document.StatusCancelled,
		asOf, limit)
	if err != nil {
		r.logger.Error("Failed to list past-due documents", zap.Error(err))
		return nil, fmt.Errorf("failed to list past-due documents: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// MarkOverdue sets the overdue flag; the condition on the current flag
// value makes the second call a no-op
func (r *DocumentRepository) MarkOverdue(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE documents
		SET overdue = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND overdue = 0
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to mark document overdue", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark document overdue: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

// NextReferenceSeq reserves the next per-category, per-year counter
func (r *DocumentRepository) NextReferenceSeq(ctx context.Context, category document.Category, year int) (int64, error) {
	query := `
		INSERT INTO reference_counters (category, year, seq)
		VALUES (?, ?, 1)
		ON CONFLICT (category, year) DO UPDATE SET seq = seq + 1
		RETURNING seq
	`

	var seq int64
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, category, year).Scan(&seq)
	if err != nil {
		r.logger.Error("Failed to reserve reference sequence",
			zap.String("category", category.String()), zap.Int("year", year), zap.Error(err))
		return 0, fmt.Errorf("failed to reserve reference sequence: %w", err)
	}
	return seq, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *DocumentRepository) scanOne(row *sql.Row) (*document.Document, error) {
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to scan document", zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) scanAll(rows *sql.Rows) ([]*document.Document, error) {
	var documents []*document.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, doc)
	}
	return documents, rows.Err()
}

func scanDocument(s rowScanner) (*document.Document, error) {
	var doc document.Document
	var approvedBy, rejectedBy, rejectionReason, rejectionComment sql.NullString
	var dueDate, submittedAt, approvedAt, rejectedAt, paidAt, terminatedAt, cancelledAt sql.NullTime

	err := s.Scan(
		&doc.ID,
		&doc.Reference,
		&doc.Category,
		&doc.Status,
		&doc.BaseAmountCents,
		&doc.TaxAmountCents,
		&doc.TotalAmountCents,
		&doc.PaymentType,
		&doc.InstallmentCount,
		&doc.InstallmentAmountCents,
		&doc.FrequencyDays,
		&doc.FrequencyMonths,
		&doc.CreatedBy,
		&doc.CurrentApprovalSeq,
		&approvedBy,
		&rejectedBy,
		&rejectionReason,
		&rejectionComment,
		&doc.Overdue,
		&dueDate,
		&submittedAt,
		&approvedAt,
		&rejectedAt,
		&paidAt,
		&terminatedAt,
		&cancelledAt,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.ApprovedBy = approvedBy.String
	doc.RejectedBy = rejectedBy.String
	doc.RejectionReason = rejectionReason.String
	doc.RejectionComment = rejectionComment.String
	if dueDate.Valid {
		doc.DueDate = &dueDate.Time
	}
	if submittedAt.Valid {
		doc.SubmittedAt = &submittedAt.Time
	}
	if approvedAt.Valid {
		doc.ApprovedAt = &approvedAt.Time
	}
	if rejectedAt.Valid {
		doc.RejectedAt = &rejectedAt.Time
	}
	if paidAt.Valid {
		doc.PaidAt = &paidAt.Time
	}
	if terminatedAt.Valid {
		doc.TerminatedAt = &terminatedAt.Time
	}
	if cancelledAt.Valid {
		doc.CancelledAt = &cancelledAt.Time
	}

	return &doc, nil
}

// Verify interface compliance
var _ port.DocumentRepository = (*DocumentRepository)(nil)
