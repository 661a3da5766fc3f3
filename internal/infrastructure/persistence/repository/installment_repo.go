package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finstack/docflow/internal/application/port"
	"github.com/finstack/docflow/internal/domain/document"
	"github.com/finstack/docflow/internal/domain/schedule"
)

const installmentColumns = `
	id, schedule_id, sequence, due_date, amount_cents, status,
	paid_date, paid_by, created_at, updated_at`

// InstallmentRepository implements port.InstallmentRepository on SQLite
type InstallmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstallmentRepository creates a new installment repository
func NewInstallmentRepository(db *sql.DB, logger *zap.Logger) port.InstallmentRepository {
	return &InstallmentRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts the fixed installment batch of a schedule
func (r *InstallmentRepository) CreateBatch(ctx context.Context, installments []*schedule.Installment) error {
	query := `
		INSERT INTO payment_installments (schedule_id, sequence, due_date, amount_cents, status)
		VALUES (?, ?, ?, ?, ?)
	`

	exec := getExecutor(ctx, r.db)
	for _, inst := range installments {
		result, err := exec.ExecContext(ctx, query,
			inst.ScheduleID,
			inst.Sequence,
			inst.DueDate,
			inst.AmountCents,
			inst.Status,
		)
		if err != nil {
			r.logger.Error("Failed to create installment",
				zap.Int64("schedule_id", inst.ScheduleID),
				zap.Int("sequence", inst.Sequence),
				zap.Error(err))
			return fmt.Errorf("failed to create installment: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		inst.ID = id
	}
	return nil
}

// GetByID retrieves an installment by ID
func (r *InstallmentRepository) GetByID(ctx context.Context, id int64) (*schedule.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM payment_installments WHERE id = ?`

	inst, err := scanInstallment(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get installment", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get installment: %w", err)
	}
	return inst, nil
}

// GetByScheduleID retrieves all installments of a schedule in sequence
// order
func (r *InstallmentRepository) GetByScheduleID(ctx context.Context, scheduleID int64) ([]*schedule.Installment, error) {
	query := `SELECT ` + installmentColumns + `
		FROM payment_installments
		WHERE schedule_id = ?
		ORDER BY sequence ASC`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, scheduleID)
	if err != nil {
		r.logger.Error("Failed to list installments", zap.Int64("schedule_id", scheduleID), zap.Error(err))
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	return scanInstallments(rows)
}

// MarkPaid records the payment of an installment, conditional on it not
// already being paid. Outstanding overdue installments remain payable.
func (r *InstallmentRepository) MarkPaid(ctx context.Context, id int64, paidBy string, paidDate time.Time) error {
	query := `
		UPDATE payment_installments
		SET status = ?, paid_by = ?, paid_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN (?, ?)
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		schedule.InstallmentPaid, paidBy, paidDate,
		id, schedule.InstallmentPending, schedule.InstallmentOverdue)
	if err != nil {
		r.logger.Error("Failed to mark installment paid", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark installment paid: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: installment %d was already paid", document.ErrConflict, id)
	}
	return nil
}

// MarkOverdue flags a pending past-due installment; the status condition
// makes the second call a no-op
func (r *InstallmentRepository) MarkOverdue(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE payment_installments
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		schedule.InstallmentOverdue, id, schedule.InstallmentPending)
	if err != nil {
		r.logger.Error("Failed to mark installment overdue", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark installment overdue: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

// CountPaid returns the number of paid installments of a schedule
func (r *InstallmentRepository) CountPaid(ctx context.Context, scheduleID int64) (int, error) {
	query := `SELECT COUNT(*) FROM payment_installments WHERE schedule_id = ? AND status = ?`

	var count int
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, scheduleID, schedule.InstallmentPaid).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count paid installments", zap.Int64("schedule_id", scheduleID), zap.Error(err))
		return 0, fmt.Errorf("failed to count paid installments: %w", err)
	}
	return count, nil
}

// EarliestPendingDue returns the due date of the earliest unpaid
// installment, or nil when none remains
func (r *InstallmentRepository) EarliestPendingDue(ctx context.Context, scheduleID int64) (*time.Time, error) {
	query := `
		SELECT MIN(due_date) FROM payment_installments
		WHERE schedule_id = ? AND status IN (?, ?)
	`

	var due sql.NullTime
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query,
		scheduleID, schedule.InstallmentPending, schedule.InstallmentOverdue).Scan(&due)
	if err != nil {
		r.logger.Error("Failed to get earliest pending due date", zap.Int64("schedule_id", scheduleID), zap.Error(err))
		return nil, fmt.Errorf("failed to get earliest pending due date: %w", err)
	}
	if !due.Valid {
		return nil, nil
	}
	return &due.Time, nil
}

// ListPendingDueBefore returns pending installments of active schedules
// whose due date is before asOf
func (r *InstallmentRepository) ListPendingDueBefore(ctx context.Context, asOf time.Time, limit int) ([]*schedule.Installment, error) {
	query := `
		SELECT i.id, i.schedule_id, i.sequence, i.due_date, i.amount_cents, i.status,
			i.paid_date, i.paid_by, i.created_at, i.updated_at
		FROM payment_installments i
		JOIN payment_schedules s ON s.id = i.schedule_id
		WHERE i.status = ? AND i.due_date < ? AND s.status = ?
		ORDER BY i.due_date ASC
		LIMIT ?
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query,
		schedule.InstallmentPending, asOf, schedule.StatusActive, limit)
	if err != nil {
		r.logger.Error("Failed to list past-due installments", zap.Error(err))
		return nil, fmt.Errorf("failed to list past-due installments: %w", err)
	}
	defer rows.Close()

	return scanInstallments(rows)
}

// ListDueBetween returns unpaid installments due in [from, to)
func (r *InstallmentRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]*schedule.Installment, error) {
	query := `SELECT ` + installmentColumns + `
		FROM payment_installments
		WHERE status IN (?, ?) AND due_date >= ? AND due_date < ?
		ORDER BY due_date ASC`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query,
		schedule.InstallmentPending, schedule.InstallmentOverdue, from, to)
	if err != nil {
		r.logger.Error("Failed to list upcoming installments", zap.Error(err))
		return nil, fmt.Errorf("failed to list upcoming installments: %w", err)
	}
	defer rows.Close()

	return scanInstallments(rows)
}

func scanInstallments(rows *sql.Rows) ([]*schedule.Installment, error) {
	var installments []*schedule.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		installments = append(installments, inst)
	}
	return installments, rows.Err()
}

func scanInstallment(s rowScanner) (*schedule.Installment, error) {
	var inst schedule.Installment
	var paidDate sql.NullTime
	var paidBy sql.NullString

	err := s.Scan(
		&inst.ID,
		&inst.ScheduleID,
		&inst.Sequence,
		&inst.DueDate,
		&inst.AmountCents,
		&inst.Status,
		&paidDate,
		&paidBy,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.PaidBy = paidBy.String
	if paidDate.Valid {
		inst.PaidDate = &paidDate.Time
	}
	return &inst, nil
}

// Verify interface compliance
var _ port.InstallmentRepository = (*InstallmentRepository)(nil)
