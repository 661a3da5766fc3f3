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

const scheduleColumns = `
	id, document_id, total_amount_cents, installment_amount_cents,
	frequency_days, frequency_months, start_date,
	total_count, paid_count, next_due, status, created_at, updated_at`

// ScheduleRepository implements port.ScheduleRepository on SQLite
type ScheduleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *sql.DB, logger *zap.Logger) port.ScheduleRepository {
	return &ScheduleRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new schedule
func (r *ScheduleRepository) Create(ctx context.Context, sched *schedule.Schedule) error {
	query := `
		INSERT INTO payment_schedules (
			document_id, total_amount_cents, installment_amount_cents,
			frequency_days, frequency_months, start_date,
			total_count, paid_count, next_due, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		sched.DocumentID,
		sched.TotalAmountCents,
		sched.InstallmentAmountCents,
		sched.Frequency.Days,
		sched.Frequency.Months,
		sched.StartDate,
		sched.TotalCount,
		sched.PaidCount,
		sched.NextDue,
		sched.Status,
	)
	if err != nil {
		r.logger.Error("Failed to create schedule", zap.Int64("document_id", sched.DocumentID), zap.Error(err))
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	sched.ID = id
	return nil
}

// GetByID retrieves a schedule by ID
func (r *ScheduleRepository) GetByID(ctx context.Context, id int64) (*schedule.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM payment_schedules WHERE id = ?`
	return r.scanOne(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
}

// GetByDocumentID retrieves the schedule attached to a document
func (r *ScheduleRepository) GetByDocumentID(ctx context.Context, documentID int64) (*schedule.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM payment_schedules WHERE document_id = ?`
	return r.scanOne(getExecutor(ctx, r.db).QueryRowContext(ctx, query, documentID))
}

// UpdateStatus applies a compare-and-swap status transition
func (r *ScheduleRepository) UpdateStatus(ctx context.Context, id int64, from, to string) error {
	query := `
		UPDATE payment_schedules
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query, to, id, from)
	if err != nil {
		r.logger.Error("Failed to update schedule status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update schedule status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: schedule %d is no longer in status %s", document.ErrConflict, id, from)
	}
	return nil
}

// UpdateProgress stores the derived paid count and next due date
func (r *ScheduleRepository) UpdateProgress(ctx context.Context, id int64, paidCount int, nextDue *time.Time) error {
	query := `
		UPDATE payment_schedules
		SET paid_count = ?, next_due = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query, paidCount, nextDue, id)
	if err != nil {
		r.logger.Error("Failed to update schedule progress", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update schedule progress: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) scanOne(row *sql.Row) (*schedule.Schedule, error) {
	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to scan schedule", zap.Error(err))
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return sched, nil
}

func scanSchedule(s rowScanner) (*schedule.Schedule, error) {
	var sched schedule.Schedule
	var nextDue sql.NullTime

	err := s.Scan(
		&sched.ID,
		&sched.DocumentID,
		&sched.TotalAmountCents,
		&sched.InstallmentAmountCents,
		&sched.Frequency.Days,
		&sched.Frequency.Months,
		&sched.StartDate,
		&sched.TotalCount,
		&sched.PaidCount,
		&nextDue,
		&sched.Status,
		&sched.CreatedAt,
		&sched.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if nextDue.Valid {
		sched.NextDue = &nextDue.Time
	}
	return &sched, nil
}

// Verify interface compliance
var _ port.ScheduleRepository = (*ScheduleRepository)(nil)
