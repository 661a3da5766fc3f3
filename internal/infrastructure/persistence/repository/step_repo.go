package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finstack/docflow/internal/application/port"
	"github.com/finstack/docflow/internal/domain/approval"
	"github.com/finstack/docflow/internal/domain/document"
)

const stepColumns = `
	id, document_id, sequence, level, status,
	decided_by, decided_at, comment, created_at, updated_at`

// StepRepository implements port.ApprovalStepRepository on SQLite
type StepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepRepository creates a new approval step repository
func NewStepRepository(db *sql.DB, logger *zap.Logger) port.ApprovalStepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts all steps of an approval chain
func (r *StepRepository) CreateBatch(ctx context.Context, steps []*approval.Step) error {
	query := `
		INSERT INTO approval_steps (document_id, sequence, level, status)
		VALUES (?, ?, ?, ?)
	`

	exec := getExecutor(ctx, r.db)
	for _, step := range steps {
		result, err := exec.ExecContext(ctx, query,
			step.DocumentID,
			step.Sequence,
			step.Level,
			step.Status,
		)
		if err != nil {
			r.logger.Error("Failed to create approval step",
				zap.Int64("document_id", step.DocumentID),
				zap.Int("sequence", step.Sequence),
				zap.Error(err))
			return fmt.Errorf("failed to create approval step: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		step.ID = id
	}
	return nil
}

// GetByDocumentID retrieves all steps of a document in sequence order
func (r *StepRepository) GetByDocumentID(ctx context.Context, documentID int64) ([]*approval.Step, error) {
	query := `SELECT ` + stepColumns + `
		FROM approval_steps
		WHERE document_id = ?
		ORDER BY sequence ASC`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, documentID)
	if err != nil {
		r.logger.Error("Failed to list approval steps", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approval steps: %w", err)
	}
	defer rows.Close()

	var steps []*approval.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// FirstPending returns the lowest-sequence pending step, or nil when the
// chain has no pending step left
func (r *StepRepository) FirstPending(ctx context.Context, documentID int64) (*approval.Step, error) {
	query := `SELECT ` + stepColumns + `
		FROM approval_steps
		WHERE document_id = ? AND status = ?
		ORDER BY sequence ASC
		LIMIT 1`

	step, err := scanStep(getExecutor(ctx, r.db).QueryRowContext(ctx, query, documentID, approval.StepPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get first pending step", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to get first pending step: %w", err)
	}
	return step, nil
}

// CountPending returns the number of still-pending steps
func (r *StepRepository) CountPending(ctx context.Context, documentID int64) (int, error) {
	query := `SELECT COUNT(*) FROM approval_steps WHERE document_id = ? AND status = ?`

	var count int
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, documentID, approval.StepPending).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count pending steps", zap.Int64("document_id", documentID), zap.Error(err))
		return 0, fmt.Errorf("failed to count pending steps: %w", err)
	}
	return count, nil
}

// Approve records the decision on a step, conditional on the step still
// being pending. Two concurrent decisions on the same step resolve to
// one success and one document.ErrConflict.
func (r *StepRepository) Approve(ctx context.Context, stepID int64, decidedBy string, comment string, decidedAt time.Time) error {
	query := `
		UPDATE approval_steps
		SET status = ?, decided_by = ?, comment = ?, decided_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		approval.StepApproved, decidedBy, comment, decidedAt,
		stepID, approval.StepPending)
	if err != nil {
		r.logger.Error("Failed to approve step", zap.Int64("step_id", stepID), zap.Error(err))
		return fmt.Errorf("failed to approve step: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: approval step %d was already decided", document.ErrConflict, stepID)
	}
	return nil
}

// VoidPending voids every still-pending step of a document, returning
// the number of steps voided
func (r *StepRepository) VoidPending(ctx context.Context, documentID int64) (int64, error) {
	query := `
		UPDATE approval_steps
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE document_id = ? AND status = ?
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		approval.StepVoided, documentID, approval.StepPending)
	if err != nil {
		r.logger.Error("Failed to void pending steps", zap.Int64("document_id", documentID), zap.Error(err))
		return 0, fmt.Errorf("failed to void pending steps: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows, nil
}

func scanStep(s rowScanner) (*approval.Step, error) {
	var step approval.Step
	var decidedBy, comment sql.NullString
	var decidedAt sql.NullTime

	err := s.Scan(
		&step.ID,
		&step.DocumentID,
		&step.Sequence,
		&step.Level,
		&step.Status,
		&decidedBy,
		&decidedAt,
		&comment,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	step.DecidedBy = decidedBy.String
	step.Comment = comment.String
	if decidedAt.Valid {
		step.DecidedAt = &decidedAt.Time
	}
	return &step, nil
}

// Verify interface compliance
var _ port.ApprovalStepRepository = (*StepRepository)(nil)
