package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/finstack/docflow/internal/application/port"
	"github.com/finstack/docflow/internal/domain/audit"
)

// AuditRepository implements port.AuditRepository on SQLite. The trail
// is insert-only; there is no update or delete path.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends one audit trail entry
func (r *AuditRepository) Create(ctx context.Context, entry *audit.Entry) error {
	query := `
		INSERT INTO audit_entries (
			document_id, actor_id, actor_role, action,
			from_status, to_status, comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		entry.DocumentID,
		entry.ActorID,
		entry.ActorRole,
		entry.Action,
		entry.FromStatus,
		entry.ToStatus,
		entry.Comment,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create audit entry", zap.Int64("document_id", entry.DocumentID), zap.Error(err))
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// GetByDocumentID retrieves the audit trail of a document in insertion
// order
func (r *AuditRepository) GetByDocumentID(ctx context.Context, documentID int64) ([]*audit.Entry, error) {
	query := `
		SELECT id, document_id, actor_id, actor_role, action,
			from_status, to_status, comment, created_at
		FROM audit_entries
		WHERE document_id = ?
		ORDER BY id ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, documentID)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		var entry audit.Entry
		var comment sql.NullString
		err := rows.Scan(
			&entry.ID,
			&entry.DocumentID,
			&entry.ActorID,
			&entry.ActorRole,
			&entry.Action,
			&entry.FromStatus,
			&entry.ToStatus,
			&comment,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Comment = comment.String
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
