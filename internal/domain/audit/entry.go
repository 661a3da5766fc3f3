// Package audit defines the immutable record of lifecycle changes: who
// moved a document between statuses, when, and why. Entries are
// insert-only; nothing in the system updates or deletes them.
package audit

import (
	"time"

	"github.com/finstack/docflow/internal/domain/document"
)

// Entry is one audit trail record for a document status change
type Entry struct {
	ID         int64 `json:"id"`
	DocumentID int64 `json:"document_id"`

	ActorID   string          `json:"actor_id"`
	ActorRole document.Role   `json:"actor_role,omitempty"`
	Action    document.Action `json:"action"`

	FromStatus document.Status `json:"from_status"`
	ToStatus   document.Status `json:"to_status"`

	Comment string `json:"comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
