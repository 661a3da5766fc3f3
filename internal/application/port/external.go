package port

import (
	"context"

	"github.com/finstack/docflow/internal/domain/approval"
	"github.com/finstack/docflow/internal/domain/document"
)

// PolicyProvider looks up the approval policy configured for a category.
// Policies are read-only at transition time.
type PolicyProvider interface {
	PolicyFor(category document.Category) (approval.Policy, error)
}

// Authorizer is the capability check for actions. It replaces scattered
// role-ID comparisons with a single configured capability table.
type Authorizer interface {
	Can(role document.Role, action document.Action, category document.Category) bool
}

// Notifier delivers an outbound notification. Delivery transports
// (push/email/chat) live outside the core; the core only enqueues.
type Notifier interface {
	Notify(ctx context.Context, recipient string, subject string, body string) error
}
