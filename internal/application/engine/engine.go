// Package engine implements the workflow engine: it validates and applies
// guarded lifecycle transitions, materializes and advances approval
// chains, writes the audit trail and activates installment schedules for
// recurring documents.
package engine

import (
	"context"
	"time"

	"github.com/finstack/docflow/internal/domain/document"
)

// Actor identifies who is performing an operation. Every core operation
// takes the actor explicitly; nothing reads ambient session state.
type Actor struct {
	ID   string        `json:"id"`
	Role document.Role `json:"role"`
}

// Payload carries action-specific inputs for a transition
type Payload struct {
	// Reason is the rejection reason code, mandatory for REJECT
	Reason string `json:"reason,omitempty"`

	// Comment is free text recorded with the decision
	Comment string `json:"comment,omitempty"`

	// LumpSum records an explicit full settlement on PAY while schedule
	// installments remain outstanding
	LumpSum bool `json:"lump_sum,omitempty"`

	// EffectiveDate overrides the stamp timestamp (defaults to now)
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
}

// CreateInput describes a new draft document
type CreateInput struct {
	Category        document.Category    `json:"category"`
	BaseAmountCents int64                `json:"base_amount_cents"`
	TaxAmountCents  int64                `json:"tax_amount_cents"`
	PaymentType     document.PaymentType `json:"payment_type"`
	DueDate         *time.Time           `json:"due_date,omitempty"`

	// Installment plan parameters for recurring documents
	InstallmentCount       int   `json:"installment_count,omitempty"`
	InstallmentAmountCents int64 `json:"installment_amount_cents,omitempty"`
	FrequencyDays          int   `json:"frequency_days,omitempty"`
	FrequencyMonths        int   `json:"frequency_months,omitempty"`
}

// WorkflowEngine orchestrates document lifecycle transitions
type WorkflowEngine interface {
	// CreateDocument registers a new draft with a generated reference
	CreateDocument(ctx context.Context, actor Actor, input CreateInput) (*document.Document, error)

	// Transition validates and applies an action for a document as a
	// single atomic operation: guard check, approval-chain bookkeeping,
	// status mutation and audit entry commit or fail together
	Transition(ctx context.Context, documentID int64, action document.Action, actor Actor, payload Payload) (*document.Document, error)

	// AllowedActions returns the actions the given role may currently
	// fire on the document; it drives UI enablement
	AllowedActions(ctx context.Context, documentID int64, role document.Role) ([]document.Action, error)

	// MarkOverdue flags an unpaid past-due document. It returns false
	// without side effects when the document is already flagged, keeping
	// the overdue sweep idempotent.
	MarkOverdue(ctx context.Context, documentID int64) (bool, error)
}
