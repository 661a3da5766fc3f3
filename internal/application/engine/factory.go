package engine

import (
	"github.com/finstack/docflow/internal/domain/document"
)

// payableCategories may settle through PAY once approved
var payableCategories = map[document.Category]bool{
	document.CategoryInvoice:   true,
	document.CategoryTaxFiling: true,
	document.CategoryExpense:   true,
}

// terminableCategories represent ongoing engagements that end through
// TERMINATE rather than a payment
var terminableCategories = map[document.Category]bool{
	document.CategoryContract:     true,
	document.CategoryIntervention: true,
}

// BuildDocumentStateMachine creates a state machine configured for the
// given category's lifecycle. The transition table is defined once here
// and shared by every document of the category.
func BuildDocumentStateMachine(category document.Category, initial document.Status) document.StateMachine {
	builder := document.NewBuilder()

	// DRAFT
	builder.Configure(document.StatusDraft).
		Permit(document.ActionSubmit, document.StatusSubmitted)

	// SUBMITTED is a pass-through: submission lands in PENDING_APPROVAL
	// when a chain is required, or auto-approves below the threshold
	builder.Configure(document.StatusSubmitted).
		Permit(document.ActionApprove, document.StatusApproved).
		Permit(document.ActionReject, document.StatusRejected)

	// PENDING_APPROVAL
	builder.Configure(document.StatusPendingApproval).
		Permit(document.ActionApprove, document.StatusApproved).
		Permit(document.ActionReject, document.StatusRejected)

	// REJECTED allows only the explicit reinstatement back to DRAFT
	builder.Configure(document.StatusRejected).
		Permit(document.ActionReopen, document.StatusDraft)

	// APPROVED
	approved := builder.Configure(document.StatusApproved).
		Permit(document.ActionCancel, document.StatusCancelled)
	if payableCategories[category] {
		approved.Permit(document.ActionPay, document.StatusPaid)
	}
	if terminableCategories[category] {
		approved.Permit(document.ActionTerminate, document.StatusTerminated)
	}

	// PAID, TERMINATED and CANCELLED are terminal - no outgoing transitions

	return builder.Build(initial)
}
