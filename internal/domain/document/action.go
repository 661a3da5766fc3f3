package document

// Action represents a caller-initiated event that can cause a lifecycle
// transition
type Action string

const (
	ActionSubmit    Action = "SUBMIT"
	ActionApprove   Action = "APPROVE"
	ActionReject    Action = "REJECT"
	ActionReopen    Action = "REOPEN"
	ActionPay       Action = "PAY"
	ActionTerminate Action = "TERMINATE"
	ActionCancel    Action = "CANCEL"

	// ActionFlagOverdue is recorded by the overdue sweep; it is not a
	// caller-initiated transition and never appears in a transition table
	ActionFlagOverdue Action = "FLAG_OVERDUE"
)

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}
