package event

// Type identifies the type of domain event
type Type string

const (
	TypeDocumentCreated      Type = "document.created"
	TypeDocumentTransitioned Type = "document.transitioned"
	TypeDocumentOverdue      Type = "document.overdue"
	TypeStepDecided          Type = "approval.step_decided"
	TypeScheduleActivated    Type = "schedule.activated"
	TypeScheduleCompleted    Type = "schedule.completed"
	TypeInstallmentPaid      Type = "installment.paid"
	TypeInstallmentOverdue   Type = "installment.overdue"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeDocumentCreated,
		TypeDocumentTransitioned,
		TypeDocumentOverdue,
		TypeStepDecided,
		TypeScheduleActivated,
		TypeScheduleCompleted,
		TypeInstallmentPaid,
		TypeInstallmentOverdue:
		return true
	default:
		return false
	}
}
