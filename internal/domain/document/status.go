package document

// Status represents a document lifecycle state
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusSubmitted       Status = "SUBMITTED"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusPaid            Status = "PAID"
	StatusTerminated      Status = "TERMINATED"
	StatusCancelled       Status = "CANCELLED"
)

var validStatuses = map[Status]bool{
	StatusDraft:           true,
	StatusSubmitted:       true,
	StatusPendingApproval: true,
	StatusApproved:        true,
	StatusRejected:        true,
	StatusPaid:            true,
	StatusTerminated:      true,
	StatusCancelled:       true,
}

// Terminal states admit no further transitions except the explicit
// reinstatement of a rejected document back to draft.
var terminalStatuses = map[Status]bool{
	StatusPaid:       true,
	StatusTerminated: true,
	StatusCancelled:  true,
}

// IsValid returns true if the status is a known lifecycle state
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal returns true if the status ends the document's lifecycle
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}
