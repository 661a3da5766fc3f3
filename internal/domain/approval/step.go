package approval

import "time"

// Step status constants
const (
	StepPending  = "PENDING"
	StepApproved = "APPROVED"
	StepRejected = "REJECTED"
	StepVoided   = "VOIDED"
)

// Step is one pending approval instance for a document. Steps are created
// as a batch when a document enters an approval-requiring transition and
// must be approved in ascending sequence order.
type Step struct {
	ID         int64 `json:"id"`
	DocumentID int64 `json:"document_id"`

	Sequence int   `json:"sequence"`
	Level    Level `json:"level"`

	Status string `json:"status"`

	DecidedBy string     `json:"decided_by,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	Comment   string     `json:"comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPending returns true while the step still awaits a decision
func (s *Step) IsPending() bool {
	return s.Status == StepPending
}

// Steps materializes one pending Step per resolved level, sequence
// numbered from 1 in chain order
func Steps(documentID int64, levels []Level) []*Step {
	steps := make([]*Step, 0, len(levels))
	for i, level := range levels {
		steps = append(steps, &Step{
			DocumentID: documentID,
			Sequence:   i + 1,
			Level:      level,
			Status:     StepPending,
		})
	}
	return steps
}
