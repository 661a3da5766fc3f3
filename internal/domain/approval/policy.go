// Package approval holds the approval-chain policy model and the pure
// resolver that turns a policy plus an amount into the ordered set of
// required sign-off levels.
package approval

import "github.com/finstack/docflow/internal/domain/document"

// Level is one required sign-off tier in an approval chain
type Level string

const (
	LevelManager  Level = "MANAGER"
	LevelDirector Level = "DIRECTOR"
	LevelCEO      Level = "CEO"
)

// RoleFor maps an approval level to the actor role allowed to decide it
func (l Level) RoleFor() document.Role {
	switch l {
	case LevelManager:
		return document.RoleManager
	case LevelDirector:
		return document.RoleDirector
	case LevelCEO:
		return document.RoleCEO
	default:
		return document.RoleAdmin
	}
}

// Policy is the per-category approval configuration. It is owned by
// configuration and read-only at transition time.
type Policy struct {
	Category document.Category `json:"category"`

	// Levels is the ordered chain required above the threshold
	Levels []Level `json:"levels"`

	// ThresholdCents is the amount below which approval is skipped
	// entirely
	ThresholdCents int64 `json:"threshold_cents"`

	// AllowPartialPayment permits marking a document paid while schedule
	// installments remain outstanding
	AllowPartialPayment bool `json:"allow_partial_payment"`
}

// Resolve returns the ordered approval levels required for the given
// amount. It is a pure function of policy and amount: no side effects and
// no I/O, so the engine may re-invoke it whenever amounts are edited
// before submission.
func (p Policy) Resolve(amountCents int64) []Level {
	if amountCents < p.ThresholdCents {
		return nil
	}
	levels := make([]Level, len(p.Levels))
	copy(levels, p.Levels)
	return levels
}
