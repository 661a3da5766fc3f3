package document

import (
	"fmt"
	"time"
)

// Category identifies the kind of document tracked through the lifecycle
type Category string

const (
	CategoryInvoice      Category = "INVOICE"
	CategoryContract     Category = "CONTRACT"
	CategoryTaxFiling    Category = "TAX_FILING"
	CategoryExpense      Category = "EXPENSE"
	CategoryIntervention Category = "INTERVENTION"
	CategoryRecruitment  Category = "RECRUITMENT"
)

var validCategories = map[Category]bool{
	CategoryInvoice:      true,
	CategoryContract:     true,
	CategoryTaxFiling:    true,
	CategoryExpense:      true,
	CategoryIntervention: true,
	CategoryRecruitment:  true,
}

// IsValid returns true if the category is known
func (c Category) IsValid() bool {
	return validCategories[c]
}

// String returns the string representation of the category
func (c Category) String() string {
	return string(c)
}

// PaymentType distinguishes one-off payments from recurring installment
// plans
type PaymentType string

const (
	PaymentOneOff    PaymentType = "ONE_OFF"
	PaymentRecurring PaymentType = "RECURRING"
)

// Role is the capability grouping an actor belongs to
type Role string

const (
	RoleEmployee   Role = "EMPLOYEE"
	RoleManager    Role = "MANAGER"
	RoleDirector   Role = "DIRECTOR"
	RoleCEO        Role = "CEO"
	RoleAccountant Role = "ACCOUNTANT"
	RoleAdmin      Role = "ADMIN"
)

// Document is a financial/HR record tracked through a guarded lifecycle.
// All monetary amounts are in cents.
type Document struct {
	ID        int64    `json:"id"`
	Reference string   `json:"reference"`
	Category  Category `json:"category"`
	Status    Status   `json:"status"`

	BaseAmountCents  int64 `json:"base_amount_cents"`
	TaxAmountCents   int64 `json:"tax_amount_cents"`
	TotalAmountCents int64 `json:"total_amount_cents"`

	PaymentType PaymentType `json:"payment_type"`

	// Installment plan parameters, used when PaymentType is RECURRING to
	// materialize the schedule at approval time
	InstallmentCount       int   `json:"installment_count,omitempty"`
	InstallmentAmountCents int64 `json:"installment_amount_cents,omitempty"`
	FrequencyDays          int   `json:"frequency_days,omitempty"`
	FrequencyMonths        int   `json:"frequency_months,omitempty"`

	CreatedBy string `json:"created_by"`

	CurrentApprovalSeq int `json:"current_approval_seq"`

	ApprovedBy string `json:"approved_by,omitempty"`
	RejectedBy string `json:"rejected_by,omitempty"`

	RejectionReason  string `json:"rejection_reason,omitempty"`
	RejectionComment string `json:"rejection_comment,omitempty"`

	Overdue bool `json:"overdue"`

	DueDate      *time.Time `json:"due_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SetAmounts updates base and tax amounts and recomputes the total so it
// never goes stale
func (d *Document) SetAmounts(baseCents, taxCents int64) error {
	if baseCents < 0 || taxCents < 0 {
		return fmt.Errorf("%w: amounts must not be negative", ErrValidation)
	}
	d.BaseAmountCents = baseCents
	d.TaxAmountCents = taxCents
	d.TotalAmountCents = baseCents + taxCents
	return nil
}

// IsRecurring returns true when payment obligations are materialized as
// installments
func (d *Document) IsRecurring() bool {
	return d.PaymentType == PaymentRecurring
}

// Validate checks structural invariants before persistence
func (d *Document) Validate() error {
	if !d.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, d.Category)
	}
	if !d.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, d.Status)
	}
	if d.TotalAmountCents != d.BaseAmountCents+d.TaxAmountCents {
		return fmt.Errorf("%w: total amount must equal base plus tax", ErrValidation)
	}
	if d.CreatedBy == "" {
		return fmt.Errorf("%w: creator is required", ErrValidation)
	}
	if d.ApprovedBy != "" && d.RejectedBy != "" {
		return fmt.Errorf("%w: approver and rejector must not both be set", ErrValidation)
	}
	if d.Status == StatusRejected && d.RejectionReason == "" {
		return fmt.Errorf("%w: rejected document requires a rejection reason", ErrValidation)
	}
	if d.Status != StatusRejected && d.RejectionReason != "" {
		return fmt.Errorf("%w: rejection reason present on non-rejected document", ErrValidation)
	}
	if d.IsRecurring() && d.InstallmentCount < 1 {
		return fmt.Errorf("%w: recurring document requires at least one installment", ErrValidation)
	}
	return nil
}
