package document

import (
	"errors"
	"testing"
)

func validDocument() *Document {
	doc := &Document{
		Category:  CategoryInvoice,
		Status:    StatusDraft,
		CreatedBy: "u-1",
	}
	_ = doc.SetAmounts(10000, 2000)
	return doc
}

func TestSetAmounts(t *testing.T) {
	doc := &Document{}

	if err := doc.SetAmounts(10000, 2000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.TotalAmountCents != 12000 {
		t.Errorf("expected total 12000, got %d", doc.TotalAmountCents)
	}

	// Editing amounts recomputes the total
	if err := doc.SetAmounts(5000, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.TotalAmountCents != 5000 {
		t.Errorf("expected total 5000 after edit, got %d", doc.TotalAmountCents)
	}

	if err := doc.SetAmounts(-1, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for negative amount, got %v", err)
	}
}

func TestDocumentValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Document)
		wantErr bool
	}{
		{
			name:   "valid draft",
			mutate: func(d *Document) {},
		},
		{
			name:    "unknown category",
			mutate:  func(d *Document) { d.Category = "PURCHASE_ORDER" },
			wantErr: true,
		},
		{
			name:    "stale total",
			mutate:  func(d *Document) { d.TotalAmountCents = 99 },
			wantErr: true,
		},
		{
			name:    "missing creator",
			mutate:  func(d *Document) { d.CreatedBy = "" },
			wantErr: true,
		},
		{
			name: "both approver and rejector set",
			mutate: func(d *Document) {
				d.ApprovedBy = "u-2"
				d.RejectedBy = "u-3"
				d.Status = StatusRejected
				d.RejectionReason = "over budget"
			},
			wantErr: true,
		},
		{
			name:    "rejected without reason",
			mutate:  func(d *Document) { d.Status = StatusRejected },
			wantErr: true,
		},
		{
			name: "rejected with reason",
			mutate: func(d *Document) {
				d.Status = StatusRejected
				d.RejectedBy = "u-2"
				d.RejectionReason = "over budget"
			},
		},
		{
			name:    "rejection reason on non-rejected document",
			mutate:  func(d *Document) { d.RejectionReason = "leftover" },
			wantErr: true,
		},
		{
			name: "recurring without installments",
			mutate: func(d *Document) {
				d.PaymentType = PaymentRecurring
				d.InstallmentCount = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDocument()
			tt.mutate(doc)

			err := doc.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("expected ErrValidation, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{StatusPaid, StatusTerminated, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	open := []Status{StatusDraft, StatusSubmitted, StatusPendingApproval, StatusApproved, StatusRejected}
	for _, s := range open {
		if s.IsTerminal() {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}
