package engine

import (
	"testing"

	"github.com/finstack/docflow/internal/domain/document"
)

func TestApprovedDocumentSettlementByCategory(t *testing.T) {
	tests := []struct {
		category      document.Category
		wantPay       bool
		wantTerminate bool
	}{
		{document.CategoryInvoice, true, false},
		{document.CategoryTaxFiling, true, false},
		{document.CategoryExpense, true, false},
		{document.CategoryContract, false, true},
		{document.CategoryIntervention, false, true},
		{document.CategoryRecruitment, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			machine := BuildDocumentStateMachine(tt.category, document.StatusApproved)

			if got := machine.CanFire(document.ActionPay); got != tt.wantPay {
				t.Errorf("CanFire(PAY) = %v, want %v", got, tt.wantPay)
			}
			if got := machine.CanFire(document.ActionTerminate); got != tt.wantTerminate {
				t.Errorf("CanFire(TERMINATE) = %v, want %v", got, tt.wantTerminate)
			}
			if !machine.CanFire(document.ActionCancel) {
				t.Error("expected CANCEL to be available from APPROVED for every category")
			}
		})
	}
}

func TestTerminalStatusesPermitNothing(t *testing.T) {
	terminal := []document.Status{
		document.StatusPaid,
		document.StatusTerminated,
		document.StatusCancelled,
	}

	for _, status := range terminal {
		t.Run(string(status), func(t *testing.T) {
			machine := BuildDocumentStateMachine(document.CategoryInvoice, status)
			if actions := machine.PermittedActions(); len(actions) != 0 {
				t.Errorf("expected no actions from %s, got %v", status, actions)
			}
		})
	}
}

func TestPendingApprovalPermitsDecisions(t *testing.T) {
	machine := BuildDocumentStateMachine(document.CategoryExpense, document.StatusPendingApproval)

	if !machine.CanFire(document.ActionApprove) {
		t.Error("expected APPROVE from PENDING_APPROVAL")
	}
	if !machine.CanFire(document.ActionReject) {
		t.Error("expected REJECT from PENDING_APPROVAL")
	}
	if machine.CanFire(document.ActionSubmit) {
		t.Error("SUBMIT must not be available from PENDING_APPROVAL")
	}
}

func TestRejectedPermitsReopenOnly(t *testing.T) {
	machine := BuildDocumentStateMachine(document.CategoryExpense, document.StatusRejected)

	actions := machine.PermittedActions()
	if len(actions) != 1 || actions[0] != document.ActionReopen {
		t.Errorf("expected [REOPEN] from REJECTED, got %v", actions)
	}
}
