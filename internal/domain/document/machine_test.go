package document

import (
	"context"
	"errors"
	"testing"
)

func buildTestMachine(initial Status) StateMachine {
	builder := NewBuilder()
	builder.Configure(StatusDraft).
		Permit(ActionSubmit, StatusSubmitted)
	builder.Configure(StatusSubmitted).
		Permit(ActionApprove, StatusApproved).
		Permit(ActionReject, StatusRejected)
	builder.Configure(StatusRejected).
		Permit(ActionReopen, StatusDraft)
	return builder.Build(initial)
}

func TestMachineFire(t *testing.T) {
	tests := []struct {
		name       string
		initial    Status
		action     Action
		wantStatus Status
		wantError  bool
	}{
		{
			name:       "DRAFT -> SUBMITTED on SUBMIT",
			initial:    StatusDraft,
			action:     ActionSubmit,
			wantStatus: StatusSubmitted,
		},
		{
			name:       "SUBMITTED -> APPROVED on APPROVE",
			initial:    StatusSubmitted,
			action:     ActionApprove,
			wantStatus: StatusApproved,
		},
		{
			name:       "SUBMITTED -> REJECTED on REJECT",
			initial:    StatusSubmitted,
			action:     ActionReject,
			wantStatus: StatusRejected,
		},
		{
			name:       "REJECTED -> DRAFT on REOPEN",
			initial:    StatusRejected,
			action:     ActionReopen,
			wantStatus: StatusDraft,
		},
		{
			name:       "invalid action from DRAFT",
			initial:    StatusDraft,
			action:     ActionApprove,
			wantStatus: StatusDraft,
			wantError:  true,
		},
		{
			name:       "no configuration for APPROVED",
			initial:    StatusApproved,
			action:     ActionPay,
			wantStatus: StatusApproved,
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := buildTestMachine(tt.initial)

			err := machine.Fire(context.Background(), tt.action)

			if tt.wantError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if machine.Status() != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, machine.Status())
			}
		})
	}
}

func TestMachineCanFire(t *testing.T) {
	machine := buildTestMachine(StatusSubmitted)

	if !machine.CanFire(ActionApprove) {
		t.Error("expected APPROVE to be permitted from SUBMITTED")
	}
	if machine.CanFire(ActionSubmit) {
		t.Error("expected SUBMIT to be rejected from SUBMITTED")
	}
}

func TestMachinePermittedActions(t *testing.T) {
	machine := buildTestMachine(StatusSubmitted)

	actions := machine.PermittedActions()
	if len(actions) != 2 {
		t.Fatalf("expected 2 permitted actions, got %d", len(actions))
	}

	seen := make(map[Action]bool)
	for _, a := range actions {
		seen[a] = true
	}
	if !seen[ActionApprove] || !seen[ActionReject] {
		t.Errorf("expected APPROVE and REJECT, got %v", actions)
	}
}

func TestMachineGuard(t *testing.T) {
	allow := false
	builder := NewBuilder()
	builder.Configure(StatusApproved).
		PermitIf(ActionPay, StatusPaid, func(ctx context.Context) bool { return allow })
	machine := builder.Build(StatusApproved)

	if err := machine.Fire(context.Background(), ActionPay); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected guard rejection, got %v", err)
	}
	if machine.Status() != StatusApproved {
		t.Errorf("status changed despite guard rejection: %s", machine.Status())
	}

	allow = true
	if err := machine.Fire(context.Background(), ActionPay); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if machine.Status() != StatusPaid {
		t.Errorf("expected PAID, got %s", machine.Status())
	}
}

func TestBuildIsolatesMachines(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StatusDraft).Permit(ActionSubmit, StatusSubmitted)

	first := builder.Build(StatusDraft)
	second := builder.Build(StatusDraft)

	if err := first.Fire(context.Background(), ActionSubmit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.Status() != StatusDraft {
		t.Errorf("second machine moved with the first: %s", second.Status())
	}
}
