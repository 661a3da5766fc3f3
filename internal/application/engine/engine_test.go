package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/finstack/docflow/internal/domain/approval"
	"github.com/finstack/docflow/internal/domain/audit"
	"github.com/finstack/docflow/internal/domain/document"
	"github.com/finstack/docflow/internal/domain/schedule"
)

// Mock implementations

type mockDocRepo struct {
	docs   map[int64]*document.Document
	nextID int64
	seqs   map[string]int64
}

func newMockDocRepo() *mockDocRepo {
	return &mockDocRepo{
		docs: make(map[int64]*document.Document),
		seqs: make(map[string]int64),
	}
}

func (m *mockDocRepo) Create(ctx context.Context, doc *document.Document) error {
	m.nextID++
	doc.ID = m.nextID
	copied := *doc
	m.docs[doc.ID] = &copied
	return nil
}

func (m *mockDocRepo) GetByID(ctx context.Context, id int64) (*document.Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

func (m *mockDocRepo) GetByReference(ctx context.Context, reference string) (*document.Document, error) {
	for _, doc := range m.docs {
		if doc.Reference == reference {
			copied := *doc
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockDocRepo) UpdateStatus(ctx context.Context, id int64, from, to document.Status) error {
	doc, ok := m.docs[id]
	if !ok || doc.Status != from {
		return fmt.Errorf("%w: document %d is no longer in status %s", document.ErrConflict, id, from)
	}
	doc.Status = to
	return nil
}

func (m *mockDocRepo) Update(ctx context.Context, doc *document.Document) error {
	copied := *doc
	m.docs[doc.ID] = &copied
	return nil
}

func (m *mockDocRepo) List(ctx context.Context, limit, offset int) ([]*document.Document, error) {
	return nil, nil
}

func (m *mockDocRepo) ListUnpaidPastDue(ctx context.Context, asOf time.Time, limit int) ([]*document.Document, error) {
	var result []*document.Document
	for _, doc := range m.docs {
		if doc.Status.IsTerminal() || doc.Overdue || doc.DueDate == nil {
			continue
		}
		if doc.DueDate.Before(asOf) {
			copied := *doc
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockDocRepo) MarkOverdue(ctx context.Context, id int64) (bool, error) {
	doc, ok := m.docs[id]
	if !ok || doc.Overdue {
		return false, nil
	}
	doc.Overdue = true
	return true, nil
}

func (m *mockDocRepo) NextReferenceSeq(ctx context.Context, category document.Category, year int) (int64, error) {
	key := fmt.Sprintf("%s-%d", category, year)
	m.seqs[key]++
	return m.seqs[key], nil
}

type mockStepRepo struct {
	steps  []*approval.Step
	nextID int64

	// decideBehindBack simulates a rival decision landing between the
	// engine's FirstPending read and its conditional Approve
	decideBehindBack bool
}

func (m *mockStepRepo) CreateBatch(ctx context.Context, steps []*approval.Step) error {
	for _, step := range steps {
		m.nextID++
		step.ID = m.nextID
		m.steps = append(m.steps, step)
	}
	return nil
}

func (m *mockStepRepo) GetByDocumentID(ctx context.Context, documentID int64) ([]*approval.Step, error) {
	var result []*approval.Step
	for _, step := range m.steps {
		if step.DocumentID == documentID {
			result = append(result, step)
		}
	}
	return result, nil
}

func (m *mockStepRepo) FirstPending(ctx context.Context, documentID int64) (*approval.Step, error) {
	var first *approval.Step
	for _, step := range m.steps {
		if step.DocumentID != documentID || step.Status != approval.StepPending {
			continue
		}
		if first == nil || step.Sequence < first.Sequence {
			first = step
		}
	}
	if first != nil && m.decideBehindBack {
		stale := *first
		first.Status = approval.StepApproved
		first.DecidedBy = "rival"
		return &stale, nil
	}
	return first, nil
}

func (m *mockStepRepo) CountPending(ctx context.Context, documentID int64) (int, error) {
	count := 0
	for _, step := range m.steps {
		if step.DocumentID == documentID && step.Status == approval.StepPending {
			count++
		}
	}
	return count, nil
}

func (m *mockStepRepo) Approve(ctx context.Context, stepID int64, decidedBy string, comment string, decidedAt time.Time) error {
	for _, step := range m.steps {
		if step.ID != stepID {
			continue
		}
		if step.Status != approval.StepPending {
			return fmt.Errorf("%w: approval step %d was already decided", document.ErrConflict, stepID)
		}
		step.Status = approval.StepApproved
		step.DecidedBy = decidedBy
		step.Comment = comment
		step.DecidedAt = &decidedAt
		return nil
	}
	return fmt.Errorf("%w: step %d", document.ErrNotFound, stepID)
}

func (m *mockStepRepo) VoidPending(ctx context.Context, documentID int64) (int64, error) {
	var voided int64
	for _, step := range m.steps {
		if step.DocumentID == documentID && step.Status == approval.StepPending {
			step.Status = approval.StepVoided
			voided++
		}
	}
	return voided, nil
}

type mockScheduleRepo struct {
	schedules map[int64]*schedule.Schedule
	nextID    int64
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{schedules: make(map[int64]*schedule.Schedule)}
}

func (m *mockScheduleRepo) Create(ctx context.Context, sched *schedule.Schedule) error {
	m.nextID++
	sched.ID = m.nextID
	m.schedules[sched.ID] = sched
	return nil
}

func (m *mockScheduleRepo) GetByID(ctx context.Context, id int64) (*schedule.Schedule, error) {
	return m.schedules[id], nil
}

func (m *mockScheduleRepo) GetByDocumentID(ctx context.Context, documentID int64) (*schedule.Schedule, error) {
	for _, sched := range m.schedules {
		if sched.DocumentID == documentID {
			return sched, nil
		}
	}
	return nil, nil
}

func (m *mockScheduleRepo) UpdateStatus(ctx context.Context, id int64, from, to string) error {
	sched, ok := m.schedules[id]
	if !ok || sched.Status != from {
		return fmt.Errorf("%w: schedule %d is no longer in status %s", document.ErrConflict, id, from)
	}
	sched.Status = to
	return nil
}

func (m *mockScheduleRepo) UpdateProgress(ctx context.Context, id int64, paidCount int, nextDue *time.Time) error {
	sched, ok := m.schedules[id]
	if !ok {
		return fmt.Errorf("%w: schedule %d", document.ErrNotFound, id)
	}
	sched.PaidCount = paidCount
	sched.NextDue = nextDue
	return nil
}

type mockInstallmentRepo struct {
	installments []*schedule.Installment
	nextID       int64
}

func (m *mockInstallmentRepo) CreateBatch(ctx context.Context, installments []*schedule.Installment) error {
	for _, inst := range installments {
		m.nextID++
		inst.ID = m.nextID
		m.installments = append(m.installments, inst)
	}
	return nil
}

func (m *mockInstallmentRepo) GetByID(ctx context.Context, id int64) (*schedule.Installment, error) {
	for _, inst := range m.installments {
		if inst.ID == id {
			return inst, nil
		}
	}
	return nil, nil
}

func (m *mockInstallmentRepo) GetByScheduleID(ctx context.Context, scheduleID int64) ([]*schedule.Installment, error) {
	var result []*schedule.Installment
	for _, inst := range m.installments {
		if inst.ScheduleID == scheduleID {
			result = append(result, inst)
		}
	}
	return result, nil
}

func (m *mockInstallmentRepo) MarkPaid(ctx context.Context, id int64, paidBy string, paidDate time.Time) error {
	for _, inst := range m.installments {
		if inst.ID != id {
			continue
		}
		if inst.Status == schedule.InstallmentPaid {
			return fmt.Errorf("%w: installment %d was already paid", document.ErrConflict, id)
		}
		inst.Status = schedule.InstallmentPaid
		inst.PaidBy = paidBy
		inst.PaidDate = &paidDate
		return nil
	}
	return fmt.Errorf("%w: installment %d", document.ErrNotFound, id)
}

func (m *mockInstallmentRepo) MarkOverdue(ctx context.Context, id int64) (bool, error) {
	for _, inst := range m.installments {
		if inst.ID == id && inst.Status == schedule.InstallmentPending {
			inst.Status = schedule.InstallmentOverdue
			return true, nil
		}
	}
	return false, nil
}

func (m *mockInstallmentRepo) CountPaid(ctx context.Context, scheduleID int64) (int, error) {
	count := 0
	for _, inst := range m.installments {
		if inst.ScheduleID == scheduleID && inst.Status == schedule.InstallmentPaid {
			count++
		}
	}
	return count, nil
}

func (m *mockInstallmentRepo) EarliestPendingDue(ctx context.Context, scheduleID int64) (*time.Time, error) {
	var earliest *time.Time
	for _, inst := range m.installments {
		if inst.ScheduleID != scheduleID || inst.Status == schedule.InstallmentPaid {
			continue
		}
		due := inst.DueDate
		if earliest == nil || due.Before(*earliest) {
			earliest = &due
		}
	}
	return earliest, nil
}

func (m *mockInstallmentRepo) ListPendingDueBefore(ctx context.Context, asOf time.Time, limit int) ([]*schedule.Installment, error) {
	var result []*schedule.Installment
	for _, inst := range m.installments {
		if inst.Status == schedule.InstallmentPending && inst.DueDate.Before(asOf) {
			result = append(result, inst)
		}
	}
	return result, nil
}

func (m *mockInstallmentRepo) ListDueBetween(ctx context.Context, from, to time.Time) ([]*schedule.Installment, error) {
	return nil, nil
}

type mockAuditRepo struct {
	entries []*audit.Entry
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *audit.Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) GetByDocumentID(ctx context.Context, documentID int64) ([]*audit.Entry, error) {
	var result []*audit.Entry
	for _, entry := range m.entries {
		if entry.DocumentID == documentID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type mockPolicyProvider struct {
	policy approval.Policy
}

func (m *mockPolicyProvider) PolicyFor(category document.Category) (approval.Policy, error) {
	policy := m.policy
	policy.Category = category
	return policy, nil
}

type mockAuthorizer struct {
	denyAll bool
}

func (m *mockAuthorizer) Can(role document.Role, action document.Action, category document.Category) bool {
	if m.denyAll {
		return false
	}
	if role == document.RoleAdmin {
		return true
	}
	switch action {
	case document.ActionApprove, document.ActionReject:
		return role == document.RoleManager || role == document.RoleDirector || role == document.RoleCEO
	case document.ActionPay:
		return role == document.RoleAccountant
	case document.ActionTerminate:
		return role == document.RoleDirector || role == document.RoleCEO
	case document.ActionCancel:
		return role == document.RoleManager || role == document.RoleDirector || role == document.RoleCEO
	default:
		return true
	}
}

type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Test fixture

type fixture struct {
	docs         *mockDocRepo
	steps        *mockStepRepo
	schedules    *mockScheduleRepo
	installments *mockInstallmentRepo
	audits       *mockAuditRepo
	policies     *mockPolicyProvider
	engine       WorkflowEngine
}

var testClock = time.Date(2026, time.June, 15, 10, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{
		docs:         newMockDocRepo(),
		steps:        &mockStepRepo{},
		schedules:    newMockScheduleRepo(),
		installments: &mockInstallmentRepo{},
		audits:       &mockAuditRepo{},
		policies: &mockPolicyProvider{policy: approval.Policy{
			Levels:         []approval.Level{approval.LevelManager, approval.LevelDirector, approval.LevelCEO},
			ThresholdCents: 50000,
		}},
	}
	f.engine = NewEngine(
		f.docs, f.steps, f.schedules, f.installments, f.audits,
		f.policies, &mockAuthorizer{}, &mockTxManager{},
		zap.NewNop(),
		WithClock(func() time.Time { return testClock }),
	)
	return f
}

func (f *fixture) createDocument(t *testing.T, input CreateInput) *document.Document {
	t.Helper()
	doc, err := f.engine.CreateDocument(context.Background(), Actor{ID: "emp-1", Role: document.RoleEmployee}, input)
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	return doc
}

func expenseInput(baseCents int64) CreateInput {
	return CreateInput{
		Category:        document.CategoryExpense,
		BaseAmountCents: baseCents,
	}
}

// Tests

func TestCreateDocumentGeneratesReference(t *testing.T) {
	f := newFixture()

	first := f.createDocument(t, expenseInput(10000))
	if first.Reference != "EXP-2026-0001" {
		t.Errorf("expected EXP-2026-0001, got %s", first.Reference)
	}
	if first.Status != document.StatusDraft {
		t.Errorf("expected DRAFT, got %s", first.Status)
	}

	second := f.createDocument(t, expenseInput(20000))
	if second.Reference != "EXP-2026-0002" {
		t.Errorf("expected EXP-2026-0002, got %s", second.Reference)
	}

	invoice := f.createDocument(t, CreateInput{Category: document.CategoryInvoice, BaseAmountCents: 100})
	if invoice.Reference != "INV-2026-0001" {
		t.Errorf("expected a per-category counter, got %s", invoice.Reference)
	}
}

func TestCreateDocumentValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	actor := Actor{ID: "emp-1", Role: document.RoleEmployee}

	_, err := f.engine.CreateDocument(ctx, actor, CreateInput{Category: "PURCHASE_ORDER"})
	if !errors.Is(err, document.ErrValidation) {
		t.Errorf("expected ErrValidation for unknown category, got %v", err)
	}

	_, err = f.engine.CreateDocument(ctx, actor, CreateInput{
		Category:        document.CategoryContract,
		BaseAmountCents: 1000,
		PaymentType:     document.PaymentRecurring,
	})
	if !errors.Is(err, document.ErrValidation) {
		t.Errorf("expected ErrValidation for recurring without plan, got %v", err)
	}
}

func TestSubmitBelowThresholdAutoApproves(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t, expenseInput(49999))

	updated, err := f.engine.Transition(context.Background(), doc.ID, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.Status != document.StatusApproved {
		t.Errorf("expected APPROVED, got %s", updated.Status)
	}
	if updated.SubmittedAt == nil || updated.ApprovedAt == nil {
		t.Error("expected submitted and approved timestamps")
	}

	steps, _ := f.steps.GetByDocumentID(context.Background(), doc.ID)
	if len(steps) != 0 {
		t.Errorf("expected no approval steps, got %d", len(steps))
	}

	entries, _ := f.audits.GetByDocumentID(context.Background(), doc.ID)
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[1].ActorID != "system" {
		t.Errorf("expected system actor on auto-approval entry, got %s", entries[1].ActorID)
	}
}

func TestSubmitAboveThresholdCreatesChain(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t, expenseInput(80000))

	updated, err := f.engine.Transition(context.Background(), doc.ID, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.Status != document.StatusPendingApproval {
		t.Errorf("expected PENDING_APPROVAL, got %s", updated.Status)
	}
	if updated.CurrentApprovalSeq != 1 {
		t.Errorf("expected approval seq 1, got %d", updated.CurrentApprovalSeq)
	}

	steps, _ := f.steps.GetByDocumentID(context.Background(), doc.ID)
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	for i, step := range steps {
		if step.Sequence != i+1 || step.Status != approval.StepPending {
			t.Errorf("step %d malformed: seq=%d status=%s", i, step.Sequence, step.Status)
		}
	}
}

func TestApproveEnforcesChainOrder(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t, expenseInput(80000))
	ctx := context.Background()

	if _, err := f.engine.Transition(ctx, doc.ID, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// The director cannot decide while the manager step is still pending
	_, err := f.engine.Transition(ctx, doc.ID, document.ActionApprove,
		Actor{ID: "dir-1", Role: document.RoleDirector}, Payload{})
	if !errors.Is(err, document.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for out-of-order approval, got %v", err)
	}
}

func TestApproveLosingRaceYieldsConflict(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t, expenseInput(80000))
	ctx := context.Background()

	if _, err := f.engine.Transition(ctx, doc.ID, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// A rival decision lands on the step after this approve reads it; the
	// conditional update must surface the lost race instead of deciding
	// the step twice
	f.steps.decideBehindBack = true

	_, err := f.engine.Transition(ctx, doc.ID, document.ActionApprove,
		Actor{ID: "mgr-1", Role: document.RoleManager}, Payload{})
	if !errors.Is(err, document.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	steps, _ := f.steps.GetByDocumentID(ctx, doc.ID)
	if steps[0].DecidedBy != "rival" {
		t.Errorf("rival decision overwritten: decided by %s", steps[0].DecidedBy)
	}
}

func TestApproveAdvancesChainToApproval(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t, expenseInput(80000))
	ctx := context.Background()

	if _, err := f.engine.Transition(ctx, doc.ID, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	afterManager, err := f.engine.Transition(ctx, doc.ID, document.ActionApprove,
		Actor{ID: "mgr-1", Role: document.RoleManager}, Payload{})
	if err != nil {
		t.Fatalf("manager approve failed: %v", err)
	}
	if afterManager.Status != document.StatusPendingApproval {
		t.Errorf("expected PENDING_APPROVAL after first approval, got %s", afterManager.Status)
	}
	if afterManager.CurrentApprovalSeq != 2 {
		t.Errorf("expected approval seq 2, got %d", afterManager.CurrentApprovalSeq)
	}

	if _, err := f.engine.Transition(ctx, doc.ID, document.ActionApprove,
		Actor{ID: "dir-1", Role: document.RoleDirector}, Payload{}); err != nil {
		t.Fatalf("director approve failed: %v", err)
	}

	final, err := f.engine.Transition(ctx, doc.ID, document.ActionApprove,
		Actor{ID: "ceo-1", Role: document.RoleCEO}, Payload{Comment: "final sign-off"})
	if err != nil {
		t.Fatalf("ceo approve failed: %v", err)
	}

	if final.Status != document.StatusApproved {
		t.Errorf("expected APPROVED, got %s", final.Status)
	}
	if final.ApprovedBy != "ceo-1" {
		t.Errorf("expected approver ceo-1, got %s", final.ApprovedBy)
	}
	if final.ApprovedAt == nil {
		t.Error("expected approval timestamp")
	}
}

func TestFinalApprovalActivatesSchedule(t *testing.T) {
	f := newFixture()
	start := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	doc := f.createDocument(t, CreateInput{
		Category:               document.CategoryContract,
		BaseAmountCents:        120000,
		PaymentType:            document.PaymentRecurring,
		DueDate:                &start,
		InstallmentCount:       12,
		InstallmentAmountCents: 10000,
		FrequencyMonths:        1,
	})
	ctx := context.Background()

	if _, err := f.engine.Transition(ctx, doc.ID, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	for _, actor := range []Actor{
		{ID: "mgr-1", Role: document.RoleManager},
		{ID: "dir-1", Role: document.RoleDirector},
		{ID: "ceo-1", Role: document.RoleCEO},
	} {
		if _, err := f.engine.Transition(ctx, doc.ID, document.ActionApprove, actor, Payload{}); err != nil {
			t.Fatalf("approve by %s failed: %v", actor.ID, err)
		}
	}

	sched, err := f.schedules.GetByDocumentID(ctx, doc.ID)
	if err != nil || sched == nil {
		t.Fatalf("expected schedule after final approval, got %v (%v)", sched, err)
	}
	if sched.Status != schedule.StatusActive {
		t.Errorf("expected ACTIVE schedule, got %s", sched.Status)
	}
	if sched.TotalCount != 12 {
		t.Errorf("expected 12 installments, got %d", sched.TotalCount)
	}

	installments, _ := f.installments.GetByScheduleID(ctx, sched.ID)
	if len(installments) != 12 {
		t.Errorf("expected 12 installments persisted, got %d", len(installments))
	}
	if !installments[0].DueDate.Equal(start) {
		t.Errorf("expected first due %s, got %s", start, installments[0].DueDate)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t, expenseInput(80000))
	ctx := context.Background()

	// Payload validation runs before the transition guard: the missing
	// reason fails identically from any status
	_, err := f.engine.Transition(ctx, doc.ID, document.ActionReject,
		Actor{ID: "mgr-1", Role: document.RoleManager}, Payload{})
	if !errors.Is(err, document.ErrValidation) {
		t.Errorf("expected ErrValidation from DRAFT, got %v", err)
	}

	if _, err := f.engine.Transition(ctx, doc.ID, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err = f.engine.Transition(ctx, doc.ID, document.ActionReject,
		Actor{ID: "mgr-1", Role: document.RoleManager}, Payload{})
	if !errors.Is(err, document.ErrValidation) {
		t.Errorf("expected ErrValidation from PENDING_APPROVAL, got %v", err)
	}
}

func TestRejectVoidsPendingSteps(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t, expenseInput(80000))
	ctx := context.Background()

	if _, err := f.engine.Transition(ctx, doc.ID, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := f.engine.Transition(ctx, doc.ID, document.ActionApprove,
		Actor{ID: "mgr-1", Role: document.RoleManager}, Payload{}); err != nil {
		t.Fatalf("manager approve failed: %v", err)
	}

	rejected, err := f.engine.Transition(ctx, doc.ID, document.ActionReject,
		Actor{ID: "dir-1", Role: document.RoleDirector}, Payload{Reason: "over budget", Comment: "Q3 freeze"})
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	if rejected.Status != document.StatusRejected {
		t.Errorf("expected REJECTED, got %s", rejected.Status)
	}
	if rejected.RejectedBy != "dir-1" || rejected.RejectionReason != "over budget" {
		t.Errorf("rejection stamps missing: by=%s reason=%s", rejected.RejectedBy, rejected.RejectionReason)
	}

	steps, _ := f.steps.GetByDocumentID(ctx, doc.ID)
	var voided, approved int
	for _, step := range steps {
		switch step.Status {
		case approval.StepVoided:
			voided++
		case approval.StepApproved:
			approved++
		}
	}
	if approved != 1 || voided != 2 {
		t.Errorf("expected 1 approved and 2 voided steps, got %d/%d", approved, voided)
	}
}

func TestReopenClearsRejection(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t, expenseInput(80000))
	ctx := context.Background()

	if _, err := f.engine.Transition(ctx, doc.ID, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := f.engine.Transition(ctx, doc.ID, document.ActionReject,
		Actor{ID: "mgr-1", Role: document.RoleManager}, Payload{Reason: "missing receipt"}); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	reopened, err := f.engine.Transition(ctx, doc.ID, document.ActionReopen,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	if reopened.Status != document.StatusDraft {
		t.Errorf("expected DRAFT, got %s", reopened.Status)
	}
	if reopened.RejectedBy != "" || reopened.RejectionReason != "" || reopened.RejectedAt != nil {
		t.Error("rejection stamps not cleared on reopen")
	}
}

func TestPayBlockedWithOutstandingInstallments(t *testing.T) {
	f := newFixture()
	doc := approvedRecurringInvoice(t, f)
	ctx := context.Background()

	_, err := f.engine.Transition(ctx, doc.ID, document.ActionPay,
		Actor{ID: "acc-1", Role: document.RoleAccountant}, Payload{})
	if !errors.Is(err, document.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition with outstanding installments, got %v", err)
	}
}

func TestPayLumpSumSettlesSchedule(t *testing.T) {
	f := newFixture()
	doc := approvedRecurringInvoice(t, f)
	ctx := context.Background()

	paid, err := f.engine.Transition(ctx, doc.ID, document.ActionPay,
		Actor{ID: "acc-1", Role: document.RoleAccountant}, Payload{LumpSum: true})
	if err != nil {
		t.Fatalf("lump-sum pay failed: %v", err)
	}

	if paid.Status != document.StatusPaid {
		t.Errorf("expected PAID, got %s", paid.Status)
	}

	sched, _ := f.schedules.GetByDocumentID(ctx, doc.ID)
	if sched.Status != schedule.StatusCompleted {
		t.Errorf("expected COMPLETED schedule, got %s", sched.Status)
	}
	installments, _ := f.installments.GetByScheduleID(ctx, sched.ID)
	for _, inst := range installments {
		if inst.Status != schedule.InstallmentPaid {
			t.Errorf("installment %d not settled: %s", inst.Sequence, inst.Status)
		}
	}
}

func TestPayAllowedUnderPartialPaymentPolicy(t *testing.T) {
	f := newFixture()
	f.policies.policy.AllowPartialPayment = true
	doc := approvedRecurringInvoice(t, f)
	ctx := context.Background()

	paid, err := f.engine.Transition(ctx, doc.ID, document.ActionPay,
		Actor{ID: "acc-1", Role: document.RoleAccountant}, Payload{})
	if err != nil {
		t.Fatalf("partial pay failed: %v", err)
	}
	if paid.Status != document.StatusPaid {
		t.Errorf("expected PAID, got %s", paid.Status)
	}

	// The schedule keeps running independently
	sched, _ := f.schedules.GetByDocumentID(ctx, doc.ID)
	if sched.Status != schedule.StatusActive {
		t.Errorf("expected schedule to stay ACTIVE, got %s", sched.Status)
	}
}

func TestTerminateCancelsSchedule(t *testing.T) {
	f := newFixture()
	start := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	doc := f.createDocument(t, CreateInput{
		Category:               document.CategoryContract,
		BaseAmountCents:        30000, // below threshold, auto-approves
		PaymentType:            document.PaymentRecurring,
		DueDate:                &start,
		InstallmentCount:       3,
		InstallmentAmountCents: 10000,
		FrequencyMonths:        1,
	})
	ctx := context.Background()

	if _, err := f.engine.Transition(ctx, doc.ID, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	terminated, err := f.engine.Transition(ctx, doc.ID, document.ActionTerminate,
		Actor{ID: "dir-1", Role: document.RoleDirector}, Payload{Comment: "vendor switch"})
	if err != nil {
		t.Fatalf("terminate failed: %v", err)
	}

	if terminated.Status != document.StatusTerminated {
		t.Errorf("expected TERMINATED, got %s", terminated.Status)
	}
	if terminated.TerminatedAt == nil {
		t.Error("expected termination timestamp")
	}

	sched, _ := f.schedules.GetByDocumentID(ctx, doc.ID)
	if sched.Status != schedule.StatusCancelled {
		t.Errorf("expected CANCELLED schedule, got %s", sched.Status)
	}
}

func TestTransitionUnauthorizedRole(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t, expenseInput(80000))
	ctx := context.Background()

	if _, err := f.engine.Transition(ctx, doc.ID, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err := f.engine.Transition(ctx, doc.ID, document.ActionApprove,
		Actor{ID: "emp-2", Role: document.RoleEmployee}, Payload{})
	if !errors.Is(err, document.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTransitionInvalidFromStatus(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t, expenseInput(10000))

	_, err := f.engine.Transition(context.Background(), doc.ID, document.ActionPay,
		Actor{ID: "acc-1", Role: document.RoleAccountant}, Payload{})
	if !errors.Is(err, document.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for PAY from DRAFT, got %v", err)
	}
}

func TestTransitionNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.engine.Transition(context.Background(), 999, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{})
	if !errors.Is(err, document.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkOverdueIdempotent(t *testing.T) {
	f := newFixture()
	due := testClock.AddDate(0, 0, -10)
	doc := f.createDocument(t, CreateInput{
		Category:        document.CategoryInvoice,
		BaseAmountCents: 10000,
		DueDate:         &due,
	})
	ctx := context.Background()

	flipped, err := f.engine.MarkOverdue(ctx, doc.ID)
	if err != nil || !flipped {
		t.Fatalf("expected first call to flip, got %v (%v)", flipped, err)
	}

	flipped, err = f.engine.MarkOverdue(ctx, doc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flipped {
		t.Error("expected second call to be a no-op")
	}

	entries, _ := f.audits.GetByDocumentID(ctx, doc.ID)
	if len(entries) != 1 {
		t.Errorf("expected exactly 1 audit entry, got %d", len(entries))
	}
}

func TestAllowedActions(t *testing.T) {
	f := newFixture()
	doc := f.createDocument(t, expenseInput(80000))
	ctx := context.Background()

	actions, err := f.engine.AllowedActions(ctx, doc.ID, document.RoleEmployee)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 1 || actions[0] != document.ActionSubmit {
		t.Errorf("expected [SUBMIT] for a draft, got %v", actions)
	}

	if _, err := f.engine.Transition(ctx, doc.ID, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// The manager owns the first pending step
	actions, _ = f.engine.AllowedActions(ctx, doc.ID, document.RoleManager)
	if !containsAction(actions, document.ActionApprove) || !containsAction(actions, document.ActionReject) {
		t.Errorf("expected APPROVE and REJECT for manager, got %v", actions)
	}

	// The director may reject but not approve out of order
	actions, _ = f.engine.AllowedActions(ctx, doc.ID, document.RoleDirector)
	if containsAction(actions, document.ActionApprove) {
		t.Errorf("director should not see APPROVE before their step, got %v", actions)
	}
	if !containsAction(actions, document.ActionReject) {
		t.Errorf("expected REJECT for director, got %v", actions)
	}
}

func containsAction(actions []document.Action, want document.Action) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}

// approvedRecurringInvoice creates a recurring invoice below the
// threshold so submission auto-approves and activates its schedule
func approvedRecurringInvoice(t *testing.T, f *fixture) *document.Document {
	t.Helper()
	start := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	doc := f.createDocument(t, CreateInput{
		Category:               document.CategoryInvoice,
		BaseAmountCents:        30000,
		PaymentType:            document.PaymentRecurring,
		DueDate:                &start,
		InstallmentCount:       3,
		InstallmentAmountCents: 10000,
		FrequencyMonths:        1,
	})

	if _, err := f.engine.Transition(context.Background(), doc.ID, document.ActionSubmit,
		Actor{ID: "emp-1", Role: document.RoleEmployee}, Payload{}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	updated, err := f.docs.GetByID(context.Background(), doc.ID)
	if err != nil || updated.Status != document.StatusApproved {
		t.Fatalf("expected auto-approved document, got %v (%v)", updated, err)
	}
	return updated
}
