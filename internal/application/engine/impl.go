package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/finstack/docflow/internal/application/dispatcher"
	"github.com/finstack/docflow/internal/application/port"
	"github.com/finstack/docflow/internal/domain/approval"
	"github.com/finstack/docflow/internal/domain/audit"
	"github.com/finstack/docflow/internal/domain/document"
	"github.com/finstack/docflow/internal/domain/event"
	"github.com/finstack/docflow/internal/domain/schedule"
)

// systemActorID stamps audit entries written by the engine itself, e.g.
// auto-approval below the threshold
const systemActorID = "system"

var referencePrefixes = map[document.Category]string{
	document.CategoryInvoice:      "INV",
	document.CategoryContract:     "CTR",
	document.CategoryTaxFiling:    "TAX",
	document.CategoryExpense:      "EXP",
	document.CategoryIntervention: "ITV",
	document.CategoryRecruitment:  "REC",
}

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	docs         port.DocumentRepository
	steps        port.ApprovalStepRepository
	schedules    port.ScheduleRepository
	installments port.InstallmentRepository
	audits       port.AuditRepository
	policies     port.PolicyProvider
	authz        port.Authorizer
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures the workflow engine
type Option func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithClock overrides the time source (used in tests)
func WithClock(now func() time.Time) Option {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	docs port.DocumentRepository,
	steps port.ApprovalStepRepository,
	schedules port.ScheduleRepository,
	installments port.InstallmentRepository,
	audits port.AuditRepository,
	policies port.PolicyProvider,
	authz port.Authorizer,
	txManager port.TransactionManager,
	logger *zap.Logger,
	opts ...Option,
) WorkflowEngine {
	e := &engineImpl{
		docs:         docs,
		steps:        steps,
		schedules:    schedules,
		installments: installments,
		audits:       audits,
		policies:     policies,
		authz:        authz,
		txManager:    txManager,
		logger:       logger,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CreateDocument registers a new draft with a generated reference
func (e *engineImpl) CreateDocument(ctx context.Context, actor Actor, input CreateInput) (*document.Document, error) {
	if !input.Category.IsValid() {
		return nil, fmt.Errorf("%w: unknown category %q", document.ErrValidation, input.Category)
	}
	if actor.ID == "" {
		return nil, fmt.Errorf("%w: actor is required", document.ErrValidation)
	}

	paymentType := input.PaymentType
	if paymentType == "" {
		paymentType = document.PaymentOneOff
	}

	doc := &document.Document{
		Category:               input.Category,
		Status:                 document.StatusDraft,
		PaymentType:            paymentType,
		InstallmentCount:       input.InstallmentCount,
		InstallmentAmountCents: input.InstallmentAmountCents,
		FrequencyDays:          input.FrequencyDays,
		FrequencyMonths:        input.FrequencyMonths,
		CreatedBy:              actor.ID,
		DueDate:                input.DueDate,
		CreatedAt:              e.now(),
	}
	if err := doc.SetAmounts(input.BaseAmountCents, input.TaxAmountCents); err != nil {
		return nil, err
	}
	if doc.IsRecurring() {
		freq := schedule.Frequency{Days: doc.FrequencyDays, Months: doc.FrequencyMonths}
		if err := freq.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", document.ErrValidation, err)
		}
		if doc.InstallmentAmountCents <= 0 {
			return nil, fmt.Errorf("%w: recurring document requires an installment amount", document.ErrValidation)
		}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		year := doc.CreatedAt.Year()
		seq, err := e.docs.NextReferenceSeq(txCtx, doc.Category, year)
		if err != nil {
			return fmt.Errorf("failed to reserve reference: %w", err)
		}
		doc.Reference = fmt.Sprintf("%s-%d-%04d", referencePrefixes[doc.Category], year, seq)
		return e.docs.Create(txCtx, doc)
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, event.NewEvent(event.TypeDocumentCreated, doc.ID, map[string]interface{}{
		"reference": doc.Reference,
		"category":  doc.Category.String(),
		"actor":     actor.ID,
	}))

	return doc, nil
}

// Transition validates and applies an action for a document atomically
func (e *engineImpl) Transition(ctx context.Context, documentID int64, action document.Action, actor Actor, payload Payload) (*document.Document, error) {
	doc, err := e.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %d", document.ErrNotFound, documentID)
	}

	// Input validation comes before guard evaluation: a rejection without
	// a reason fails the same way whether or not approval was required
	if err := validatePayload(action, payload); err != nil {
		return nil, err
	}

	if !e.authz.Can(actor.Role, action, doc.Category) {
		return nil, fmt.Errorf("%w: role %s may not %s %s documents",
			document.ErrUnauthorized, actor.Role, action, doc.Category)
	}

	machine := BuildDocumentStateMachine(doc.Category, doc.Status)
	if !machine.CanFire(action) {
		return nil, fmt.Errorf("%w: cannot %s a %s document in status %s",
			document.ErrInvalidTransition, action, doc.Category, doc.Status)
	}

	now := e.effectiveTime(payload)
	var events []*event.Event

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		switch action {
		case document.ActionSubmit:
			return e.applySubmit(txCtx, doc, actor, payload, now, &events)
		case document.ActionApprove:
			return e.applyApprove(txCtx, doc, actor, payload, now, &events)
		case document.ActionReject:
			return e.applyReject(txCtx, doc, actor, payload, now, &events)
		case document.ActionReopen:
			return e.applyReopen(txCtx, doc, actor, now, &events)
		case document.ActionPay:
			return e.applyPay(txCtx, doc, actor, payload, now, &events)
		case document.ActionTerminate:
			return e.applyTerminal(txCtx, doc, actor, document.ActionTerminate, document.StatusTerminated, payload, now, &events)
		case document.ActionCancel:
			return e.applyTerminal(txCtx, doc, actor, document.ActionCancel, document.StatusCancelled, payload, now, &events)
		default:
			return fmt.Errorf("%w: unsupported action %s", document.ErrValidation, action)
		}
	})
	if err != nil {
		return nil, err
	}

	for _, evt := range events {
		e.emit(ctx, evt)
	}

	return e.docs.GetByID(ctx, documentID)
}

// AllowedActions returns the actions the role may currently fire
func (e *engineImpl) AllowedActions(ctx context.Context, documentID int64, role document.Role) ([]document.Action, error) {
	doc, err := e.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %d", document.ErrNotFound, documentID)
	}

	machine := BuildDocumentStateMachine(doc.Category, doc.Status)

	var allowed []document.Action
	for _, action := range machine.PermittedActions() {
		if !e.authz.Can(role, action, doc.Category) {
			continue
		}
		if action == document.ActionApprove && doc.Status == document.StatusPendingApproval {
			step, err := e.steps.FirstPending(ctx, doc.ID)
			if err != nil {
				return nil, err
			}
			if step == nil {
				continue
			}
			if role != step.Level.RoleFor() && role != document.RoleAdmin {
				continue
			}
		}
		allowed = append(allowed, action)
	}

	sort.Slice(allowed, func(i, j int) bool { return allowed[i] < allowed[j] })
	return allowed, nil
}

// MarkOverdue flags an unpaid past-due document, once
func (e *engineImpl) MarkOverdue(ctx context.Context, documentID int64) (bool, error) {
	flipped, err := e.docs.MarkOverdue(ctx, documentID)
	if err != nil || !flipped {
		return false, err
	}

	doc, err := e.docs.GetByID(ctx, documentID)
	if err != nil || doc == nil {
		return true, err
	}

	// The flag is the source of truth; the audit entry is best-effort
	// outside the sweep's per-record update
	entry := &audit.Entry{
		DocumentID: doc.ID,
		ActorID:    systemActorID,
		ActorRole:  document.RoleAdmin,
		Action:     document.ActionFlagOverdue,
		FromStatus: doc.Status,
		ToStatus:   doc.Status,
		Comment:    "payment past due",
		CreatedAt:  e.now(),
	}
	if err := e.audits.Create(ctx, entry); err != nil {
		e.logger.Error("Failed to write overdue audit entry",
			zap.Int64("document_id", doc.ID), zap.Error(err))
	}

	e.emit(ctx, event.NewEvent(event.TypeDocumentOverdue, doc.ID, map[string]interface{}{
		"reference": doc.Reference,
	}))
	return true, nil
}

// applySubmit moves a draft into the approval flow. Submission resolves
// the approval chain: below the threshold the document auto-approves,
// otherwise one pending step per required level is created atomically.
func (e *engineImpl) applySubmit(ctx context.Context, doc *document.Document, actor Actor, payload Payload, now time.Time, events *[]*event.Event) error {
	policy, err := e.policies.PolicyFor(doc.Category)
	if err != nil {
		return err
	}
	levels := policy.Resolve(doc.TotalAmountCents)

	target := document.StatusPendingApproval
	if len(levels) == 0 {
		target = document.StatusApproved
	}

	if err := e.docs.UpdateStatus(ctx, doc.ID, document.StatusDraft, target); err != nil {
		return err
	}

	doc.Status = target
	doc.SubmittedAt = &now
	if len(levels) == 0 {
		doc.ApprovedAt = &now
	} else {
		doc.CurrentApprovalSeq = 1
	}
	if err := e.docs.Update(ctx, doc); err != nil {
		return err
	}

	if err := e.writeAudit(ctx, doc.ID, actor, document.ActionSubmit,
		document.StatusDraft, document.StatusSubmitted, payload.Comment, now); err != nil {
		return err
	}

	if len(levels) == 0 {
		if err := e.writeAudit(ctx, doc.ID, Actor{ID: systemActorID, Role: document.RoleAdmin},
			document.ActionApprove, document.StatusSubmitted, document.StatusApproved,
			"auto-approved below approval threshold", now); err != nil {
			return err
		}
		if doc.IsRecurring() {
			if err := e.activateSchedule(ctx, doc, now, events); err != nil {
				return err
			}
		}
	} else {
		steps := approval.Steps(doc.ID, levels)
		if err := e.steps.CreateBatch(ctx, steps); err != nil {
			return err
		}
		if err := e.writeAudit(ctx, doc.ID, actor, document.ActionSubmit,
			document.StatusSubmitted, document.StatusPendingApproval,
			fmt.Sprintf("approval chain created with %d steps", len(steps)), now); err != nil {
			return err
		}
	}

	*events = append(*events, e.transitionEvent(doc, document.ActionSubmit, document.StatusDraft, actor))
	return nil
}

// applyApprove decides the lowest-sequence pending step. Only when the
// last required step is approved does the document itself move.
func (e *engineImpl) applyApprove(ctx context.Context, doc *document.Document, actor Actor, payload Payload, now time.Time, events *[]*event.Event) error {
	step, err := e.steps.FirstPending(ctx, doc.ID)
	if err != nil {
		return err
	}
	if step == nil {
		return fmt.Errorf("%w: no pending approval steps for document %d",
			document.ErrInvalidTransition, doc.ID)
	}
	if actor.Role != step.Level.RoleFor() && actor.Role != document.RoleAdmin {
		return fmt.Errorf("%w: step %d requires level %s",
			document.ErrUnauthorized, step.Sequence, step.Level)
	}

	if err := e.steps.Approve(ctx, step.ID, actor.ID, payload.Comment, now); err != nil {
		return err
	}

	remaining, err := e.steps.CountPending(ctx, doc.ID)
	if err != nil {
		return err
	}

	*events = append(*events, event.NewEvent(event.TypeStepDecided, doc.ID, map[string]interface{}{
		"sequence": step.Sequence,
		"level":    string(step.Level),
		"decision": approval.StepApproved,
		"actor":    actor.ID,
	}))

	if remaining > 0 {
		doc.CurrentApprovalSeq = step.Sequence + 1
		if err := e.docs.Update(ctx, doc); err != nil {
			return err
		}
		return e.writeAudit(ctx, doc.ID, actor, document.ActionApprove,
			document.StatusPendingApproval, document.StatusPendingApproval,
			fmt.Sprintf("approval step %d approved, %d remaining", step.Sequence, remaining), now)
	}

	if err := e.docs.UpdateStatus(ctx, doc.ID, document.StatusPendingApproval, document.StatusApproved); err != nil {
		return err
	}
	doc.Status = document.StatusApproved
	doc.ApprovedBy = actor.ID
	doc.ApprovedAt = &now
	doc.CurrentApprovalSeq = step.Sequence
	if err := e.docs.Update(ctx, doc); err != nil {
		return err
	}
	if err := e.writeAudit(ctx, doc.ID, actor, document.ActionApprove,
		document.StatusPendingApproval, document.StatusApproved, payload.Comment, now); err != nil {
		return err
	}

	if doc.IsRecurring() {
		if err := e.activateSchedule(ctx, doc, now, events); err != nil {
			return err
		}
	}

	*events = append(*events, e.transitionEvent(doc, document.ActionApprove, document.StatusPendingApproval, actor))
	return nil
}

// applyReject moves the document to REJECTED and voids every still-pending
// approval step
func (e *engineImpl) applyReject(ctx context.Context, doc *document.Document, actor Actor, payload Payload, now time.Time, events *[]*event.Event) error {
	from := doc.Status
	if err := e.docs.UpdateStatus(ctx, doc.ID, from, document.StatusRejected); err != nil {
		return err
	}

	if _, err := e.steps.VoidPending(ctx, doc.ID); err != nil {
		return err
	}

	doc.Status = document.StatusRejected
	doc.RejectedBy = actor.ID
	doc.RejectedAt = &now
	doc.RejectionReason = payload.Reason
	doc.RejectionComment = payload.Comment
	if err := e.docs.Update(ctx, doc); err != nil {
		return err
	}

	comment := payload.Reason
	if payload.Comment != "" {
		comment = fmt.Sprintf("%s: %s", payload.Reason, payload.Comment)
	}
	if err := e.writeAudit(ctx, doc.ID, actor, document.ActionReject, from, document.StatusRejected, comment, now); err != nil {
		return err
	}

	*events = append(*events, e.transitionEvent(doc, document.ActionReject, from, actor))
	return nil
}

// applyReopen reinstates a rejected document back to draft
func (e *engineImpl) applyReopen(ctx context.Context, doc *document.Document, actor Actor, now time.Time, events *[]*event.Event) error {
	if err := e.docs.UpdateStatus(ctx, doc.ID, document.StatusRejected, document.StatusDraft); err != nil {
		return err
	}

	doc.Status = document.StatusDraft
	doc.RejectedBy = ""
	doc.RejectedAt = nil
	doc.RejectionReason = ""
	doc.RejectionComment = ""
	doc.CurrentApprovalSeq = 0
	if err := e.docs.Update(ctx, doc); err != nil {
		return err
	}

	if err := e.writeAudit(ctx, doc.ID, actor, document.ActionReopen,
		document.StatusRejected, document.StatusDraft, "", now); err != nil {
		return err
	}

	*events = append(*events, e.transitionEvent(doc, document.ActionReopen, document.StatusRejected, actor))
	return nil
}

// applyPay settles an approved document. With an attached schedule the
// payment requires either zero remaining installments, an explicit lump
// settlement, or a category policy that tolerates partial payment.
func (e *engineImpl) applyPay(ctx context.Context, doc *document.Document, actor Actor, payload Payload, now time.Time, events *[]*event.Event) error {
	sched, err := e.schedules.GetByDocumentID(ctx, doc.ID)
	if err != nil {
		return err
	}

	if sched != nil && sched.RemainingCount() > 0 &&
		(sched.Status == schedule.StatusActive || sched.Status == schedule.StatusPaused) {
		switch {
		case payload.LumpSum:
			if err := e.settleSchedule(ctx, sched, actor, now, events); err != nil {
				return err
			}
		default:
			policy, err := e.policies.PolicyFor(doc.Category)
			if err != nil {
				return err
			}
			if !policy.AllowPartialPayment {
				return fmt.Errorf("%w: %d installments outstanding on schedule %d",
					document.ErrInvalidTransition, sched.RemainingCount(), sched.ID)
			}
		}
	}

	if err := e.docs.UpdateStatus(ctx, doc.ID, document.StatusApproved, document.StatusPaid); err != nil {
		return err
	}
	doc.Status = document.StatusPaid
	doc.PaidAt = &now
	if err := e.docs.Update(ctx, doc); err != nil {
		return err
	}

	if err := e.writeAudit(ctx, doc.ID, actor, document.ActionPay,
		document.StatusApproved, document.StatusPaid, payload.Comment, now); err != nil {
		return err
	}

	*events = append(*events, e.transitionEvent(doc, document.ActionPay, document.StatusApproved, actor))
	return nil
}

// applyTerminal handles TERMINATE and CANCEL. An active or paused
// schedule attached to the document is cancelled along with it.
func (e *engineImpl) applyTerminal(ctx context.Context, doc *document.Document, actor Actor, action document.Action, target document.Status, payload Payload, now time.Time, events *[]*event.Event) error {
	if err := e.docs.UpdateStatus(ctx, doc.ID, document.StatusApproved, target); err != nil {
		return err
	}
	doc.Status = target
	switch target {
	case document.StatusTerminated:
		doc.TerminatedAt = &now
	case document.StatusCancelled:
		doc.CancelledAt = &now
	}
	if err := e.docs.Update(ctx, doc); err != nil {
		return err
	}

	sched, err := e.schedules.GetByDocumentID(ctx, doc.ID)
	if err != nil {
		return err
	}
	if sched != nil && sched.CanBeCancelled() {
		if err := e.schedules.UpdateStatus(ctx, sched.ID, sched.Status, schedule.StatusCancelled); err != nil {
			return err
		}
	}

	if err := e.writeAudit(ctx, doc.ID, actor, action,
		document.StatusApproved, target, payload.Comment, now); err != nil {
		return err
	}

	*events = append(*events, e.transitionEvent(doc, action, document.StatusApproved, actor))
	return nil
}

// activateSchedule materializes the installment plan for a recurring
// document, once, as a fixed batch
func (e *engineImpl) activateSchedule(ctx context.Context, doc *document.Document, now time.Time, events *[]*event.Event) error {
	existing, err := e.schedules.GetByDocumentID(ctx, doc.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	start := now
	if doc.DueDate != nil {
		start = *doc.DueDate
	}
	freq := schedule.Frequency{Days: doc.FrequencyDays, Months: doc.FrequencyMonths}

	plan, err := schedule.Generate(doc.ID, doc.TotalAmountCents, doc.InstallmentAmountCents, start, freq, doc.InstallmentCount)
	if err != nil {
		return err
	}
	if plan.Warning != "" {
		e.logger.Warn("Installment plan amount mismatch",
			zap.Int64("document_id", doc.ID),
			zap.String("warning", plan.Warning))
	}

	if err := e.schedules.Create(ctx, plan.Schedule); err != nil {
		return err
	}
	for _, inst := range plan.Installments {
		inst.ScheduleID = plan.Schedule.ID
	}
	if err := e.installments.CreateBatch(ctx, plan.Installments); err != nil {
		return err
	}

	*events = append(*events, event.NewEvent(event.TypeScheduleActivated, doc.ID, map[string]interface{}{
		"schedule_id": plan.Schedule.ID,
		"count":       plan.Schedule.TotalCount,
		"warning":     plan.Warning,
	}))
	return nil
}

// settleSchedule records a full lump payment: every outstanding
// installment is marked paid and the schedule completes
func (e *engineImpl) settleSchedule(ctx context.Context, sched *schedule.Schedule, actor Actor, now time.Time, events *[]*event.Event) error {
	installments, err := e.installments.GetByScheduleID(ctx, sched.ID)
	if err != nil {
		return err
	}

	for _, inst := range installments {
		if inst.Status == schedule.InstallmentPaid {
			continue
		}
		if err := e.installments.MarkPaid(ctx, inst.ID, actor.ID, now); err != nil {
			return err
		}
	}

	if err := e.schedules.UpdateProgress(ctx, sched.ID, sched.TotalCount, nil); err != nil {
		return err
	}
	if err := e.schedules.UpdateStatus(ctx, sched.ID, sched.Status, schedule.StatusCompleted); err != nil {
		return err
	}
	sched.PaidCount = sched.TotalCount
	sched.NextDue = nil
	sched.Status = schedule.StatusCompleted

	*events = append(*events, event.NewEvent(event.TypeScheduleCompleted, sched.DocumentID, map[string]interface{}{
		"schedule_id": sched.ID,
		"lump_sum":    true,
	}))
	return nil
}

// writeAudit records one immutable audit trail entry
func (e *engineImpl) writeAudit(ctx context.Context, documentID int64, actor Actor, action document.Action, from, to document.Status, comment string, at time.Time) error {
	return e.audits.Create(ctx, &audit.Entry{
		DocumentID: documentID,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Comment:    comment,
		CreatedAt:  at,
	})
}

func (e *engineImpl) transitionEvent(doc *document.Document, action document.Action, from document.Status, actor Actor) *event.Event {
	return event.NewEvent(event.TypeDocumentTransitioned, doc.ID, map[string]interface{}{
		"reference":   doc.Reference,
		"action":      action.String(),
		"from_status": from.String(),
		"to_status":   doc.Status.String(),
		"actor":       actor.ID,
	})
}

func (e *engineImpl) emit(ctx context.Context, evt *event.Event) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.DispatchAsync(ctx, evt)
}

func (e *engineImpl) effectiveTime(payload Payload) time.Time {
	if payload.EffectiveDate != nil {
		return *payload.EffectiveDate
	}
	return e.now()
}

// validatePayload checks action-specific required inputs before any guard
// evaluation
func validatePayload(action document.Action, payload Payload) error {
	if action == document.ActionReject && payload.Reason == "" {
		return fmt.Errorf("%w: rejection reason is required", document.ErrValidation)
	}
	return nil
}
