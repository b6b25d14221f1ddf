package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/finops/internal/config"
	"github.com/nurpe/finops/internal/model"
)

// ApprovalService materializes resolved routes into approval rows and
// processes decisions, delegation, and escalation against them.
type ApprovalService struct {
	approvals ApprovalStore
	directory Directory
	cfg       config.ApprovalsConfig
	log       zerolog.Logger
}

func NewApprovalService(approvals ApprovalStore, directory Directory, cfg config.ApprovalsConfig, log zerolog.Logger) *ApprovalService {
	return &ApprovalService{approvals: approvals, directory: directory, cfg: cfg, log: log}
}

// CreateApprovals writes one row per (level, approver) pair across the whole
// route up front. Auto-approve routes create no rows and flip the subject to
// APPROVED immediately.
func (s *ApprovalService) CreateApprovals(ctx context.Context, kind model.RequestKind, subjectID uuid.UUID, route *model.ApprovalRoute) ([]model.Approval, error) {
	if err := route.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if route.AutoApprove {
		if err := s.approvals.SetSubjectStatus(ctx, kind, subjectID, model.RequestStatusApproved); err != nil {
			return nil, err
		}
		return []model.Approval{}, nil
	}

	rows := make([]model.Approval, 0, len(route.Levels))
	for _, level := range route.Levels {
		for _, approver := range level.Approvers {
			rows = append(rows, model.Approval{
				SubjectKind: kind,
				SubjectID:   subjectID,
				ApproverID:  approver.ID,
				Level:       level.Level,
				Status:      model.ApprovalStatusPending,
			})
		}
	}
	return s.approvals.Create(ctx, rows)
}

type DecideInput struct {
	ApprovalID uuid.UUID
	Actor      model.Principal
	Decision   model.ApprovalStatus
	Comments   *string
}

type DecideResult struct {
	SubjectKind   model.RequestKind
	SubjectID     uuid.UUID
	SubjectStatus model.RequestStatus
	Message       string
}

// Decide records a single approver's verdict and advances or terminates the
// subject's chain. The row update and any subject status change happen in
// one transaction; the PENDING check is a guarded update, so a racing second
// decision loses with ErrAlreadyDecided.
func (s *ApprovalService) Decide(ctx context.Context, input DecideInput) (*DecideResult, error) {
	if input.Decision != model.ApprovalStatusApproved && input.Decision != model.ApprovalStatusRejected {
		return nil, fmt.Errorf("%w: decision must be APPROVED or REJECTED", ErrInvalidInput)
	}

	approval, err := s.approvals.Get(ctx, input.ApprovalID)
	if err != nil {
		return nil, err
	}
	if approval == nil {
		return nil, fmt.Errorf("%w: approval %s", ErrNotFound, input.ApprovalID)
	}

	subject, err := s.approvals.GetSubject(ctx, approval.SubjectKind, approval.SubjectID)
	if err != nil {
		return nil, err
	}
	if subject == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, approval.SubjectKind, approval.SubjectID)
	}
	// A row can still read PENDING after a rejection elsewhere terminated
	// the chain; that is a distinct condition from a re-decided row.
	if subject.Status != model.RequestStatusPending {
		return nil, fmt.Errorf("%w: subject is %s", ErrChainTerminated, subject.Status)
	}
	if approval.Status != model.ApprovalStatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrAlreadyDecided, approval.Status)
	}

	actor, err := s.directory.GetUser(ctx, input.Actor.UserID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, input.Actor.UserID)
	}
	isAdmin := actor.IsUniversalApprover()
	if approval.ApproverID != actor.ID && !isAdmin {
		return nil, ErrPermissionDenied
	}
	if input.Decision == model.ApprovalStatusApproved && !isAdmin && approval.SubjectKind == model.KindRequisition {
		limit := actor.ApprovalLimit(s.cfg.DefaultApprovalLimit)
		if subject.Amount > limit {
			return nil, fmt.Errorf("%w: amount $%.2f exceeds approval limit of $%.2f", ErrPermissionDenied, subject.Amount, limit)
		}
	}

	// An admin acting on a row assigned to someone else resolves the whole
	// subject in one step; remaining pending rows get SKIPPED.
	override := isAdmin && approval.ApproverID != actor.ID

	subjectStatus := model.RequestStatusPending
	err = s.approvals.InTx(ctx, func(tx ApprovalStore) error {
		updated, err := tx.MarkDecided(ctx, approval.ID, input.Decision, input.Comments)
		if err != nil {
			return err
		}
		if !updated {
			return ErrAlreadyDecided
		}

		if input.Decision == model.ApprovalStatusRejected {
			// One rejection terminates the chain regardless of level.
			subjectStatus = model.RequestStatusRejected
			return tx.SetSubjectStatus(ctx, approval.SubjectKind, approval.SubjectID, subjectStatus)
		}

		if override {
			subjectStatus = model.RequestStatusApproved
			if err := tx.SkipPending(ctx, approval.SubjectKind, approval.SubjectID); err != nil {
				return err
			}
			return tx.SetSubjectStatus(ctx, approval.SubjectKind, approval.SubjectID, subjectStatus)
		}

		rows, err := tx.ListBySubject(ctx, approval.SubjectKind, approval.SubjectID)
		if err != nil {
			return err
		}
		if model.CurrentLevel(rows) == 0 {
			subjectStatus = model.RequestStatusApproved
			return tx.SetSubjectStatus(ctx, approval.SubjectKind, approval.SubjectID, subjectStatus)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	message := "approval recorded"
	switch subjectStatus {
	case model.RequestStatusApproved:
		message = "request fully approved"
	case model.RequestStatusRejected:
		message = "request rejected"
	}
	return &DecideResult{
		SubjectKind:   approval.SubjectKind,
		SubjectID:     approval.SubjectID,
		SubjectStatus: subjectStatus,
		Message:       message,
	}, nil
}

type DelegateInput struct {
	ApprovalID   uuid.UUID
	Actor        model.Principal
	ToApproverID uuid.UUID
	Reason       *string
}

// Delegate hands a pending slot to another approver. The original row is
// marked DELEGATED and a successor row is inserted at the same level with a
// back-reference, so both the original assignee and the eventual decider
// stay on record.
func (s *ApprovalService) Delegate(ctx context.Context, input DelegateInput) (*model.Approval, error) {
	approval, err := s.approvals.Get(ctx, input.ApprovalID)
	if err != nil {
		return nil, err
	}
	if approval == nil {
		return nil, fmt.Errorf("%w: approval %s", ErrNotFound, input.ApprovalID)
	}
	if approval.Status != model.ApprovalStatusPending {
		return nil, fmt.Errorf("%w: can only delegate pending approvals", ErrAlreadyDecided)
	}
	if approval.ApproverID != input.Actor.UserID && !input.Actor.IsSystemAdmin() {
		return nil, ErrPermissionDenied
	}
	if input.ToApproverID == approval.ApproverID {
		return nil, fmt.Errorf("%w: cannot delegate to the current approver", ErrInvalidInput)
	}

	delegate, err := s.directory.GetUser(ctx, input.ToApproverID)
	if err != nil {
		return nil, err
	}
	if delegate == nil {
		return nil, fmt.Errorf("%w: delegate user %s", ErrNotFound, input.ToApproverID)
	}
	if !delegate.IsActive || !delegate.Role.CanApprove() {
		return nil, fmt.Errorf("%w: user %s is not an eligible approver", ErrInvalidInput, input.ToApproverID)
	}

	var successor model.Approval
	err = s.approvals.InTx(ctx, func(tx ApprovalStore) error {
		updated, err := tx.MarkDecided(ctx, approval.ID, model.ApprovalStatusDelegated, input.Reason)
		if err != nil {
			return err
		}
		if !updated {
			return ErrAlreadyDecided
		}

		created, err := tx.Create(ctx, []model.Approval{{
			SubjectKind:     approval.SubjectKind,
			SubjectID:       approval.SubjectID,
			ApproverID:      delegate.ID,
			Level:           approval.Level,
			Status:          model.ApprovalStatusPending,
			DelegatedFromID: &approval.ID,
		}})
		if err != nil {
			return err
		}
		successor = created[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("approval_id", approval.ID.String()).
		Str("from", approval.ApproverID.String()).
		Str("to", delegate.ID.String()).
		Msg("approval delegated")
	return &successor, nil
}

type EscalationResult struct {
	Total     int
	Escalated int
	Skipped   int
}

// EscalateOverdue reassigns pending approvals older than the overdue window
// to the assignee's manager. Rows whose approver has no manager are left
// untouched.
func (s *ApprovalService) EscalateOverdue(ctx context.Context, actor model.Principal, daysOverdue int) (*EscalationResult, error) {
	if !actor.Role.CanTriggerEscalation() {
		return nil, ErrPermissionDenied
	}
	if daysOverdue <= 0 {
		daysOverdue = s.cfg.EscalateAfterDays
	}

	before := time.Now().AddDate(0, 0, -daysOverdue)
	overdue, err := s.approvals.ListOverduePending(ctx, before)
	if err != nil {
		return nil, err
	}

	result := &EscalationResult{Total: len(overdue)}
	for _, row := range overdue {
		approver, err := s.directory.GetUser(ctx, row.ApproverID)
		if err != nil {
			return nil, err
		}
		if approver == nil || approver.ManagerID == nil || *approver.ManagerID == approver.ID {
			result.Skipped++
			continue
		}
		updated, err := s.approvals.Reassign(ctx, row.ID, *approver.ManagerID)
		if err != nil {
			return nil, err
		}
		if updated {
			result.Escalated++
		} else {
			result.Skipped++
		}
	}

	s.log.Info().
		Int("total", result.Total).
		Int("escalated", result.Escalated).
		Msg("overdue approvals escalated")
	return result, nil
}

// PendingForApprover returns the rows a user can act on now: their PENDING
// rows sitting at the subject's current level.
func (s *ApprovalService) PendingForApprover(ctx context.Context, approverID uuid.UUID) ([]model.Approval, error) {
	rows, err := s.approvals.ListPendingByApprover(ctx, approverID)
	if err != nil {
		return nil, err
	}

	type subjectKey struct {
		kind model.RequestKind
		id   uuid.UUID
	}
	levels := make(map[subjectKey]int)

	actionable := make([]model.Approval, 0, len(rows))
	for _, row := range rows {
		key := subjectKey{row.SubjectKind, row.SubjectID}
		current, seen := levels[key]
		if !seen {
			siblings, err := s.approvals.ListBySubject(ctx, row.SubjectKind, row.SubjectID)
			if err != nil {
				return nil, err
			}
			current = model.CurrentLevel(siblings)
			levels[key] = current
		}
		if row.Level == current {
			actionable = append(actionable, row)
		}
	}
	return actionable, nil
}

type ApprovalStats struct {
	Total                int
	Approved             int
	Rejected             int
	Pending              int
	ApprovalRate         float64
	AvgResponseTimeHours float64
}

func (s *ApprovalService) Stats(ctx context.Context, approverID uuid.UUID, days int) (*ApprovalStats, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)
	rows, err := s.approvals.ListByApproverSince(ctx, approverID, since)
	if err != nil {
		return nil, err
	}

	stats := &ApprovalStats{Total: len(rows)}
	var responseTotal time.Duration
	var responded int
	for _, row := range rows {
		switch row.Status {
		case model.ApprovalStatusApproved:
			stats.Approved++
		case model.ApprovalStatusRejected:
			stats.Rejected++
		case model.ApprovalStatusPending:
			stats.Pending++
		}
		if row.DecidedAt != nil {
			responseTotal += row.DecidedAt.Sub(row.CreatedAt)
			responded++
		}
	}
	if stats.Total > 0 {
		stats.ApprovalRate = float64(stats.Approved) / float64(stats.Total) * 100
	}
	if responded > 0 {
		stats.AvgResponseTimeHours = responseTotal.Hours() / float64(responded)
	}
	return stats, nil
}
