package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/finops/internal/model"
)

// Directory is the organizational lookup contract the route resolver needs.
// Results are a snapshot. GetUser returns (nil, nil) when no such user
// exists; the same convention holds for every single-row getter below.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindUsersByRole(ctx context.Context, role model.Role, department *string) ([]model.User, error)
}

type PolicyStore interface {
	ListActive(ctx context.Context) ([]model.Policy, error)
}

// ApprovalStore owns approval rows and the subject status they summarize.
// InTx runs fn against a transaction-scoped store; conditional updates
// (MarkDecided, Reassign) report whether the guarded row was actually hit.
type ApprovalStore interface {
	InTx(ctx context.Context, fn func(ApprovalStore) error) error
	Get(ctx context.Context, id uuid.UUID) (*model.Approval, error)
	Create(ctx context.Context, rows []model.Approval) ([]model.Approval, error)
	ListBySubject(ctx context.Context, kind model.RequestKind, subjectID uuid.UUID) ([]model.Approval, error)
	ListPendingByApprover(ctx context.Context, approverID uuid.UUID) ([]model.Approval, error)
	ListByApproverSince(ctx context.Context, approverID uuid.UUID, since time.Time) ([]model.Approval, error)
	ListOverduePending(ctx context.Context, before time.Time) ([]model.Approval, error)
	MarkDecided(ctx context.Context, id uuid.UUID, status model.ApprovalStatus, comments *string) (bool, error)
	SkipPending(ctx context.Context, kind model.RequestKind, subjectID uuid.UUID) error
	Reassign(ctx context.Context, id uuid.UUID, toApproverID uuid.UUID) (bool, error)
	GetSubject(ctx context.Context, kind model.RequestKind, subjectID uuid.UUID) (*SubjectSummary, error)
	SetSubjectStatus(ctx context.Context, kind model.RequestKind, subjectID uuid.UUID, status model.RequestStatus) error
}

// SubjectSummary is the slice of a request the approval machinery needs.
type SubjectSummary struct {
	Status model.RequestStatus
	Amount float64
}

// PaymentStore owns payment batches and the claim lifecycle of payable items.
// ClaimItems is a compare-and-swap: it only touches rows that are APPROVED
// and unclaimed, and returns how many it hit.
type PaymentStore interface {
	InTx(ctx context.Context, fn func(PaymentStore) error) error
	CreateBatch(ctx context.Context, batch *model.PaymentBatch) error
	GetBatch(ctx context.Context, id uuid.UUID) (*model.PaymentBatch, error)
	ListBatches(ctx context.Context, status *model.PaymentStatus) ([]model.PaymentBatch, error)
	ListBatchesForPeriod(ctx context.Context, from, to time.Time) ([]model.PaymentBatch, error)
	GetItems(ctx context.Context, selection model.ItemSelection) ([]model.PayableItem, error)
	ListPayableItems(ctx context.Context) ([]model.PayableItem, error)
	ListItemsForBatch(ctx context.Context, paymentID uuid.UUID) ([]model.PayableItem, error)
	ClaimItems(ctx context.Context, kind model.RequestKind, ids []uuid.UUID, paymentID uuid.UUID) (int64, error)
	ReleaseItems(ctx context.Context, paymentID uuid.UUID) error
	MarkItemsPaid(ctx context.Context, paymentID uuid.UUID) error
	Transition(ctx context.Context, update BatchUpdate) (bool, error)
}

// BatchUpdate is a guarded status write: applied only while the batch is
// still in From.
type BatchUpdate struct {
	ID           uuid.UUID
	From         model.PaymentStatus
	To           model.PaymentStatus
	CheckerID    *uuid.UUID
	Method       *model.PaymentMethod
	ProofURL     *string
	AuthorizedAt *time.Time
	ProcessedAt  *time.Time
}

type RequestStore interface {
	CreateRequisition(ctx context.Context, r *model.Requisition) error
	CreateExpense(ctx context.Context, e *model.Expense) error
}

// UserStore extends Directory with the writes the role service needs.
type UserStore interface {
	Directory
	InTx(ctx context.Context, fn func(UserStore) error) error
	CountActiveAdmins(ctx context.Context, excludeID uuid.UUID) (int64, error)
	UpdateRole(ctx context.Context, userID uuid.UUID, role model.Role) (bool, error)
}
