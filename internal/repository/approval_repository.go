package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/finops/internal/model"
	"github.com/nurpe/finops/internal/service"
)

const approvalColumns = `
	id, subject_kind, subject_id, approver_id, level, status,
	comments, delegated_from_id, created_at, decided_at
`

// payableTable maps a request kind to its table and amount column. Every
// kind-polymorphic query in this package goes through it.
func payableTable(kind model.RequestKind) (string, string, error) {
	switch kind {
	case model.KindExpense:
		return "expenses", "amount", nil
	case model.KindRequisition:
		return "requisitions", "amount", nil
	case model.KindMonthlyBudget:
		return "monthly_budgets", "total_amount", nil
	case model.KindInvoice:
		return "invoices", "amount", nil
	default:
		return "", "", fmt.Errorf("unknown request kind %q", kind)
	}
}

type ApprovalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

func (r *ApprovalRepository) InTx(ctx context.Context, fn func(service.ApprovalStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ApprovalRepository{db: tx})
	})
}

func (r *ApprovalRepository) Get(ctx context.Context, id uuid.UUID) (*model.Approval, error) {
	var approval model.Approval
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+approvalColumns+`
		FROM approvals
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&approval).Error
	if err != nil {
		return nil, err
	}
	if approval.ID == uuid.Nil {
		return nil, nil
	}
	return &approval, nil
}

func (r *ApprovalRepository) Create(ctx context.Context, rows []model.Approval) ([]model.Approval, error) {
	saved := make([]model.Approval, 0, len(rows))
	for _, row := range rows {
		var out model.Approval
		err := r.db.WithContext(ctx).Raw(`
			INSERT INTO approvals (subject_kind, subject_id, approver_id, level, status, comments, delegated_from_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING `+approvalColumns+`
		`, row.SubjectKind, row.SubjectID, row.ApproverID, row.Level, row.Status, row.Comments, row.DelegatedFromID).Scan(&out).Error
		if err != nil {
			return nil, err
		}
		saved = append(saved, out)
	}
	return saved, nil
}

func (r *ApprovalRepository) ListBySubject(ctx context.Context, kind model.RequestKind, subjectID uuid.UUID) ([]model.Approval, error) {
	var approvals []model.Approval
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+approvalColumns+`
		FROM approvals
		WHERE subject_kind = ? AND subject_id = ?
		ORDER BY level ASC, created_at ASC
	`, kind, subjectID).Scan(&approvals).Error
	if err != nil {
		return nil, err
	}
	return approvals, nil
}

func (r *ApprovalRepository) ListPendingByApprover(ctx context.Context, approverID uuid.UUID) ([]model.Approval, error) {
	var approvals []model.Approval
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+approvalColumns+`
		FROM approvals
		WHERE approver_id = ? AND status = 'PENDING'
		ORDER BY created_at ASC
	`, approverID).Scan(&approvals).Error
	if err != nil {
		return nil, err
	}
	return approvals, nil
}

func (r *ApprovalRepository) ListByApproverSince(ctx context.Context, approverID uuid.UUID, since time.Time) ([]model.Approval, error) {
	var approvals []model.Approval
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+approvalColumns+`
		FROM approvals
		WHERE approver_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, approverID, since).Scan(&approvals).Error
	if err != nil {
		return nil, err
	}
	return approvals, nil
}

func (r *ApprovalRepository) ListOverduePending(ctx context.Context, before time.Time) ([]model.Approval, error) {
	var approvals []model.Approval
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+approvalColumns+`
		FROM approvals
		WHERE status = 'PENDING' AND created_at < ?
		ORDER BY created_at ASC
	`, before).Scan(&approvals).Error
	if err != nil {
		return nil, err
	}
	return approvals, nil
}

// MarkDecided flips a PENDING row to its final status. The status guard in
// the WHERE clause makes concurrent decisions resolve to one winner.
func (r *ApprovalRepository) MarkDecided(ctx context.Context, id uuid.UUID, status model.ApprovalStatus, comments *string) (bool, error) {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE approvals
		SET status = ?, comments = COALESCE(?, comments), decided_at = NOW()
		WHERE id = ? AND status = 'PENDING'
	`, status, comments, id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ApprovalRepository) SkipPending(ctx context.Context, kind model.RequestKind, subjectID uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE approvals
		SET status = 'SKIPPED', decided_at = NOW()
		WHERE subject_kind = ? AND subject_id = ? AND status = 'PENDING'
	`, kind, subjectID).Error
}

func (r *ApprovalRepository) Reassign(ctx context.Context, id uuid.UUID, toApproverID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE approvals
		SET approver_id = ?
		WHERE id = ? AND status = 'PENDING'
	`, toApproverID, id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ApprovalRepository) GetSubject(ctx context.Context, kind model.RequestKind, subjectID uuid.UUID) (*service.SubjectSummary, error) {
	table, amountCol, err := payableTable(kind)
	if err != nil {
		return nil, err
	}

	var row struct {
		ID     uuid.UUID
		Status model.RequestStatus
		Amount float64
	}
	err = r.db.WithContext(ctx).Raw(fmt.Sprintf(`
		SELECT id, status, %s AS amount
		FROM %s
		WHERE id = ?
		LIMIT 1
	`, amountCol, table), subjectID).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &service.SubjectSummary{Status: row.Status, Amount: row.Amount}, nil
}

func (r *ApprovalRepository) SetSubjectStatus(ctx context.Context, kind model.RequestKind, subjectID uuid.UUID, status model.RequestStatus) error {
	table, _, err := payableTable(kind)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Exec(fmt.Sprintf(`
		UPDATE %s
		SET status = ?
		WHERE id = ?
	`, table), status, subjectID).Error
}
