package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/nurpe/finops/internal/model"
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) CreateRequisition(ctx context.Context, req *model.Requisition) error {
	return r.db.WithContext(ctx).Raw(`
		INSERT INTO requisitions (
			user_id, title, amount, currency, category, description,
			type, department, branch, expected_date, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING
			id, user_id, title, amount, currency, category, description,
			type, department, branch, expected_date, status, payment_id, created_at
	`, req.UserID, req.Title, req.Amount, req.Currency, req.Category, req.Description,
		req.Type, req.Department, req.Branch, req.ExpectedDate, req.Status).Scan(req).Error
}

func (r *RequestRepository) CreateExpense(ctx context.Context, exp *model.Expense) error {
	return r.db.WithContext(ctx).Raw(`
		INSERT INTO expenses (
			user_id, title, amount, currency, category, merchant,
			expense_date, has_receipt, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING
			id, user_id, title, amount, currency, category, merchant,
			expense_date, has_receipt, status, payment_id, created_at, paid_at
	`, exp.UserID, exp.Title, exp.Amount, exp.Currency, exp.Category, exp.Merchant,
		exp.ExpenseDate, exp.HasReceipt, exp.Status).Scan(exp).Error
}
