package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/finops/internal/model"
	"github.com/nurpe/finops/internal/service"
)

const paymentColumns = `
	id, maker_id, checker_id, amount, currency, status, method, notes,
	proof_url, created_at, updated_at, authorized_at, processed_at
`

// itemProjection flattens one payable table into the shared PayableItem
// shape. Invoices have no title column, so vendor and number stand in.
func itemProjection(kind model.RequestKind) (string, error) {
	table, amountCol, err := payableTable(kind)
	if err != nil {
		return "", err
	}
	titleExpr := "title"
	if kind == model.KindInvoice {
		titleExpr = "vendor_name || ' #' || number"
	}
	return fmt.Sprintf(`
		SELECT '%s' AS kind, id, %s AS title, %s AS amount, currency, status, payment_id
		FROM %s
	`, kind, titleExpr, amountCol, table), nil
}

var allKinds = []model.RequestKind{
	model.KindExpense,
	model.KindInvoice,
	model.KindRequisition,
	model.KindMonthlyBudget,
}

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) InTx(ctx context.Context, fn func(service.PaymentStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PaymentRepository{db: tx})
	})
}

func (r *PaymentRepository) CreateBatch(ctx context.Context, batch *model.PaymentBatch) error {
	return r.db.WithContext(ctx).Raw(`
		INSERT INTO payments (maker_id, amount, currency, status, method, notes)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+paymentColumns+`
	`, batch.MakerID, batch.Amount, batch.Currency, batch.Status, batch.Method, batch.Notes).Scan(batch).Error
}

func (r *PaymentRepository) GetBatch(ctx context.Context, id uuid.UUID) (*model.PaymentBatch, error) {
	var batch model.PaymentBatch
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&batch).Error
	if err != nil {
		return nil, err
	}
	if batch.ID == uuid.Nil {
		return nil, nil
	}
	return &batch, nil
}

func (r *PaymentRepository) ListBatches(ctx context.Context, status *model.PaymentStatus) ([]model.PaymentBatch, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
	`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	var batches []model.PaymentBatch
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *PaymentRepository) ListBatchesForPeriod(ctx context.Context, from, to time.Time) ([]model.PaymentBatch, error) {
	var batches []model.PaymentBatch
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+paymentColumns+`
		FROM payments
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC
	`, from, to).Scan(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *PaymentRepository) GetItems(ctx context.Context, selection model.ItemSelection) ([]model.PayableItem, error) {
	var parts []string
	var args []interface{}
	for kind, ids := range selection.PerKind() {
		projection, err := itemProjection(kind)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fmt.Sprintf(`SELECT * FROM (%s) AS t WHERE id = ANY(?)`, projection))
		args = append(args, ids)
	}
	if len(parts) == 0 {
		return []model.PayableItem{}, nil
	}

	var items []model.PayableItem
	query := strings.Join(parts, " UNION ALL ")
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *PaymentRepository) ListPayableItems(ctx context.Context) ([]model.PayableItem, error) {
	var parts []string
	for _, kind := range allKinds {
		projection, err := itemProjection(kind)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fmt.Sprintf(
			`SELECT * FROM (%s) AS t WHERE status = 'APPROVED' AND payment_id IS NULL`, projection))
	}

	var items []model.PayableItem
	query := strings.Join(parts, " UNION ALL ") + " ORDER BY kind, title"
	if err := r.db.WithContext(ctx).Raw(query).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *PaymentRepository) ListItemsForBatch(ctx context.Context, paymentID uuid.UUID) ([]model.PayableItem, error) {
	var parts []string
	var args []interface{}
	for _, kind := range allKinds {
		projection, err := itemProjection(kind)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fmt.Sprintf(`SELECT * FROM (%s) AS t WHERE payment_id = ?`, projection))
		args = append(args, paymentID)
	}

	var items []model.PayableItem
	query := strings.Join(parts, " UNION ALL ") + " ORDER BY kind, title"
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ClaimItems stamps the payment id onto rows that are still APPROVED and
// unclaimed. The caller compares the returned count against the request.
func (r *PaymentRepository) ClaimItems(ctx context.Context, kind model.RequestKind, ids []uuid.UUID, paymentID uuid.UUID) (int64, error) {
	table, _, err := payableTable(kind)
	if err != nil {
		return 0, err
	}
	result := r.db.WithContext(ctx).Exec(fmt.Sprintf(`
		UPDATE %s
		SET payment_id = ?
		WHERE id = ANY(?) AND status = 'APPROVED' AND payment_id IS NULL
	`, table), paymentID, ids)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *PaymentRepository) ReleaseItems(ctx context.Context, paymentID uuid.UUID) error {
	for _, kind := range allKinds {
		table, _, err := payableTable(kind)
		if err != nil {
			return err
		}
		if err := r.db.WithContext(ctx).Exec(fmt.Sprintf(`
			UPDATE %s
			SET payment_id = NULL
			WHERE payment_id = ?
		`, table), paymentID).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *PaymentRepository) MarkItemsPaid(ctx context.Context, paymentID uuid.UUID) error {
	for _, kind := range allKinds {
		table, _, err := payableTable(kind)
		if err != nil {
			return err
		}
		paidAt := ""
		if kind == model.KindExpense || kind == model.KindInvoice {
			paidAt = ", paid_at = NOW()"
		}
		if err := r.db.WithContext(ctx).Exec(fmt.Sprintf(`
			UPDATE %s
			SET status = ?%s
			WHERE payment_id = ?
		`, table, paidAt), kind.PaidStatus(), paymentID).Error; err != nil {
			return err
		}
	}
	return nil
}

// Transition is the guarded batch status write: it only applies while the
// batch is still in update.From.
func (r *PaymentRepository) Transition(ctx context.Context, update service.BatchUpdate) (bool, error) {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE payments
		SET
			status = ?,
			checker_id = COALESCE(?, checker_id),
			method = COALESCE(?, method),
			proof_url = COALESCE(?, proof_url),
			authorized_at = COALESCE(?, authorized_at),
			processed_at = COALESCE(?, processed_at),
			updated_at = NOW()
		WHERE id = ? AND status = ?
	`, update.To, update.CheckerID, update.Method, update.ProofURL,
		update.AuthorizedAt, update.ProcessedAt, update.ID, update.From)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
