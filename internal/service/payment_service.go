package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/finops/internal/model"
)

// PaymentEvent is what gets handed to the ledger collaborator after a
// successful disbursement.
type PaymentEvent struct {
	BatchID  uuid.UUID
	Amount   float64
	Currency model.Currency
	Items    []model.PayableItem
}

// LedgerPoster posts disbursements downstream. Best-effort: a failure is
// logged and never rolls back the payment.
type LedgerPoster interface {
	PostPaymentEvent(ctx context.Context, event PaymentEvent) error
}

type RegisterGenerator interface {
	Generate(register model.PaymentRegister) ([]byte, error)
}

type VoucherGenerator interface {
	Generate(doc model.PaymentVoucher) ([]byte, error)
}

// PaymentService aggregates approved items into batches and drives each
// batch through the maker-checker-disburser state machine.
type PaymentService struct {
	payments  PaymentStore
	directory Directory
	ledger    LedgerPoster
	register  RegisterGenerator
	voucher   VoucherGenerator
	log       zerolog.Logger
}

func NewPaymentService(
	payments PaymentStore,
	directory Directory,
	ledger LedgerPoster,
	register RegisterGenerator,
	voucher VoucherGenerator,
	log zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		payments:  payments,
		directory: directory,
		ledger:    ledger,
		register:  register,
		voucher:   voucher,
		log:       log,
	}
}

type CreateBatchInput struct {
	Maker     model.Principal
	Selection model.ItemSelection
	Method    model.PaymentMethod
	Notes     *string
}

// CreateBatch claims the selected items and creates the batch in a single
// transaction. The claim is a conditional update per kind; if fewer rows are
// hit than requested, another batch got there first and the whole creation
// rolls back.
func (s *PaymentService) CreateBatch(ctx context.Context, input CreateBatchInput) (*model.PaymentBatch, error) {
	if !input.Maker.Role.CanMakePayments() {
		return nil, ErrPermissionDenied
	}
	if input.Selection.IsEmpty() {
		return nil, fmt.Errorf("%w: no items selected", ErrInvalidInput)
	}
	if input.Method == "" {
		input.Method = model.MethodBankTransfer
	}

	var batch *model.PaymentBatch
	err := s.payments.InTx(ctx, func(tx PaymentStore) error {
		items, err := tx.GetItems(ctx, input.Selection)
		if err != nil {
			return err
		}
		if len(items) != input.Selection.Count() {
			return fmt.Errorf("%w: %d of %d selected items", ErrNotFound, input.Selection.Count()-len(items), input.Selection.Count())
		}

		var amount float64
		var currency model.Currency
		for _, item := range items {
			if err := checkClaimable(item); err != nil {
				return err
			}
			if currency == "" {
				currency = item.Currency
			} else if item.Currency != currency {
				return fmt.Errorf("%w: mixed currencies in selection", ErrInvalidInput)
			}
			amount += item.PayableAmount()
		}

		batch = &model.PaymentBatch{
			MakerID:  input.Maker.UserID,
			Amount:   amount,
			Currency: currency,
			Status:   model.PaymentStatusPendingAuthorization,
			Method:   input.Method,
			Notes:    input.Notes,
		}
		if err := tx.CreateBatch(ctx, batch); err != nil {
			return err
		}

		for kind, ids := range input.Selection.PerKind() {
			claimed, err := tx.ClaimItems(ctx, kind, ids, batch.ID)
			if err != nil {
				return err
			}
			// A shortfall means a concurrent batch claimed an item between
			// our read and the conditional write.
			if claimed != int64(len(ids)) {
				return fmt.Errorf("%w: %d %s item(s) claimed elsewhere", ErrItemNotPayable, int64(len(ids))-claimed, kind)
			}
		}

		batch.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("payment_id", batch.ID.String()).
		Float64("amount", batch.Amount).
		Int("items", len(batch.Items)).
		Msg("payment batch created")
	return batch, nil
}

// checkClaimable is the eligibility gate for joining a batch, shared across
// all request kinds through the Payable surface.
func checkClaimable(item model.Payable) error {
	if item.PayableStatus() != model.RequestStatusApproved || item.ClaimedBy() != nil {
		return fmt.Errorf("%w: %s %s", ErrItemNotPayable, item.PayableKind(), item.PayableID())
	}
	return nil
}

type PaymentActionInput struct {
	PaymentID uuid.UUID
	Action    model.PaymentAction
	Actor     model.Principal
	Method    *model.PaymentMethod
	ProofURL  *string
}

// Act applies one maker-checker-disburser transition. Every write is guarded
// by the batch's current status, so concurrent actions resolve to exactly
// one winner.
func (s *PaymentService) Act(ctx context.Context, input PaymentActionInput) (*model.PaymentBatch, error) {
	batch, err := s.payments.GetBatch(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, fmt.Errorf("%w: payment %s", ErrNotFound, input.PaymentID)
	}
	if batch.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: payment is %s", ErrAlreadyFinalized, batch.Status)
	}

	switch input.Action {
	case model.ActionAuthorize:
		err = s.authorize(ctx, batch, input)
	case model.ActionReject:
		err = s.reject(ctx, batch, input)
	case model.ActionDisburse:
		err = s.disburse(ctx, batch, input)
	default:
		err = fmt.Errorf("%w: unknown action %q", ErrInvalidInput, input.Action)
	}
	if err != nil {
		return nil, err
	}

	return s.payments.GetBatch(ctx, input.PaymentID)
}

func (s *PaymentService) authorize(ctx context.Context, batch *model.PaymentBatch, input PaymentActionInput) error {
	if batch.Status != model.PaymentStatusPendingAuthorization {
		return fmt.Errorf("%w: cannot authorize from %s", ErrInvalidState, batch.Status)
	}
	if input.Actor.UserID == batch.MakerID {
		return ErrSelfAuthorization
	}
	if !input.Actor.Role.CanAuthorizePayments() {
		return ErrPermissionDenied
	}

	now := time.Now()
	updated, err := s.payments.Transition(ctx, BatchUpdate{
		ID:           batch.ID,
		From:         model.PaymentStatusPendingAuthorization,
		To:           model.PaymentStatusAuthorized,
		CheckerID:    &input.Actor.UserID,
		AuthorizedAt: &now,
	})
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("%w: payment state changed concurrently", ErrInvalidState)
	}
	return nil
}

func (s *PaymentService) reject(ctx context.Context, batch *model.PaymentBatch, input PaymentActionInput) error {
	// An authorized batch can no longer be rejected; only the pending gate
	// is reversible.
	if batch.Status != model.PaymentStatusPendingAuthorization {
		return fmt.Errorf("%w: cannot reject from %s", ErrInvalidState, batch.Status)
	}
	if !input.Actor.Role.CanAuthorizePayments() {
		return ErrPermissionDenied
	}

	return s.payments.InTx(ctx, func(tx PaymentStore) error {
		// CheckerID records whoever acted at the checker gate, for either
		// outcome; AuthorizedAt stays nil on a rejected batch.
		updated, err := tx.Transition(ctx, BatchUpdate{
			ID:        batch.ID,
			From:      model.PaymentStatusPendingAuthorization,
			To:        model.PaymentStatusRejected,
			CheckerID: &input.Actor.UserID,
		})
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("%w: payment state changed concurrently", ErrInvalidState)
		}
		// Rejected batches release their claims; the items return to the
		// payable pool.
		return tx.ReleaseItems(ctx, batch.ID)
	})
}

func (s *PaymentService) disburse(ctx context.Context, batch *model.PaymentBatch, input PaymentActionInput) error {
	if batch.Status != model.PaymentStatusAuthorized {
		return fmt.Errorf("%w: payment must be authorized before disbursement", ErrInvalidState)
	}
	if !input.Actor.Role.CanMakePayments() {
		return ErrPermissionDenied
	}

	method := batch.Method
	if input.Method != nil {
		method = *input.Method
	}

	err := s.payments.InTx(ctx, func(tx PaymentStore) error {
		now := time.Now()
		updated, err := tx.Transition(ctx, BatchUpdate{
			ID:          batch.ID,
			From:        model.PaymentStatusAuthorized,
			To:          model.PaymentStatusPaid,
			Method:      &method,
			ProofURL:    input.ProofURL,
			ProcessedAt: &now,
		})
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("%w: payment state changed concurrently", ErrInvalidState)
		}
		// Fan-out to every linked item; any failure rolls the whole
		// disbursement back and the batch stays AUTHORIZED.
		return tx.MarkItemsPaid(ctx, batch.ID)
	})
	if err != nil {
		return err
	}

	items, err := s.payments.ListItemsForBatch(ctx, batch.ID)
	if err != nil {
		s.log.Error().Err(err).Str("payment_id", batch.ID.String()).Msg("listing items for ledger post failed")
		items = nil
	}
	if err := s.ledger.PostPaymentEvent(ctx, PaymentEvent{
		BatchID:  batch.ID,
		Amount:   batch.Amount,
		Currency: batch.Currency,
		Items:    items,
	}); err != nil {
		// Payment truth lives here; ledger sync is eventually consistent.
		s.log.Error().Err(err).Str("payment_id", batch.ID.String()).Msg("ledger post failed")
	}
	return nil
}

func (s *PaymentService) ListBatches(ctx context.Context, status *model.PaymentStatus) ([]model.PaymentBatch, error) {
	return s.payments.ListBatches(ctx, status)
}

// PayablePool lists approved, unclaimed items eligible for a new batch.
func (s *PaymentService) PayablePool(ctx context.Context, actor model.Principal) ([]model.PayableItem, error) {
	if !actor.Role.CanMakePayments() && !actor.Role.CanAuthorizePayments() {
		return nil, ErrPermissionDenied
	}
	return s.payments.ListPayableItems(ctx)
}

type ExportResult struct {
	FileName string
	Content  []byte
}

// ExportRegister renders the XLSX payment register for a period.
func (s *PaymentService) ExportRegister(ctx context.Context, actor model.Principal, from, to time.Time) (*ExportResult, error) {
	if !actor.Role.CanMakePayments() && !actor.Role.CanAuthorizePayments() {
		return nil, ErrPermissionDenied
	}
	if from.IsZero() || to.IsZero() || from.After(to) {
		return nil, fmt.Errorf("%w: invalid period", ErrInvalidInput)
	}

	batches, err := s.payments.ListBatchesForPeriod(ctx, from, to.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	for i := range batches {
		items, err := s.payments.ListItemsForBatch(ctx, batches[i].ID)
		if err != nil {
			return nil, err
		}
		batches[i].Items = items
	}

	content, err := s.register.Generate(model.PaymentRegister{
		PeriodStart: from,
		PeriodEnd:   to,
		Batches:     batches,
	})
	if err != nil {
		return nil, err
	}
	fileName := fmt.Sprintf("payment-register-%s-%s.xlsx", from.Format("20060102"), to.Format("20060102"))
	return &ExportResult{FileName: fileName, Content: content}, nil
}

// Voucher renders the disbursement proof document for a paid batch.
func (s *PaymentService) Voucher(ctx context.Context, actor model.Principal, paymentID uuid.UUID) (*ExportResult, error) {
	if !actor.Role.CanMakePayments() && !actor.Role.CanAuthorizePayments() {
		return nil, ErrPermissionDenied
	}

	batch, err := s.payments.GetBatch(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	if batch.Status != model.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: voucher only available for paid batches", ErrInvalidState)
	}

	items, err := s.payments.ListItemsForBatch(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	maker, err := s.directory.GetUser(ctx, batch.MakerID)
	if err != nil {
		return nil, err
	}
	if maker == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, batch.MakerID)
	}
	var checker *model.User
	if batch.CheckerID != nil {
		checker, err = s.directory.GetUser(ctx, *batch.CheckerID)
		if err != nil {
			return nil, err
		}
	}

	content, err := s.voucher.Generate(model.PaymentVoucher{
		Batch:   *batch,
		Maker:   *maker,
		Checker: checker,
		Items:   items,
	})
	if err != nil {
		return nil, err
	}
	fileName := fmt.Sprintf("payment-voucher-%s.pdf", batch.ID)
	return &ExportResult{FileName: fileName, Content: content}, nil
}
